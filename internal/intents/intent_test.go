package intents

import (
	"reflect"
	"testing"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		raw  string
		want Parsed
	}{
		{"search", Parsed{Base: "search"}},
		{"delete_from_artifact", Parsed{Base: "delete", FromArtifact: true}},
		{"create_from_artifact", Parsed{Base: "create", FromArtifact: true}},
		{"vault?tools=list,rename", Parsed{Base: "vault", ToolOptions: []string{"list", "rename"}}},
		{"vault?tools=count", Parsed{Base: "vault", ToolOptions: []string{"count"}}},
		{"vault?tools=", Parsed{Base: "vault"}},
		{"vault?tools= list , rename ", Parsed{Base: "vault", ToolOptions: []string{"list", "rename"}}},
		{"update_from_artifact?tools=x", Parsed{Base: "update", ToolOptions: []string{"x"}, FromArtifact: true}},
	}

	for _, tt := range tests {
		got := ParseType(tt.raw)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseType(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestVocabularyIsValid(t *testing.T) {
	v := NewVocabulary("weekly_review")

	valid := []string{
		"search", "delete_from_artifact", "vault?tools=list", "weekly_review",
	}
	for _, raw := range valid {
		if !v.IsValid(raw) {
			t.Errorf("IsValid(%q) = false, want true", raw)
		}
	}

	invalid := []string{"drop_tables", "", "searchx", "weekly_review2"}
	for _, raw := range invalid {
		if v.IsValid(raw) {
			t.Errorf("IsValid(%q) = true, want false", raw)
		}
	}
}

func TestVocabularyNames(t *testing.T) {
	v := NewVocabulary("zeta", "alpha")
	names := v.Names()

	if len(names) != len(BuiltinTypes)+2 {
		t.Fatalf("Names len = %d, want %d", len(names), len(BuiltinTypes)+2)
	}
	// Built-ins first, extras sorted after.
	for i, n := range BuiltinTypes {
		if names[i] != n {
			t.Errorf("names[%d] = %q, want %q", i, names[i], n)
		}
	}
	if names[len(names)-2] != "alpha" || names[len(names)-1] != "zeta" {
		t.Errorf("extras = %v", names[len(BuiltinTypes):])
	}
}
