package artifacts

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLStore(filepath.Join(t.TempDir(), "artifacts.db"))
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)

	a := &Artifact{
		Conversation:  "conv",
		Type:          TypeSearchResults,
		SearchResults: []SearchHit{{Path: "a.md"}},
	}
	if err := s.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.ID == "" {
		t.Error("missing id")
	}
	if a.CreatedAt.IsZero() {
		t.Error("missing timestamp")
	}
}

func TestByID(t *testing.T) {
	s := newTestStore(t)

	a := &Artifact{Conversation: "conv", Type: TypeCreatedNotes, CreatedNotes: []string{"x.md"}}
	s.Add(a)

	got, err := s.ByID("conv", a.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if got.Type != TypeCreatedNotes || len(got.CreatedNotes) != 1 {
		t.Errorf("got = %+v", got)
	}

	// Lookups are conversation-scoped.
	if _, err := s.ByID("other", a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-conversation lookup: %v", err)
	}
}

func TestMostRecentOfTypes(t *testing.T) {
	s := newTestStore(t)

	s.Add(&Artifact{Conversation: "conv", Type: TypeSearchResults, SearchResults: []SearchHit{{Path: "old.md"}}})
	s.Add(&Artifact{Conversation: "conv", Type: TypeCreatedNotes, CreatedNotes: []string{"mid.md"}})
	s.Add(&Artifact{Conversation: "conv", Type: TypeSearchResults, SearchResults: []SearchHit{{Path: "new.md"}}})

	got, err := s.MostRecentOfTypes("conv", TypeSearchResults)
	if err != nil {
		t.Fatalf("MostRecentOfTypes: %v", err)
	}
	if got.SearchResults[0].Path != "new.md" {
		t.Errorf("got %q, want new.md", got.SearchResults[0].Path)
	}

	got, err = s.MostRecentOfTypes("conv", TypeSearchResults, TypeCreatedNotes)
	if err != nil {
		t.Fatalf("MostRecentOfTypes: %v", err)
	}
	if got.Type != TypeSearchResults {
		t.Errorf("multi-type pick = %s", got.Type)
	}

	if _, err := s.MostRecentOfTypes("conv", TypeDeletedFiles); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing type: %v", err)
	}
	if _, err := s.MostRecentOfTypes("conv"); !errors.Is(err, ErrNotFound) {
		t.Errorf("no types: %v", err)
	}
}

func TestByTypeOrder(t *testing.T) {
	s := newTestStore(t)

	s.Add(&Artifact{Conversation: "conv", Type: TypeCreatedNotes, CreatedNotes: []string{"1.md"}})
	s.Add(&Artifact{Conversation: "conv", Type: TypeCreatedNotes, CreatedNotes: []string{"2.md"}})

	got, err := s.ByType("conv", TypeCreatedNotes)
	if err != nil {
		t.Fatalf("ByType: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].CreatedNotes[0] != "1.md" || got[1].CreatedNotes[0] != "2.md" {
		t.Error("insertion order not preserved")
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)

	a := &Artifact{Conversation: "conv", Type: TypeDeletedFiles, DeletedFiles: []DeletedFile{{Path: "x.md"}}}
	s.Add(a)

	if err := s.Remove("conv", a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.ByID("conv", a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ByID after remove: %v", err)
	}
	if err := s.Remove("conv", a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove: %v", err)
	}
}

func TestArtifactImmutableAcrossConsumption(t *testing.T) {
	s := newTestStore(t)

	a := &Artifact{Conversation: "conv", Type: TypeSearchResults,
		SearchResults: []SearchHit{{Path: "a.md"}, {Path: "b.md"}, {Path: "c.md"}}}
	s.Add(a)

	// Reading twice returns the same payload: consumption never mutates.
	first, _ := s.ByID("conv", a.ID)
	first.SearchResults = first.SearchResults[:1]
	second, _ := s.ByID("conv", a.ID)
	if len(second.SearchResults) != 3 {
		t.Errorf("stored artifact mutated: %d hits", len(second.SearchResults))
	}
}

func TestPaths(t *testing.T) {
	tests := []struct {
		name string
		a    Artifact
		want []string
	}{
		{"search", Artifact{Type: TypeSearchResults, SearchResults: []SearchHit{{Path: "a.md"}, {Path: "b.md"}}}, []string{"a.md", "b.md"}},
		{"created", Artifact{Type: TypeCreatedNotes, CreatedNotes: []string{"c.md"}}, []string{"c.md"}},
		{"deleted", Artifact{Type: TypeDeletedFiles, DeletedFiles: []DeletedFile{{Path: "d.md"}}}, []string{"d.md"}},
		{"copied", Artifact{Type: TypeCopiedNotes, CopiedNotes: []CopiedNote{{Source: "s.md", Destination: "t.md"}}}, []string{"t.md"}},
		{"frontmatter", Artifact{Type: TypeFrontmatterResults, FrontmatterChanges: []FrontmatterChange{{Path: "f.md"}}}, []string{"f.md"}},
		{"read", Artifact{Type: TypeContentRead, Read: &ReadContent{Path: "r.md"}}, []string{"r.md"}},
	}

	for _, tt := range tests {
		got := tt.a.Paths()
		if len(got) != len(tt.want) {
			t.Errorf("%s: Paths = %v, want %v", tt.name, got, tt.want)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("%s: Paths[%d] = %q, want %q", tt.name, i, got[i], tt.want[i])
			}
		}
	}
}
