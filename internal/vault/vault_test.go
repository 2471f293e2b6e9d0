package vault

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(t.TempDir(), ".trash")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestCreateAndRead(t *testing.T) {
	v := newTestVault(t)

	fm := map[string]any{"title": "Hello", "tags": []any{"a", "b"}}
	if err := v.Create("notes/hello.md", "Body text.", fm); err != nil {
		t.Fatalf("Create: %v", err)
	}

	note, err := v.Read("notes/hello.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if note.Body != "Body text." {
		t.Errorf("body = %q", note.Body)
	}
	if note.Frontmatter["title"] != "Hello" {
		t.Errorf("title = %v", note.Frontmatter["title"])
	}
}

func TestCreateExisting(t *testing.T) {
	v := newTestVault(t)

	if err := v.Create("a.md", "one", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := v.Create("a.md", "two", nil)
	if !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
}

func TestReadMissing(t *testing.T) {
	v := newTestVault(t)

	_, err := v.Read("missing.md")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	v := newTestVault(t)

	if err := v.Create("../outside.md", "x", nil); err == nil {
		t.Error("expected error for path escaping root")
	}
	if _, err := v.Read("/etc/passwd"); err == nil {
		t.Error("expected error for absolute path")
	}
}

func TestUniquePath(t *testing.T) {
	v := newTestVault(t)

	if got := v.UniquePath("new.md"); got != "new.md" {
		t.Errorf("free path = %q", got)
	}

	v.Create("new.md", "x", nil)
	if got := v.UniquePath("new.md"); got != "new 1.md" {
		t.Errorf("first collision = %q", got)
	}

	v.Create("new 1.md", "x", nil)
	if got := v.UniquePath("new.md"); got != "new 2.md" {
		t.Errorf("second collision = %q", got)
	}
}

func TestSoftDeleteAndRestore(t *testing.T) {
	v := newTestVault(t)

	if err := v.Create("projects/x.md", "content", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := v.SoftDelete("projects/x.md"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if v.Exists("projects/x.md") {
		t.Fatal("note still present after soft delete")
	}

	// The note sits in the trash under its original relative path.
	trashed := filepath.Join(v.Root(), ".trash", "projects", "x.md")
	if _, err := os.Stat(trashed); err != nil {
		t.Fatalf("expected trashed copy: %v", err)
	}

	if err := v.Restore("projects/x.md"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	note, err := v.Read("projects/x.md")
	if err != nil {
		t.Fatalf("Read after restore: %v", err)
	}
	if note.Body != "content" {
		t.Errorf("restored body = %q", note.Body)
	}
}

func TestSoftDeleteCollisionStampsName(t *testing.T) {
	v := newTestVault(t)

	v.Create("x.md", "first", nil)
	v.SoftDelete("x.md")
	v.Create("x.md", "second", nil)
	if err := v.SoftDelete("x.md"); err != nil {
		t.Fatalf("second SoftDelete: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(v.Root(), ".trash"))
	if err != nil {
		t.Fatalf("read trash: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("trash entries = %d, want 2", len(entries))
	}
}

func TestCopy(t *testing.T) {
	v := newTestVault(t)

	v.Create("src.md", "payload", map[string]any{"k": "v"})
	if err := v.Copy("src.md", "dir/dst.md"); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	note, err := v.Read("dir/dst.md")
	if err != nil {
		t.Fatalf("Read copy: %v", err)
	}
	if note.Body != "payload" {
		t.Errorf("copied body = %q", note.Body)
	}
	if !v.Exists("src.md") {
		t.Error("source removed by copy")
	}
}

func TestRename(t *testing.T) {
	v := newTestVault(t)

	v.Create("old.md", "x", nil)
	if err := v.Rename("old.md", "sub/new.md"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if v.Exists("old.md") {
		t.Error("old path still exists")
	}
	if !v.Exists("sub/new.md") {
		t.Error("new path missing")
	}
}

func TestSetProperty(t *testing.T) {
	v := newTestVault(t)

	v.Create("n.md", "body", map[string]any{"status": "draft"})

	prev, err := v.SetProperty("n.md", "status", "done")
	if err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if prev != "draft" {
		t.Errorf("prev = %v, want draft", prev)
	}

	val, ok, err := v.GetProperty("n.md", "status")
	if err != nil || !ok {
		t.Fatalf("GetProperty: ok=%v err=%v", ok, err)
	}
	if val != "done" {
		t.Errorf("value = %v, want done", val)
	}

	// Body survives frontmatter edits.
	note, _ := v.Read("n.md")
	if note.Body != "body" {
		t.Errorf("body = %q after property edit", note.Body)
	}
}

func TestReplaceFrontmatter(t *testing.T) {
	v := newTestVault(t)

	v.Create("n.md", "body", map[string]any{"a": "1", "b": "2"})

	prev, err := v.ReplaceFrontmatter("n.md", map[string]any{"c": "3"})
	if err != nil {
		t.Fatalf("ReplaceFrontmatter: %v", err)
	}
	if prev["a"] != "1" || prev["b"] != "2" {
		t.Errorf("prev = %v", prev)
	}

	note, _ := v.Read("n.md")
	if len(note.Frontmatter) != 1 || note.Frontmatter["c"] != "3" {
		t.Errorf("frontmatter = %v", note.Frontmatter)
	}
}

func TestListSkipsTrashAndState(t *testing.T) {
	v := newTestVault(t)

	v.Create("a.md", "x", nil)
	v.Create("sub/b.md", "x", nil)
	v.Create("c.txt", "x", nil) // not markdown
	os.MkdirAll(filepath.Join(v.Root(), ".trash"), 0o755)
	os.WriteFile(filepath.Join(v.Root(), ".trash", "t.md"), []byte("x"), 0o644)
	os.MkdirAll(filepath.Join(v.Root(), ".curator"), 0o755)
	os.WriteFile(filepath.Join(v.Root(), ".curator", "s.md"), []byte("x"), 0o644)

	notes, err := v.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(notes)
	want := []string{"a.md", "sub/b.md"}
	if len(notes) != len(want) {
		t.Fatalf("List = %v, want %v", notes, want)
	}
	for i := range want {
		if notes[i] != want[i] {
			t.Errorf("notes[%d] = %q, want %q", i, notes[i], want[i])
		}
	}
}

func TestListSkipsConfiguredDirs(t *testing.T) {
	v, err := New(t.TempDir(), "wastebin", "vault-meta")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	v.Create("a.md", "x", nil)
	os.MkdirAll(filepath.Join(v.Root(), "wastebin"), 0o755)
	os.WriteFile(filepath.Join(v.Root(), "wastebin", "t.md"), []byte("x"), 0o644)
	os.MkdirAll(filepath.Join(v.Root(), "vault-meta"), 0o755)
	os.WriteFile(filepath.Join(v.Root(), "vault-meta", "s.md"), []byte("x"), 0o644)

	notes, err := v.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(notes) != 1 || notes[0] != "a.md" {
		t.Errorf("List = %v, want [a.md]", notes)
	}

	got, err := v.Glob([]string{"**/*.md"})
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(got) != 1 || got[0] != "a.md" {
		t.Errorf("Glob = %v, want [a.md]", got)
	}
}

func TestGlob(t *testing.T) {
	v := newTestVault(t)

	v.Create("projects/a.md", "x", nil)
	v.Create("projects/deep/b.md", "x", nil)
	v.Create("journal/c.md", "x", nil)

	got, err := v.Glob([]string{"projects/**/*.md", "projects/*.md"})
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	sort.Strings(got)
	want := []string{"projects/a.md", "projects/deep/b.md"}
	if len(got) != len(want) {
		t.Fatalf("Glob = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitFrontmatter(t *testing.T) {
	fm, body := SplitFrontmatter([]byte("---\ntitle: T\n---\n\nBody here\n"))
	if fm["title"] != "T" {
		t.Errorf("title = %v", fm["title"])
	}
	if body != "Body here\n" {
		t.Errorf("body = %q", body)
	}
}

func TestSplitFrontmatterNone(t *testing.T) {
	fm, body := SplitFrontmatter([]byte("Just body\n"))
	if fm != nil {
		t.Errorf("fm = %v, want nil", fm)
	}
	if body != "Just body\n" {
		t.Errorf("body = %q", body)
	}
}

func TestSplitFrontmatterInvalidYAML(t *testing.T) {
	raw := "---\n{not yaml:::\n---\nbody"
	fm, body := SplitFrontmatter([]byte(raw))
	if fm != nil {
		t.Errorf("fm = %v, want nil", fm)
	}
	if body != raw {
		t.Errorf("body = %q, want full content", body)
	}
}

func TestJoinFrontmatterRoundTrip(t *testing.T) {
	in := map[string]any{"title": "X", "count": 3}
	data, err := JoinFrontmatter(in, "the body")
	if err != nil {
		t.Fatalf("JoinFrontmatter: %v", err)
	}

	fm, body := SplitFrontmatter(data)
	if fm["title"] != "X" {
		t.Errorf("title = %v", fm["title"])
	}
	if fm["count"] != 3 {
		t.Errorf("count = %v", fm["count"])
	}
	if body != "the body" {
		t.Errorf("body = %q", body)
	}
}

func TestJoinFrontmatterEmpty(t *testing.T) {
	data, err := JoinFrontmatter(nil, "plain")
	if err != nil {
		t.Fatalf("JoinFrontmatter: %v", err)
	}
	if string(data) != "plain" {
		t.Errorf("data = %q", data)
	}
}
