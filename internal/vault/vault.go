// Package vault provides markdown note storage with YAML frontmatter,
// soft deletion, and glob-based selection.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrNotFound = errors.New("note not found")
	ErrExists   = errors.New("note already exists")
)

// Note is a parsed markdown note.
type Note struct {
	Path        string
	Frontmatter map[string]any
	Body        string
}

// Vault is a markdown vault rooted at a directory on the local file system.
type Vault struct {
	root     string
	trashDir string // relative to root
	skipDirs map[string]bool
}

// New creates a Vault rooted at root, creating the directory if needed.
// skip names additional top-level directories, such as the daemon state
// directory, to exclude from listing and glob matching; the trash directory
// is always excluded.
func New(root, trashDir string, skip ...string) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("vault: create root: %w", err)
	}
	if trashDir == "" {
		trashDir = ".trash"
	}

	skipDirs := map[string]bool{
		".git":     true,
		".curator": true,
	}
	skipDirs[strings.SplitN(trashDir, "/", 2)[0]] = true
	for _, name := range skip {
		if name != "" {
			skipDirs[strings.SplitN(name, "/", 2)[0]] = true
		}
	}

	return &Vault{root: abs, trashDir: trashDir, skipDirs: skipDirs}, nil
}

// Root returns the absolute vault root directory.
func (v *Vault) Root() string { return v.root }

// safePath resolves a relative note path against the vault root and rejects
// any result that escapes it.
func (v *Vault) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("vault: path escapes root: %s", rel)
	}
	return filepath.Join(v.root, cleaned), nil
}

// Exists reports whether a note exists at the given relative path.
func (v *Vault) Exists(rel string) bool {
	p, err := v.safePath(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Read loads and parses a note.
func (v *Vault) Read(rel string) (*Note, error) {
	p, err := v.safePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return nil, fmt.Errorf("vault: read %s: %w", rel, err)
	}

	fm, body := SplitFrontmatter(data)
	return &Note{Path: rel, Frontmatter: fm, Body: body}, nil
}

// Create writes a new note. Fails with ErrExists if the path is taken.
func (v *Vault) Create(rel, body string, fm map[string]any) error {
	p, err := v.safePath(rel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, rel)
	}

	data, err := JoinFrontmatter(fm, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("vault: create dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("vault: write %s: %w", rel, err)
	}
	return nil
}

// UniquePath returns rel if free, otherwise appends " 1", " 2", … before the
// extension until an unused path is found.
func (v *Vault) UniquePath(rel string) string {
	if !v.Exists(rel) {
		return rel
	}
	ext := filepath.Ext(rel)
	base := strings.TrimSuffix(rel, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s %d%s", base, i, ext)
		if !v.Exists(candidate) {
			return candidate
		}
	}
}

// Write replaces a note's content, creating it if missing.
func (v *Vault) Write(rel, body string, fm map[string]any) error {
	p, err := v.safePath(rel)
	if err != nil {
		return err
	}
	data, err := JoinFrontmatter(fm, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("vault: create dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("vault: write %s: %w", rel, err)
	}
	return nil
}

// Copy duplicates a note to a new relative path.
func (v *Vault) Copy(srcRel, dstRel string) error {
	src, err := v.safePath(srcRel)
	if err != nil {
		return err
	}
	dst, err := v.safePath(dstRel)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, srcRel)
		}
		return fmt.Errorf("vault: read %s: %w", srcRel, err)
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, dstRel)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("vault: create dir: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("vault: write %s: %w", dstRel, err)
	}
	return nil
}

// SoftDelete moves a note into the trash directory, preserving its relative
// path and stamping the entry to avoid collisions.
func (v *Vault) SoftDelete(rel string) error {
	src, err := v.safePath(rel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return fmt.Errorf("vault: stat %s: %w", rel, err)
	}

	dst := filepath.Join(v.root, v.trashDir, rel)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(dst)
		dst = fmt.Sprintf("%s.%d%s", strings.TrimSuffix(dst, ext), time.Now().UnixMilli(), ext)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("vault: create trash dir: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("vault: trash %s: %w", rel, err)
	}
	return nil
}

// Restore moves a soft-deleted note back out of the trash. Only notes trashed
// under their original relative path can be restored.
func (v *Vault) Restore(rel string) error {
	src := filepath.Join(v.root, v.trashDir, rel)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return fmt.Errorf("vault: stat trashed %s: %w", rel, err)
	}

	dst, err := v.safePath(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("vault: create dir: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("vault: restore %s: %w", rel, err)
	}
	return nil
}

// Rename moves a note to a new relative path.
func (v *Vault) Rename(srcRel, dstRel string) error {
	src, err := v.safePath(srcRel)
	if err != nil {
		return err
	}
	dst, err := v.safePath(dstRel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, dstRel)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("vault: create dir: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("vault: rename %s: %w", srcRel, err)
	}
	return nil
}

// SetProperty updates a single frontmatter key on a note and returns the
// previous value (nil if absent).
func (v *Vault) SetProperty(rel, key string, value any) (any, error) {
	note, err := v.Read(rel)
	if err != nil {
		return nil, err
	}
	if note.Frontmatter == nil {
		note.Frontmatter = make(map[string]any)
	}
	prev := note.Frontmatter[key]
	note.Frontmatter[key] = value
	if err := v.Write(rel, note.Body, note.Frontmatter); err != nil {
		return nil, err
	}
	return prev, nil
}

// GetProperty reads a single frontmatter key from a note.
func (v *Vault) GetProperty(rel, key string) (any, bool, error) {
	note, err := v.Read(rel)
	if err != nil {
		return nil, false, err
	}
	val, ok := note.Frontmatter[key]
	return val, ok, nil
}

// ReplaceFrontmatter swaps a note's whole frontmatter map, returning the
// previous one. Used by the frontmatter revert path.
func (v *Vault) ReplaceFrontmatter(rel string, fm map[string]any) (map[string]any, error) {
	note, err := v.Read(rel)
	if err != nil {
		return nil, err
	}
	prev := note.Frontmatter
	if err := v.Write(rel, note.Body, fm); err != nil {
		return nil, err
	}
	return prev, nil
}

// List returns the relative paths of all markdown notes in the vault.
func (v *Vault) List() ([]string, error) {
	var notes []string
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if v.skipDirs[d.Name()] && p != v.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		notes = append(notes, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}
	return notes, nil
}

// Glob returns note paths matching the given doublestar patterns
// (e.g. "projects/**/*.md").
func (v *Vault) Glob(patterns []string) ([]string, error) {
	all, err := v.List()
	if err != nil {
		return nil, err
	}

	var matched []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		for _, rel := range all {
			ok, err := doublestar.Match(pattern, rel)
			if err != nil {
				return nil, fmt.Errorf("vault: bad pattern %q: %w", pattern, err)
			}
			if ok && !seen[rel] {
				seen[rel] = true
				matched = append(matched, rel)
			}
		}
	}
	return matched, nil
}
