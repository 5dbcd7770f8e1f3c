package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashTree(t *testing.T) {
	t.Run("hashes regular files by relative path", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a.txt", "alpha")
		writeFile(t, root, "sub/b.txt", "beta")

		hashes, err := HashTree(root, nil, nil)
		if err != nil {
			t.Fatalf("HashTree() error = %v", err)
		}
		if len(hashes) != 2 {
			t.Fatalf("hashes = %v, want 2 entries", hashes)
		}
		if _, ok := hashes["sub/b.txt"]; !ok {
			t.Errorf("missing slash-relative key, got %v", hashes)
		}
	})

	t.Run("prunes .git and versions directories", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a.txt", "alpha")
		writeFile(t, root, ".git/config", "[core]")
		writeFile(t, root, ".git/objects/ab/cdef", "blob")
		writeFile(t, root, "versions/20250310-091500.tar.xz", "old archive")

		hashes, err := HashTree(root, nil, nil)
		if err != nil {
			t.Fatalf("HashTree() error = %v", err)
		}
		if len(hashes) != 1 {
			t.Errorf("hashes = %v, want only a.txt", hashes)
		}
	})

	t.Run("applies ignore patterns", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a.txt", "alpha")
		writeFile(t, root, "debug.log", "noise")
		writeFile(t, root, "build/out.bin", "artifact")

		m := NewMatcher([]string{"*.log", "build/*"})
		hashes, err := HashTree(root, m, nil)
		if err != nil {
			t.Fatalf("HashTree() error = %v", err)
		}
		if len(hashes) != 1 {
			t.Errorf("hashes = %v, want only a.txt", hashes)
		}
	})

	t.Run("content change changes the hash", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a.txt", "alpha")

		before, err := HashTree(root, nil, nil)
		if err != nil {
			t.Fatalf("HashTree() error = %v", err)
		}
		writeFile(t, root, "a.txt", "alpha v2")
		after, err := HashTree(root, nil, nil)
		if err != nil {
			t.Fatalf("HashTree() error = %v", err)
		}
		if before["a.txt"] == after["a.txt"] {
			t.Error("hash did not change with content")
		}
	})

	t.Run("unreadable file is skipped via callback", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("permission bits do not apply to root")
		}
		root := t.TempDir()
		writeFile(t, root, "a.txt", "alpha")
		writeFile(t, root, "secret.txt", "hidden")
		if err := os.Chmod(filepath.Join(root, "secret.txt"), 0000); err != nil {
			t.Fatal(err)
		}

		var skipped []string
		hashes, err := HashTree(root, nil, func(path string, err error) {
			skipped = append(skipped, path)
		})
		if err != nil {
			t.Fatalf("HashTree() error = %v", err)
		}
		if len(hashes) != 1 {
			t.Errorf("hashes = %v, want only a.txt", hashes)
		}
		if len(skipped) != 1 {
			t.Errorf("skipped = %v, want 1 entry", skipped)
		}
	})
}

func TestDiffTrees(t *testing.T) {
	previous := map[string]string{
		"kept.txt":    "h1",
		"changed.txt": "h2",
		"deleted.txt": "h3",
	}
	current := map[string]string{
		"kept.txt":    "h1",
		"changed.txt": "h2-new",
		"added.txt":   "h4",
	}

	changed, deleted := diffTrees(current, previous)
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if len(changed) != 2 {
		t.Fatalf("changed = %v, want changed.txt and added.txt", changed)
	}
	seen := map[string]bool{}
	for _, path := range changed {
		seen[path] = true
	}
	if !seen["changed.txt"] || !seen["added.txt"] {
		t.Errorf("changed = %v", changed)
	}
}
