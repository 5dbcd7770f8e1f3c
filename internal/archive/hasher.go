package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// HashTree computes a SHA-256 content hash for every tracked file under
// root, keyed by slash-separated relative path. Version-control
// internals (.git) and the snapshot directory (versions) are always
// pruned; extra exclusions come from the matcher. Files the walk cannot
// read are skipped via onSkip rather than failing the whole tree.
func HashTree(root string, ignore *Matcher, onSkip func(path string, err error)) (map[string]string, error) {
	hashes := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (d.Name() == ".git" || d.Name() == VersionsDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)
		if ignore != nil && ignore.Match(rel) {
			return nil
		}

		sum, err := hashFile(path)
		if err != nil {
			if onSkip != nil {
				onSkip(path, err)
			}
			return nil
		}
		hashes[rel] = sum
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return hashes, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// diffTrees compares the current hash map against the previous
// snapshot's. changed holds paths whose content changed or that are
// newly present (the set that goes into an incremental payload);
// deleted counts paths present before but now absent; deletions are
// representable in the hash map only, never inside the payload.
func diffTrees(current, previous map[string]string) (changed []string, deleted int) {
	for path, hash := range current {
		if previous[path] != hash {
			changed = append(changed, path)
		}
	}
	for path := range previous {
		if _, ok := current[path]; !ok {
			deleted++
		}
	}
	return changed, deleted
}
