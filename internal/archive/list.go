package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"grs-go/internal/grs"
)

// Info describes one stored archive.
type Info struct {
	Name      string
	Path      string
	Size      int64
	Timestamp string // raw stamp from the file name
	Date      string // stamp rendered in the record timestamp layout
}

// listSuffix returns file names in dir with the given suffix, sorted
// newest first (names are timestamps, so lexical order is time order).
func listSuffix(dir, suffix string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}

// List returns the mirror's archive file names, newest first.
func (e *Engine) List(repoPath string) []string {
	return listSuffix(filepath.Join(repoPath, VersionsDir), archiveSuffix)
}

// Stat returns details about one archive of the mirror.
func (e *Engine) Stat(repoPath, name string) (*Info, error) {
	path := filepath.Join(repoPath, VersionsDir, name)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("archive not found: %s", name)
	}

	stamp := strings.TrimSuffix(name, archiveSuffix)
	date := stamp
	if t, err := time.Parse(StampLayout, stamp); err == nil {
		date = t.Format(grs.TimestampLayout)
	}

	return &Info{
		Name:      name,
		Path:      path,
		Size:      fi.Size(),
		Timestamp: stamp,
		Date:      date,
	}, nil
}

// Delete removes an archive and its metadata sidecar wholesale.
// Snapshots are immutable; deletion is the only mutation they support.
func (e *Engine) Delete(repoPath, name string) error {
	lock := e.repoLock(repoPath)
	lock.Lock()
	defer lock.Unlock()

	versionsDir := filepath.Join(repoPath, VersionsDir)
	archivePath := filepath.Join(versionsDir, name)
	if err := os.Remove(archivePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("archive not found: %s", name)
		}
		return fmt.Errorf("deleting archive: %w", err)
	}

	sidecar := filepath.Join(versionsDir, strings.TrimSuffix(name, archiveSuffix)+metadataSuffix)
	if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("archive deleted but sidecar remains", "path", sidecar, "error", err)
	}

	e.logger.Info("archive deleted", "path", archivePath)
	return nil
}
