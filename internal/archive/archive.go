// Package archive is the change-aware snapshot engine. Each snapshot of
// a mirror is a timestamped tar.xz under the mirror's versions/
// directory plus a JSON sidecar holding the full content-hash map at
// that point in time. Only changed and added files enter an incremental
// payload; the sidecar's hash map is always the complete tree state so
// the next delta is computed correctly. Deletions show up in the hash
// map only; a file-based archive cannot carry them.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"grs-go/internal/grs"
)

const (
	// VersionsDir is the per-mirror snapshot subdirectory.
	VersionsDir = "versions"
	// StampLayout names archives so lexical order is chronological.
	StampLayout = "20060102-150405"

	archiveSuffix  = ".tar.xz"
	metadataSuffix = ".json"

	tarTimeout = 10 * time.Minute
)

// Metadata is the sidecar written next to each archive.
type Metadata struct {
	Timestamp    string            `json:"timestamp"`
	FileHashes   map[string]string `json:"file_hashes"`
	Incremental  bool              `json:"incremental"`
	ChangedFiles int               `json:"changed_files_count"`
}

// tarFunc creates the compressed archive at archivePath from repoPath.
// files nil means "everything"; otherwise exactly those relative paths.
// excludes are extra patterns passed through to tar. Injectable so
// tests run without a tar binary.
type tarFunc func(ctx context.Context, archivePath, repoPath string, files, excludes []string) error

// Engine implements grs.Archiver.
type Engine struct {
	logger   grs.Logger
	clock    grs.Clock
	ignore   *Matcher
	excludes []string // raw config patterns, handed to tar as --exclude
	runTar   tarFunc

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-mirror snapshot serialization
}

// NewEngine creates a snapshot engine. extraIgnores are exclusion
// patterns from config, applied on top of the built-in .git/versions
// pruning. They shape both the hash map and the tar payload, so a
// pattern-ignored file never sneaks into a full archive.
func NewEngine(logger grs.Logger, clock grs.Clock, extraIgnores []string) *Engine {
	return &Engine{
		logger:   logger,
		clock:    clock,
		ignore:   NewMatcher(extraIgnores),
		excludes: extraIgnores,
		runTar:   runTar,
		locks:    make(map[string]*sync.Mutex),
	}
}

// repoLock returns the mutex serializing snapshot creation for one
// mirror, so second-granularity stamps cannot collide and overwrite.
func (e *Engine) repoLock(repoPath string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[repoPath]
	if !ok {
		l = &sync.Mutex{}
		e.locks[repoPath] = l
	}
	return l
}

// Snapshot captures the mirror's current file state. With no previous
// snapshot it produces a full archive; otherwise an incremental one
// containing exactly the changed and added files. When nothing changed
// (including no deletions) it returns grs.ErrNoChange and writes
// nothing. A failed archive run never leaves a partial file behind.
func (e *Engine) Snapshot(ctx context.Context, repoPath string) (*grs.SnapshotInfo, error) {
	lock := e.repoLock(repoPath)
	lock.Lock()
	defer lock.Unlock()

	current, err := HashTree(repoPath, e.ignore, func(path string, err error) {
		e.logger.Warn("skipping unreadable file", "path", path, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("hashing tree: %w", err)
	}

	previous := e.loadLatestMetadata(repoPath)

	var (
		files       []string // nil = full archive
		incremental bool
		changedN    int
	)
	if previous != nil {
		changed, deleted := diffTrees(current, previous.FileHashes)
		if len(changed) == 0 && deleted == 0 {
			return nil, grs.ErrNoChange
		}
		sort.Strings(changed)
		// Non-nil even when only deletions happened, so the archive run
		// stays incremental with an empty payload.
		files = append([]string{}, changed...)
		incremental = true
		changedN = len(changed) + deleted
	} else {
		changedN = len(current)
	}

	versionsDir := filepath.Join(repoPath, VersionsDir)
	if err := os.MkdirAll(versionsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating versions directory: %w", err)
	}

	stamp := e.freshStamp(versionsDir)
	archivePath := filepath.Join(versionsDir, stamp+archiveSuffix)

	if err := e.runTar(ctx, archivePath, repoPath, files, e.excludes); err != nil {
		os.Remove(archivePath) // never leave a partial archive behind
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	if info, err := os.Stat(archivePath); err != nil || info.Size() == 0 {
		os.Remove(archivePath)
		return nil, fmt.Errorf("archive missing or empty after creation: %s", archivePath)
	}

	meta := Metadata{
		Timestamp:    stamp,
		FileHashes:   current,
		Incremental:  incremental,
		ChangedFiles: changedN,
	}
	if err := writeMetadata(filepath.Join(versionsDir, stamp+metadataSuffix), &meta); err != nil {
		os.Remove(archivePath)
		return nil, fmt.Errorf("writing snapshot metadata: %w", err)
	}

	payload := len(files)
	if !incremental {
		payload = len(current)
	}
	e.logger.Info("snapshot written", "path", archivePath, "incremental", incremental, "files", payload)
	return &grs.SnapshotInfo{
		Name:        stamp + archiveSuffix,
		Incremental: incremental,
		Files:       payload,
	}, nil
}

// freshStamp picks a creation timestamp that does not collide with an
// existing archive, bumping by one second until free.
func (e *Engine) freshStamp(versionsDir string) string {
	t := e.clock.Now()
	for {
		stamp := t.Format(StampLayout)
		if _, err := os.Stat(filepath.Join(versionsDir, stamp+archiveSuffix)); os.IsNotExist(err) {
			return stamp
		}
		t = t.Add(time.Second)
	}
}

// loadLatestMetadata returns the newest snapshot sidecar for the
// mirror, or nil when there is none (or it cannot be parsed; the next
// snapshot then degrades to a full one).
func (e *Engine) loadLatestMetadata(repoPath string) *Metadata {
	sidecars := listSuffix(filepath.Join(repoPath, VersionsDir), metadataSuffix)
	if len(sidecars) == 0 {
		return nil
	}

	path := filepath.Join(repoPath, VersionsDir, sidecars[0])
	data, err := os.ReadFile(path)
	if err != nil {
		e.logger.Warn("cannot read snapshot metadata", "path", path, "error", err)
		return nil
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		e.logger.Warn("snapshot metadata is damaged, next snapshot will be full", "path", path, "error", err)
		return nil
	}
	if meta.FileHashes == nil {
		meta.FileHashes = map[string]string{}
	}
	return &meta
}

func writeMetadata(path string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// runTar shells out to tar. VCS internals and the snapshot directory
// are always excluded, whatever the file list says.
func runTar(ctx context.Context, archivePath, repoPath string, files, excludes []string) error {
	ctx, cancel := context.WithTimeout(ctx, tarTimeout)
	defer cancel()

	args := []string{"-cJf", archivePath, "--exclude=.git", "--exclude=" + VersionsDir}
	for _, pattern := range excludes {
		args = append(args, "--exclude="+pattern)
	}
	args = append(args, "-C", repoPath)

	if files == nil {
		args = append(args, ".")
	} else {
		listFile, err := os.CreateTemp("", "grs-filelist-*.txt")
		if err != nil {
			return fmt.Errorf("creating file list: %w", err)
		}
		defer os.Remove(listFile.Name())

		if _, err := listFile.WriteString(strings.Join(files, "\n") + "\n"); err != nil {
			listFile.Close()
			return fmt.Errorf("writing file list: %w", err)
		}
		if err := listFile.Close(); err != nil {
			return fmt.Errorf("closing file list: %w", err)
		}
		args = append(args, "-T", listFile.Name())
	}

	out, err := exec.CommandContext(ctx, "tar", args...).CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("tar timed out after %s", tarTimeout)
		}
		return fmt.Errorf("tar: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Compile-time check that Engine implements grs.Archiver
var _ grs.Archiver = (*Engine)(nil)
