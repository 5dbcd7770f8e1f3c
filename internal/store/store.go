// Package store persists repository tracking records as a single JSON
// file keyed by normalized repository URL. Writes are atomic: the new
// record set goes to a temp file, is verified by re-parsing, and then
// replaces the primary in one rename. The previous primary is kept as a
// .bak sidecar. A structurally corrupted primary is salvaged entry by
// entry on load instead of being discarded.
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"grs-go/internal/grs"
)

// FileStore is the JSON-file implementation of grs.Store. A single
// mutex serializes all writes; every Save rewrites the whole file.
type FileStore struct {
	path    string
	dataDir string
	logger  grs.Logger

	mu sync.Mutex

	// beforeReplace runs after the temp file is written and verified
	// but before it replaces the primary. Tests inject failures here to
	// simulate a crash mid-save.
	beforeReplace func() error
}

// NewFileStore creates a store backed by the JSON file at path. dataDir
// is used to fill in default local mirror paths during sanitization.
func NewFileStore(path, dataDir string, logger grs.Logger) *FileStore {
	return &FileStore{path: path, dataDir: dataDir, logger: logger}
}

// Load returns the current record set. A missing file yields an empty
// set. A file that fails to parse is handed to the salvage path; Load
// then returns whatever could be recovered.
func (s *FileStore) Load() (map[string]grs.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStore) loadLocked() (map[string]grs.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]grs.Record{}, nil
		}
		return nil, fmt.Errorf("reading store file: %w", err)
	}

	var records map[string]grs.Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Error("store file is corrupted, attempting recovery", "path", s.path, "error", err)
		return s.recoverLocked(data), nil
	}
	if records == nil {
		records = map[string]grs.Record{}
	}
	return records, nil
}

// Save sanitizes and persists the full record set atomically.
func (s *FileStore) Save(records map[string]grs.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(records)
}

// Update performs a load+merge+save for a single record under the write
// lock, creating the record when the repository is not yet tracked.
func (s *FileStore) Update(url string, mutate func(*grs.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return err
	}
	rec := records[url]
	mutate(&rec)
	records[url] = rec
	return s.saveLocked(records)
}

func (s *FileStore) saveLocked(records map[string]grs.Record) error {
	clean := make(map[string]grs.Record, len(records))
	for url, rec := range records {
		rec.Sanitize()
		if rec.LocalPath == "" {
			rec.LocalPath = filepath.Join(s.dataDir, grs.RepoDirName(url))
		}
		clean[url] = rec
	}

	data, err := json.MarshalIndent(clean, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating store directory: %w", err)
		}
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing temp store file: %w", err)
	}
	// Anything failing from here on must not leave the temp file around
	// or touch the primary.
	fail := func(err error) error {
		os.Remove(tmpPath)
		return err
	}

	// Verify the temp file round-trips before it becomes the primary.
	verify, err := os.ReadFile(tmpPath)
	if err != nil {
		return fail(fmt.Errorf("re-reading temp store file: %w", err))
	}
	var parsed map[string]grs.Record
	if err := json.Unmarshal(verify, &parsed); err != nil {
		return fail(fmt.Errorf("verifying temp store file: %w", err))
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.path+".bak"); err != nil {
			s.logger.Warn("failed to write store backup", "error", err)
		}
	}

	if s.beforeReplace != nil {
		if err := s.beforeReplace(); err != nil {
			return fail(fmt.Errorf("replacing store file: %w", err))
		}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fail(fmt.Errorf("replacing store file: %w", err))
	}

	s.logger.Debug("store saved", "records", len(clean))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// Compile-time check that FileStore implements grs.Store
var _ grs.Store = (*FileStore)(nil)
