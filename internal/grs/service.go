package grs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// ErrAlreadyTracked is returned by Track for a repository that is
// already in the store.
var ErrAlreadyTracked = errors.New("repository already tracked")

// Service is the synchronization orchestrator: the single per-repository
// state-transition function every caller goes through. It coordinates
// remote status resolution, clone/pull of the local mirror, snapshot
// creation and record persistence.
type Service struct {
	store    Store
	resolver Resolver
	git      Git
	archiver Archiver
	logger   Logger
	clock    Clock

	dataDir string
	// asyncArchives dispatches snapshot creation to a background
	// goroutine so Synchronize does not block on compression. Archive
	// failures are then surfaced through the record's last_error on the
	// next read instead of failing the sync.
	asyncArchives bool

	archiveWG sync.WaitGroup
}

// NewService wires an orchestrator from its collaborators. dataDir is
// the directory local mirrors are cloned under.
func NewService(store Store, resolver Resolver, git Git, archiver Archiver, logger Logger, clock Clock, dataDir string, asyncArchives bool) *Service {
	return &Service{
		store:         store,
		resolver:      resolver,
		git:           git,
		archiver:      archiver,
		logger:        logger,
		clock:         clock,
		dataDir:       dataDir,
		asyncArchives: asyncArchives,
	}
}

// LocalPath returns where the mirror for url lives on disk.
func (s *Service) LocalPath(url string) string {
	return filepath.Join(s.dataDir, RepoDirName(url))
}

// Track adds a repository to the store without syncing it. The record
// starts out pending with empty timestamps.
func (s *Service) Track(rawURL string) (string, error) {
	if !ValidateRepoURL(rawURL) {
		return "", &ErrInvalidRepoURL{URL: rawURL}
	}
	url := NormalizeRepoURL(rawURL)

	records, err := s.store.Load()
	if err != nil {
		return "", fmt.Errorf("loading records: %w", err)
	}
	if _, ok := records[url]; ok {
		return url, ErrAlreadyTracked
	}

	records[url] = Record{
		LocalPath: s.LocalPath(url),
		Status:    StatusPending,
	}
	if err := s.store.Save(records); err != nil {
		return "", fmt.Errorf("saving records: %w", err)
	}

	s.logger.Info("repository tracked", "url", url)
	return url, nil
}

// Untrack removes repositories from the store. Local mirrors and their
// snapshots are left in place. Returns how many records were removed.
func (s *Service) Untrack(rawURLs ...string) (int, error) {
	records, err := s.store.Load()
	if err != nil {
		return 0, fmt.Errorf("loading records: %w", err)
	}

	removed := 0
	for _, rawURL := range rawURLs {
		url := NormalizeRepoURL(rawURL)
		if _, ok := records[url]; ok {
			delete(records, url)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	if err := s.store.Save(records); err != nil {
		return 0, fmt.Errorf("saving records: %w", err)
	}
	s.logger.Info("repositories untracked", "count", removed)
	return removed, nil
}

// Records returns the current record set. The snapshot may be slightly
// stale with respect to in-flight syncs; display callers tolerate that.
func (s *Service) Records() (map[string]Record, error) {
	return s.store.Load()
}

// Synchronize runs one full sync cycle for a repository: resolve remote
// status, clone or pull the local mirror, snapshot on new content, and
// persist the updated record. Malformed URLs are rejected before any
// state mutation; every other failure is recorded on the repository's
// record and returned.
func (s *Service) Synchronize(ctx context.Context, rawURL string) error {
	if !ValidateRepoURL(rawURL) {
		return &ErrInvalidRepoURL{URL: rawURL}
	}
	url := NormalizeRepoURL(rawURL)
	owner, name, ok := SplitOwnerRepo(url)
	if !ok {
		return &ErrInvalidRepoURL{URL: rawURL}
	}

	logger := loggerWith(s.logger, "url", url)
	logger.Info("synchronizing repository")

	remote := s.resolver.Resolve(ctx, owner, name, false)
	status := statusFromRemote(remote)
	localPath := s.LocalPath(url)

	if status == StatusDeleted {
		// The remote is gone (or private). Leave the mirror alone and
		// suppress clone/pull until a later check says otherwise.
		logger.Warn("remote reports repository deleted, skipping sync")
		return s.store.Update(url, func(r *Record) {
			r.Status = StatusDeleted
			r.Description = remote.Description
			r.LocalPath = localPath
			r.LastError = ""
		})
	}

	var (
		newContent bool
		output     string
		opErr      error
	)
	if !s.git.IsRepo(localPath) {
		output, opErr = s.git.Clone(ctx, url, localPath)
		newContent = opErr == nil // first clone always counts as new content
	} else {
		newContent, output, opErr = s.git.Pull(ctx, localPath)
	}

	if opErr != nil {
		logger.Error("sync failed", "error", opErr)
		diag := excerpt(output, opErr)
		if err := s.store.Update(url, func(r *Record) {
			r.Status = StatusError
			r.LastError = diag
			r.Description = remote.Description
			r.LocalPath = localPath
		}); err != nil {
			logger.Error("persisting error record failed", "error", err)
		}
		return fmt.Errorf("syncing %s: %w", url, opErr)
	}

	now := s.clock.Now().Format(TimestampLayout)
	if err := s.store.Update(url, func(r *Record) {
		r.Status = status
		r.Description = remote.Description
		r.LocalPath = localPath
		r.LastCloned = now
		if newContent {
			r.LastUpdated = now
		}
		r.LastError = ""
	}); err != nil {
		return fmt.Errorf("persisting record for %s: %w", url, err)
	}

	if newContent {
		s.dispatchArchive(url, localPath)
	} else {
		logger.Debug("already up to date, no snapshot needed")
	}
	return nil
}

// dispatchArchive runs snapshot creation for url's mirror, in the
// background when asyncArchives is set. A snapshot failure never fails
// the synchronization that triggered it; it is written to the record's
// last_error so the next status read shows it.
func (s *Service) dispatchArchive(url, localPath string) {
	s.archiveWG.Add(1)
	run := func() {
		defer s.archiveWG.Done()

		info, err := s.archiver.Snapshot(context.Background(), localPath)
		switch {
		case errors.Is(err, ErrNoChange):
			s.logger.Debug("snapshot skipped, tree unchanged", "url", url)
		case err != nil:
			s.logger.Error("snapshot failed", "url", url, "error", err)
			if uerr := s.store.Update(url, func(r *Record) {
				r.LastError = excerpt("", fmt.Errorf("archive: %w", err))
			}); uerr != nil {
				s.logger.Error("recording snapshot failure failed", "url", url, "error", uerr)
			}
		default:
			s.logger.Info("snapshot created", "url", url, "name", info.Name, "incremental", info.Incremental, "files", info.Files)
		}
	}

	if s.asyncArchives {
		go run()
	} else {
		run()
	}
}

// WaitArchives blocks until all background snapshot work has finished.
func (s *Service) WaitArchives() {
	s.archiveWG.Wait()
}

// RefreshStatuses re-resolves the remote status of every tracked
// repository in one batched lookup and persists any status changes.
// Returns the number of repositories whose status changed. fresh
// bypasses the resolver cache.
func (s *Service) RefreshStatuses(ctx context.Context, fresh bool) (int, error) {
	records, err := s.store.Load()
	if err != nil {
		return 0, fmt.Errorf("loading records: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	var repos []OwnerRepo
	byKey := make(map[string]string) // "owner/name" -> record URL
	for url := range records {
		owner, name, ok := SplitOwnerRepo(url)
		if !ok {
			continue
		}
		repos = append(repos, OwnerRepo{Owner: owner, Name: name})
		byKey[owner+"/"+name] = url
	}

	results := s.resolver.ResolveMany(ctx, repos, fresh)

	changed := 0
	for key, remote := range results {
		url, ok := byKey[key]
		if !ok {
			continue
		}
		rec := records[url]
		newStatus := statusFromRemote(remote)
		if rec.Status != newStatus {
			changed++
		}
		rec.Status = newStatus
		rec.Description = remote.Description
		records[url] = rec
	}

	if changed > 0 {
		if err := s.store.Save(records); err != nil {
			return 0, fmt.Errorf("saving records: %w", err)
		}
	}
	s.logger.Info("statuses refreshed", "repos", len(repos), "changed", changed)
	return changed, nil
}

// statusFromRemote maps the provider's flags onto a record status.
func statusFromRemote(remote RemoteStatus) Status {
	switch {
	case remote.Deleted:
		return StatusDeleted
	case remote.Archived:
		return StatusArchived
	default:
		return StatusActive
	}
}

// excerpt builds a bounded diagnostic from subprocess output, falling
// back to the error text when the tool printed nothing.
func excerpt(output string, err error) string {
	diag := strings.TrimSpace(output)
	if diag == "" && err != nil {
		diag = err.Error()
	}
	if len(diag) > MaxErrorLen {
		diag = truncate(diag, MaxErrorLen)
	}
	return diag
}

// loggerWith pairs fixed attributes with every message. Kept local so
// the Logger interface stays minimal.
type attrLogger struct {
	l    Logger
	args []any
}

func loggerWith(l Logger, args ...any) Logger {
	return &attrLogger{l: l, args: args}
}

func (a *attrLogger) merged(args []any) []any {
	return append(append([]any{}, a.args...), args...)
}

func (a *attrLogger) Debug(msg string, args ...any) { a.l.Debug(msg, a.merged(args)...) }
func (a *attrLogger) Info(msg string, args ...any)  { a.l.Info(msg, a.merged(args)...) }
func (a *attrLogger) Warn(msg string, args ...any)  { a.l.Warn(msg, a.merged(args)...) }
func (a *attrLogger) Error(msg string, args ...any) { a.l.Error(msg, a.merged(args)...) }
