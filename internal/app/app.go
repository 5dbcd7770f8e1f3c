// Package app is the application layer between the CLI and the core
// service. It constructs all dependencies from config, exposes
// string-level operations, and owns the worker pool lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"grs-go/internal/archive"
	"grs-go/internal/config"
	"grs-go/internal/git"
	"grs-go/internal/github"
	"grs-go/internal/grs"
	"grs-go/internal/queue"
	"grs-go/internal/store"
)

// shutdownTimeout bounds how long Close waits for the pool to drain.
const shutdownTimeout = 30 * time.Second

// App wires the store, resolver, git runner, snapshot engine, service
// and coordinator together.
type App struct {
	cfg      *config.Config
	store    *store.FileStore
	resolver *github.Client
	archiver *archive.Engine
	service  *grs.Service
	coord    *queue.Coordinator
	logger   grs.Logger
	clock    grs.Clock
	logFile  *os.File

	mu    sync.Mutex
	batch *batchResult // active SyncAll, if any
}

// batchResult counts per-repository outcomes of one batch sync.
type batchResult struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (b *batchResult) note(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failed++
	} else {
		b.ok++
	}
}

// NewApp creates a fully wired App from the given config. operation
// identifies the CLI command being run (e.g. "Sync", "SyncAll") and
// tags every log line of this invocation. The caller must call Close.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	var idgen grs.IDGenerator = grs.UUIDGenerator{}
	opID := operation + "-" + idgen.New()[:8]

	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}
	clock := grs.RealClock{}

	st := store.NewFileStore(cfg.StorePath, cfg.DataDir, logger)
	resolver := github.NewClient(cfg.GitHub.Token, cfg.GitHub.CacheTTLDuration(), logger, clock)
	gitCLI := git.NewCLI(logger, cfg.Git.CloneTimeoutDuration(), cfg.Git.PullTimeoutDuration())
	archiver := archive.NewEngine(logger, clock, cfg.Archive.Ignore)
	service := grs.NewService(st, resolver, gitCLI, archiver, logger, clock, cfg.DataDir, cfg.Archive.Async)

	a := &App{
		cfg:      cfg,
		store:    st,
		resolver: resolver,
		archiver: archiver,
		service:  service,
		logger:   logger,
		clock:    clock,
		logFile:  logFile,
	}
	a.coord = queue.New(cfg.Workers, a.syncJob, logger)

	return a, nil
}

// syncJob is the coordinator's handler: one full synchronization of one
// repository, with the outcome counted into the active batch.
func (a *App) syncJob(ctx context.Context, url string) error {
	err := a.service.Synchronize(ctx, url)

	a.mu.Lock()
	batch := a.batch
	a.mu.Unlock()
	if batch != nil {
		batch.note(err)
	}
	return err
}

// Track adds a repository to tracking without syncing it. Returns the
// normalized URL under which it is tracked.
func (a *App) Track(rawURL string) (string, error) {
	return a.service.Track(rawURL)
}

// Untrack removes repositories from tracking. Mirrors and snapshots
// stay on disk.
func (a *App) Untrack(rawURLs ...string) (int, error) {
	return a.service.Untrack(rawURLs...)
}

// Sync synchronizes one repository and waits for the result, including
// any archive work when archives run synchronously.
func (a *App) Sync(ctx context.Context, rawURL string) error {
	err := a.service.Synchronize(ctx, rawURL)
	a.service.WaitArchives()
	return err
}

// SyncAll submits every tracked, non-deleted repository to the worker
// pool and waits for the batch to finish. Cancelling ctx stops new
// repositories from starting; in-flight ones complete and are counted.
// Returns per-repository success and failure counts.
func (a *App) SyncAll(ctx context.Context) (ok, failed int, err error) {
	records, err := a.service.Records()
	if err != nil {
		return 0, 0, fmt.Errorf("loading records: %w", err)
	}

	batch := &batchResult{}
	a.mu.Lock()
	a.batch = batch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.batch = nil
		a.mu.Unlock()
	}()

	submitted := 0
	for url, rec := range records {
		if rec.Status == grs.StatusDeleted {
			a.logger.Debug("skipping deleted repository", "url", url)
			continue
		}
		if a.coord.Submit(url) {
			submitted++
		}
	}
	a.logger.Info("batch sync submitted", "repos", submitted)

	done := make(chan error, 1)
	go func() { done <- a.coord.Drain(context.Background()) }()

	select {
	case <-ctx.Done():
		// Best-effort cancellation: queued jobs are skipped, running
		// ones finish.
		a.coord.Cancel()
		<-done
	case err := <-done:
		if err != nil {
			return 0, 0, err
		}
	}
	a.service.WaitArchives()

	batch.mu.Lock()
	defer batch.mu.Unlock()
	return batch.ok, batch.failed, nil
}

// Refresh re-resolves every tracked repository's remote status in one
// batched lookup. fresh bypasses the resolver cache. Returns how many
// statuses changed.
func (a *App) Refresh(ctx context.Context, fresh bool) (int, error) {
	return a.service.RefreshStatuses(ctx, fresh)
}

// List returns the tracked records and their per-status counts.
func (a *App) List() (map[string]grs.Record, map[string]int, error) {
	records, err := a.service.Records()
	if err != nil {
		return nil, nil, err
	}
	return records, grs.CountByStatus(records), nil
}

// Archives lists the snapshots stored for a repository, newest first.
func (a *App) Archives(rawURL string) ([]archive.Info, error) {
	localPath := a.service.LocalPath(grs.NormalizeRepoURL(rawURL))

	var infos []archive.Info
	for _, name := range a.archiver.List(localPath) {
		info, err := a.archiver.Stat(localPath, name)
		if err != nil {
			a.logger.Warn("skipping unreadable archive", "name", name, "error", err)
			continue
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

// DeleteArchive removes one snapshot (archive plus metadata sidecar).
func (a *App) DeleteArchive(rawURL, name string) error {
	localPath := a.service.LocalPath(grs.NormalizeRepoURL(rawURL))
	return a.archiver.Delete(localPath, name)
}

// RateLimit reports the remaining API budget of the remote provider.
func (a *App) RateLimit(ctx context.Context) (remaining, limit int, reset time.Time, err error) {
	return a.resolver.RateLimit(ctx)
}

// Close shuts down the worker pool, waits for background archive work
// and releases the log file.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.coord.Shutdown(ctx); err != nil {
		a.logger.Warn("worker pool did not drain in time", "error", err)
	}
	a.service.WaitArchives()

	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}
