package grs

import (
	"context"
	"errors"
)

// Store persists the full record set keyed by normalized repository URL.
// Implementations must serialize writes; Load must salvage what it can
// from a structurally damaged backing file instead of failing.
type Store interface {
	// Load returns the current record set. A missing backing file is an
	// empty set, not an error.
	Load() (map[string]Record, error)
	// Save atomically replaces the record set, sanitizing each record.
	Save(records map[string]Record) error
	// Update applies mutate to the record for url (a zero Record when
	// the repository is not yet tracked) and persists the result, all
	// under the store's write lock.
	Update(url string, mutate func(*Record)) error
}

// RemoteStatus is the consumed contract of the remote metadata provider.
// Deleted is also reported for private repositories; the provider
// cannot tell the two apart.
type RemoteStatus struct {
	Description string
	Archived    bool
	Deleted     bool
}

// OwnerRepo identifies a repository on the remote provider.
type OwnerRepo struct {
	Owner string
	Name  string
}

func (o OwnerRepo) String() string { return o.Owner + "/" + o.Name }

// Resolver looks up a repository's remote status. Implementations
// absorb provider failures (network, rate limiting, odd status codes)
// and degrade to a sentinel description with false flags; they never
// return an error. fresh bypasses any response cache.
type Resolver interface {
	Resolve(ctx context.Context, owner, name string, fresh bool) RemoteStatus
	// ResolveMany resolves a batch, keyed by "owner/name" in the result.
	// It behaves exactly like repeated Resolve calls regardless of how
	// the lookups are aggregated internally.
	ResolveMany(ctx context.Context, repos []OwnerRepo, fresh bool) map[string]RemoteStatus
}

// Git is the subprocess boundary to the version control tool. Output is
// the captured combined stdout/stderr, used for diagnostics only.
type Git interface {
	// IsRepo reports whether path holds a local mirror.
	IsRepo(path string) bool
	// Clone creates a mirror of url at path.
	Clone(ctx context.Context, url, path string) (output string, err error)
	// Pull brings an existing mirror up to date. updated is true only
	// when new commits actually arrived; "already up to date" is a
	// successful no-op.
	Pull(ctx context.Context, path string) (updated bool, output string, err error)
}

// ErrNoChange is returned by Archiver.Snapshot when the tracked file
// set is identical to the previous snapshot. It is not a failure.
var ErrNoChange = errors.New("no changes since last snapshot")

// SnapshotInfo describes a snapshot that was written.
type SnapshotInfo struct {
	Name        string // archive file name, timestamp-based
	Incremental bool
	Files       int // files inside the archive payload
}

// Archiver produces timestamped compressed snapshots of a mirror.
type Archiver interface {
	Snapshot(ctx context.Context, repoPath string) (*SnapshotInfo, error)
}
