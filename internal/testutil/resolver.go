package testutil

import (
	"context"
	"sync"

	"grs-go/internal/grs"
)

// MockResolver serves scripted remote statuses keyed by "owner/name".
// Repositories with no scripted entry resolve as deleted.
type MockResolver struct {
	mu       sync.Mutex
	statuses map[string]grs.RemoteStatus
	calls    map[string]int
	fresh    int
}

// NewMockResolver creates an empty MockResolver.
func NewMockResolver() *MockResolver {
	return &MockResolver{
		statuses: make(map[string]grs.RemoteStatus),
		calls:    make(map[string]int),
	}
}

// SetStatus scripts the status returned for owner/name.
func (r *MockResolver) SetStatus(owner, name string, status grs.RemoteStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[owner+"/"+name] = status
}

// Calls returns how many times owner/name has been resolved.
func (r *MockResolver) Calls(owner, name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[owner+"/"+name]
}

// FreshCalls returns how many lookups bypassed the cache.
func (r *MockResolver) FreshCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fresh
}

func (r *MockResolver) Resolve(_ context.Context, owner, name string, fresh bool) grs.RemoteStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := owner + "/" + name
	r.calls[key]++
	if fresh {
		r.fresh++
	}
	status, ok := r.statuses[key]
	if !ok {
		return grs.RemoteStatus{Deleted: true}
	}
	return status
}

func (r *MockResolver) ResolveMany(ctx context.Context, repos []grs.OwnerRepo, fresh bool) map[string]grs.RemoteStatus {
	result := make(map[string]grs.RemoteStatus, len(repos))
	for _, repo := range repos {
		result[repo.String()] = r.Resolve(ctx, repo.Owner, repo.Name, fresh)
	}
	return result
}

var _ grs.Resolver = (*MockResolver)(nil)
