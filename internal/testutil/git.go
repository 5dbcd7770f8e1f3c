package testutil

import (
	"context"
	"sync"

	"grs-go/internal/grs"
)

// MockGit simulates the git subprocess boundary. A successful Clone
// registers the path so subsequent IsRepo calls see a mirror.
type MockGit struct {
	mu    sync.Mutex
	repos map[string]bool

	CloneErr    error
	PullErr     error
	PullUpdated bool
	Output      string

	CloneCalls int
	PullCalls  int
}

// NewMockGit creates a MockGit with no existing mirrors.
func NewMockGit() *MockGit {
	return &MockGit{repos: make(map[string]bool)}
}

// AddRepo marks path as an existing mirror.
func (g *MockGit) AddRepo(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.repos[path] = true
}

func (g *MockGit) IsRepo(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.repos[path]
}

func (g *MockGit) Clone(_ context.Context, url, path string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CloneCalls++
	if g.CloneErr != nil {
		return g.Output, g.CloneErr
	}
	g.repos[path] = true
	return g.Output, nil
}

func (g *MockGit) Pull(_ context.Context, path string) (bool, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.PullCalls++
	if g.PullErr != nil {
		return false, g.Output, g.PullErr
	}
	return g.PullUpdated, g.Output, nil
}

var _ grs.Git = (*MockGit)(nil)
