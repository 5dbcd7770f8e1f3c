package testutil

import (
	"context"
	"sync"

	"grs-go/internal/grs"
)

// MockArchiver records Snapshot calls and serves a scripted result.
type MockArchiver struct {
	mu    sync.Mutex
	paths []string

	Info *grs.SnapshotInfo
	Err  error
}

// NewMockArchiver creates a MockArchiver reporting a full snapshot of
// one file.
func NewMockArchiver() *MockArchiver {
	return &MockArchiver{
		Info: &grs.SnapshotInfo{Name: "20250310-091500.tar.xz", Files: 1},
	}
}

func (a *MockArchiver) Snapshot(_ context.Context, repoPath string) (*grs.SnapshotInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths = append(a.paths, repoPath)
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Info, nil
}

// Calls returns the number of Snapshot invocations.
func (a *MockArchiver) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.paths)
}

// Paths returns the repo paths passed to Snapshot, in order.
func (a *MockArchiver) Paths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.paths...)
}

var _ grs.Archiver = (*MockArchiver)(nil)
