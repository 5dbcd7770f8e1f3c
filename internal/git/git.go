// Package git shells out to the git binary for clone, fetch and pull.
// Only success/failure, captured output and "did new commits arrive"
// are interpreted here; transport mechanics belong to the tool.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"grs-go/internal/grs"
)

const (
	// DefaultCloneTimeout is generous: initial clones of large
	// repositories can take minutes even at depth 1.
	DefaultCloneTimeout = 10 * time.Minute
	// DefaultPullTimeout bounds updates of an existing mirror.
	DefaultPullTimeout = 5 * time.Minute

	fetchTimeout   = 60 * time.Second
	revListTimeout = 30 * time.Second
)

// runFunc executes a git command in dir with a bounded timeout and
// returns its combined output. Injectable so tests can script git.
type runFunc func(ctx context.Context, timeout time.Duration, dir string, args ...string) (string, error)

// CLI is the subprocess-backed grs.Git implementation.
type CLI struct {
	logger       grs.Logger
	cloneTimeout time.Duration
	pullTimeout  time.Duration
	run          runFunc
}

// NewCLI creates a git runner. Zero timeouts select the defaults.
func NewCLI(logger grs.Logger, cloneTimeout, pullTimeout time.Duration) *CLI {
	if cloneTimeout <= 0 {
		cloneTimeout = DefaultCloneTimeout
	}
	if pullTimeout <= 0 {
		pullTimeout = DefaultPullTimeout
	}
	return &CLI{
		logger:       logger,
		cloneTimeout: cloneTimeout,
		pullTimeout:  pullTimeout,
		run:          runGit,
	}
}

func runGit(ctx context.Context, timeout time.Duration, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return output, fmt.Errorf("git %s timed out after %s", args[0], timeout)
		}
		return output, fmt.Errorf("git %s: %w", args[0], err)
	}
	return output, nil
}

// IsRepo reports whether path holds a local mirror, i.e. contains a
// .git directory.
func (c *CLI) IsRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && info.IsDir()
}

// Clone creates a shallow mirror of url at path.
func (c *CLI) Clone(ctx context.Context, url, path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}

	c.logger.Info("cloning repository", "url", url, "path", path)
	output, err := c.run(ctx, c.cloneTimeout, "", "clone", "--depth", "1", url, path)
	if err != nil {
		return output, err
	}
	return output, nil
}

// hasUpdates fetches remote refs and reports whether the mirror is
// behind its upstream, without pulling anything.
func (c *CLI) hasUpdates(ctx context.Context, path string) (bool, error) {
	if output, err := c.run(ctx, fetchTimeout, path, "fetch", "--quiet"); err != nil {
		return false, fmt.Errorf("%s: %w", strings.TrimSpace(output), err)
	}

	output, err := c.run(ctx, revListTimeout, path, "rev-list", "--count", "HEAD..@{upstream}")
	if err == nil {
		behind, convErr := strconv.Atoi(strings.TrimSpace(output))
		if convErr == nil {
			return behind > 0, nil
		}
	}

	// rev-list can fail on odd upstream setups; compare logs instead.
	output, err = c.run(ctx, revListTimeout, path, "log", "HEAD..@{upstream}", "--oneline")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}

// Pull brings an existing mirror up to date. It first checks whether
// the mirror is behind at all; if not, the pull is skipped entirely and
// updated is false. A failed check is logged and the pull proceeds
// anyway.
func (c *CLI) Pull(ctx context.Context, path string) (bool, string, error) {
	behind, err := c.hasUpdates(ctx, path)
	if err != nil {
		c.logger.Warn("update check failed, pulling anyway", "path", path, "error", err)
	} else if !behind {
		c.logger.Debug("mirror already up to date", "path", path)
		return false, "", nil
	}

	c.logger.Info("pulling updates", "path", path)
	output, err := c.run(ctx, c.pullTimeout, path, "pull")
	if err != nil {
		return false, output, err
	}
	return pulledNewContent(output), output, nil
}

// pulledNewContent classifies git pull's output: "already up to date"
// variants mean the pull was a no-op.
func pulledNewContent(output string) bool {
	lower := strings.ToLower(output)
	return !strings.Contains(lower, "already up to date") &&
		!strings.Contains(lower, "up to date") &&
		!strings.Contains(lower, "up-to-date")
}

// Compile-time check that CLI implements grs.Git
var _ grs.Git = (*CLI)(nil)
