// Package github resolves the remote status of tracked repositories
// against the GitHub API. Lookups degrade instead of failing: rate
// limits trigger bounded backoff, persistent errors yield a sentinel
// description, and a short-lived cache bounds call volume.
package github

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"grs-go/internal/grs"
)

const (
	// maxRetries bounds attempts per lookup before degrading.
	maxRetries = 3
	// backoffFloor and backoffCeiling clamp the rate-limit pause.
	backoffFloor   = 30 * time.Second
	backoffCeiling = 60 * time.Second
	// transientPause separates retries after non-rate-limit failures.
	transientPause = 5 * time.Second
	// DefaultCacheTTL is how long a resolved status stays fresh.
	DefaultCacheTTL = 5 * time.Minute

	// errorSentinel is the description reported when every retry failed.
	errorSentinel = "[API Error]"

	graphQLEndpoint = "https://api.github.com/graphql"
)

type cacheEntry struct {
	at     time.Time
	status grs.RemoteStatus
}

// Client is the GitHub-backed grs.Resolver. REST lookups go through
// go-github; batched lookups issue one aggregated GraphQL query over
// the same authenticated http.Client.
type Client struct {
	gh         *github.Client
	httpClient *http.Client
	graphqlURL string
	logger     grs.Logger
	clock      grs.Clock
	cacheTTL   time.Duration
	sleep      func(time.Duration)

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewClient creates a resolver. token may be empty for anonymous access
// (at a much lower rate-limit budget). cacheTTL <= 0 selects the default.
func NewClient(token string, cacheTTL time.Duration, logger grs.Logger, clock grs.Clock) *Client {
	httpClient := http.DefaultClient
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}

	return &Client{
		gh:         github.NewClient(httpClient),
		httpClient: httpClient,
		graphqlURL: graphQLEndpoint,
		logger:     logger,
		clock:      clock,
		cacheTTL:   cacheTTL,
		sleep:      time.Sleep,
		cache:      make(map[string]cacheEntry),
	}
}

// Resolve looks up one repository's description and archived/deleted
// flags. A 404 means deleted (indistinguishable from private). Rate
// limiting pauses until the provider's stated reset, clamped to
// [backoffFloor, backoffCeiling], for up to maxRetries attempts. On
// persistent failure the sentinel description is returned with both
// flags false; Resolve never returns an error. fresh bypasses the cache.
func (c *Client) Resolve(ctx context.Context, owner, name string, fresh bool) grs.RemoteStatus {
	key := owner + "/" + name
	if !fresh {
		if status, ok := c.cached(key); ok {
			return status
		}
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
		if err == nil {
			status := grs.RemoteStatus{
				Description: repo.GetDescription(),
				Archived:    repo.GetArchived(),
			}
			c.put(key, status)
			return status
		}

		var rateErr *github.RateLimitError
		var abuseErr *github.AbuseRateLimitError
		var respErr *github.ErrorResponse
		switch {
		case errors.As(err, &rateErr):
			wait := clampBackoff(time.Until(rateErr.Rate.Reset.Time))
			c.logger.Warn("rate limited by provider, backing off", "repo", key, "wait", wait)
			c.sleep(wait)

		case errors.As(err, &abuseErr):
			wait := backoffFloor
			if abuseErr.RetryAfter != nil {
				wait = clampBackoff(*abuseErr.RetryAfter)
			}
			c.logger.Warn("secondary rate limit hit, backing off", "repo", key, "wait", wait)
			c.sleep(wait)

		case errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound:
			status := grs.RemoteStatus{Deleted: true}
			c.put(key, status)
			return status

		default:
			c.logger.Warn("repository lookup failed", "repo", key, "error", err)
			if attempt < maxRetries-1 {
				c.sleep(transientPause)
			}
		}
	}

	c.logger.Error("repository lookup exhausted retries", "repo", key)
	return grs.RemoteStatus{Description: errorSentinel}
}

// ClearCache drops all cached lookups, forcing fresh API calls.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

// RateLimit reports the remaining/total core API budget and its reset
// time. Used by the CLI only.
func (c *Client) RateLimit(ctx context.Context) (remaining, limit int, reset time.Time, err error) {
	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return 0, 0, time.Time{}, err
	}
	core := limits.GetCore()
	return core.Remaining, core.Limit, core.Reset.Time, nil
}

func (c *Client) cached(key string) (grs.RemoteStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok || c.clock.Now().Sub(entry.at) >= c.cacheTTL {
		return grs.RemoteStatus{}, false
	}
	return entry.status, true
}

func (c *Client) put(key string, status grs.RemoteStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{at: c.clock.Now(), status: status}
}

func clampBackoff(d time.Duration) time.Duration {
	if d < backoffFloor {
		return backoffFloor
	}
	if d > backoffCeiling {
		return backoffCeiling
	}
	return d
}

// Compile-time check that Client implements grs.Resolver
var _ grs.Resolver = (*Client)(nil)
