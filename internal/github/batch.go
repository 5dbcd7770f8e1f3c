package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"grs-go/internal/grs"
)

const (
	// graphQLBatchSize is the provider's per-query alias budget.
	graphQLBatchSize = 100
	// fallbackConcurrency bounds parallel single lookups when the
	// aggregated query cannot be used.
	fallbackConcurrency = 5
)

// ResolveMany resolves a batch of repositories, keyed by "owner/name".
// Cached entries are served directly (unless fresh); the rest go out as
// aggregated GraphQL queries of up to graphQLBatchSize repositories
// each. If the aggregated path fails for any reason (network error,
// non-200, malformed or partial response), the affected repositories
// transparently fall back to individual Resolve calls, so callers
// always see the per-item contract.
func (c *Client) ResolveMany(ctx context.Context, repos []grs.OwnerRepo, fresh bool) map[string]grs.RemoteStatus {
	results := make(map[string]grs.RemoteStatus, len(repos))
	var toFetch []grs.OwnerRepo

	if fresh {
		toFetch = repos
	} else {
		for _, repo := range repos {
			if status, ok := c.cached(repo.String()); ok {
				results[repo.String()] = status
			} else {
				toFetch = append(toFetch, repo)
			}
		}
	}

	for start := 0; start < len(toFetch); start += graphQLBatchSize {
		end := start + graphQLBatchSize
		if end > len(toFetch) {
			end = len(toFetch)
		}
		chunk := toFetch[start:end]

		batch, err := c.resolveBatch(ctx, chunk)
		if err != nil {
			c.logger.Warn("aggregated lookup failed, falling back to single calls", "repos", len(chunk), "error", err)
			c.resolveFallback(ctx, chunk, fresh, results)
			continue
		}
		for key, status := range batch {
			c.put(key, status)
			results[key] = status
		}
	}

	return results
}

// graphQLRepo is one aliased repository block in the batched response.
// A null block means the repository was not found (deleted or private).
type graphQLRepo struct {
	Description *string `json:"description"`
	IsArchived  bool    `json:"isArchived"`
}

type graphQLResponse struct {
	Data   map[string]*graphQLRepo `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// resolveBatch issues one aggregated GraphQL query for the chunk.
func (c *Client) resolveBatch(ctx context.Context, chunk []grs.OwnerRepo) (map[string]grs.RemoteStatus, error) {
	var query bytes.Buffer
	query.WriteString("query { ")
	for i, repo := range chunk {
		fmt.Fprintf(&query, "repo%d: repository(owner: %q, name: %q) { description isArchived } ", i, repo.Owner, repo.Name)
	}
	query.WriteString("}")

	body, err := json.Marshal(map[string]string{"query": query.String()})
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("query returned errors: %s", parsed.Errors[0].Message)
	}
	if parsed.Data == nil {
		return nil, fmt.Errorf("response carries no data")
	}

	batch := make(map[string]grs.RemoteStatus, len(chunk))
	for i, repo := range chunk {
		block, ok := parsed.Data[fmt.Sprintf("repo%d", i)]
		if !ok {
			return nil, fmt.Errorf("response missing alias for %s", repo)
		}
		if block == nil {
			batch[repo.String()] = grs.RemoteStatus{Deleted: true}
			continue
		}
		desc := ""
		if block.Description != nil {
			desc = *block.Description
		}
		batch[repo.String()] = grs.RemoteStatus{Description: desc, Archived: block.IsArchived}
	}

	c.logger.Debug("aggregated lookup complete", "repos", len(chunk))
	return batch, nil
}

// resolveFallback resolves each repository individually, a bounded
// number in parallel, writing into results.
func (c *Client) resolveFallback(ctx context.Context, chunk []grs.OwnerRepo, fresh bool, results map[string]grs.RemoteStatus) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fallbackConcurrency)

	for _, repo := range chunk {
		g.Go(func() error {
			status := c.Resolve(gctx, repo.Owner, repo.Name, fresh)
			mu.Lock()
			results[repo.String()] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures degrade per item
}
