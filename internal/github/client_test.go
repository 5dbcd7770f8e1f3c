package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"

	"grs-go/internal/grs"
	"grs-go/internal/testutil"
)

// testClient points a Client at an httptest server for both the REST
// and the GraphQL endpoint, with sleeping stubbed out.
func testClient(t *testing.T, server *httptest.Server, clock grs.Clock) (*Client, *[]time.Duration) {
	t.Helper()

	c := NewClient("", time.Minute, grs.NewNopLogger(), clock)
	c.httpClient = server.Client()
	c.gh = github.NewClient(server.Client())
	base, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	c.gh.BaseURL = base
	c.graphqlURL = server.URL + "/graphql"

	var sleeps []time.Duration
	var mu sync.Mutex
	c.sleep = func(d time.Duration) {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
	}
	return c, &sleeps
}

func TestClient_Resolve(t *testing.T) {
	t.Run("resolves description and archived flag", func(t *testing.T) {
		var hits int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			fmt.Fprint(w, `{"name": "widgets", "description": "widget factory", "archived": true}`)
		}))
		defer server.Close()
		c, _ := testClient(t, server, testutil.FixedClock())

		status := c.Resolve(context.Background(), "alice", "widgets", false)
		if status.Description != "widget factory" || !status.Archived || status.Deleted {
			t.Errorf("status = %+v", status)
		}
		if hits != 1 {
			t.Errorf("hits = %d, want 1", hits)
		}
	})

	t.Run("serves repeated lookups from the cache", func(t *testing.T) {
		var hits int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			fmt.Fprint(w, `{"name": "widgets"}`)
		}))
		defer server.Close()
		clock := testutil.FixedClock()
		c, _ := testClient(t, server, clock)

		c.Resolve(context.Background(), "alice", "widgets", false)
		c.Resolve(context.Background(), "alice", "widgets", false)
		if hits != 1 {
			t.Errorf("hits = %d, want 1 (second lookup cached)", hits)
		}

		// TTL expiry forces a new call.
		clock.Advance(2 * time.Minute)
		c.Resolve(context.Background(), "alice", "widgets", false)
		if hits != 2 {
			t.Errorf("hits = %d, want 2 after TTL expiry", hits)
		}
	})

	t.Run("fresh bypasses the cache", func(t *testing.T) {
		var hits int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			fmt.Fprint(w, `{"name": "widgets"}`)
		}))
		defer server.Close()
		c, _ := testClient(t, server, testutil.FixedClock())

		c.Resolve(context.Background(), "alice", "widgets", false)
		c.Resolve(context.Background(), "alice", "widgets", true)
		if hits != 2 {
			t.Errorf("hits = %d, want 2", hits)
		}
	})

	t.Run("404 means deleted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "Not Found"}`)
		}))
		defer server.Close()
		c, _ := testClient(t, server, testutil.FixedClock())

		status := c.Resolve(context.Background(), "alice", "gone", false)
		if !status.Deleted {
			t.Errorf("status = %+v, want Deleted", status)
		}

		// Deletion is cached like any other resolution.
		if _, ok := c.cached("alice/gone"); !ok {
			t.Error("deleted status was not cached")
		}
	})

	t.Run("persistent server errors degrade to the sentinel", func(t *testing.T) {
		var hits int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()
		c, sleeps := testClient(t, server, testutil.FixedClock())

		status := c.Resolve(context.Background(), "alice", "flaky", false)
		if status.Description != errorSentinel {
			t.Errorf("description = %q, want sentinel", status.Description)
		}
		if status.Archived || status.Deleted {
			t.Errorf("flags set on degraded status: %+v", status)
		}
		if hits != maxRetries {
			t.Errorf("hits = %d, want %d", hits, maxRetries)
		}
		if len(*sleeps) != maxRetries-1 {
			t.Errorf("sleeps = %v, want %d pauses", *sleeps, maxRetries-1)
		}

		// Degraded results are not cached; the next lookup tries again.
		c.Resolve(context.Background(), "alice", "flaky", false)
		if hits != 2*maxRetries {
			t.Errorf("hits = %d, want %d", hits, 2*maxRetries)
		}
	})

	t.Run("rate limit backs off within the clamp", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Limit", "60")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", fmt.Sprint(time.Now().Unix()))
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
		}))
		defer server.Close()
		c, sleeps := testClient(t, server, testutil.FixedClock())

		status := c.Resolve(context.Background(), "alice", "limited", false)
		if status.Description != errorSentinel {
			t.Errorf("description = %q, want sentinel after exhausted retries", status.Description)
		}
		if len(*sleeps) == 0 {
			t.Fatal("no backoff pauses recorded")
		}
		for _, d := range *sleeps {
			if d < backoffFloor || d > backoffCeiling {
				t.Errorf("backoff %s outside [%s, %s]", d, backoffFloor, backoffCeiling)
			}
		}
	})

	t.Run("ClearCache forces new lookups", func(t *testing.T) {
		var hits int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			fmt.Fprint(w, `{"name": "widgets"}`)
		}))
		defer server.Close()
		c, _ := testClient(t, server, testutil.FixedClock())

		c.Resolve(context.Background(), "alice", "widgets", false)
		c.ClearCache()
		c.Resolve(context.Background(), "alice", "widgets", false)
		if hits != 2 {
			t.Errorf("hits = %d, want 2", hits)
		}
	})
}

func TestClient_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rate_limit" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"resources": {"core": {"limit": 5000, "remaining": 4321, "reset": %d}}}`, time.Now().Unix())
	}))
	defer server.Close()
	c, _ := testClient(t, server, testutil.FixedClock())

	remaining, limit, _, err := c.RateLimit(context.Background())
	if err != nil {
		t.Fatalf("RateLimit() error = %v", err)
	}
	if remaining != 4321 || limit != 5000 {
		t.Errorf("remaining/limit = %d/%d, want 4321/5000", remaining, limit)
	}
}

func TestClampBackoff(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{-5 * time.Second, backoffFloor},
		{10 * time.Second, backoffFloor},
		{45 * time.Second, 45 * time.Second},
		{5 * time.Minute, backoffCeiling},
	}
	for _, tt := range tests {
		if got := clampBackoff(tt.in); got != tt.want {
			t.Errorf("clampBackoff(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
