package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"grs-go/internal/grs"
)

func TestCoordinator_Submit(t *testing.T) {
	t.Run("processes distinct repositories", func(t *testing.T) {
		var count atomic.Int32
		c := New(4, func(_ context.Context, _ string) error {
			count.Add(1)
			return nil
		}, grs.NewNopLogger())

		urls := []string{
			"https://github.com/a/one.git",
			"https://github.com/a/two.git",
			"https://github.com/a/three.git",
		}
		for _, url := range urls {
			if !c.Submit(url) {
				t.Errorf("Submit(%s) = false, want true", url)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if got := count.Load(); got != 3 {
			t.Errorf("processed = %d, want 3", got)
		}
	})

	t.Run("drops a duplicate while the job is in flight", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		var count atomic.Int32
		c := New(2, func(_ context.Context, _ string) error {
			count.Add(1)
			close(started)
			<-release
			return nil
		}, grs.NewNopLogger())

		url := "https://github.com/a/one.git"
		if !c.Submit(url) {
			t.Fatal("first Submit() = false")
		}
		<-started

		if c.Submit(url) {
			t.Error("duplicate Submit() = true, want false")
		}
		close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if got := count.Load(); got != 1 {
			t.Errorf("processed = %d, want 1", got)
		}
	})

	t.Run("accepts the same repository again after completion", func(t *testing.T) {
		var count atomic.Int32
		c := New(1, func(_ context.Context, _ string) error {
			count.Add(1)
			return nil
		}, grs.NewNopLogger())

		url := "https://github.com/a/one.git"
		if !c.Submit(url) {
			t.Fatal("first Submit() = false")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Drain(ctx); err != nil {
			t.Fatalf("Drain() error = %v", err)
		}

		if !c.Submit(url) {
			t.Error("resubmission after completion = false, want true")
		}
		if err := c.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if got := count.Load(); got != 2 {
			t.Errorf("processed = %d, want 2", got)
		}
	})

	t.Run("rejects submissions after shutdown", func(t *testing.T) {
		c := New(1, func(_ context.Context, _ string) error { return nil }, grs.NewNopLogger())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if c.Submit("https://github.com/a/one.git") {
			t.Error("Submit() after shutdown = true, want false")
		}
	})
}

func TestCoordinator_SubmitDuringShutdown(t *testing.T) {
	// One worker stuck on the first job, the buffer filled to capacity,
	// and one more Submit parked on the channel send. Shutdown must let
	// that send land instead of closing the channel under it.
	started := make(chan struct{})
	release := make(chan struct{})
	var count atomic.Int32
	c := New(1, func(_ context.Context, url string) error {
		if url == "https://github.com/a/blocker.git" {
			close(started)
		}
		<-release
		count.Add(1)
		return nil
	}, grs.NewNopLogger())

	c.Submit("https://github.com/a/blocker.git")
	<-started
	for i := 0; i < jobBuffer; i++ {
		if !c.Submit(fmt.Sprintf("https://github.com/a/repo%d.git", i)) {
			t.Fatalf("Submit() while filling buffer = false at %d", i)
		}
	}

	parked := make(chan bool, 1)
	go func() {
		parked <- c.Submit("https://github.com/a/straggler.git")
	}()
	// Let the extra submission reach the blocked channel send.
	time.Sleep(50 * time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if ok := <-parked; !ok {
		t.Error("Submit() accepted before shutdown = false, want true")
	}
	if got := count.Load(); got != jobBuffer+2 {
		t.Errorf("processed = %d, want %d", got, jobBuffer+2)
	}
}

func TestCoordinator_Cancel(t *testing.T) {
	// One worker: the first job blocks it, the rest sit queued. Cancel
	// must skip the queued jobs but let the in-flight one finish.
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var ran []string

	c := New(1, func(_ context.Context, url string) error {
		mu.Lock()
		ran = append(ran, url)
		mu.Unlock()
		if url == "https://github.com/a/blocker.git" {
			close(started)
			<-release
		}
		return nil
	}, grs.NewNopLogger())

	c.Submit("https://github.com/a/blocker.git")
	<-started
	c.Submit("https://github.com/a/queued1.git")
	c.Submit("https://github.com/a/queued2.git")

	c.Cancel()
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != "https://github.com/a/blocker.git" {
		t.Errorf("ran = %v, want only the in-flight job", ran)
	}
}

func TestCoordinator_Stats(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := New(1, func(_ context.Context, url string) error {
		if url == "https://github.com/a/blocker.git" {
			close(started)
			<-release
		}
		return nil
	}, grs.NewNopLogger())

	c.Submit("https://github.com/a/blocker.git")
	<-started
	c.Submit("https://github.com/a/queued.git")

	if got := c.InFlight(); got != 1 {
		t.Errorf("InFlight() = %d, want 1", got)
	}
	if got := c.Depth(); got != 1 {
		t.Errorf("Depth() = %d, want 1", got)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if got := c.Depth(); got != 0 {
		t.Errorf("Depth() after drain = %d, want 0", got)
	}
}

func TestCoordinator_HandlerPanic(t *testing.T) {
	var count atomic.Int32
	c := New(1, func(_ context.Context, url string) error {
		if url == "https://github.com/a/bad.git" {
			panic("boom")
		}
		count.Add(1)
		return nil
	}, grs.NewNopLogger())

	c.Submit("https://github.com/a/bad.git")
	c.Submit("https://github.com/a/good.git")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := count.Load(); got != 1 {
		t.Errorf("jobs after panic = %d, want 1", got)
	}
}
