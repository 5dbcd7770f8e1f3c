package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGrsHandler_Handle(t *testing.T) {
	ts := time.Date(2025, 3, 10, 9, 15, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "Sync-ab12cd34",
			level:   slog.LevelInfo,
			message: "repository tracked",
			want:    "2025-03-10T09:15:45Z\tINFO\tSync-ab12cd34\trepository tracked\n",
		},
		{
			name:    "debug level",
			opID:    "List-ef56",
			level:   slog.LevelDebug,
			message: "store saved",
			want:    "2025-03-10T09:15:45Z\tDEBUG\tList-ef56\tstore saved\n",
		},
		{
			name:    "with record attrs",
			opID:    "Sync-1",
			level:   slog.LevelInfo,
			message: "snapshot created",
			attrs:   []slog.Attr{slog.String("url", "https://github.com/a/b.git"), slog.Int("files", 7)},
			want:    "2025-03-10T09:15:45Z\tINFO\tSync-1\tsnapshot created\turl=https://github.com/a/b.git\tfiles=7\n",
		},
		{
			name:    "multi-line value stays on one line",
			opID:    "Sync-2",
			level:   slog.LevelError,
			message: "clone failed",
			attrs:   []slog.Attr{slog.String("error", "fatal: not found\nexit 128")},
			want:    "2025-03-10T09:15:45Z\tERROR\tSync-2\tclone failed\terror=\"fatal: not found\\nexit 128\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &grsHandler{w: &buf, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestGrsHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &grsHandler{w: &buf, opID: "op-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "store")}).(*grsHandler)

	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "saved", 0)
	r.AddAttrs(slog.String("records", "3"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=store") {
		t.Errorf("expected pre-set attr component=store, got: %q", got)
	}
	if !strings.Contains(got, "records=3") {
		t.Errorf("expected record attr records=3, got: %q", got)
	}
}

func TestGrsHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &grsHandler{w: &buf, opID: "op-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*grsHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestGrsHandler_Enabled(t *testing.T) {
	h := &grsHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-op")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Info("hello", "k", "v")

	data, err := os.ReadFile(filepath.Join(dir, "grs.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "test-op") || !strings.Contains(line, "hello") || !strings.Contains(line, "k=v") {
		t.Errorf("log line = %q", line)
	}
}
