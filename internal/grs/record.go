package grs

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Status classifies a tracked repository.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
	StatusError    Status = "error"
)

// Valid reports whether s is one of the closed set of statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusArchived, StatusDeleted, StatusError:
		return true
	}
	return false
}

const (
	// MaxDescriptionLen bounds the persisted remote description.
	MaxDescriptionLen = 500
	// MaxErrorLen bounds the persisted diagnostic text.
	MaxErrorLen = 200
)

// Record is the tracking state for one remote repository. The store
// keys records by normalized repository URL; the URL itself is not a
// field. LastCloned is the last successful synchronization, LastUpdated
// the last time new content actually arrived. Both are empty until the
// first successful sync.
type Record struct {
	LastCloned  string `json:"last_cloned"`
	LastUpdated string `json:"last_updated"`
	LocalPath   string `json:"local_path"`
	Description string `json:"online_description"`
	Status      Status `json:"status"`
	LastError   string `json:"last_error,omitempty"`
}

// UnmarshalJSON tolerates records written by older or damaged stores:
// fields with unexpected types are coerced to their zero value instead
// of failing the whole load.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	str := func(key string) string {
		v, _ := raw[key].(string)
		return v
	}
	r.LastCloned = str("last_cloned")
	r.LastUpdated = str("last_updated")
	r.LocalPath = str("local_path")
	r.Description = str("online_description")
	r.Status = Status(str("status"))
	r.LastError = str("last_error")
	return nil
}

// Sanitize normalizes a record before persistence: out-of-enum statuses
// become pending, newlines in the description are flattened, long text
// fields are truncated.
func (r *Record) Sanitize() {
	if !r.Status.Valid() {
		r.Status = StatusPending
	}

	desc := strings.ReplaceAll(r.Description, "\n", " ")
	desc = strings.ReplaceAll(desc, "\r", " ")
	if len(desc) > MaxDescriptionLen {
		desc = truncate(desc, MaxDescriptionLen-3) + "..."
	}
	r.Description = desc

	if len(r.LastError) > MaxErrorLen {
		r.LastError = truncate(r.LastError, MaxErrorLen)
	}
}

// truncate cuts s to at most max bytes without splitting a multi-byte
// rune, so the result is still valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// CountByStatus tallies records per status bucket. Unknown statuses
// (possible on unsanitized in-memory data) land in the "other" bucket.
func CountByStatus(records map[string]Record) map[string]int {
	counts := map[string]int{
		string(StatusActive):   0,
		string(StatusPending):  0,
		string(StatusArchived): 0,
		string(StatusDeleted):  0,
		string(StatusError):    0,
	}
	for _, rec := range records {
		if rec.Status.Valid() {
			counts[string(rec.Status)]++
		} else {
			counts["other"]++
		}
	}
	return counts
}
