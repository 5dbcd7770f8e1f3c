package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"grs-go/internal/grs"
)

// autoUpdateInterval is how long after the last automatic batch sync a
// new one becomes due.
const autoUpdateInterval = 24 * time.Hour

// autoUpdateStamp is the tiny JSON file remembering when the last
// automatic batch sync ran.
type autoUpdateStamp struct {
	LastAutoUpdate string `json:"last_auto_update"`
}

func (a *App) stampPath() string {
	return filepath.Join(a.cfg.BaseDir, "auto_update.json")
}

// AutoUpdateDue reports whether an automatic batch sync should run:
// true when no stamp exists, the stamp is unreadable, or the interval
// has elapsed. It also returns the last run time when known.
func (a *App) AutoUpdateDue() (bool, string) {
	data, err := os.ReadFile(a.stampPath())
	if err != nil {
		return true, ""
	}

	var stamp autoUpdateStamp
	if err := json.Unmarshal(data, &stamp); err != nil || stamp.LastAutoUpdate == "" {
		return true, ""
	}

	last, err := time.ParseInLocation(grs.TimestampLayout, stamp.LastAutoUpdate, time.Local)
	if err != nil {
		return true, stamp.LastAutoUpdate
	}
	return a.clock.Now().Sub(last) >= autoUpdateInterval, stamp.LastAutoUpdate
}

// MarkAutoUpdated records that an automatic batch sync just ran.
func (a *App) MarkAutoUpdated() {
	stamp := autoUpdateStamp{LastAutoUpdate: a.clock.Now().Format(grs.TimestampLayout)}
	data, err := json.Marshal(stamp)
	if err != nil {
		return
	}
	if err := os.WriteFile(a.stampPath(), data, 0644); err != nil {
		a.logger.Warn("failed to write auto-update stamp", "error", err)
	}
}
