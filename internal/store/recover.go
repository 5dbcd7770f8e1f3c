package store

import (
	"encoding/json"
	"path/filepath"
	"regexp"

	"grs-go/internal/grs"
)

// entryPattern matches one repository entry inside the (possibly
// damaged) store file: a GitHub URL key followed by a flat JSON object.
// Record objects never nest, so a bracket-free body is sufficient.
var entryPattern = regexp.MustCompile(`"(https://github\.com/[^"]+\.git)"\s*:\s*(\{[^{}]*\})`)

// recoverLocked salvages individually well-formed entries from a store
// file that no longer parses as a whole. The damaged original is backed
// up first; whatever was recovered is written back as the new primary.
// Recovery is best effort and never fails the load.
func (s *FileStore) recoverLocked(content []byte) map[string]grs.Record {
	backupPath := s.path + ".corrupted.bak"
	if err := copyFile(s.path, backupPath); err != nil {
		s.logger.Error("failed to back up corrupted store file", "error", err)
	} else {
		s.logger.Info("backed up corrupted store file", "path", backupPath)
	}

	matches := entryPattern.FindAllSubmatch(content, -1)
	if len(matches) == 0 {
		s.logger.Error("no salvageable entries in corrupted store file")
		return map[string]grs.Record{}
	}

	recovered := make(map[string]grs.Record, len(matches))
	for _, m := range matches {
		url := string(m[1])
		var rec grs.Record
		if err := json.Unmarshal(m[2], &rec); err != nil {
			// Entry body is damaged too; keep the repository tracked
			// with a clean pending record.
			s.logger.Warn("salvaging bare entry for damaged record", "url", url)
			rec = grs.Record{
				LocalPath: filepath.Join(s.dataDir, grs.RepoDirName(url)),
				Status:    grs.StatusPending,
			}
		}
		recovered[url] = rec
	}

	if err := s.saveLocked(recovered); err != nil {
		s.logger.Error("failed to rewrite store after recovery", "error", err)
	} else {
		s.logger.Info("recovered records from corrupted store file", "count", len(recovered))
	}
	return recovered
}
