// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package helpers

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanStaleFiles removes regular files in dir whose names start with prefix
// and that were last modified more than maxAge ago. It returns the number of
// files removed. Errors are logged and otherwise ignored.
func CleanStaleFiles(dir, prefix string, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Info("Failed to read temp dir (ignoring)", slog.String("path", dir), slog.Any("error", err))
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Info("Failed to remove stale file (ignoring)", slog.String("path", path), slog.Any("error", err))
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Removed stale files", slog.String("path", dir), slog.String("prefix", prefix), slog.Int("count", removed))
	}
	return removed
}
