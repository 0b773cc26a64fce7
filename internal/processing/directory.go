package processing

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Discover resolves the input path into the GPX files to load. A file is
// returned as is. For a directory, the *.gpx entries modified longer than
// fileAgeThreshold ago are returned in name order.
func Discover(path string, fileAgeThreshold time.Duration, logger *zap.Logger) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("could not read input %s: %w\nAction: Check the --input path exists", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("could not read the given input directory %s: %w", path, err)
	}

	cutoff := time.Now().Add(-fileAgeThreshold)
	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".gpx") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logger.Warn("Could not get file info", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		if fileAgeThreshold > 0 && !info.ModTime().Before(cutoff) {
			logger.Debug("Skipping recent file (still being written?)",
				zap.Duration("age_threshold", fileAgeThreshold),
				zap.String("file", entry.Name()))
			continue
		}

		files = append(files, filepath.Join(path, entry.Name()))
	}

	sort.Strings(files)

	logger.Info("Files found for processing",
		zap.Int("ready_files", len(files)),
		zap.Int("total_entries", len(entries)))
	return files, nil
}
