package job

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// ExportCleanupJob deletes export bundles past their age limit. Exports are
// one-shot downloads; nothing references them after the link goes stale.
type ExportCleanupJob struct {
	dir    string
	maxAge time.Duration
}

func NewExportCleanupJob(dir string, maxAge time.Duration) *ExportCleanupJob {
	return &ExportCleanupJob{dir: dir, maxAge: maxAge}
}

func (j *ExportCleanupJob) Name() string {
	return "export_cleanup"
}

func (j *ExportCleanupJob) Run(ctx context.Context) error {
	if j.dir == "" {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	log := logutil.GetLogger(ctx)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "hanzi_export_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warn("remove export failed", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info("exports pruned", zap.Int("count", removed))
	}
	return nil
}
