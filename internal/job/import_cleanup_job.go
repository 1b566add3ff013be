package job

import (
	"context"
	"os"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/inkstone-dev/inkstone/internal/repo"
)

// ImportCleanupJob prunes aged import job rows and the workspaces preserved
// for their failed runs.
type ImportCleanupJob struct {
	jobRepo *repo.ImportJobRepo
	maxAge  time.Duration
}

func NewImportCleanupJob(jobRepo *repo.ImportJobRepo, maxAge time.Duration) *ImportCleanupJob {
	return &ImportCleanupJob{jobRepo: jobRepo, maxAge: maxAge}
}

func (j *ImportCleanupJob) Name() string {
	return "import_cleanup"
}

func (j *ImportCleanupJob) Run(ctx context.Context) error {
	if j.jobRepo == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 72 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge).Unix()
	jobs, err := j.jobRepo.ListBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	log := logutil.GetLogger(ctx)
	for _, job := range jobs {
		if job.Workspace != "" {
			if err := os.RemoveAll(job.Workspace); err != nil {
				log.Warn("remove preserved workspace failed",
					zap.String("job_id", job.ID), zap.String("workspace", job.Workspace), zap.Error(err))
			}
		}
		if err := j.jobRepo.Delete(ctx, job.ID); err != nil {
			return err
		}
	}
	if len(jobs) > 0 {
		log.Info("import jobs pruned", zap.Int("count", len(jobs)))
	}
	return nil
}
