package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/inkstone-dev/inkstone/internal/config"
	"github.com/inkstone-dev/inkstone/internal/importer"
	"github.com/inkstone-dev/inkstone/internal/model"
	appErr "github.com/inkstone-dev/inkstone/internal/pkg/errors"
	"github.com/inkstone-dev/inkstone/internal/pkg/timeutil"
	"github.com/inkstone-dev/inkstone/internal/repo"
)

// ImportService accepts bulk import submissions, runs each batch in the
// background with retry and time limits, and persists job progress for
// polling.
type ImportService struct {
	jobs       *repo.ImportJobRepo
	catalog    *HanziService
	recognizer importer.Recognizer
	cfg        config.ImportConfig
}

func NewImportService(jobs *repo.ImportJobRepo, catalog *HanziService, recognizer importer.Recognizer, cfg config.ImportConfig) *ImportService {
	return &ImportService{jobs: jobs, catalog: catalog, recognizer: recognizer, cfg: cfg}
}

// SubmitInput carries one upload. ArchivePath and AnswerPaths point at
// temp files owned by the service once Submit returns.
type SubmitInput struct {
	ArchivePath string
	AnswerPaths []string
	// OutputDir optionally names a subdirectory of the configured output
	// root that receives this batch's report and failure log.
	OutputDir        string
	TestMode         bool
	MatchByCharacter bool
	IDKey            string
	LevelKey         string
	CommentKey       string
}

// Submit registers a job row and starts the batch in the background. The
// returned job id is immediately pollable.
func (s *ImportService) Submit(ctx context.Context, input SubmitInput) (string, error) {
	jobID := newJobID()
	now := timeutil.NowUnix()
	job := &model.ImportJob{
		ID:         jobID,
		State:      model.JobStateInitializing,
		Message:    "queued",
		RecentLogs: []string{},
		Ctime:      now,
		Mtime:      now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", err
	}
	go s.run(jobID, input)
	return jobID, nil
}

func (s *ImportService) Status(ctx context.Context, jobID string) (*model.ImportJob, error) {
	return s.jobs.Get(ctx, jobID)
}

func newJobID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

type batchOutcome struct {
	summary   *importer.Summary
	workspace string
	err       error
}

// run drives one job to a terminal state. The soft limit cancels the batch
// context so it can unwind cleanly; the hard limit is a watchdog that marks
// the job failed even if the batch refuses to stop.
func (s *ImportService) run(jobID string, input SubmitInput) {
	ctx := context.Background()
	log := logutil.GetLogger(ctx).With(zap.String("job_id", jobID))

	soft := time.Duration(s.cfg.SoftTimeLimitSec) * time.Second
	hard := time.Duration(s.cfg.HardTimeLimitSec) * time.Second
	batchCtx, cancel := context.WithTimeout(ctx, soft)
	defer cancel()

	defer s.removeInputs(input)

	sink := newJobSink(s.jobs, jobID)
	results := make(chan batchOutcome, 1)
	go func() {
		summary, workspace, err := s.attempts(batchCtx, input, sink)
		results <- batchOutcome{summary: summary, workspace: workspace, err: err}
	}()

	hardTimer := time.NewTimer(hard)
	defer hardTimer.Stop()
	select {
	case out := <-results:
		if out.err != nil {
			s.finishFailed(ctx, jobID, out.workspace, out.err, sink.Lines())
			return
		}
		s.finishDone(ctx, jobID, out.summary, out.workspace, sink.Lines())
	case <-hardTimer.C:
		log.Error("hard time limit exceeded, abandoning batch")
		cancel()
		out := <-results
		err := out.err
		if err == nil {
			err = fmt.Errorf("hard time limit exceeded")
		}
		s.finishFailed(ctx, jobID, out.workspace, err, sink.Lines())
	}
}

// attempts runs the batch up to MaxAttempts times. Deterministic input
// errors and cancellation are not retried; each retry starts from a fresh
// extraction.
func (s *ImportService) attempts(ctx context.Context, input SubmitInput, sink *jobSink) (*importer.Summary, string, error) {
	outputDir := s.cfg.OutputDir
	if input.OutputDir != "" {
		outputDir = filepath.Join(s.cfg.OutputDir, input.OutputDir)
	}
	opts := importer.Options{
		OutputDir:        outputDir,
		TestMode:         input.TestMode,
		MatchByCharacter: input.MatchByCharacter,
		IDKey:            input.IDKey,
		LevelKey:         input.LevelKey,
		CommentKey:       input.CommentKey,
		KeepOldReports:   s.cfg.KeepOldReports,
	}
	retryDelay := time.Duration(s.cfg.RetryDelaySec) * time.Second

	var lastErr error
	var workspace string
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		batch := importer.NewBatch(s.catalog, s.recognizer, sink, input.ArchivePath, input.AnswerPaths, opts)
		summary, err := batch.Run(ctx)
		workspace = batch.Workspace()
		if err == nil {
			return summary, workspace, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
		sink.Log(fmt.Sprintf("attempt %d failed: %v", attempt, err))
		if attempt < s.cfg.MaxAttempts {
			if workspace != "" {
				os.RemoveAll(workspace)
				workspace = ""
			}
			select {
			case <-ctx.Done():
				return nil, workspace, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return nil, workspace, lastErr
}

// retryable excludes errors that a rerun of the same input cannot fix.
func retryable(err error) bool {
	return !errors.Is(err, appErr.ErrNoImages) &&
		!errors.Is(err, appErr.ErrMetadataLoad) &&
		!errors.Is(err, appErr.ErrExtraction)
}

func (s *ImportService) finishDone(ctx context.Context, jobID string, summary *importer.Summary, workspace string, logs []string) {
	if workspace != "" {
		os.RemoveAll(workspace)
	}
	message := fmt.Sprintf("imported %d of %d images", summary.Succeeded, summary.Total)
	if summary.Succeeded == 0 {
		message = "finished, but no images were recognized"
	}
	reportURL := "/api/v1/files/reports/" + summary.ReportName
	if rel, err := filepath.Rel(s.cfg.OutputDir, summary.ReportPath); err == nil && !strings.HasPrefix(rel, "..") {
		reportURL = "/api/v1/files/reports/" + filepath.ToSlash(rel)
	}
	job := &model.ImportJob{
		ID:           jobID,
		State:        model.JobStateDone,
		Progress:     100,
		Message:      message,
		ResultStatus: model.ResultSuccess,
		ReportURL:    reportURL,
		ReportPath:   summary.ReportPath,
		Total:        summary.Total,
		Succeeded:    summary.Succeeded,
		Failed:       summary.Failed,
		RecentLogs:   logs,
		Mtime:        timeutil.NowUnix(),
	}
	if err := s.jobs.Finish(ctx, job); err != nil {
		logutil.GetLogger(ctx).Error("persist job completion failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
}

// finishFailed preserves the workspace beside its temp location, tagged with
// the job id, so the inputs of a failed run can be inspected.
func (s *ImportService) finishFailed(ctx context.Context, jobID string, workspace string, cause error, logs []string) {
	log := logutil.GetLogger(ctx).With(zap.String("job_id", jobID))
	preserved := ""
	if workspace != "" {
		preserved = workspace + "_" + jobID
		if err := os.Rename(workspace, preserved); err != nil {
			log.Warn("preserve workspace failed", zap.Error(err))
			preserved = workspace
		}
		if err := s.jobs.RecordWorkspace(ctx, jobID, preserved, timeutil.NowUnix()); err != nil {
			log.Warn("record workspace failed", zap.Error(err))
		}
	}
	job := &model.ImportJob{
		ID:           jobID,
		State:        model.JobStateFailed,
		Progress:     100,
		Message:      cause.Error(),
		ResultStatus: model.ResultFailed,
		Workspace:    preserved,
		RecentLogs:   logs,
		Mtime:        timeutil.NowUnix(),
	}
	if err := s.jobs.Finish(ctx, job); err != nil {
		log.Error("persist job failure failed", zap.Error(err))
	}
	log.Error("import job failed", zap.Error(cause))
}

func (s *ImportService) removeInputs(input SubmitInput) {
	if input.ArchivePath != "" {
		_ = os.Remove(input.ArchivePath)
	}
	for _, path := range input.AnswerPaths {
		if path != "" {
			_ = os.Remove(path)
		}
	}
}

// jobSink persists batch progress onto the job row. It keeps a bounded log
// ring; persistence errors are swallowed so a flaky status write never kills
// a running batch.
type jobSink struct {
	jobs  *repo.ImportJobRepo
	jobID string
	logs  []string
}

func newJobSink(jobs *repo.ImportJobRepo, jobID string) *jobSink {
	return &jobSink{jobs: jobs, jobID: jobID}
}

func (s *jobSink) Step(state string, progress int, message string) {
	ctx := context.Background()
	if err := s.jobs.UpdateProgress(ctx, s.jobID, state, progress, message, s.logs, timeutil.NowUnix()); err != nil {
		logutil.GetLogger(ctx).Warn("persist progress failed",
			zap.String("job_id", s.jobID), zap.Error(err))
	}
}

func (s *jobSink) Log(line string) {
	s.logs = append(s.logs, line)
	if len(s.logs) > 64 {
		s.logs = s.logs[len(s.logs)-64:]
	}
}

// Lines returns a copy of the accumulated log ring so terminal job writes
// carry it instead of wiping it.
func (s *jobSink) Lines() []string {
	out := make([]string, len(s.logs))
	copy(out, s.logs)
	return out
}
