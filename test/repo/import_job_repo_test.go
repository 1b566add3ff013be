package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkstone-dev/inkstone/internal/model"
	appErr "github.com/inkstone-dev/inkstone/internal/pkg/errors"
	"github.com/inkstone-dev/inkstone/internal/pkg/timeutil"
	"github.com/inkstone-dev/inkstone/internal/repo"
	"github.com/inkstone-dev/inkstone/test/testutil"
)

func TestImportJobRepoLifecycle(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	jobs := repo.NewImportJobRepo(db)
	now := timeutil.NowUnix()
	job := &model.ImportJob{
		ID:         "job-1",
		State:      model.JobStateInitializing,
		Message:    "queued",
		RecentLogs: []string{},
		Ctime:      now,
		Mtime:      now,
	}
	require.NoError(t, jobs.Create(context.Background(), job))

	fetched, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, model.JobStateInitializing, fetched.State)
	require.Equal(t, "queued", fetched.Message)

	_, err = jobs.Get(context.Background(), "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	err = jobs.UpdateProgress(context.Background(), "job-1", model.JobStateProcessing, 50, "halfway", []string{"extracted 10 images"}, timeutil.NowUnix())
	require.NoError(t, err)
	fetched, err = jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, 50, fetched.Progress)
	require.Equal(t, []string{"extracted 10 images"}, fetched.RecentLogs)

	// A stale writer cannot move the published progress backwards.
	err = jobs.UpdateProgress(context.Background(), "job-1", model.JobStateProcessing, 30, "stale", nil, timeutil.NowUnix())
	require.NoError(t, err)
	fetched, err = jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, 50, fetched.Progress)

	job.State = model.JobStateDone
	job.Progress = 100
	job.Message = "imported 9 of 10 images"
	job.ResultStatus = model.ResultSuccess
	job.ReportURL = "/api/v1/files/reports/hanzi_import_x.xlsx"
	job.Total = 10
	job.Succeeded = 9
	job.Failed = 1
	job.Mtime = timeutil.NowUnix()
	require.NoError(t, jobs.Finish(context.Background(), job))
	fetched, err = jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, model.JobStateDone, fetched.State)
	require.Equal(t, 100, fetched.Progress)
	require.Equal(t, 9, fetched.Succeeded)

	require.NoError(t, jobs.RecordWorkspace(context.Background(), "job-1", "/tmp/ws_job-1", timeutil.NowUnix()))
	fetched, err = jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, "/tmp/ws_job-1", fetched.Workspace)

	old, err := jobs.ListBefore(context.Background(), now+1)
	require.NoError(t, err)
	require.Len(t, old, 1)
	old, err = jobs.ListBefore(context.Background(), now-1)
	require.NoError(t, err)
	require.Empty(t, old)

	require.NoError(t, jobs.Delete(context.Background(), "job-1"))
	_, err = jobs.Get(context.Background(), "job-1")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestImportJobRepoProgressLogRing(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	jobs := repo.NewImportJobRepo(db)
	now := timeutil.NowUnix()
	require.NoError(t, jobs.Create(context.Background(), &model.ImportJob{
		ID:         "job-2",
		State:      model.JobStateInitializing,
		RecentLogs: []string{},
		Ctime:      now,
		Mtime:      now,
	}))

	logs := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		logs = append(logs, "line")
	}
	require.NoError(t, jobs.UpdateProgress(context.Background(), "job-2", model.JobStateProcessing, 40, "", logs, now))
	fetched, err := jobs.Get(context.Background(), "job-2")
	require.NoError(t, err)
	require.Len(t, fetched.RecentLogs, 20)

	err = jobs.UpdateProgress(context.Background(), "missing", model.JobStateProcessing, 40, "", nil, now)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}
