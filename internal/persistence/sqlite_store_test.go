package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/subhub/youtube-subtitle-hub/internal/jobs"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestSQLiteStore_JobRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	job := &jobs.Job{
		ID:              "job-1",
		Kind:            jobs.KindVideo,
		URL:             "https://youtu.be/abc",
		Quality:         "720p",
		Status:          jobs.StatusCompleted,
		ProgressPercent: 100,
		Message:         "download complete",
		Result: &jobs.Result{
			File:          "/storage/videos/job-1.mp4",
			Filename:      "job-1.mp4",
			FileSize:      1048576,
			FileSizeHuman: "1.0 MiB",
			FormatNote:    "target quality: 720p",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	loaded, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]
	require.Equal(t, "job-1", got.ID)
	require.Equal(t, jobs.KindVideo, got.Kind)
	require.Equal(t, jobs.StatusCompleted, got.Status)
	require.Equal(t, 100, got.ProgressPercent)
	require.NotNil(t, got.Result)
	require.Equal(t, int64(1048576), got.Result.FileSize)
	require.Equal(t, "1.0 MiB", got.Result.FileSizeHuman)
}

func TestSQLiteStore_UpsertOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &jobs.Job{ID: "job-1", Kind: jobs.KindVideo, URL: "u", Status: jobs.StatusPending}
	require.NoError(t, store.UpsertJob(ctx, job))

	job.Status = jobs.StatusFailed
	job.Error = "network timeout"
	require.NoError(t, store.UpsertJob(ctx, job))

	loaded, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, jobs.StatusFailed, loaded[0].Status)
	require.Equal(t, "network timeout", loaded[0].Error)
}

func TestSQLiteStore_JobWithoutResultLoadsNilResult(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertJob(ctx, &jobs.Job{
		ID: "job-2", Kind: jobs.KindSubtitle, URL: "u", Status: jobs.StatusRunning,
	}))

	loaded, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Nil(t, loaded[0].Result)
}

func TestSQLiteStore_DeleteJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertJob(ctx, &jobs.Job{ID: "job-3", Kind: jobs.KindVideo, URL: "u"}))
	require.NoError(t, store.DeleteJob(ctx, "job-3"))

	loaded, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.UpsertJob(ctx, &jobs.Job{ID: "job-4", Kind: jobs.KindVideo, URL: "u", Status: jobs.StatusRunning}))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	loaded, err := second.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "job-4", loaded[0].ID)
}

func TestSQLiteStore_SubtitleCacheRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	missing, err := store.GetSubtitleCache(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	entry := &SubtitleCacheEntry{
		CacheKey:      "url|srt|en|false",
		JobID:         "job-5",
		SubtitleFile:  "/storage/subtitles/srt/talk.srt",
		PromptFile:    "/storage/prompts/job-5.txt",
		PromptPreview: "Turn the following talk into notes",
		VideoURL:      "https://youtu.be/abc",
		VideoTitle:    "A Talk",
		DownloadedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.PutSubtitleCache(ctx, entry))

	got, err := store.GetSubtitleCache(ctx, entry.CacheKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "job-5", got.JobID)
	require.Equal(t, entry.SubtitleFile, got.SubtitleFile)
	require.Equal(t, "A Talk", got.VideoTitle)

	// an update replaces the existing row
	entry.JobID = "job-6"
	require.NoError(t, store.PutSubtitleCache(ctx, entry))
	got, err = store.GetSubtitleCache(ctx, entry.CacheKey)
	require.NoError(t, err)
	require.Equal(t, "job-6", got.JobID)

	require.NoError(t, store.DeleteSubtitleCache(ctx, entry.CacheKey))
	got, err = store.GetSubtitleCache(ctx, entry.CacheKey)
	require.NoError(t, err)
	require.Nil(t, got)
}
