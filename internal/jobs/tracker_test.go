package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTracker_SubmitThenStatusNeverNotFound(t *testing.T) {
	store := NewStore(10, nil)
	release := make(chan struct{})
	tracker := NewTracker(store, RunnerFunc(func(ctx context.Context, _ string, _ DownloadOptions, _ ProgressFunc) (*Result, error) {
		<-release
		return &Result{File: "/storage/videos/x.mp4"}, nil
	}), time.Minute)
	defer tracker.Close()

	job, err := tracker.Submit("https://youtu.be/abc", DownloadOptions{Quality: "best"})
	require.NoError(t, err)

	// the record must exist the moment Submit returns
	got, err := tracker.Status(job.ID)
	require.NoError(t, err)
	require.Contains(t, []Status{StatusPending, StatusRunning}, got.Status)

	close(release)
	require.Eventually(t, func() bool {
		got, err := tracker.Status(job.ID)
		return err == nil && got.Status == StatusCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestTracker_SuccessfulRunCompletesWithResult(t *testing.T) {
	store := NewStore(10, nil)
	tracker := NewTracker(store, RunnerFunc(func(ctx context.Context, url string, opts DownloadOptions, onProgress ProgressFunc) (*Result, error) {
		onProgress(30, "downloading")
		onProgress(70, "merging")
		return &Result{File: "/storage/videos/v.mp4", Filename: "v.mp4", FileSize: 1048576}, nil
	}), time.Minute)
	defer tracker.Close()

	job, err := tracker.Submit("https://youtu.be/abc", DownloadOptions{Quality: "1080p"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := tracker.Status(job.ID)
		return err == nil && got.Status == StatusCompleted
	}, time.Second, 10*time.Millisecond)

	got, err := tracker.Status(job.ID)
	require.NoError(t, err)
	require.Equal(t, 100, got.ProgressPercent)
	require.NotNil(t, got.Result)
	require.Equal(t, "v.mp4", got.Result.Filename)
	require.Equal(t, int64(1048576), got.Result.FileSize)
}

func TestTracker_RunnerErrorFailsJob(t *testing.T) {
	store := NewStore(10, nil)
	tracker := NewTracker(store, RunnerFunc(func(ctx context.Context, _ string, _ DownloadOptions, _ ProgressFunc) (*Result, error) {
		return nil, NewDownloadError("network timeout", nil)
	}), time.Minute)
	defer tracker.Close()

	job, err := tracker.Submit("https://youtu.be/abc", DownloadOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := tracker.Status(job.ID)
		return err == nil && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	got, err := tracker.Status(job.ID)
	require.NoError(t, err)
	require.Contains(t, got.Error, "network timeout")
	require.Nil(t, got.Result)
}

func TestTracker_CancelFailsJobWithCancellationMessage(t *testing.T) {
	store := NewStore(10, nil)
	started := make(chan struct{})
	tracker := NewTracker(store, RunnerFunc(func(ctx context.Context, _ string, _ DownloadOptions, _ ProgressFunc) (*Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}), time.Minute)
	defer tracker.Close()

	job, err := tracker.Submit("https://youtu.be/abc", DownloadOptions{})
	require.NoError(t, err)
	<-started

	require.NoError(t, tracker.Cancel(job.ID))

	require.Eventually(t, func() bool {
		got, err := tracker.Status(job.ID)
		return err == nil && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	got, err := tracker.Status(job.ID)
	require.NoError(t, err)
	require.Equal(t, "download cancelled", got.Error)
}

func TestTracker_TimeoutFailsJob(t *testing.T) {
	store := NewStore(10, nil)
	tracker := NewTracker(store, RunnerFunc(func(ctx context.Context, _ string, _ DownloadOptions, _ ProgressFunc) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), 30*time.Millisecond)
	defer tracker.Close()

	job, err := tracker.Submit("https://youtu.be/abc", DownloadOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := tracker.Status(job.ID)
		return err == nil && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	got, err := tracker.Status(job.ID)
	require.NoError(t, err)
	require.Equal(t, "download timed out", got.Error)
}

func TestTracker_CancelUnknownJob(t *testing.T) {
	store := NewStore(10, nil)
	tracker := NewTracker(store, RunnerFunc(func(context.Context, string, DownloadOptions, ProgressFunc) (*Result, error) {
		return nil, nil
	}), time.Minute)
	defer tracker.Close()

	require.ErrorIs(t, tracker.Cancel("missing"), ErrNotFound)
}

func TestTracker_BaseNameIsJobID(t *testing.T) {
	store := NewStore(10, nil)
	captured := make(chan string, 1)
	tracker := NewTracker(store, RunnerFunc(func(_ context.Context, _ string, opts DownloadOptions, _ ProgressFunc) (*Result, error) {
		captured <- opts.BaseName
		return &Result{}, nil
	}), time.Minute)
	defer tracker.Close()

	job, err := tracker.Submit("https://youtu.be/abc", DownloadOptions{})
	require.NoError(t, err)

	select {
	case base := <-captured:
		require.Equal(t, job.ID, base)
	case <-time.After(time.Second):
		t.Fatal("runner was never invoked")
	}
}

func TestTracker_SubmitAfterCloseRejected(t *testing.T) {
	store := NewStore(10, nil)
	tracker := NewTracker(store, RunnerFunc(func(context.Context, string, DownloadOptions, ProgressFunc) (*Result, error) {
		return &Result{}, nil
	}), time.Minute)
	tracker.Close()

	_, err := tracker.Submit("https://youtu.be/abc", DownloadOptions{})
	require.ErrorIs(t, err, ErrCapacity)
}
