package jobs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatches_UnknownBatchID(t *testing.T) {
	batches := NewBatches(NewStore(10, nil))

	_, err := batches.Aggregate("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBatches_AggregateCountsChildren(t *testing.T) {
	store := NewStore(10, nil)
	batches := NewBatches(store)

	ids := make([]string, 0, 3)
	for _, url := range []string{"a", "b", "c"} {
		job, err := store.Create(CreateRequest{Kind: KindSubtitle, URL: url})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	batches.Register("batch-1", ids)

	_, err := store.Update(ids[0], Update{Status: StatusPtr(StatusCompleted)})
	require.NoError(t, err)
	_, err = store.Update(ids[1], Update{Status: StatusPtr(StatusFailed), Error: StringPtr("boom")})
	require.NoError(t, err)
	_, err = store.Update(ids[2], Update{Status: StatusPtr(StatusRunning)})
	require.NoError(t, err)

	progress, err := batches.Aggregate("batch-1")
	require.NoError(t, err)
	require.Equal(t, 3, progress.Total)
	require.Equal(t, 2, progress.CompletedCount)
	require.Equal(t, 1, progress.SuccessfulCount)
	require.Equal(t, 1, progress.FailedCount)
	require.Equal(t, 1, progress.InProgress)
	require.Equal(t, BatchRunning, progress.Status)
	require.Len(t, progress.Children, 3)
}

func TestBatches_AggregateRecomputedPerPoll(t *testing.T) {
	store := NewStore(10, nil)
	batches := NewBatches(store)

	job, err := store.Create(CreateRequest{Kind: KindSubtitle, URL: "a"})
	require.NoError(t, err)
	batches.Register("batch-1", []string{job.ID})

	progress, err := batches.Aggregate("batch-1")
	require.NoError(t, err)
	require.Equal(t, BatchPending, progress.Status)
	require.Equal(t, 0, progress.CompletedCount)

	_, err = store.Update(job.ID, Update{Status: StatusPtr(StatusCompleted)})
	require.NoError(t, err)

	progress, err = batches.Aggregate("batch-1")
	require.NoError(t, err)
	require.Equal(t, BatchCompleted, progress.Status)
	require.Equal(t, 1, progress.CompletedCount)
	require.Equal(t, 1, progress.SuccessfulCount)
}

func TestBatches_PurgedChildCountsAsFailure(t *testing.T) {
	store := NewStore(10, nil)
	batches := NewBatches(store)

	kept, err := store.Create(CreateRequest{Kind: KindSubtitle, URL: "kept"})
	require.NoError(t, err)
	purged, err := store.Create(CreateRequest{Kind: KindSubtitle, URL: "purged"})
	require.NoError(t, err)
	batches.Register("batch-1", []string{kept.ID, purged.ID})

	_, err = store.Update(kept.ID, Update{Status: StatusPtr(StatusCompleted)})
	require.NoError(t, err)
	require.NoError(t, store.Delete(purged.ID))

	progress, err := batches.Aggregate("batch-1")
	require.NoError(t, err)
	require.Equal(t, 2, progress.Total)
	require.Equal(t, 2, progress.CompletedCount)
	require.Equal(t, 1, progress.SuccessfulCount)
	require.Equal(t, 1, progress.FailedCount)
	require.Equal(t, BatchCompleted, progress.Status)
	require.Len(t, progress.Children, 1)
}

func TestBatches_SweepOrphaned(t *testing.T) {
	store := NewStore(10, nil)
	batches := NewBatches(store)

	alive, err := store.Create(CreateRequest{Kind: KindSubtitle, URL: "alive"})
	require.NoError(t, err)
	gone, err := store.Create(CreateRequest{Kind: KindSubtitle, URL: "gone"})
	require.NoError(t, err)

	batches.Register("batch-alive", []string{alive.ID, gone.ID})
	batches.Register("batch-gone", []string{gone.ID})

	require.NoError(t, store.Delete(gone.ID))

	dropped := batches.SweepOrphaned()
	require.Equal(t, []string{"batch-gone"}, dropped)

	_, err = batches.Aggregate("batch-alive")
	require.NoError(t, err)
	_, err = batches.Aggregate("batch-gone")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(alive.ID))
	dropped = batches.SweepOrphaned()
	require.Equal(t, []string{"batch-alive"}, dropped)
	_, err = batches.Aggregate("batch-alive")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBatches_ForgetMakesBatchUnknown(t *testing.T) {
	store := NewStore(10, nil)
	batches := NewBatches(store)

	job, err := store.Create(CreateRequest{Kind: KindSubtitle, URL: "a"})
	require.NoError(t, err)
	batches.Register("batch-1", []string{job.ID})

	_, err = batches.Aggregate("batch-1")
	require.NoError(t, err)

	batches.Forget("batch-1")
	_, err = batches.Aggregate("batch-1")
	require.ErrorIs(t, err, ErrNotFound)
}
