package subtitles

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/subhub/youtube-subtitle-hub/internal/jobs"
	"github.com/subhub/youtube-subtitle-hub/pkg/log"
)

// downloadPlaylist expands the playlist, registers one child job per video
// and fans the downloads out over a bounded worker group. The batch is
// tracked in the job store so progress stays observable from other
// requests while this call blocks.
func (s *Service) downloadPlaylist(ctx context.Context, req DownloadRequest) (*PlaylistDownloadResponse, error) {
	urls, err := s.client.PlaylistVideoURLs(ctx, req.VideoURL)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("playlist contains no videos")
	}

	batchID, childIDs, err := s.registerBatch(urls)
	if err != nil {
		return nil, err
	}
	log.Info("Playlist batch %s started with %d videos", batchID, len(urls))

	results := make([]*DownloadResponse, len(urls))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	var mu sync.Mutex
	for i := range urls {
		i := i
		group.Go(func() error {
			childReq := req
			childReq.VideoURL = urls[i]
			childReq.OutputFilename = ""

			s.markChild(childIDs[i], jobs.StatusRunning, "downloading subtitles", "")

			response, err := s.downloadSingle(groupCtx, childReq)
			if err != nil {
				s.markChild(childIDs[i], jobs.StatusFailed, "", err.Error())
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				return nil
			}

			s.markChild(childIDs[i], jobs.StatusCompleted,
				fmt.Sprintf("subtitles saved as %s", response.SubtitleFile), "")
			mu.Lock()
			results[i] = response
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	response := &PlaylistDownloadResponse{
		JobID:  batchID,
		Total:  len(urls),
		Status: string(jobs.BatchCompleted),
	}
	for _, result := range results {
		response.Completed++
		if result != nil {
			response.Successful++
			response.Results = append(response.Results, *result)
		} else {
			response.Failed++
		}
	}
	log.Info("Playlist batch %s finished: %d ok, %d failed",
		batchID, response.Successful, response.Failed)
	return response, nil
}

func (s *Service) registerBatch(urls []string) (string, []string, error) {
	childIDs := make([]string, 0, len(urls))
	for _, videoURL := range urls {
		child, err := s.store.Create(jobs.CreateRequest{
			Kind: jobs.KindSubtitle,
			URL:  videoURL,
		})
		if err != nil {
			for _, id := range childIDs {
				s.store.Delete(id)
			}
			return "", nil, err
		}
		childIDs = append(childIDs, child.ID)
	}
	batchID := uuid.NewString()
	s.batches.Register(batchID, childIDs)
	return batchID, childIDs, nil
}

func (s *Service) markChild(id string, status jobs.Status, message, errText string) {
	update := jobs.Update{Status: jobs.StatusPtr(status)}
	if message != "" {
		update.Message = jobs.StringPtr(message)
	}
	if errText != "" {
		update.Error = jobs.StringPtr(errText)
	}
	if status == jobs.StatusCompleted {
		update.ProgressPercent = jobs.IntPtr(100)
	}
	if _, err := s.store.Update(id, update); err != nil {
		log.Warn("Failed to update playlist child %s: %v", id, err)
	}
}
