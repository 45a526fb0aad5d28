package service

import (
	"os"
	"time"

	"github.com/subhub/youtube-subtitle-hub/pkg/icron"
	"github.com/subhub/youtube-subtitle-hub/pkg/log"
)

// scheduleRetention registers the periodic sweep that evicts terminal jobs
// past their TTL and unlinks their artifacts from disk.
func (a *App) scheduleRetention() error {
	expr := a.cfg.Jobs.RetentionCron
	if _, err := a.cron.AddFunc(expr, a.sweepExpiredJobs); err != nil {
		return err
	}

	if info, err := icron.GetTriggerInfo(expr, time.Now()); err == nil {
		log.Info("Retention sweep scheduled (%s), next run at %s",
			info.Expression, info.Next.Format(time.RFC3339))
	}
	return nil
}

func (a *App) sweepExpiredJobs() {
	ttl := time.Duration(a.cfg.Jobs.RetentionHours) * time.Hour
	cutoff := time.Now().Add(-ttl)

	swept := a.store.SweepTerminalBefore(cutoff)
	dropped := a.batches.SweepOrphaned()
	if len(swept) == 0 && len(dropped) == 0 {
		return
	}

	removed := 0
	for _, job := range swept {
		if job.Result == nil || job.Result.File == "" {
			continue
		}
		path, err := a.cfg.Storage.ResolvePublic(job.Result.File)
		if err != nil {
			log.Warn("Skipping artifact of job %s: %v", job.ID, err)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("Failed to remove artifact %s: %v", path, err)
			continue
		}
		removed++
	}
	log.Info("Retention sweep evicted %d jobs, removed %d artifacts, dropped %d playlist batches",
		len(swept), removed, len(dropped))
}
