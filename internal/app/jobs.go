package app

import (
	"context"
	"time"

	"signalgen/internal/config"
	logx "signalgen/pkg/logx"
)

const (
	reportJob    = "report"
	retentionJob = "retention"
)

// applyJobs registers or removes the housekeeping schedules for cfg.
func (a *App) applyJobs(cfg *config.Config) error {
	spec, err := mapReport(cfg)
	if err != nil {
		return err
	}
	if spec == "" {
		a.sched.Remove(reportJob)
	} else if err := a.sched.AddSchedule(reportJob, spec, 0, a.report); err != nil {
		return err
	}

	retention, err := mapRetention(cfg)
	if err != nil {
		return err
	}
	if a.store == nil || retention <= 0 {
		a.sched.Remove(retentionJob)
		return nil
	}
	return a.sched.AddSchedule(retentionJob, retentionSchedule, 0, func(ctx context.Context) error {
		return a.prune(ctx, retention)
	})
}

// report logs one line per signal with its diagnostics.
func (a *App) report(context.Context) error {
	var fires uint64
	snaps := a.hub.Snapshots()
	for _, s := range snaps {
		fires += s.Fires
		a.log.Info("signal report",
			logx.Signal(s.Name),
			logx.String("period", s.Period),
			logx.Int("subscribers", s.Subscribers),
			logx.Uint64("ticks", s.Ticks),
			logx.Uint64("fires", s.Fires),
			logx.Time("next", s.NextBoundary),
			logx.Duration("max_tick_gap", s.MaxTickGap),
			logx.Uint64("overruns", s.Overruns),
			logx.Uint64("regressions", s.Regressions),
			logx.Uint64("callback_panics", s.CallbackPanics),
		)
	}
	a.sd.Status("%d signals, %d fires", len(snaps), fires)
	return nil
}

func (a *App) prune(ctx context.Context, retention time.Duration) error {
	n, err := a.store.PruneBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return err
	}
	if n > 0 {
		a.log.Info("fire history pruned", logx.Int64("removed", n), logx.Duration("retention", retention))
	}
	return nil
}
