package app

import (
	"context"
	"time"

	"signalgen/internal/eventbus"
	"signalgen/internal/signalgen"
	"signalgen/internal/storage"
	logx "signalgen/pkg/logx"
)

const (
	appendTimeout = 2 * time.Second
	drainTimeout  = time.Second
)

func fireRecord(runID string, f signalgen.Fire) storage.FireRecord {
	return storage.FireRecord{
		RunID:      runID,
		Signal:     f.Signal,
		Step:       f.Step,
		Boundary:   f.Boundary,
		At:         f.At,
		LatenessMS: f.Lateness.Milliseconds(),
		Notified:   f.Notified,
		Panics:     f.Panics,
	}
}

// record appends every fire event to the store until ctx is done, then
// flushes what is already buffered.
func (a *App) record(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			a.drain(events)
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a.persist(ctx, ev)
		}
	}
}

func (a *App) drain(events <-chan eventbus.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.persist(ctx, ev)
		default:
			return
		}
	}
}

func (a *App) persist(ctx context.Context, ev eventbus.Event) {
	f, ok := ev.Data.(signalgen.Fire)
	if !ok {
		return
	}
	actx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()
	if err := a.store.AppendFire(actx, fireRecord(a.runID, f)); err != nil {
		a.log.Warn("fire not recorded", logx.Signal(f.Signal), logx.Step(f.Step), logx.Err(err))
	}
}
