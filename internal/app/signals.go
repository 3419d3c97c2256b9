package app

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"signalgen/internal/config"
	"signalgen/internal/signalgen"
	logx "signalgen/pkg/logx"
)

// fireLogKey is the subscriber key of the built-in fire logger.
const fireLogKey = "app.log"

// applySignals opens the signals of cfg on the hub. With a change only the
// changed signals are touched and removed ones are disposed; errors are then
// logged per signal instead of aborting.
func (a *App) applySignals(cfg *config.Config, change *config.Change) error {
	sgs, err := mapSignals(cfg)
	if err != nil {
		return err
	}
	for i, sg := range sgs {
		if change != nil && !slices.Contains(change.Signals, sg.Name) {
			continue
		}
		if err := a.openSignal(sg, cfg.Signals[i].LogsFires()); err != nil {
			if change == nil {
				return err
			}
			a.log.Error("signal not applied", logx.Signal(sg.Name), logx.Err(err))
		}
	}
	if change != nil {
		for _, name := range change.Removed {
			a.hub.Remove(name)
		}
	}
	return nil
}

func (a *App) openSignal(sg signalgen.Config, logFires bool) error {
	d, built, err := a.hub.Open(sg)
	if err != nil {
		return err
	}
	if logFires {
		if err := a.hub.Subscribe(sg.Name, fireLogKey, a.fireLogger(d)); err != nil {
			return fmt.Errorf("subscribe %s: %w", fireLogKey, err)
		}
	} else {
		a.hub.Unsubscribe(sg.Name, fireLogKey)
	}
	if built {
		clock := d.Clock()
		a.log.Info("signal opened",
			logx.Signal(sg.Name),
			logx.String("period", d.Period().String()),
			logx.String("policy", clock.Policy().String()),
			logx.String("tz", clock.Location().String()),
			logx.Time("next", clock.Next(time.Now())),
		)
	}
	return nil
}

// fireLogger returns a callback that logs each fire of d. It only reads d's
// immutable clock, so it is safe to run under the dispatcher lock.
func (a *App) fireLogger(d *signalgen.Dispatcher) signalgen.Callback {
	clock := d.Clock()
	log := a.log.With(logx.Signal(d.Name()))
	return func() {
		now := time.Now()
		step, err := clock.Step(now)
		if err != nil {
			log.Warn("signal fired", logx.Err(err))
			return
		}
		boundary := clock.Boundary(step)
		log.Info("signal fired",
			logx.Step(step),
			logx.Time("boundary", boundary),
			logx.Duration("lateness", now.Sub(boundary)),
		)
	}
}

// reload applies a committed config published by the config manager.
func (a *App) reload(next *config.Config) {
	a.mu.Lock()
	prev := a.applied
	a.mu.Unlock()

	change := config.SummarizeConfigChange(prev, next)
	if len(change.Sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.sd.Reloading()

	if change.Has("logging") {
		a.logs.Apply(mapLogging(next))
	}
	if change.Has("signals") {
		if err := a.applySignals(next, &change); err != nil {
			a.log.Error("signals not applied", logx.Err(err))
		}
	}
	if change.Has("report") || change.Has("storage") {
		if err := a.applyJobs(next); err != nil {
			a.log.Error("jobs not applied", logx.Err(err))
		}
	}
	for _, section := range []string{"storage", "systemd", "debug"} {
		if change.Has(section) {
			a.log.Warn("config section changed; restart required", logx.String("section", section))
		}
	}

	a.mu.Lock()
	a.applied = next
	a.mu.Unlock()

	a.sd.Ready(fmt.Sprintf("%d signals", len(a.hub.Names())))
	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Attrs...)
	a.log.Info("config reloaded", fields...)
}
