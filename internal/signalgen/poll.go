package signalgen

import (
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"signalgen/internal/eventbus"
	logx "signalgen/pkg/logx"
)

// A tick gap above overrunFactor*resolution counts as an overrun.
const overrunFactor = 4

const panicLogEvery = 10 * time.Second

func (d *Dispatcher) run(manual bool) {
	defer close(d.done)
	defer d.release()

	if manual {
		<-d.stop
		return
	}

	t := time.NewTicker(d.clock.Resolution())
	defer t.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-t.C:
			d.tick(d.now())
		}
	}
}

// release drops every subscriber once polling has ended.
func (d *Dispatcher) release() {
	d.mu.Lock()
	n := d.reg.len()
	d.reg.clear()
	d.panicLogs = map[string]*rate.Limiter{}
	d.mu.Unlock()
	d.log.Debug("dispatcher released", logx.Int("subscribers", n))
}

// tick evaluates one poll. It reports whether subscribers were notified.
func (d *Dispatcher) tick(now time.Time) (fired bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			fired = false
			d.stats.tickPanics++
			d.log.Error("tick panicked", logx.Any("panic", r), logx.Stack(debug.Stack()))
		}
	}()

	if d.disposed.Load() {
		return false
	}
	d.stats.ticks++

	if !d.lastTick.IsZero() {
		gap := now.Sub(d.lastTick)
		d.stats.lastGap = gap
		if gap > d.stats.maxGap {
			d.stats.maxGap = gap
		}
		if gap > overrunFactor*d.clock.Resolution() {
			d.stats.overruns++
			d.warnLog.Do(func() {
				d.log.Warn("poll overrun", logx.Duration("gap", gap), logx.Duration("resolution", d.clock.Resolution()))
			})
		}
	}
	d.lastTick = now

	step, err := d.clock.Step(now)
	if err != nil {
		d.stats.stepErrors++
		d.warnLog.Do(func() {
			d.log.Error("step computation failed", logx.Err(err), logx.Time("now", now))
		})
		return false
	}
	if step <= d.lastFired {
		if step < d.lastFired {
			d.stats.regressions++
			d.warnLog.Do(func() {
				d.log.Warn("wall clock moved backwards; holding until the last fired step is passed",
					logx.Step(step), logx.Int64("last_fired", d.lastFired))
			})
		}
		return false
	}

	f := Fire{
		Signal:   d.name,
		Step:     step,
		Boundary: d.clock.Boundary(step),
		At:       now,
		MaxGap:   d.stats.maxGap,
	}
	f.Lateness = f.At.Sub(f.Boundary)
	f.Notified, f.Panics = d.notifyLocked(step)

	d.lastFired = step
	d.stats.fires++
	d.stats.lastFire = f
	d.stats.maxGap = 0

	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: EventFired, Time: now, Data: f})
	}
	d.log.Trace("signal fired",
		logx.Step(step),
		logx.Duration("lateness", f.Lateness),
		logx.Int("notified", f.Notified))
	return true
}

// notifyLocked calls every callback once, in subscription order. Call with
// d.mu held.
func (d *Dispatcher) notifyLocked(step int64) (notified, panics int) {
	for _, e := range d.reg.entries {
		if d.invoke(e, step) {
			notified++
		} else {
			panics++
		}
	}
	return notified, panics
}

func (d *Dispatcher) invoke(e entry, step int64) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			d.stats.callbackPanics++
			if d.allowPanicLog(e.key) {
				d.log.Error("subscriber panicked",
					logx.Key(e.key),
					logx.Step(step),
					logx.String("panic", fmt.Sprint(r)),
					logx.Stack(debug.Stack()))
			}
		}
	}()
	e.cb()
	return true
}

// allowPanicLog throttles panic logs per subscriber key. Call with d.mu held.
func (d *Dispatcher) allowPanicLog(key string) bool {
	lim := d.panicLogs[key]
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(panicLogEvery), 1)
		d.panicLogs[key] = lim
	}
	return lim.Allow()
}
