package signalgen

import "time"

type counters struct {
	ticks          uint64
	fires          uint64
	overruns       uint64
	regressions    uint64
	stepErrors     uint64
	tickPanics     uint64
	callbackPanics uint64
	lastGap        time.Duration
	maxGap         time.Duration
	lastFire       Fire
}

// Snapshot is a point-in-time diagnostic view of a Dispatcher.
//
// Gap values are observability only; they never influence firing.
type Snapshot struct {
	Name       string        `json:"name"`
	Period     string        `json:"period"`
	Resolution time.Duration `json:"resolution"`
	Policy     string        `json:"policy"`
	Timezone   string        `json:"timezone"`
	StartedAt  time.Time     `json:"started_at"`
	Disposed   bool          `json:"disposed"`

	Subscribers   int      `json:"subscribers"`
	Keys          []string `json:"keys,omitempty"`
	Subscriptions uint64   `json:"subscriptions"`
	Replacements  uint64   `json:"replacements"`

	Ticks          uint64        `json:"ticks"`
	Fires          uint64        `json:"fires"`
	LastFiredStep  int64         `json:"last_fired_step"`
	LastFire       *Fire         `json:"last_fire,omitempty"`
	NextBoundary   time.Time     `json:"next_boundary"`
	LastTickGap    time.Duration `json:"last_tick_gap"`
	MaxTickGap     time.Duration `json:"max_tick_gap"`
	Overruns       uint64        `json:"overruns"`
	Regressions    uint64        `json:"regressions"`
	StepErrors     uint64        `json:"step_errors"`
	TickPanics     uint64        `json:"tick_panics"`
	CallbackPanics uint64        `json:"callback_panics"`
}

// Snapshot must not be called from a callback of the same Dispatcher.
func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	st := d.stats
	lastFired := d.lastFired
	keys := d.reg.keys()
	inserts := d.reg.inserts
	replacements := d.reg.replacements
	d.mu.Unlock()

	snap := Snapshot{
		Name:           d.name,
		Period:         d.period.String(),
		Resolution:     d.clock.Resolution(),
		Policy:         d.clock.Policy().String(),
		Timezone:       d.clock.Location().String(),
		StartedAt:      d.startedAt,
		Disposed:       d.disposed.Load(),
		Subscribers:    len(keys),
		Keys:           keys,
		Subscriptions:  inserts,
		Replacements:   replacements,
		Ticks:          st.ticks,
		Fires:          st.fires,
		LastFiredStep:  lastFired,
		NextBoundary:   d.clock.Next(d.now()),
		LastTickGap:    st.lastGap,
		MaxTickGap:     st.maxGap,
		Overruns:       st.overruns,
		Regressions:    st.regressions,
		StepErrors:     st.stepErrors,
		TickPanics:     st.tickPanics,
		CallbackPanics: st.callbackPanics,
	}
	if st.fires > 0 {
		f := st.lastFire
		snap.LastFire = &f
	}
	return snap
}
