package signalgen

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"signalgen/internal/eventbus"
	logx "signalgen/pkg/logx"
)

// DefaultResolution is the poll interval used when none is configured.
const DefaultResolution = 20 * time.Millisecond

// EventFired is the eventbus type published on every fire; Data is a Fire.
const EventFired = "signal.fired"

// Fire describes one notification round.
type Fire struct {
	Signal   string        `json:"signal"`
	Step     int64         `json:"step"`
	Boundary time.Time     `json:"boundary"`
	At       time.Time     `json:"at"`
	Lateness time.Duration `json:"lateness"` // At - Boundary; negative when anticipated
	Notified int           `json:"notified"`
	Panics   int           `json:"panics"`
	MaxGap   time.Duration `json:"max_gap"` // largest tick gap since the previous fire
}

// Config is the declarative form of New's arguments.
type Config struct {
	Name        string
	Unit        Unit
	Count       int
	Resolution  *time.Duration // nil means DefaultResolution; a set value must be > 0
	Strict      bool
	Location    *time.Location // nil means UTC
	SkipInitial bool
}

// PollResolution is the configured resolution or DefaultResolution when unset.
func (c Config) PollResolution() time.Duration {
	if c.Resolution == nil {
		return DefaultResolution
	}
	return *c.Resolution
}

// Equal reports whether two configs would build identical dispatchers.
func (c Config) Equal(o Config) bool {
	loc := func(l *time.Location) string {
		if l == nil {
			return time.UTC.String()
		}
		return l.String()
	}
	return c.Name == o.Name && c.Unit == o.Unit && c.Count == o.Count &&
		c.PollResolution() == o.PollResolution() && c.Strict == o.Strict &&
		loc(c.Location) == loc(o.Location) && c.SkipInitial == o.SkipInitial
}

type options struct {
	name        string
	resolution  time.Duration
	policy      Policy
	loc         *time.Location
	log         logx.Logger
	bus         eventbus.Bus
	skipInitial bool
	now         func() time.Time
	manual      bool
}

type Option func(*options)

// WithResolution sets the poll interval. It must be > 0.
func WithResolution(d time.Duration) Option { return func(o *options) { o.resolution = d } }

func WithPolicy(p Policy) Option { return func(o *options) { o.policy = p } }

// WithStrict selects PolicyStrict when strict is true, PolicyAnticipate otherwise.
func WithStrict(strict bool) Option {
	return func(o *options) {
		if strict {
			o.policy = PolicyStrict
		} else {
			o.policy = PolicyAnticipate
		}
	}
}

// WithLocation aligns boundaries to the wall clock of loc (default UTC).
func WithLocation(loc *time.Location) Option { return func(o *options) { o.loc = loc } }

func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

func WithName(name string) Option { return func(o *options) { o.name = strings.TrimSpace(name) } }

// WithBus publishes an EventFired event on every fire.
func WithBus(bus eventbus.Bus) Option { return func(o *options) { o.bus = bus } }

// WithSkipInitial treats the step current at construction as already fired,
// so the first notification waits for the next boundary.
func WithSkipInitial() Option { return func(o *options) { o.skipInitial = true } }

// WithNow replaces time.Now.
func WithNow(now func() time.Time) Option { return func(o *options) { o.now = now } }

// withManualTicks disables the ticker; callers drive tick() themselves.
func withManualTicks() Option { return func(o *options) { o.manual = true } }

// Dispatcher fires every subscribed callback once per aligned period.
type Dispatcher struct {
	name   string
	period Period
	clock  AlignClock
	log    logx.Logger
	bus    eventbus.Bus
	now    func() time.Time

	startedAt time.Time

	// mu guards everything below it and is held for the whole of a tick,
	// callbacks included.
	mu        sync.Mutex
	reg       *registry
	lastFired int64
	lastTick  time.Time
	stats     counters
	panicLogs map[string]*rate.Limiter
	warnLog   rate.Sometimes

	disposed atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New validates the period and resolution, then starts polling immediately.
func New(unit Unit, count int, opts ...Option) (*Dispatcher, error) {
	period, err := NewPeriod(unit, count)
	if err != nil {
		return nil, err
	}
	o := options{resolution: DefaultResolution, loc: time.UTC}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	clock, err := NewAlignClock(period, o.resolution, o.policy, o.loc)
	if err != nil {
		return nil, err
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.name == "" {
		o.name = period.String()
	}

	d := &Dispatcher{
		name:      o.name,
		period:    period,
		clock:     clock,
		log:       o.log.With(logx.Signal(o.name)),
		bus:       o.bus,
		now:       o.now,
		reg:       newRegistry(),
		panicLogs: map[string]*rate.Limiter{},
		warnLog:   rate.Sometimes{First: 3, Interval: time.Minute},
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	d.startedAt = d.now()

	if o.resolution > period.Duration() {
		d.log.Warn("poll resolution exceeds period; boundaries may be skipped",
			logx.Duration("resolution", o.resolution), logx.Duration("period", period.Duration()))
	}
	if o.skipInitial {
		if step, err := clock.Step(d.startedAt); err == nil {
			d.lastFired = step
		}
	}

	go d.run(o.manual)

	d.log.Debug("dispatcher started",
		logx.String("period", period.String()),
		logx.Duration("resolution", clock.Resolution()),
		logx.String("policy", clock.Policy().String()),
		logx.String("tz", clock.Location().String()),
		logx.Time("next", clock.Next(d.startedAt)))
	return d, nil
}

// NewFromConfig is New driven by a Config; opts are applied after it.
func NewFromConfig(cfg Config, opts ...Option) (*Dispatcher, error) {
	base := []Option{WithName(cfg.Name), WithStrict(cfg.Strict), WithResolution(cfg.PollResolution())}
	if cfg.Location != nil {
		base = append(base, WithLocation(cfg.Location))
	}
	if cfg.SkipInitial {
		base = append(base, WithSkipInitial())
	}
	d, err := New(cfg.Unit, cfg.Count, append(base, opts...)...)
	if err != nil {
		if cfg.Name != "" {
			return nil, fmt.Errorf("signal %q: %w", cfg.Name, err)
		}
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) Name() string      { return d.name }
func (d *Dispatcher) Period() Period    { return d.period }
func (d *Dispatcher) Clock() AlignClock { return d.clock }

// Subscribe registers cb under key, replacing any callback already stored for
// it. Notifications that begin after Subscribe returns see the new callback
// and never the old one.
func (d *Dispatcher) Subscribe(key string, cb Callback) error {
	if key == "" {
		return ErrEmptyKey
	}
	if cb == nil {
		return ErrNilCallback
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed.Load() {
		return ErrDisposed
	}
	if d.reg.put(key, cb) {
		d.log.Debug("subscriber replaced", logx.Key(key))
	} else {
		d.log.Debug("subscriber added", logx.Key(key), logx.Int("subscribers", d.reg.len()))
	}
	return nil
}

// Unsubscribe removes key. It reports whether something was removed.
func (d *Dispatcher) Unsubscribe(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.reg.remove(key) {
		return false
	}
	delete(d.panicLogs, key)
	d.log.Debug("subscriber removed", logx.Key(key), logx.Int("subscribers", d.reg.len()))
	return true
}

// Subscriber returns the callback currently stored for key.
func (d *Dispatcher) Subscriber(key string) (Callback, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reg.get(key)
}

// Keys lists subscriber keys in fire order.
func (d *Dispatcher) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reg.keys()
}

// Dispose stops future ticks. It does not wait for a tick in flight, so it is
// safe to call from a callback. Repeated calls are no-ops.
func (d *Dispatcher) Dispose() {
	d.stopOnce.Do(func() {
		d.disposed.Store(true)
		close(d.stop)
		d.log.Debug("dispatcher disposed")
	})
}

// Stop disposes and waits until the poll goroutine has exited and the
// registry has been released.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.Dispose()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the poll goroutine has exited after Dispose.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) Disposed() bool { return d.disposed.Load() }
