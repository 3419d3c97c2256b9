package signalgen

import (
	"context"
	"errors"
	"sort"
	"sync"

	logx "signalgen/pkg/logx"
)

// Hub owns a set of named dispatchers for the lifetime of a process.
//
// It remembers subscriptions per signal so that a dispatcher rebuilt by Open
// (after a config change) keeps its subscribers.
type Hub struct {
	log  logx.Logger
	opts []Option

	mu      sync.Mutex
	closed  bool
	signals map[string]*hubSignal
	retired []*Dispatcher // disposed by Open/Remove, poll goroutine maybe still running
}

type hubSignal struct {
	cfg  Config
	d    *Dispatcher
	subs []entry
}

func (s *hubSignal) remember(key string, cb Callback) {
	for i := range s.subs {
		if s.subs[i].key == key {
			s.subs[i].cb = cb
			return
		}
	}
	s.subs = append(s.subs, entry{key: key, cb: cb})
}

func (s *hubSignal) forget(key string) {
	for i := range s.subs {
		if s.subs[i].key == key {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// NewHub returns an empty hub; opts are applied to every dispatcher it builds.
func NewHub(log logx.Logger, opts ...Option) *Hub {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Hub{log: log, opts: opts, signals: map[string]*hubSignal{}}
}

// Open returns the dispatcher named cfg.Name, building it if needed. If one
// exists with a different config it is disposed and replaced, and the
// remembered subscribers are attached to the replacement. The bool reports
// whether a new dispatcher was built.
func (h *Hub) Open(cfg Config) (*Dispatcher, bool, error) {
	if cfg.Name == "" {
		return nil, false, errors.New("signal name required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false, ErrHubClosed
	}

	cur := h.signals[cfg.Name]
	if cur != nil && cur.cfg.Equal(cfg) && !cur.d.Disposed() {
		return cur.d, false, nil
	}

	opts := append([]Option{WithLogger(h.log)}, h.opts...)
	d, err := NewFromConfig(cfg, opts...)
	if err != nil {
		return nil, false, err
	}

	if cur == nil {
		cur = &hubSignal{}
		h.signals[cfg.Name] = cur
	} else {
		h.retireLocked(cur.d)
		h.log.Info("signal rebuilt", logx.Signal(cfg.Name), logx.Int("subscribers", len(cur.subs)))
	}
	cur.cfg = cfg
	cur.d = d
	for _, e := range cur.subs {
		if err := d.Subscribe(e.key, e.cb); err != nil {
			h.log.Warn("re-attach failed", logx.Signal(cfg.Name), logx.Key(e.key), logx.Err(err))
		}
	}
	return d, true, nil
}

// Get returns the live dispatcher for name.
func (h *Hub) Get(name string) (*Dispatcher, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.signals[name]
	if s == nil {
		return nil, false
	}
	return s.d, true
}

// Names returns signal names in sorted order.
func (h *Hub) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.signals))
	for name := range h.signals {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Subscribe attaches cb to the named signal and remembers it across rebuilds.
func (h *Hub) Subscribe(signal, key string, cb Callback) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	s := h.signals[signal]
	if s == nil {
		return ErrUnknownSignal
	}
	if err := s.d.Subscribe(key, cb); err != nil {
		return err
	}
	s.remember(key, cb)
	return nil
}

func (h *Hub) Unsubscribe(signal, key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.signals[signal]
	if s == nil {
		return false
	}
	s.forget(key)
	return s.d.Unsubscribe(key)
}

// Remove disposes and forgets the named signal.
func (h *Hub) Remove(name string) bool {
	h.mu.Lock()
	s := h.signals[name]
	delete(h.signals, name)
	if s != nil {
		h.retireLocked(s.d)
	}
	h.mu.Unlock()
	if s == nil {
		return false
	}
	h.log.Info("signal removed", logx.Signal(name))
	return true
}

// Snapshots returns one Snapshot per signal, sorted by name.
func (h *Hub) Snapshots() []Snapshot {
	h.mu.Lock()
	ds := make([]*Dispatcher, 0, len(h.signals))
	for _, s := range h.signals {
		ds = append(ds, s.d)
	}
	h.mu.Unlock()

	out := make([]Snapshot, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// retireLocked disposes d and keeps it until its poll goroutine exits, so
// Close can wait for it. Dispatchers that already exited are dropped.
func (h *Hub) retireLocked(d *Dispatcher) {
	d.Dispose()
	live := h.retired[:0]
	for _, r := range h.retired {
		select {
		case <-r.Done():
		default:
			live = append(live, r)
		}
	}
	h.retired = append(live, d)
}

// Close stops every dispatcher, including ones retired by Open or Remove,
// and waits for their poll goroutines.
// Later calls return nil.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	ds := make([]*Dispatcher, 0, len(h.signals))
	for _, s := range h.signals {
		ds = append(ds, s.d)
	}
	ds = append(ds, h.retired...)
	h.signals = map[string]*hubSignal{}
	h.retired = nil
	h.mu.Unlock()

	for _, d := range ds {
		d.Dispose()
	}
	var firstErr error
	for _, d := range ds {
		if err := d.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
