package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"signalgen/internal/config"
	"signalgen/internal/eventbus"
	"signalgen/internal/observability/debug"
	"signalgen/internal/runtime/sdnotify"
	"signalgen/internal/runtime/supervisor"
	"signalgen/internal/signalgen"
	"signalgen/internal/storage"
	"signalgen/internal/task/scheduler"
	logx "signalgen/pkg/logx"
)

// App wires config, logging, the signal hub, fire history and housekeeping
// jobs into one process.
type App struct {
	runID string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	hub   *signalgen.Hub
	sched *scheduler.Service
	sd    *sdnotify.Notifier
	debug *debug.Server // nil when disabled

	// applied is the config the running components reflect.
	mu      sync.Mutex
	applied *config.Config
}

// New loads and validates the config at cfgPath and builds every component.
// Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runID := uuid.NewString()
	logSvc, root := logx.New(mapLogging(cfg))
	root = root.With(logx.String("run_id", runID))
	log := root.With(logx.Comp("app"))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, root.With(logx.Comp("storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	bus := eventbus.New()
	a := &App{
		runID: runID,
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		bus:   bus,
		store: store,
		hub:   signalgen.NewHub(root.With(logx.Comp("signalgen")), signalgen.WithBus(bus)),
		sched: scheduler.New(scheduler.Config{DefaultTimeout: 30 * time.Second}, root.With(logx.Comp("scheduler"))),
		sd:    sdnotify.New(cfg.Systemd != nil && cfg.Systemd.Notify, root.With(logx.Comp("systemd"))),
	}
	if dc, enabled, err := mapDebug(cfg); err != nil {
		return nil, err
	} else if enabled {
		a.debug = debug.New(dc, root.With(logx.Comp("debug")), map[string]debug.Source{
			"signals":    func() any { return a.hub.Snapshots() },
			"scheduler":  func() any { return a.sched.Snapshot() },
			"supervisor": func() any { return a.supervisorSnapshot() },
			"bus":        func() any { return a.bus.Stats() },
		})
	}
	cfgm.SetLogger(root.With(logx.Comp("config")))
	cfgm.SetValidator(validateConfig)
	return a, nil
}

func (a *App) RunID() string          { return a.runID }
func (a *App) Hub() *signalgen.Hub    { return a.hub }
func (a *App) Store() storage.Store   { return a.store }
func (a *App) Bus() eventbus.Bus      { return a.bus }
func (a *App) Logger() logx.Logger    { return a.log }
func (a *App) Config() *config.Config { return a.cfgm.Get() }

func (a *App) supervisorSnapshot() []supervisor.Stats {
	if a.sup == nil {
		return nil
	}
	return a.sup.Snapshot()
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start opens every configured signal and starts the background loops.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.Comp("supervisor"))), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	if a.store != nil {
		// Subscribe before any dispatcher exists so the first fire is recorded.
		events, unsub := a.bus.Subscribe(256, signalgen.EventFired)
		a.sup.GoRestart("fires.recorder", func(c context.Context) error {
			return a.record(c, events)
		}, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
		go func() {
			<-a.sup.Context().Done()
			unsub()
		}()
	}

	if err := a.applySignals(cfg, nil); err != nil {
		a.sup.Cancel()
		return err
	}
	if err := a.applyJobs(cfg); err != nil {
		a.sup.Cancel()
		return err
	}
	a.sched.Start(a.sup.Context())

	a.mu.Lock()
	a.applied = cfg
	a.mu.Unlock()

	updates := a.cfgm.Subscribe(1)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-updates:
				if !ok {
					return nil
				}
				a.reload(next)
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", a.sd.RunWatchdog)
	if a.debug != nil {
		a.sup.GoRestart("debug.http", a.debug.Serve, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

	names := a.hub.Names()
	a.sd.Ready(fmt.Sprintf("%d signals", len(names)))
	a.log.Info("app started", logx.Int("signals", len(names)), logx.Bool("storage", a.store != nil))
	return nil
}

// Stop shuts components down in dependency order. Each step is bounded so
// one slow component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("signals", 2*time.Second, a.hub.Close)
	// The recorder drains what the dispatchers published before it exits.
	step("supervisor", 2*time.Second, a.sup.Stop)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.String("reason", string(reason)))
	return a.logs.Close()
}
