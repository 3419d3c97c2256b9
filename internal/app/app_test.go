package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"signalgen/internal/config"
	"signalgen/internal/signalgen"
	"signalgen/internal/storage"
)

func boolPtr(v bool) *bool { return &v }

func TestMapSignal(t *testing.T) {
	t.Parallel()

	sg, err := mapSignal("signals[0]", config.SignalConfig{
		Name:       " minute ",
		Align:      "minutes",
		Period:     5,
		Resolution: "10ms",
		Strict:     true,
		Timezone:   "Asia/Kolkata",
	})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if sg.Name != "minute" || sg.Unit != signalgen.Minutes || sg.Count != 5 || sg.PollResolution() != 10*time.Millisecond || !sg.Strict {
		t.Fatalf("sg=%+v", sg)
	}
	if sg.Location.String() != "Asia/Kolkata" {
		t.Fatalf("loc=%v", sg.Location)
	}

	def, err := mapSignal("s", config.SignalConfig{Name: "x", Align: "s", Period: 1})
	if err != nil || def.Resolution != nil || def.PollResolution() != signalgen.DefaultResolution || def.Location != time.UTC {
		t.Fatalf("defaults: %+v err=%v", def, err)
	}

	cases := []struct {
		sc   config.SignalConfig
		want string
	}{
		{config.SignalConfig{Align: "seconds", Period: 1}, "signals[1].name"},
		{config.SignalConfig{Name: "a", Align: "days", Period: 1}, "signals[1].align"},
		{config.SignalConfig{Name: "a", Align: "seconds", Period: 0}, "signals[1].period"},
		{config.SignalConfig{Name: "a", Align: "seconds", Period: 1, Resolution: "fast"}, "signals[1].resolution"},
		{config.SignalConfig{Name: "a", Align: "seconds", Period: 1, Resolution: "0s"}, "signals[1].resolution"},
		{config.SignalConfig{Name: "a", Align: "seconds", Period: 1, Resolution: "-5ms"}, "signals[1].resolution"},
		{config.SignalConfig{Name: "a", Align: "seconds", Period: 1, Timezone: "Nowhere/City"}, "signals[1].timezone"},
	}
	for _, tc := range cases {
		if _, err := mapSignal("signals[1]", tc.sc); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%+v: err=%v, want %q", tc.sc, err, tc.want)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	ok := &config.Config{
		Logging: config.LoggingConfig{Level: "debug"},
		Signals: []config.SignalConfig{{Name: "a", Align: "seconds", Period: 1}},
		Storage: &config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "2s", Retention: "24h"},
		Report:  &config.ReportConfig{Enabled: true},
	}
	if err := validateConfig(context.Background(), ok); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := []struct {
		name string
		mut  func(c *config.Config)
	}{
		{"level", func(c *config.Config) { c.Logging.Level = "loud" }},
		{"duplicate", func(c *config.Config) { c.Signals = append(c.Signals, c.Signals[0]) }},
		{"driver", func(c *config.Config) { c.Storage = &config.StorageConfig{Driver: "redis", Path: "x"} }},
		{"path", func(c *config.Config) { c.Storage = &config.StorageConfig{Driver: "file"} }},
		{"retention", func(c *config.Config) {
			c.Storage = &config.StorageConfig{Driver: "file", Path: "x", Retention: "forever"}
		}},
		{"report", func(c *config.Config) { c.Report = &config.ReportConfig{Enabled: true, Schedule: "sometimes"} }},
		{"debug", func(c *config.Config) { c.Debug = &config.DebugConfig{Enabled: true, Addr: ":6060"} }},
	}
	for _, tc := range bad {
		cfg := *ok
		cfg.Signals = append([]config.SignalConfig(nil), ok.Signals...)
		tc.mut(&cfg)
		if err := validateConfig(context.Background(), &cfg); err == nil {
			t.Fatalf("%s: invalid config accepted", tc.name)
		}
	}
	if err := validateConfig(context.Background(), nil); err == nil {
		t.Fatalf("nil config accepted")
	}
}

func TestMapReportAndStorage(t *testing.T) {
	t.Parallel()

	if spec, err := mapReport(&config.Config{Report: &config.ReportConfig{Enabled: true}}); err != nil || spec != defaultReportSchedule {
		t.Fatalf("spec=%q err=%v", spec, err)
	}
	if spec, _ := mapReport(&config.Config{Report: &config.ReportConfig{Schedule: "@every 5s"}}); spec != "" {
		t.Fatalf("disabled report scheduled: %q", spec)
	}

	sc, enabled, err := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "SQLite", Path: " ./x.db "}})
	if err != nil || !enabled || sc.Driver != "sqlite" || sc.Path != "./x.db" || sc.BusyTimeout != defaultBusyTimeout {
		t.Fatalf("sc=%+v enabled=%v err=%v", sc, enabled, err)
	}
	if _, enabled, _ := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "none"}}); enabled {
		t.Fatalf("none driver enabled")
	}
}

func TestPlan(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Signals: []config.SignalConfig{
		{Name: "minute", Align: "minutes", Period: 1},
		{Name: "quarter", Align: "minutes", Period: 15, Strict: true},
	}}
	now := time.Date(2024, 3, 10, 9, 7, 30, 0, time.UTC)
	got, err := plan(cfg, now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries=%d", len(got))
	}
	if !got[0].Next.Equal(time.Date(2024, 3, 10, 9, 8, 0, 0, time.UTC)) || got[0].In != 30*time.Second {
		t.Fatalf("minute=%+v", got[0])
	}
	if !got[1].Next.Equal(time.Date(2024, 3, 10, 9, 15, 0, 0, time.UTC)) || got[1].Policy != "strict" || got[1].Period != "15m" {
		t.Fatalf("quarter=%+v", got[1])
	}
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestAppRecordsFires(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `
logging: { level: error, console: false, file: { enabled: true, path: `+filepath.Join(dir, "app.log")+` } }
signals:
  - name: fast
    align: milliseconds
    period: 100
    resolution: 5ms
    log_fires: true
storage: { driver: file, path: `+filepath.Join(dir, "fires.db")+` }
report: { enabled: true, schedule: "@every 1h" }
`)

	a, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	d, ok := a.Hub().Get("fast")
	if !ok {
		t.Fatalf("signal not opened")
	}
	if keys := d.Keys(); len(keys) != 1 || keys[0] != fireLogKey {
		t.Fatalf("keys=%v", keys)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		recs, err := a.Store().RecentFires(ctx, "fast", 10)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(recs) >= 2 {
			if recs[0].RunID != a.RunID() || recs[0].Step <= recs[1].Step {
				t.Fatalf("records=%+v", recs)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d fires recorded", len(recs))
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := a.report(ctx); err != nil {
		t.Fatalf("report: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx, StopUnknown); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !d.Disposed() {
		t.Fatalf("dispatcher still running after stop")
	}

	recs, err := History(ctx, path, "fast", 1)
	if err != nil || len(recs) != 1 {
		t.Fatalf("history=%v err=%v", recs, err)
	}
}

func TestAppReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `
logging: { level: error }
signals:
  - { name: a, align: seconds, period: 1 }
  - { name: b, align: minutes, period: 1 }
`)
	a, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// Drive reload directly; the watcher is not started.
	if err := a.applySignals(a.Config(), nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	a.applied = a.Config()
	t.Cleanup(func() { _ = a.hub.Close(context.Background()) })

	before, _ := a.Hub().Get("a")
	_ = a.Hub().Subscribe("a", "consumer", func() {})

	next := &config.Config{
		Logging: config.LoggingConfig{Level: "error"},
		Signals: []config.SignalConfig{
			{Name: "a", Align: "seconds", Period: 2},
			{Name: "c", Align: "hours", Period: 1, LogFires: boolPtr(false)},
		},
	}
	a.reload(next)

	if got := strings.Join(a.Hub().Names(), ","); got != "a,c" {
		t.Fatalf("names=%q", got)
	}
	after, _ := a.Hub().Get("a")
	if after == before || !before.Disposed() {
		t.Fatalf("changed signal not rebuilt")
	}
	if _, ok := after.Subscriber("consumer"); !ok {
		t.Fatalf("subscriber lost on rebuild")
	}
	c, _ := a.Hub().Get("c")
	if _, ok := c.Subscriber(fireLogKey); ok {
		t.Fatalf("fire logger attached despite log_fires=false")
	}
}

func TestHistoryDisabled(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "signals: []\n")
	if _, err := History(context.Background(), path, "", 5); !errors.Is(err, storage.ErrDisabled) {
		t.Fatalf("err=%v", err)
	}
	if _, err := New(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing config accepted")
	}
}
