package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
  file: { enabled: false, path: ./signalgen.log }
signals:
  - name: minute
    align: minutes
    period: 1
    strict: true
    timezone: UTC
  - name: fast
    align: milliseconds
    period: 500
    resolution: 10ms
    log_fires: false
storage: { driver: sqlite, path: ./data/fires.db, retention: 168h }
report: { enabled: true, schedule: "@every 1m" }
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatalf("Get did not return committed config")
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging=%+v", cfg.Logging)
	}
	if len(cfg.Signals) != 2 {
		t.Fatalf("signals=%d", len(cfg.Signals))
	}
	minute, ok := cfg.Signal("minute")
	if !ok || minute.Align != "minutes" || minute.Period != 1 || !minute.Strict {
		t.Fatalf("minute=%+v ok=%v", minute, ok)
	}
	if !minute.LogsFires() {
		t.Fatalf("log_fires should default to true")
	}
	fast, _ := cfg.Signal("fast")
	if fast.LogsFires() || fast.Resolution != "10ms" {
		t.Fatalf("fast=%+v", fast)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" || cfg.Storage.Retention != "168h" {
		t.Fatalf("storage=%+v", cfg.Storage)
	}
	if cfg.Report == nil || cfg.Report.Schedule != "@every 1m" {
		t.Fatalf("report=%+v", cfg.Report)
	}
	if cfg.Systemd != nil {
		t.Fatalf("systemd should be omitted")
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, path, body, want string
	}{
		{"unknown yaml field", "c.yaml", "signals:\n  - name: a\n  - name: b\n    interval: 5\n", `signals[1]: json: unknown field "interval"`},
		{"unknown json field", "c.json", `{"telegram":{}}`, "unknown field"},
		{"wrong signal type", "c.json", `{"signals":[{"name":"a","period":"5"}]}`, "signals[0]:"},
		{"trailing json", "c.json", `{"signals":[]} {"signals":[]}`, "trailing data"},
		{"trailing garbage", "c.json", `{"signals":[]} x`, "trailing data"},
		{"second yaml document", "c.yaml", "signals: []\n---\nsignals: []\n", "trailing data"},
		{"non-string yaml key", "c.yaml", "logging:\n  1: x\n", "logging: key 1 must be a string"},
		{"bad yaml", "c.yml", "signals: [\n", "decode yaml"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tc.path, []byte(tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want %q", err, tc.want)
			}
		})
	}
}

func TestDurationsAndLocation(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: d=%v err=%v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("negative duration accepted")
	}
	if _, err := ParseDurationField("signals[0].resolution", "soon"); err == nil || !strings.Contains(err.Error(), "signals[0].resolution") {
		t.Fatalf("err=%v", err)
	}
	if d, _ := ParseDurationOrDefault("x", "", 20*time.Millisecond); d != 20*time.Millisecond {
		t.Fatalf("default not applied: %v", d)
	}
	if d, _ := ParseDurationOrDefault("x", "5ms", 20*time.Millisecond); d != 5*time.Millisecond {
		t.Fatalf("explicit value lost: %v", d)
	}

	if loc, err := ParseLocation("tz", ""); err != nil || loc != time.UTC {
		t.Fatalf("empty tz: loc=%v err=%v", loc, err)
	}
	if _, err := ParseLocation("tz", "Mars/Olympus"); err == nil {
		t.Fatalf("unknown zone accepted")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{
		Logging: LoggingConfig{Level: "info"},
		Signals: []SignalConfig{
			{Name: "a", Align: "seconds", Period: 1},
			{Name: "b", Align: "minutes", Period: 5},
			{Name: "c", Align: "hours", Period: 1},
		},
	}
	newCfg := &Config{
		Logging: LoggingConfig{Level: "INFO"},
		Signals: []SignalConfig{
			{Name: "a", Align: "seconds", Period: 1},
			{Name: "b", Align: "minutes", Period: 5, Strict: true},
			{Name: "d", Align: "seconds", Period: 10},
		},
		Storage: &StorageConfig{Driver: "file", Path: "./data"},
	}

	ch := SummarizeConfigChange(oldCfg, newCfg)
	if ch.Has("logging") {
		t.Fatalf("level case change should not count: %v", ch.Sections)
	}
	if !ch.Has("signals") || !ch.Has("storage") || ch.Has("report") {
		t.Fatalf("sections=%v", ch.Sections)
	}
	if got := strings.Join(ch.Signals, ","); got != "b,d" {
		t.Fatalf("changed=%q", got)
	}
	if got := strings.Join(ch.Removed, ","); got != "c" {
		t.Fatalf("removed=%q", got)
	}

	if ch := SummarizeConfigChange(newCfg, newCfg); len(ch.Sections) != 0 {
		t.Fatalf("identical configs reported %v", ch.Sections)
	}
	if ch := SummarizeConfigChange(nil, &Config{Systemd: &SystemdConfig{Notify: true}}); !ch.Has("systemd") {
		t.Fatalf("systemd change missed: %v", ch.Sections)
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.json", `{"signals":[{"name":"a","align":"seconds","period":1}]}`)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx := context.Background()
	if ok, err := m.Reload(ctx); err != nil || ok {
		t.Fatalf("unchanged reload: ok=%v err=%v", ok, err)
	}

	if err := os.WriteFile(path, []byte(`{"signals":[{"name":"a","align":"seconds","period":2}]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m.SetValidator(func(context.Context, *Config) error { return context.Canceled })
	if ok, err := m.Reload(ctx); err == nil || ok {
		t.Fatalf("rejected reload: ok=%v err=%v", ok, err)
	}
	if m.Get().Signals[0].Period != 1 {
		t.Fatalf("rejected config was committed")
	}

	m.SetValidator(nil)
	if ok, err := m.Reload(ctx); err != nil || !ok {
		t.Fatalf("reload: ok=%v err=%v", ok, err)
	}
	select {
	case cfg := <-sub:
		if cfg.Signals[0].Period != 2 {
			t.Fatalf("published period=%d", cfg.Signals[0].Period)
		}
	default:
		t.Fatalf("nothing published")
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("unused.json")
	sub := m.Subscribe(1)
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	if got := <-sub; got != second {
		t.Fatalf("slow subscriber did not get newest config")
	}
	m.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatalf("channel not closed on unsubscribe")
	}
	m.Unsubscribe(sub)
}
