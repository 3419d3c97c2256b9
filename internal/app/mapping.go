package app

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"signalgen/internal/config"
	"signalgen/internal/observability/debug"
	"signalgen/internal/signalgen"
	"signalgen/internal/storage"
	"signalgen/internal/task/scheduler"
	logx "signalgen/pkg/logx"
)

const (
	defaultReportSchedule = "@every 1m"
	retentionSchedule     = "@every 1h"
	defaultBusyTimeout    = time.Second
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapSignal converts one config entry. path prefixes error messages.
func mapSignal(path string, sc config.SignalConfig) (signalgen.Config, error) {
	name := strings.TrimSpace(sc.Name)
	if name == "" {
		return signalgen.Config{}, fmt.Errorf("%s.name is required", path)
	}
	unit, err := signalgen.ParseUnit(sc.Align)
	if err != nil {
		return signalgen.Config{}, fmt.Errorf("%s.align: %w", path, err)
	}
	if _, err := signalgen.NewPeriod(unit, sc.Period); err != nil {
		return signalgen.Config{}, fmt.Errorf("%s.period: %w", path, err)
	}
	var res *time.Duration
	if strings.TrimSpace(sc.Resolution) != "" {
		d, err := config.ParseDurationField(path+".resolution", sc.Resolution)
		if err != nil {
			return signalgen.Config{}, err
		}
		if d <= 0 {
			return signalgen.Config{}, fmt.Errorf("%s.resolution: must be > 0, got %q", path, sc.Resolution)
		}
		res = &d
	}
	loc, err := config.ParseLocation(path+".timezone", sc.Timezone)
	if err != nil {
		return signalgen.Config{}, err
	}
	return signalgen.Config{
		Name:        name,
		Unit:        unit,
		Count:       sc.Period,
		Resolution:  res,
		Strict:      sc.Strict,
		Location:    loc,
		SkipInitial: sc.SkipInitial,
	}, nil
}

func mapSignals(cfg *config.Config) ([]signalgen.Config, error) {
	out := make([]signalgen.Config, 0, len(cfg.Signals))
	seen := make(map[string]struct{}, len(cfg.Signals))
	for i, sc := range cfg.Signals {
		path := fmt.Sprintf("signals[%d]", i)
		sg, err := mapSignal(path, sc)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[sg.Name]; dup {
			return nil, fmt.Errorf("%s.name: duplicate signal %q", path, sg.Name)
		}
		seen[sg.Name] = struct{}{}
		out = append(out, sg)
	}
	return out, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	if !storage.ValidDriver(driver) {
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, defaultBusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
}

func mapRetention(cfg *config.Config) (time.Duration, error) {
	if cfg == nil || cfg.Storage == nil {
		return 0, nil
	}
	return config.ParseDurationField("storage.retention", cfg.Storage.Retention)
}

// mapReport returns the report schedule, or "" when reporting is off.
func mapReport(cfg *config.Config) (string, error) {
	if cfg == nil || cfg.Report == nil || !cfg.Report.Enabled {
		return "", nil
	}
	spec := strings.TrimSpace(cfg.Report.Schedule)
	if spec == "" {
		spec = defaultReportSchedule
	}
	if _, err := scheduler.ParseSchedule(spec); err != nil {
		return "", fmt.Errorf("report.schedule: %w", err)
	}
	return spec, nil
}

// mapDebug returns the debug server config, or false when it is disabled.
func mapDebug(cfg *config.Config) (debug.Config, bool, error) {
	if cfg == nil || cfg.Debug == nil || !cfg.Debug.Enabled {
		return debug.Config{}, false, nil
	}
	dc := debug.Config{
		Addr:          strings.TrimSpace(cfg.Debug.Addr),
		Token:         strings.TrimSpace(cfg.Debug.Token),
		AllowInsecure: cfg.Debug.AllowInsecure,
	}
	if err := debug.Validate(dc); err != nil {
		return debug.Config{}, false, err
	}
	return dc, true, nil
}

// validateConfig rejects configs that could not be applied.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if _, err := mapSignals(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapRetention(cfg); err != nil {
		return err
	}
	if _, err := mapReport(cfg); err != nil {
		return err
	}
	if _, _, err := mapDebug(cfg); err != nil {
		return err
	}
	return nil
}
