package config

import (
	"sort"
	"strings"

	logx "signalgen/pkg/logx"
)

// Change summarizes the difference between two configs.
type Change struct {
	// Sections lists changed top-level sections in a stable order.
	Sections []string
	// Attrs are structured fields suitable for a single log line.
	Attrs []logx.Field

	// Signals whose definition was added or changed (need (re)building).
	Signals []string
	// Removed lists signals present before and missing now.
	Removed []string
}

// Has reports whether section changed.
func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeConfigChange compares oldCfg with newCfg. A nil config is treated
// as empty.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var ch Change

	// Logging
	if !strings.EqualFold(strings.TrimSpace(oldCfg.Logging.Level), strings.TrimSpace(newCfg.Logging.Level)) ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		ch.Sections = append(ch.Sections, "logging")
		ch.Attrs = append(ch.Attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Signals
	ch.Signals, ch.Removed = diffSignals(oldCfg.Signals, newCfg.Signals)
	if len(ch.Signals) > 0 || len(ch.Removed) > 0 {
		ch.Sections = append(ch.Sections, "signals")
		ch.Attrs = append(ch.Attrs,
			logx.Int("signals.count", len(newCfg.Signals)),
			logx.String("signals.changed", strings.Join(ch.Signals, ",")),
			logx.String("signals.removed", strings.Join(ch.Removed, ",")),
		)
	}

	// Storage
	ost, nst := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if ost != nst {
		ch.Sections = append(ch.Sections, "storage")
		ch.Attrs = append(ch.Attrs,
			logx.String("storage.driver", nst.Driver),
			logx.String("storage.retention", nst.Retention),
		)
	}

	// Report
	or, nr := derefReport(oldCfg.Report), derefReport(newCfg.Report)
	if or.Enabled != nr.Enabled || strings.TrimSpace(or.Schedule) != strings.TrimSpace(nr.Schedule) {
		ch.Sections = append(ch.Sections, "report")
		ch.Attrs = append(ch.Attrs,
			logx.Bool("report.enabled", nr.Enabled),
			logx.String("report.schedule", strings.TrimSpace(nr.Schedule)),
		)
	}

	// Systemd
	if derefSystemd(oldCfg.Systemd) != derefSystemd(newCfg.Systemd) {
		ch.Sections = append(ch.Sections, "systemd")
		ch.Attrs = append(ch.Attrs, logx.Bool("systemd.notify", derefSystemd(newCfg.Systemd).Notify))
	}

	// Debug (never log token)
	od, nd := derefDebug(oldCfg.Debug), derefDebug(newCfg.Debug)
	if od != nd {
		ch.Sections = append(ch.Sections, "debug")
		ch.Attrs = append(ch.Attrs,
			logx.Bool("debug.enabled", nd.Enabled),
			logx.String("debug.addr", strings.TrimSpace(nd.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(nd.Token) != ""),
		)
	}

	return ch
}

func diffSignals(oldS, newS []SignalConfig) (changed, removed []string) {
	prev := make(map[string]uint64, len(oldS))
	for _, s := range oldS {
		prev[s.Name] = hashSignal(s)
	}
	seen := make(map[string]struct{}, len(newS))
	for _, s := range newS {
		seen[s.Name] = struct{}{}
		h, ok := prev[s.Name]
		if !ok || h != hashSignal(s) {
			changed = append(changed, s.Name)
		}
	}
	for name := range prev {
		if _, ok := seen[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(changed)
	sort.Strings(removed)
	return changed, removed
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	out := *s
	out.Driver = strings.ToLower(strings.TrimSpace(out.Driver))
	out.Path = strings.TrimSpace(out.Path)
	return out
}

func derefReport(r *ReportConfig) ReportConfig {
	if r == nil {
		return ReportConfig{}
	}
	return *r
}

func derefSystemd(s *SystemdConfig) SystemdConfig {
	if s == nil {
		return SystemdConfig{}
	}
	return *s
}

func derefDebug(d *DebugConfig) DebugConfig {
	if d == nil {
		return DebugConfig{}
	}
	return *d
}
