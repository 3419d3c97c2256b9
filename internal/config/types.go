package config

// Config is the on-disk configuration (JSON or YAML).
type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Signals []SignalConfig `json:"signals"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Report  *ReportConfig  `json:"report,omitempty"`
	Systemd *SystemdConfig `json:"systemd,omitempty"`
	Debug   *DebugConfig   `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SignalConfig describes one aligned periodic signal.
//
// Align is one of milliseconds|seconds|minutes|hours and Period is the
// number of those units per step. Resolution is a Go duration string; empty
// means "20ms" and an explicit value must be > 0. Strict disables early
// (anticipated) firing.
//
// Timezone is an IANA zone whose wall clock the boundaries follow (UTC when
// empty). With a DST zone, boundaries inside the repeated fall-back hour do
// not fire.
type SignalConfig struct {
	Name        string `json:"name"`
	Align       string `json:"align"`
	Period      int    `json:"period"`
	Resolution  string `json:"resolution,omitempty"`
	Strict      bool   `json:"strict,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	SkipInitial bool   `json:"skip_initial,omitempty"`

	// LogFires attaches a subscriber that logs every fire. Defaults to true.
	LogFires *bool `json:"log_fires,omitempty"`
}

// LogsFires reports whether the built-in logging subscriber is wanted.
func (s SignalConfig) LogsFires() bool {
	return s.LogFires == nil || *s.LogFires
}

// StorageConfig controls fire history persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/fires.db", "retention": "168h" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Retention   string `json:"retention,omitempty"`    // Go duration string; "0s" keeps everything
}

// ReportConfig controls the periodic diagnostics report.
// Schedule accepts cron expressions, "@every <duration>" or "HH:MM".
type ReportConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// DebugConfig controls the diagnostics HTTP server (pprof + JSON snapshots).
//
// Prefer a loopback Addr. A non-loopback Addr needs Token or AllowInsecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // bearer token; never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// Signal returns the signal named name, if present.
func (c *Config) Signal(name string) (SignalConfig, bool) {
	if c == nil {
		return SignalConfig{}, false
	}
	for _, s := range c.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return SignalConfig{}, false
}
