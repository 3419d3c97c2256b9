package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	logx "signalgen/pkg/logx"
)

// Config controls the scheduler.
type Config struct {
	// Location evaluates cron expressions; nil means UTC.
	Location *time.Location
	// DefaultTimeout bounds a job run when its schedule sets none; 0 disables.
	DefaultTimeout time.Duration
}

// Job is a scheduled unit of work. ctx is canceled on timeout or Stop.
type Job func(ctx context.Context) error

type schedule struct {
	name    string
	spec    ParsedSpec
	timeout time.Duration
	job     Job
	entryID cron.EntryID

	running  atomic.Bool
	runs     atomic.Uint64
	failures atomic.Uint64
	skipped  atomic.Uint64

	mu       sync.Mutex
	lastRun  time.Time
	lastTook time.Duration
	lastErr  string
}

// Service owns a cron instance and the named schedules registered on it.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	parser cron.Parser
	c      *cron.Cron
	defs   map[string]*schedule

	// base is canceled by Stop so in-flight jobs observe shutdown.
	base   context.Context
	cancel context.CancelFunc
}

// ScheduleInfo describes one registered schedule.
type ScheduleInfo struct {
	Name     string        `json:"name"`
	Spec     string        `json:"spec"`
	Timeout  time.Duration `json:"timeout,omitempty"`
	Next     time.Time     `json:"next,omitempty"`
	Prev     time.Time     `json:"prev,omitempty"`
	Running  bool          `json:"running"`
	Runs     uint64        `json:"runs"`
	Failures uint64        `json:"failures"`
	Skipped  uint64        `json:"skipped"`
	LastRun  time.Time     `json:"last_run,omitempty"`
	LastTook time.Duration `json:"last_took,omitempty"`
	LastErr  string        `json:"last_err,omitempty"`
}

type Snapshot struct {
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
}
