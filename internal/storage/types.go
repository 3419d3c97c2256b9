package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines history file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// FireRecord is one persisted fire of a signal.
type FireRecord struct {
	ID       string    `json:"id"`
	RunID    string    `json:"run_id"`
	Signal   string    `json:"signal"`
	Step     int64     `json:"step"`
	Boundary time.Time `json:"boundary"`
	At       time.Time `json:"at"`
	// LatenessMS is At minus Boundary in milliseconds; negative when the
	// fire was anticipated.
	LatenessMS int64 `json:"lateness_ms"`
	Notified   int   `json:"notified"`
	Panics     int   `json:"panics,omitempty"`
}
