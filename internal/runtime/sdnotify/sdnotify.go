// Package sdnotify reports daemon state to systemd (Type=notify units).
// Every call is a no-op when the process was not started by systemd.
package sdnotify

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	logx "signalgen/pkg/logx"
)

// Notifier sends sd_notify messages. The zero value is disabled.
type Notifier struct {
	enabled bool
	log     logx.Logger

	// send is daemon.SdNotify; tests replace it.
	send     func(unsetEnv bool, state string) (bool, error)
	watchdog func(unsetEnv bool) (time.Duration, error)
}

func New(enabled bool, log logx.Logger) *Notifier {
	return &Notifier{
		enabled:  enabled,
		log:      log,
		send:     daemon.SdNotify,
		watchdog: daemon.SdWatchdogEnabled,
	}
}

func (n *Notifier) notify(state string) bool {
	if n == nil || !n.enabled || n.send == nil {
		return false
	}
	sent, err := n.send(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return sent
}

// Ready reports startup completion along with a status line.
func (n *Notifier) Ready(status string) bool {
	if status == "" {
		return n.notify(daemon.SdNotifyReady)
	}
	return n.notify(daemon.SdNotifyReady + "\nSTATUS=" + status)
}

// Reloading marks a config reload in progress; call Ready when done.
func (n *Notifier) Reloading() bool {
	return n.notify(daemon.SdNotifyReloading)
}

func (n *Notifier) Stopping() bool {
	return n.notify(daemon.SdNotifyStopping)
}

// Status updates the free-form status shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) bool {
	return n.notify("STATUS=" + fmt.Sprintf(format, args...))
}

// RunWatchdog pings the systemd watchdog at half the configured interval
// until ctx is done. It returns immediately when no watchdog is configured.
func (n *Notifier) RunWatchdog(ctx context.Context) error {
	if n == nil || !n.enabled || n.watchdog == nil {
		return nil
	}
	interval, err := n.watchdog(false)
	if err != nil {
		return fmt.Errorf("watchdog: %w", err)
	}
	if interval <= 0 {
		return nil
	}
	every := interval / 2
	n.log.Debug("systemd watchdog enabled", logx.Duration("interval", interval))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
