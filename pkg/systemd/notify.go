// Package systemd speaks the sd_notify protocol to the service manager.
// Every call is a no-op when the process is not started by systemd.
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends state strings to systemd. The zero value is usable.
type Notifier struct {
	// send is replaced in tests.
	send func(state string) (bool, error)
}

func (n Notifier) notify(state string) (bool, error) {
	if n.send != nil {
		return n.send(state)
	}
	return daemon.SdNotify(false, state)
}

// Ready reports that startup is complete.
func (n Notifier) Ready() (bool, error) { return n.notify(daemon.SdNotifyReady) }

// Stopping reports that shutdown has begun.
func (n Notifier) Stopping() (bool, error) { return n.notify(daemon.SdNotifyStopping) }

// Watchdog pings the service watchdog.
func (n Notifier) Watchdog() (bool, error) { return n.notify(daemon.SdNotifyWatchdog) }

// Status sets the free-form status line shown by systemctl status.
func (n Notifier) Status(s string) (bool, error) { return n.notify("STATUS=" + s) }

// WatchdogInterval returns how often Watchdog should be called: half the
// unit's WatchdogSec. It returns 0 when no watchdog is configured.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}
