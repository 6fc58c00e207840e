package signals

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/zoobzio/capitan"
)

// All lists every dsd signal.
var All = []capitan.Signal{
	StoreLoaded,
	StoreChanged,
	StoreEditRejected,
	PersistScheduled,
	PersistSucceeded,
	PersistFailed,
	WatchStateChanged,
	WatchReported,
}

// Log hooks every dsd signal to logrus. Error and warning events are logged
// at their level; the rest at debug. Close the observer to stop.
func Log() *capitan.Observer {
	return capitan.Observe(func(_ context.Context, e *capitan.Event) {
		entry := log.WithField("signal", e.Signal().Name())
		for _, f := range e.Fields() {
			entry = entry.WithField(f.Key().Name(), f.Value())
		}

		switch e.Severity() {
		case capitan.SeverityError:
			entry.Error(e.Signal().Description())
		case capitan.SeverityWarn:
			entry.Warn(e.Signal().Description())
		default:
			entry.Debug(e.Signal().Description())
		}
	}, All...)
}
