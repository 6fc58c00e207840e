package notice

import (
	"github.com/gen2brain/beeep"
	log "github.com/sirupsen/logrus"
)

// DesktopSink returns an observer that mirrors posted notices of at least
// minSeverity to the desktop notification area.
func DesktopSink(title string, minSeverity Severity) func(Event) {
	return func(ev Event) {
		if ev.Kind != Posted || ev.Notice.Severity < minSeverity {
			return
		}
		if err := beeep.Notify(title, ev.Notice.Message, ""); err != nil {
			log.Warnf("Notification failed: %v", err)
		}
	}
}
