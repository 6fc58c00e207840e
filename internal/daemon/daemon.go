// Package daemon runs the headless sync service: it resumes the enabled rules
// and keeps their watches alive until a signal or context cancellation.
package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/mahyarmirrashed/dsd/internal/app"
	"github.com/mahyarmirrashed/dsd/internal/engine"
	"github.com/mahyarmirrashed/dsd/internal/notice"
	"github.com/mahyarmirrashed/dsd/internal/signals"
)

// Options control a daemon run.
type Options struct {
	// PidFile is removed on shutdown when set.
	PidFile string
	// Signals overrides the shutdown signals; defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// Run resumes the enabled rules of s on eng and blocks until stopped. Rule
// errors and lifecycle signals are logged as they happen. The session and
// engine are closed before Run returns.
func Run(ctx context.Context, s *app.Session, eng *engine.Engine, opts Options) error {
	eng.SetReporter(s.Report)

	observer := signals.Log()
	defer observer.Close()

	unsubscribe := s.Notices.Subscribe(func(ev notice.Event) {
		if ev.Kind != notice.Posted {
			return
		}
		switch ev.Notice.Severity {
		case notice.Error:
			log.Error(ev.Notice.Message)
		case notice.Warning:
			log.Warn(ev.Notice.Message)
		default:
			log.Info(ev.Notice.Message)
		}
	})
	defer unsubscribe()

	s.Resume()
	log.Infof("Daemon started with %d rules", s.Store.Len())

	sigs := opts.Signals
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, sigs...)
	defer signal.Stop(signals)

	var runErr error
	select {
	case sig := <-signals:
		log.Infof("Received signal: %s, shutting down...", sig)
	case <-ctx.Done():
		runErr = ctx.Err()
	}

	if err := eng.Close(); err != nil {
		log.Warnf("Error closing watches: %v", err)
	}
	if err := s.Close(); err != nil {
		log.Warnf("Error saving rules: %v", err)
	}
	if opts.PidFile != "" {
		if err := os.Remove(opts.PidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warnf("Error removing PID file: %v", err)
		}
	}

	log.Info("Cleanup complete. Exiting.")
	return runErr
}
