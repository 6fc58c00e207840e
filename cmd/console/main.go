package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	log "github.com/sirupsen/logrus"
	"github.com/zoobzio/capitan"

	"github.com/mahyarmirrashed/dsd/internal/app"
	"github.com/mahyarmirrashed/dsd/internal/config"
	"github.com/mahyarmirrashed/dsd/internal/engine"
	"github.com/mahyarmirrashed/dsd/internal/excluder"
	"github.com/mahyarmirrashed/dsd/internal/notice"
	"github.com/mahyarmirrashed/dsd/internal/persist"
	"github.com/mahyarmirrashed/dsd/internal/signals"
	"github.com/mahyarmirrashed/dsd/internal/utils"
)

func main() {
	cfgPath := config.DefaultPath()

	// Load config or defaults
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ignoring config %s: %v\n", cfgPath, err)
		cfg = config.Default()
	}
	storePath := utils.ExpandTilde(cfg.StorePath)
	stateDir := filepath.Dir(storePath)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Unable to create %s: %v\n", stateDir, err)
		os.Exit(1)
	}

	// The terminal belongs to the forms, so logs always go to a file.
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = filepath.Join(stateDir, "console.log")
	}
	closer := utils.SetupLogging(cfg.LogLevel, logFile)
	defer closer.Close()

	observer := signals.Log()

	ex, err := excluder.New(cfg.Exclude)
	if err != nil {
		log.Fatalf("Failed to compile exclude patterns: %v", err)
	}

	kv, err := persist.OpenLocked(persist.Backend(cfg.StoreBackend), storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open rule store: %v\n", err)
		os.Exit(1)
	}
	defer kv.Close()

	eng := engine.New(engine.WithExcluder(ex), engine.WithDryRun(cfg.DryRun))
	s := app.New(kv, eng, inputPicker{}, app.Options{
		Debounce:       cfg.Debounce,
		NoticeDuration: cfg.NoticeDuration,
	})
	eng.SetReporter(s.Report)
	if cfg.Notifications {
		s.Notices.Subscribe(notice.DesktopSink("dsd", notice.Warning))
	}
	s.Resume()

	c := &console{session: s, cfgPath: cfgPath, cfg: cfg}
	runErr := c.run()

	if err := eng.Close(); err != nil {
		log.Warnf("Error closing watches: %v", err)
	}
	if err := s.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save rules: %v\n", err)
	}
	observer.Close()
	capitan.Shutdown()
	if runErr != nil && !errors.Is(runErr, huh.ErrUserAborted) {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}
