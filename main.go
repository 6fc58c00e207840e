package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sevlyar/go-daemon"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"github.com/zoobzio/capitan"

	"github.com/mahyarmirrashed/dsd/internal/app"
	"github.com/mahyarmirrashed/dsd/internal/config"
	dsdd "github.com/mahyarmirrashed/dsd/internal/daemon"
	"github.com/mahyarmirrashed/dsd/internal/engine"
	"github.com/mahyarmirrashed/dsd/internal/excluder"
	"github.com/mahyarmirrashed/dsd/internal/notice"
	"github.com/mahyarmirrashed/dsd/internal/persist"
	"github.com/mahyarmirrashed/dsd/internal/utils"
)

// Set at build time: go build -ldflags "-X main.version=1.2.3"
var version = "dev"

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// newCommand builds the dsd command tree.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "dsd",
		Usage:   "Directory Sync Daemon",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Sources: cli.EnvVars("DSD_CONFIG"),
				Value:   config.DefaultPath(),
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "path to the rule store",
				Sources: cli.EnvVars("DSD_STORE"),
			},
			&cli.StringFlag{
				Name:    "backend",
				Usage:   "rule store backend: file, sqlite",
				Sources: cli.EnvVars("DSD_BACKEND"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "logging level: debug, info, warn, error",
				Sources: cli.EnvVars("DSD_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "write logs to a rotated file",
				Sources: cli.EnvVars("DSD_LOG_FILE"),
			},
			&cli.BoolFlag{
				Name:    "daemonize",
				Usage:   "run as daemon",
				Sources: cli.EnvVars("DSD_DAEMONIZE"),
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Usage:   "dry run mode",
				Sources: cli.EnvVars("DSD_DRY_RUN"),
			},
			&cli.BoolFlag{
				Name:    "notifications",
				Usage:   "send desktop notifications for warnings and errors",
				Sources: cli.EnvVars("DSD_NOTIFICATIONS"),
			},
			&cli.StringSliceFlag{
				Name:    "exclude",
				Usage:   "glob patterns to exclude (repeat or comma-separated)",
				Sources: cli.EnvVars("DSD_EXCLUDE"),
			},
			&cli.DurationFlag{
				Name:    "debounce",
				Usage:   "quiet period before rule changes are saved",
				Sources: cli.EnvVars("DSD_DEBOUNCE"),
			},
		},
		Action: runDaemon,
		Commands: []*cli.Command{
			listCommand(),
			addCommand(),
			enableCommand(),
			disableCommand(),
			removeCommand(),
		},
	}
}

// loadConfig reads the config file if it exists and applies flag overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg := config.Default()
	configPath := utils.ExpandTilde(cmd.String("config"))

	// Only load config if the file exists
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	// Override config with flags if set
	if cmd.IsSet("store") {
		cfg.StorePath = cmd.String("store")
	}
	if cmd.IsSet("backend") {
		cfg.StoreBackend = cmd.String("backend")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("log-file") {
		cfg.LogFile = cmd.String("log-file")
	}
	if cmd.IsSet("daemonize") {
		cfg.Daemonize = cmd.Bool("daemonize")
	}
	if cmd.IsSet("dry-run") {
		cfg.DryRun = cmd.Bool("dry-run")
	}
	if cmd.IsSet("notifications") {
		cfg.Notifications = cmd.Bool("notifications")
	}
	if cmd.IsSet("exclude") {
		var merged []string
		for _, e := range cmd.StringSlice("exclude") {
			merged = append(merged, strings.Split(e, ",")...)
		}
		cfg.Exclude = merged
	}
	if cmd.IsSet("debounce") {
		cfg.Debounce = cmd.Duration("debounce")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.StorePath = utils.ExpandTilde(cfg.StorePath)
	return cfg, nil
}

// openStore opens the rule store and holds its lock until the KV is closed.
func openStore(cfg *config.Config) (persist.KV, error) {
	return persist.OpenLocked(persist.Backend(cfg.StoreBackend), cfg.StorePath)
}

func sessionOptions(ctx context.Context, cfg *config.Config) app.Options {
	return app.Options{
		Context:        ctx,
		Debounce:       cfg.Debounce,
		NoticeDuration: cfg.NoticeDuration,
	}
}

// runDaemon is the default action: watch every enabled rule until signalled.
func runDaemon(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile := cfg.LogFile
	stateDir := filepath.Dir(cfg.StorePath)
	pidFile := ""

	// Only daemonize if config says so
	if cfg.Daemonize {
		pidFile = filepath.Join(stateDir, "dsd.pid")
		if logFile == "" {
			logFile = filepath.Join(stateDir, "dsd.log")
		}
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			log.Fatalf("Unable to create %s: %v", stateDir, err)
		}

		daemonCtx := &daemon.Context{
			PidFileName: pidFile,
			PidFilePerm: 0644,
			WorkDir:     "./",
			Umask:       027,
			Args:        []string{"[dsd-daemon]"},
		}

		d, err := daemonCtx.Reborn()
		if err != nil {
			log.Fatalf("Unable to run: %s", err)
		}
		if d != nil {
			return nil // Parent process exits
		}
		defer daemonCtx.Release()
	}

	closer := utils.SetupLogging(cfg.LogLevel, logFile)
	defer closer.Close()
	defer capitan.Shutdown()

	if cfg.Daemonize {
		log.Info("Daemon started")
	} else {
		log.Info("Running in foreground (not daemonized)")
	}

	ex, err := excluder.New(cfg.Exclude)
	if err != nil {
		log.Fatalf("Failed to compile exclude patterns: %v", err)
	}

	kv, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open rule store: %v", err)
	}
	defer kv.Close()

	eng := engine.New(engine.WithExcluder(ex), engine.WithDryRun(cfg.DryRun))
	s := app.New(kv, eng, nil, sessionOptions(ctx, cfg))
	if cfg.Notifications {
		s.Notices.Subscribe(notice.DesktopSink("dsd", notice.Warning))
	}

	err = dsdd.Run(ctx, s, eng, dsdd.Options{PidFile: pidFile})
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
