package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/mahyarmirrashed/dsd/internal/app"
	"github.com/mahyarmirrashed/dsd/internal/persist"
	"github.com/mahyarmirrashed/dsd/internal/rule"
	"github.com/mahyarmirrashed/dsd/internal/utils"
)

// offlineWatcher records enabled transitions without watching anything; a
// running daemon picks the change up on its next start.
type offlineWatcher struct{}

func (offlineWatcher) Start(_ context.Context, id, from, to string, mode rule.Mode) error {
	log.Debugf("Rule %s enabled (%s -> %s, %s); takes effect on next daemon start", id, from, to, mode)
	return nil
}

func (offlineWatcher) Stop(_ context.Context, id string) error {
	log.Debugf("Rule %s disabled; takes effect on next daemon start", id)
	return nil
}

// withSession runs fn against the persisted rules and saves any change.
func withSession(ctx context.Context, cmd *cli.Command, fn func(s *app.Session) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closer := utils.SetupLogging(cfg.LogLevel, cfg.LogFile)
	defer closer.Close()

	kv, err := openStore(cfg)
	if errors.Is(err, persist.ErrInUse) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to open rule store: %w", err)
	}
	defer kv.Close()

	s := app.New(kv, offlineWatcher{}, nil, sessionOptions(ctx, cfg))
	fnErr := fn(s)
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to save rules: %w", err)
	}
	return fnErr
}

// resolve maps a rule id or list index to an index in the store.
func resolve(s *app.Session, ref string) (int, error) {
	for i, r := range s.Store.Rules() {
		if r.ID == ref {
			return i, nil
		}
	}
	i, err := strconv.Atoi(ref)
	if err != nil || i < 0 || i >= s.Store.Len() {
		return 0, fmt.Errorf("no rule %q", ref)
	}
	return i, nil
}

func printRule(i int, r rule.SyncRule) {
	state := "off"
	if r.Enabled {
		state = "on"
	}
	fmt.Printf("%d\t%s\t%-3s\t%s\t%s -> %s\n", i, r.ID, state, r.Mode, r.From, r.To)
	if r.Error != "" {
		fmt.Printf("\terror: %s\n", r.Error)
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list sync rules",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(ctx, cmd, func(s *app.Session) error {
				for i, r := range s.Store.Rules() {
					printRule(i, r)
				}
				return nil
			})
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "add a disabled sync rule",
		ArgsUsage: "FROM TO",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "sync mode: copy, link",
				Value: string(rule.Copy),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return fmt.Errorf("add expects FROM and TO")
			}
			mode, err := rule.ParseMode(cmd.String("mode"))
			if err != nil {
				return err
			}
			from := utils.ExpandTilde(cmd.Args().Get(0))
			to := utils.ExpandTilde(cmd.Args().Get(1))

			return withSession(ctx, cmd, func(s *app.Session) error {
				r := s.Add(from, to)
				index := s.Store.Len() - 1
				if mode != r.Mode {
					if err := s.SetMode(index, mode); err != nil {
						return err
					}
				}
				r, _ = s.Store.Rule(index)
				printRule(index, r)
				return nil
			})
		},
	}
}

func setEnabledCommand(name, usage string, enabled bool) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "ID|INDEX",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("%s expects one rule id or index", name)
			}
			return withSession(ctx, cmd, func(s *app.Session) error {
				i, err := resolve(s, cmd.Args().First())
				if err != nil {
					return err
				}
				r, err := s.Store.Rule(i)
				if err != nil {
					return err
				}
				if r.Enabled != enabled {
					if _, err := s.Toggle(i); err != nil {
						return err
					}
				}
				r, _ = s.Store.Rule(i)
				printRule(i, r)
				return nil
			})
		},
	}
}

func enableCommand() *cli.Command {
	return setEnabledCommand("enable", "enable a sync rule", true)
}

func disableCommand() *cli.Command {
	return setEnabledCommand("disable", "disable a sync rule", false)
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "delete a sync rule",
		ArgsUsage: "ID|INDEX",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("remove expects one rule id or index")
			}
			return withSession(ctx, cmd, func(s *app.Session) error {
				i, err := resolve(s, cmd.Args().First())
				if err != nil {
					return err
				}
				s.Gate.Stage(i)
				r, ok := s.Gate.Confirm()
				if !ok {
					return fmt.Errorf("failed to remove rule %q", cmd.Args().First())
				}
				fmt.Printf("removed %s (%s -> %s)\n", r.ID, r.From, r.To)
				return nil
			})
		},
	}
}
