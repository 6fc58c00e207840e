package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/mahyarmirrashed/dsd/internal/config"
	"github.com/mahyarmirrashed/dsd/internal/notice"
)

// loadConfig loads the configuration file, falling back to defaults when it
// does not exist yet.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// parseExcludePatterns parses exclude patterns from multiline text.
func parseExcludePatterns(text string) []string {
	lines := strings.Split(text, "\n")
	var patterns []string
	for _, line := range lines {
		p := strings.TrimSpace(line)
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func validateDuration(s string) error {
	_, err := time.ParseDuration(strings.TrimSpace(s))
	return err
}

// settingsForm binds the editable configuration fields to a form.
type settingsForm struct {
	logLevel      string
	exclude       string
	debounce      string
	dryRun        bool
	notifications bool
}

func newSettingsForm(cfg *config.Config) *settingsForm {
	return &settingsForm{
		logLevel:      cfg.LogLevel,
		exclude:       strings.Join(cfg.Exclude, "\n"),
		debounce:      cfg.Debounce.String(),
		dryRun:        cfg.DryRun,
		notifications: cfg.Notifications,
	}
}

// apply copies the form values onto a copy of cfg.
func (f *settingsForm) apply(cfg *config.Config) (*config.Config, error) {
	debounce, err := time.ParseDuration(strings.TrimSpace(f.debounce))
	if err != nil {
		return nil, fmt.Errorf("invalid debounce duration: %w", err)
	}

	updated := *cfg
	updated.LogLevel = strings.ToLower(strings.TrimSpace(f.logLevel))
	updated.Exclude = parseExcludePatterns(f.exclude)
	updated.Debounce = debounce
	updated.DryRun = f.dryRun
	updated.Notifications = f.notifications
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *console) editSettings() error {
	f := newSettingsForm(c.cfg)
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Log level").
			Options(huh.NewOptions("debug", "info", "warn", "error")...).
			Value(&f.logLevel),
		huh.NewText().
			Title("Exclude patterns (one per line)").
			Value(&f.exclude),
		huh.NewInput().
			Title("Save delay (e.g., 1s, 500ms)").
			Value(&f.debounce).
			Validate(validateDuration),
		huh.NewConfirm().Title("Dry run mode").Value(&f.dryRun),
		huh.NewConfirm().Title("Desktop notifications").Value(&f.notifications),
	)).Run()
	if err != nil {
		return err
	}

	updated, err := f.apply(c.cfg)
	if err != nil {
		c.session.Notices.Post(err.Error(), notice.Error)
		return nil
	}
	if err := config.Save(c.cfgPath, updated); err != nil {
		c.session.Notices.Post(fmt.Sprintf("failed to save config: %v", err), notice.Error)
		return nil
	}
	c.cfg = updated
	c.session.Notices.Post("settings saved; restart to apply", notice.Info)
	return nil
}
