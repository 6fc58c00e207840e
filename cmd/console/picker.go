package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	log "github.com/sirupsen/logrus"

	"github.com/mahyarmirrashed/dsd/internal/utils"
)

// inputPicker asks for a directory path on the terminal. An empty answer or
// an aborted form counts as cancellation.
type inputPicker struct{}

func (inputPicker) PickDirectory(title string) (string, bool) {
	var path string
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(title).
			Description("Leave empty to cancel").
			Value(&path).
			Validate(validateDirectory),
	)).Run()
	if err != nil {
		if !errors.Is(err, huh.ErrUserAborted) {
			log.Warnf("Directory prompt failed: %v", err)
		}
		return "", false
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return "", false
	}
	return utils.ExpandTilde(path), true
}

// validateDirectory accepts an empty answer or an existing directory.
func validateDirectory(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	info, err := os.Stat(utils.ExpandTilde(path))
	if err != nil {
		return fmt.Errorf("%s does not exist", path)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}
