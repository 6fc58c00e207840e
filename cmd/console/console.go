package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/mahyarmirrashed/dsd/internal/app"
	"github.com/mahyarmirrashed/dsd/internal/config"
	"github.com/mahyarmirrashed/dsd/internal/notice"
	"github.com/mahyarmirrashed/dsd/internal/rule"
)

type action int

const (
	actionAdd action = iota
	actionToggle
	actionFrom
	actionTo
	actionMode
	actionDelete
	actionSettings
	actionQuit
)

// console is the interactive rule editor.
type console struct {
	session *app.Session
	cfgPath string
	cfg     *config.Config
}

func (c *console) run() error {
	for {
		fmt.Print(render(c.session.Store.Rules(), c.session.Notices.Notices()))

		act, err := c.chooseAction()
		if err != nil {
			return err
		}
		if act == actionQuit {
			return nil
		}
		if err := c.perform(act); err != nil && !errors.Is(err, huh.ErrUserAborted) {
			return err
		}
	}
}

func (c *console) chooseAction() (action, error) {
	options := []huh.Option[action]{huh.NewOption("Add rule", actionAdd)}
	if c.session.Store.Len() > 0 {
		options = append(options,
			huh.NewOption("Start / stop rule", actionToggle),
			huh.NewOption("Change source", actionFrom),
			huh.NewOption("Change target", actionTo),
			huh.NewOption("Change mode", actionMode),
			huh.NewOption("Delete rule", actionDelete),
		)
	}
	options = append(options,
		huh.NewOption("Settings", actionSettings),
		huh.NewOption("Quit", actionQuit),
	)

	var act action
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[action]().Title("What next?").Options(options...).Value(&act),
	)).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return actionQuit, nil
	}
	return act, err
}

// perform runs one action. Session operations report problems as notices,
// so only form failures are returned.
func (c *console) perform(act action) error {
	if act == actionAdd {
		c.add()
		return nil
	}
	if act == actionSettings {
		return c.editSettings()
	}

	index, err := c.chooseRule()
	if err != nil {
		return err
	}

	switch act {
	case actionToggle:
		c.session.Toggle(index)
	case actionFrom:
		c.session.PickFrom(index)
	case actionTo:
		c.session.PickTo(index)
	case actionMode:
		return c.changeMode(index)
	case actionDelete:
		return c.delete(index)
	}
	return nil
}

func (c *console) add() {
	picker := inputPicker{}
	from, ok := picker.PickDirectory("Source directory")
	if !ok {
		return
	}
	to, ok := picker.PickDirectory("Target directory")
	if !ok {
		return
	}
	c.session.Add(from, to)
}

func (c *console) chooseRule() (int, error) {
	rules := c.session.Store.Rules()
	options := make([]huh.Option[int], 0, len(rules))
	for i, r := range rules {
		options = append(options, huh.NewOption(ruleLabel(i, r), i))
	}

	var index int
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().Title("Which rule?").Options(options...).Value(&index),
	)).Run()
	return index, err
}

func (c *console) changeMode(index int) error {
	current, err := c.session.Store.Rule(index)
	if err != nil {
		c.session.Notices.Post(err.Error(), notice.Error)
		return nil
	}
	mode := current.Mode
	err = huh.NewForm(huh.NewGroup(
		huh.NewSelect[rule.Mode]().
			Title("Sync mode").
			Options(
				huh.NewOption("Copy files", rule.Copy),
				huh.NewOption("Link files", rule.Link),
			).
			Value(&mode),
	)).Run()
	if err != nil {
		return err
	}
	c.session.SetMode(index, mode)
	return nil
}

// delete stages the rule and removes it only after confirmation.
func (c *console) delete(index int) error {
	c.session.Gate.Stage(index)

	var confirmed bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Delete this rule?").
			Affirmative("Delete").
			Negative("Keep").
			Value(&confirmed),
	)).Run()
	if err != nil || !confirmed {
		c.session.Gate.Cancel()
		return err
	}
	c.session.Gate.Confirm()
	return nil
}
