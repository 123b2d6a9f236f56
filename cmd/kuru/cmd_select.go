// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/kurukshetram/internal/locale"
)

var (
	selLanguage string
	selState    string
	selDistrict string
	selReset    bool
	selShow     bool

	selectCmd = &cobra.Command{
		Use:   "select",
		Short: "Pick your language, state and district",
		Long: `Walks the three-tier selection: language, then state, then district.

Without flags an interactive picker opens. With --language/--state/
--district the tiers are set directly by display name. Changing a tier
clears everything below it.`,
		RunE: runSelect,
	}
)

func init() {
	selectCmd.Flags().StringVar(&selLanguage, "language", "", "language display name")
	selectCmd.Flags().StringVar(&selState, "state", "", "state name")
	selectCmd.Flags().StringVar(&selDistrict, "district", "", "district name")
	selectCmd.Flags().BoolVar(&selReset, "reset", false, "clear the selection and re-resolve defaults")
	selectCmd.Flags().BoolVar(&selShow, "show", false, "print the current selection and exit")
}

func runSelect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if selShow {
		printSelection(cli.locale.Hydrate(ctx))
		return nil
	}
	if selReset {
		printSelection(cli.locale.ResetToDefault(ctx))
		return nil
	}
	if selLanguage != "" || selState != "" || selDistrict != "" {
		return selectByName(ctx)
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return errors.New("interactive selection needs a terminal; use --language/--state/--district")
	}

	cli.locale.Hydrate(ctx)
	m := newWizardModel(locale.NewWizard(cli.locale))
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return err
	}
	wm, ok := final.(wizardModel)
	if !ok {
		return fmt.Errorf("unexpected model type: %T", final)
	}
	if wm.err != nil {
		return wm.err
	}
	if wm.finished {
		printSelection(cli.locale.Current())
	}
	return nil
}

// selectByName applies tiers from flags, resolving display names
// case-insensitively against the live option lists.
func selectByName(ctx context.Context) error {
	sel := cli.locale.Hydrate(ctx)

	if selLanguage != "" {
		langs, err := cli.catalog.Languages(ctx)
		if err != nil {
			return err
		}
		ref, err := findLanguage(langs, selLanguage)
		if err != nil {
			return err
		}
		if _, err := cli.locale.SelectLanguage(ctx, ref); err != nil {
			return err
		}
		sel = cli.locale.Current()
	}

	if selState != "" {
		if sel.Language == nil {
			return errors.New("select a language first")
		}
		states, err := cli.catalog.States(ctx, sel.Language.ID)
		if err != nil {
			return err
		}
		ref, err := findState(states, selState)
		if err != nil {
			return err
		}
		if _, err := cli.locale.SelectState(ctx, ref); err != nil {
			return err
		}
		sel = cli.locale.Current()
	}

	if selDistrict != "" {
		if sel.State == nil {
			return errors.New("select a state first")
		}
		districts, err := cli.catalog.Districts(ctx, sel.State.ID)
		if err != nil {
			return err
		}
		ref, err := findDistrict(districts, selDistrict)
		if err != nil {
			return err
		}
		cli.locale.SelectDistrict(ref)
	}

	printSelection(cli.locale.Current())
	return nil
}

func findLanguage(options []locale.LanguageRef, name string) (locale.LanguageRef, error) {
	for _, o := range options {
		if strings.EqualFold(o.DisplayName, name) {
			return o, nil
		}
	}
	return locale.LanguageRef{}, fmt.Errorf("no language named %q", name)
}

func findState(options []locale.StateRef, name string) (locale.StateRef, error) {
	for _, o := range options {
		if strings.EqualFold(o.Name, name) {
			return o, nil
		}
	}
	return locale.StateRef{}, fmt.Errorf("no state named %q", name)
}

func findDistrict(options []locale.DistrictRef, name string) (locale.DistrictRef, error) {
	for _, o := range options {
		if strings.EqualFold(o.Name, name) {
			return o, nil
		}
	}
	return locale.DistrictRef{}, fmt.Errorf("no district named %q", name)
}

func printSelection(sel locale.Selection) {
	name := func(s string) string {
		if s == "" {
			return "(unset)"
		}
		return s
	}
	var lang, state, district string
	if sel.Language != nil {
		lang = sel.Language.DisplayName
	}
	if sel.State != nil {
		state = sel.State.Name
	}
	if sel.District != nil {
		district = sel.District.Name
	}
	fmt.Printf("Language: %s\nState:    %s\nDistrict: %s\n",
		name(lang), name(state), name(district))
}

// --- interactive picker ---

var (
	wizardTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	wizardErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	wizardHelpStyle  = lipgloss.NewStyle().Faint(true)
)

// optionItem adapts a selection option to bubbles' list.
type optionItem struct {
	id   string
	name string
}

func (o optionItem) Title() string       { return o.name }
func (o optionItem) Description() string { return "" }
func (o optionItem) FilterValue() string { return o.name }

type optionsLoadedMsg struct{ err error }
type pickAppliedMsg struct{ err error }

// wizardModel drives locale.Wizard from a bubbletea loop.
type wizardModel struct {
	wizard   *locale.Wizard
	list     list.Model
	loading  bool
	finished bool
	err      error
}

func newWizardModel(w *locale.Wizard) wizardModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	l := list.New(nil, delegate, 48, 16)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	return wizardModel{wizard: w, list: l, loading: true}
}

func (m wizardModel) Init() tea.Cmd {
	return m.loadOptions()
}

func (m wizardModel) loadOptions() tea.Cmd {
	w := m.wizard
	return func() tea.Msg {
		return optionsLoadedMsg{err: w.LoadOptions(context.Background())}
	}
}

// refreshItems rebuilds the list from the wizard's current step options.
func (m *wizardModel) refreshItems() {
	var items []list.Item
	switch m.wizard.Step() {
	case locale.StepLanguage:
		for _, o := range m.wizard.Languages() {
			items = append(items, optionItem{id: o.ID, name: o.DisplayName})
		}
	case locale.StepState:
		for _, o := range m.wizard.States() {
			items = append(items, optionItem{id: o.ID, name: o.Name})
		}
	case locale.StepDistrict:
		for _, o := range m.wizard.Districts() {
			items = append(items, optionItem{id: o.ID, name: o.Name})
		}
	}
	m.list.SetItems(items)
	m.list.ResetSelected()
}

func (m wizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case optionsLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.refreshItems()
		}
		return m, nil

	case pickAppliedMsg:
		m.loading = false
		if m.wizard.Step() == locale.StepLanguage && m.wizard.CanFinish() {
			// Finish already ran; the cursor reset to the language tier.
			m.finished = true
			return m, tea.Quit
		}
		m.err = msg.err
		m.refreshItems()
		if len(m.list.Items()) == 0 && msg.err == nil {
			m.loading = true
			return m, m.loadOptions()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc", "left":
			m.wizard.Back()
			m.err = nil
			m.loading = true
			return m, m.loadOptions()
		case "enter":
			if m.loading {
				return m, nil
			}
			item, ok := m.list.SelectedItem().(optionItem)
			if !ok {
				// Empty list: retry the fetch that failed.
				m.loading = true
				return m, m.loadOptions()
			}
			m.loading = true
			return m, m.applyPick(item)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// applyPick runs the wizard transition for the selected item.
func (m wizardModel) applyPick(item optionItem) tea.Cmd {
	w := m.wizard
	step := w.Step()
	return func() tea.Msg {
		ctx := context.Background()
		switch step {
		case locale.StepLanguage:
			return pickAppliedMsg{err: w.SelectLanguage(ctx, locale.LanguageRef{ID: item.id, DisplayName: item.name})}
		case locale.StepState:
			return pickAppliedMsg{err: w.SelectState(ctx, locale.StateRef{ID: item.id, Name: item.name})}
		case locale.StepDistrict:
			if err := w.SelectDistrict(locale.DistrictRef{ID: item.id, Name: item.name}); err != nil {
				return pickAppliedMsg{err: err}
			}
			return pickAppliedMsg{err: w.Finish()}
		default:
			return pickAppliedMsg{}
		}
	}
}

func (m wizardModel) View() string {
	if m.finished {
		return ""
	}
	var b strings.Builder
	b.WriteString(wizardTitleStyle.Render("Pick your "+m.wizard.Step().String()) + "\n\n")
	if m.err != nil {
		b.WriteString(wizardErrStyle.Render(m.err.Error()) + "\n")
		b.WriteString(wizardHelpStyle.Render("enter retry · esc back · q quit") + "\n")
		return b.String()
	}
	if m.loading {
		b.WriteString("loading…\n")
		return b.String()
	}
	b.WriteString(m.list.View() + "\n")
	b.WriteString(wizardHelpStyle.Render("enter pick · esc back · q quit") + "\n")
	return b.String()
}
