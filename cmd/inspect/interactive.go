package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.starlark.net/starlark"

	"github.com/wippyai/propbridge/host"
	"github.com/wippyai/propbridge/translator"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	objectStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateBrowse modelState = iota
	stateEdit
)

// row is one editable property of one object.
type row struct {
	target int
	field  *host.Field
}

type interactiveModel struct {
	err      error
	sess     *session
	globals  starlark.StringDict
	filename string
	status   string
	targets  []target
	rows     []row
	input    textinput.Model
	selected int
	state    modelState
}

type assignResult struct {
	err    error
	status string
}

func newInteractiveModel(s *session, filename string, targets []target, globals starlark.StringDict) *interactiveModel {
	m := &interactiveModel{
		sess:     s,
		globals:  globals,
		filename: filename,
		targets:  targets,
		state:    stateBrowse,
	}
	m.buildRows()
	return m
}

// buildRows lists the current fields of every target. Called again after
// a reload may have changed the layout.
func (m *interactiveModel) buildRows() {
	m.rows = m.rows[:0]
	for i, t := range m.targets {
		for _, f := range t.obj.Class().Fields() {
			if f.Has(host.FlagReadOnly) {
				continue
			}
			m.rows = append(m.rows, row{target: i, field: f})
		}
	}
	if m.selected >= len(m.rows) {
		m.selected = max(len(m.rows)-1, 0)
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state == stateBrowse {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateBrowse && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateBrowse && m.selected < len(m.rows)-1 {
				m.selected++
			}

		case "r":
			if m.state == stateBrowse {
				m.buildRows()
				m.status = "refreshed"
				m.err = nil
			}

		case "enter":
			switch m.state {
			case stateBrowse:
				if len(m.rows) == 0 {
					break
				}
				m.prepareInput()
				m.state = stateEdit
				return m, textinput.Blink
			case stateEdit:
				m.state = stateBrowse
				res := m.assign(m.rows[m.selected], m.input.Value())
				m.err, m.status = res.err, res.status
				m.buildRows()
				return m, nil
			}

		case "esc":
			if m.state == stateEdit {
				m.state = stateBrowse
			}
		}
	}

	if m.state == stateEdit {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) prepareInput() {
	r := m.rows[m.selected]
	ti := textinput.New()
	ti.Prompt = r.field.Name + " = "
	ti.Placeholder = r.field.Type.String()
	ti.Width = 60
	if v, err := m.targets[r.target].obj.Attr(r.field.Name); err == nil && v != nil {
		ti.SetValue(v.String())
	}
	ti.Focus()
	m.input = ti
}

// assign evaluates expr with the script globals in scope and stores the
// result through the object's setter. Runs on the update loop; the Env
// must not be used from tea.Cmd goroutines.
func (m *interactiveModel) assign(r row, expr string) assignResult {
	t := m.targets[r.target]
	v, err := m.sess.env.Eval(expr, m.globals)
	if err != nil {
		return assignResult{err: err}
	}
	if err := t.obj.SetField(r.field.Name, v); err != nil {
		return assignResult{err: err}
	}
	return assignResult{status: fmt.Sprintf("%s.%s updated", t.name, r.field.Name)}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Property Inspector"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateBrowse:
		last := -1
		for i, r := range m.rows {
			t := m.targets[r.target]
			if r.target != last {
				b.WriteString(objectStyle.Render(t.name + " " + t.obj.String()))
				b.WriteString("\n")
				last = r.target
			}
			line := "  " + r.field.Name + ": " + typeStyle.Render(r.field.Type.String()) + " = " + m.renderValue(t.obj, r.field)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + r.field.Name))
				b.WriteString(line[2+len(r.field.Name):])
			} else {
				b.WriteString(line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		} else if m.status != "" {
			b.WriteString(resultStyle.Render(m.status))
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("↑/↓ select • enter edit • r refresh • q quit"))

	case stateEdit:
		r := m.rows[m.selected]
		b.WriteString(fmt.Sprintf("Assign %s.%s\n\n", objectStyle.Render(m.targets[r.target].name), r.field.Name))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter assign (starlark expression) • esc back"))
	}

	return b.String()
}

// renderValue reads the property live, so changes made by host code or a
// reload show up on the next frame.
func (m *interactiveModel) renderValue(obj *translator.Object, f *host.Field) string {
	v, err := obj.Attr(f.Name)
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	if v == nil {
		return helpStyle.Render("<unset>")
	}
	return resultStyle.Render(v.String())
}

func runInteractive(s *session, filename string, targets []target, globals starlark.StringDict) error {
	p := tea.NewProgram(newInteractiveModel(s, filename, targets, globals), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
