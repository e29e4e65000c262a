package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
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
	stateSelectFunc modelState = iota
	stateInputArgs
	stateInputSender
	stateShowResult
)

// maxHistory is the number of past calls kept on screen
const maxHistory = 8

type interactiveModel struct {
	err      error
	session  *session
	filename string
	result   string
	history  []string
	inputs   []textinput.Model
	selected int
	focusIdx int
	failed   bool
	state    modelState
}

type callResultMsg struct {
	err    error
	result string
	failed bool
}

func newInteractiveModel(s *session, filename string) *interactiveModel {
	return &interactiveModel{
		session:  s,
		filename: filename,
		state:    stateSelectFunc,
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
			if m.state == stateSelectFunc || m.state == stateShowResult {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.session.methods)-1 {
				m.selected++
			}

		case "s":
			if m.state == stateSelectFunc {
				m.prepareSender()
				m.state = stateInputSender
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.session.methods) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callFunction

			case stateInputSender:
				v := strings.TrimSpace(m.inputs[0].Value())
				if !common.IsHexAddress(v) {
					m.err = fmt.Errorf("%q is not an address", v)
					return m, nil
				}
				m.session.sender = common.HexToAddress(v)
				m.reset()

			case stateShowResult:
				m.reset()
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			if m.state != stateSelectFunc {
				m.reset()
			}
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.failed = msg.failed
		m.state = stateShowResult
		if msg.err == nil {
			f := m.session.methods[m.selected]
			m.history = append(m.history, f.route.Name()+": "+msg.result)
			if len(m.history) > maxHistory {
				m.history = m.history[len(m.history)-maxHistory:]
			}
		}
	}

	if m.state == stateInputArgs || m.state == stateInputSender {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelectFunc
	m.inputs = nil
	m.result = ""
	m.err = nil
	m.failed = false
}

func (m *interactiveModel) prepareInputs() {
	f := m.session.methods[m.selected]
	m.inputs = make([]textinput.Model, len(f.types))
	for i, t := range f.types {
		ti := textinput.New()
		ti.Placeholder = t
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 66
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) prepareSender() {
	ti := textinput.New()
	ti.Prompt = "sender: "
	ti.Placeholder = "0x..."
	ti.SetValue(m.session.sender.Hex())
	ti.Width = 44
	ti.Focus()
	m.inputs = []textinput.Model{ti}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.session.methods[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = input.Value()
	}
	text, failed, err := m.session.call(context.Background(), f, args)
	return callResultMsg{result: text, failed: failed, err: err}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("move2wasm"))
	b.WriteString(" ")
	b.WriteString(m.session.out.Module.String())
	b.WriteString(helpStyle.Render("  " + m.filename))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("sender " + m.session.sender.Hex()))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.session.methods) == 0 {
			b.WriteString("The module routes no functions.\n")
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.session.methods {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f.route.Signature))
			} else {
				b.WriteString("  " + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		if len(m.history) > 0 {
			b.WriteString("\n")
			b.WriteString(helpStyle.Render("recent calls"))
			b.WriteString("\n")
			for _, h := range m.history {
				b.WriteString(helpStyle.Render("  " + h))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • s sender • q quit"))

	case stateInputArgs:
		f := m.session.methods[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.route.Signature)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.types[i]))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateInputSender:
		b.WriteString(m.inputs[0].View())
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter set • esc back"))

	case stateShowResult:
		f := m.session.methods[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.route.Signature)))
		switch {
		case m.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		case m.failed:
			b.WriteString(errorStyle.Render(m.result))
		default:
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatFunc(f *method) string {
	name := funcStyle.Render(f.route.Name())
	params := make([]string, len(f.types))
	for i, t := range f.types {
		params[i] = typeStyle.Render(t)
	}
	result := ""
	if len(f.route.Returns) > 0 {
		result = " -> " + typeStyle.Render("("+strings.Join(f.route.Returns, ",")+")")
	}
	return name + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(s *session, filename string) error {
	p := tea.NewProgram(newInteractiveModel(s, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
