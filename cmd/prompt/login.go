package prompt

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const loginBanner = `Database credentials are required to run this tool. They are the same
username and password used to access the database directly.

To reset them later run with --reset-credentials.`

var bannerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#888888")).
	Margin(1, 2)

type loginModel struct {
	inputs    []textinput.Model
	focus     int
	done      bool
	cancelled bool
}

func newLoginModel() loginModel {
	user := textinput.New()
	user.Prompt = "Username: "
	user.CharLimit = 128
	user.Focus()

	password := textinput.New()
	password.Prompt = "Password: "
	password.CharLimit = 256
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return loginModel{inputs: []textinput.Model{user, password}}
}

func (m loginModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m loginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "tab", "down":
			return m.setFocus(m.focus + 1)
		case "shift+tab", "up":
			return m.setFocus(m.focus - 1)
		case "enter":
			if m.focus < len(m.inputs)-1 {
				return m.setFocus(m.focus + 1)
			}
			if strings.TrimSpace(m.inputs[0].Value()) == "" {
				return m.setFocus(0)
			}
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m loginModel) setFocus(i int) (tea.Model, tea.Cmd) {
	n := len(m.inputs)
	m.focus = (i%n + n) % n
	cmds := make([]tea.Cmd, n)
	for j := range m.inputs {
		if j == m.focus {
			cmds[j] = m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
	return m, tea.Batch(cmds...)
}

func (m loginModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(bannerStyle.Render(loginBanner))
	b.WriteString("\n")
	for _, in := range m.inputs {
		b.WriteString(itemStyle.Render(in.View()))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("tab next field • enter confirm • esc cancel"))
	return b.String()
}

func (m loginModel) values() (user, password string) {
	return m.inputs[0].Value(), m.inputs[1].Value()
}
