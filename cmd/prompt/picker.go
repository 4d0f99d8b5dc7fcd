// Package prompt asks the user for an input file and a database login in the
// terminal. The pipelines only see it through the credentials.Prompter and
// file selector interfaces.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	ErrNoFiles   = errors.New("no files to choose from")
	ErrCancelled = errors.New("selection cancelled")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true).
			Margin(1, 2, 0, 2)

	itemStyle = lipgloss.NewStyle().
			Margin(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true).
			Margin(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Margin(1, 2)
)

// maxVisible bounds how many entries the picker shows at once.
const maxVisible = 15

type pickerModel struct {
	title     string
	items     []string
	cursor    int
	offset    int
	chosen    string
	cancelled bool
}

func newPickerModel(title string, items []string) pickerModel {
	return pickerModel{title: title, items: items}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.cancelled = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = len(m.items) - 1
	case "enter":
		if len(m.items) == 0 {
			m.cancelled = true
			return m, tea.Quit
		}
		m.chosen = m.items[m.cursor]
		return m, tea.Quit
	}

	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+maxVisible {
		m.offset = m.cursor - maxVisible + 1
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.chosen != "" || m.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	end := min(m.offset+maxVisible, len(m.items))
	for i := m.offset; i < end; i++ {
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + m.items[i]))
		} else {
			b.WriteString(itemStyle.Render("  " + m.items[i]))
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render(fmt.Sprintf("%d/%d • ↑/↓ move • enter select • q quit", m.cursor+1, len(m.items))))
	return b.String()
}

// listFiles returns the names of the regular files in dir, sorted.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
