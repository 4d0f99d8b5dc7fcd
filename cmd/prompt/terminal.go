package prompt

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
)

// Terminal runs the interactive prompts on a terminal.
type Terminal struct {
	// Dir is where SelectFile looks for input files.
	Dir string
	In  io.Reader
	Out io.Writer
}

// SelectFile lets the user pick one of the regular files in t.Dir and
// returns its path.
func (t *Terminal) SelectFile(ctx context.Context) (string, error) {
	dir := t.Dir
	if dir == "" {
		dir = "."
	}
	files, err := listFiles(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoFiles, dir)
	}

	final, err := t.run(ctx, newPickerModel("Select the file to upload", files))
	if err != nil {
		return "", err
	}
	m := final.(pickerModel)
	if m.cancelled || m.chosen == "" {
		return "", ErrCancelled
	}
	return filepath.Join(dir, m.chosen), nil
}

// PromptCredentials implements credentials.Prompter.
func (t *Terminal) PromptCredentials(ctx context.Context) (string, string, error) {
	final, err := t.run(ctx, newLoginModel())
	if err != nil {
		return "", "", err
	}
	m := final.(loginModel)
	if m.cancelled || !m.done {
		return "", "", ErrCancelled
	}
	user, password := m.values()
	return user, password, nil
}

func (t *Terminal) run(ctx context.Context, model tea.Model) (tea.Model, error) {
	opts := []tea.ProgramOption{tea.WithoutSignalHandler()}
	if t.In != nil {
		opts = append(opts, tea.WithInput(t.In))
	}
	if t.Out != nil {
		opts = append(opts, tea.WithOutput(t.Out))
	}
	program := tea.NewProgram(model, opts...)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			program.Quit()
		case <-stop:
		}
	}()

	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("error running prompt: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return final, nil
}
