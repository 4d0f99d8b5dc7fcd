package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"github.com/ackruti/Oracle-etl-tool/cmd"
	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
)

var (
	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF0000")).
		Bold(true)
)

func main() {
	// Register signals before cobra runs so SIGINT cancels in-flight queries
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cmd.Execute(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("❌ Error: "+err.Error()))
		}
		os.Exit(etlerr.ExitCode(err))
	}
}
