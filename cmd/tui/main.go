package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"media-dispatcher/internal/app"
	"media-dispatcher/internal/tui"
	"media-dispatcher/pkg/models"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	userID := flag.Int64("user", 1, "User ID the links are sent as")
	flag.Parse()

	a, err := app.Load(context.Background(), *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	// Component logs would draw over the alternate screen
	zerolog.SetGlobalLevel(zerolog.Disabled)

	model := tui.InitialModel(a.Pipeline, models.UserID(*userID), a.Limits())

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
