package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"media-dispatcher/internal/app"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Load configuration and wire components
	a, err := app.Load(context.Background(), *configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing application")
	}
	defer a.Close()

	a.Monitor.Start()

	// Create and run server
	srv := a.Server()
	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
}
