// pimbridge exposes the local macOS PIM surfaces (Contacts, Messages, Mail,
// Calendar, Notes, Reminders) as MCP tools over stdio.
//
// Logs go to stderr; stdout carries only the JSON-RPC stream.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pimbridge/pimbridge/config"
)

const serverVersion = "1.0.0"

func main() {
	loadDotEnv()

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "pimbridge: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	app := newApp(cfg)

	s := server.NewMCPServer(
		"pimbridge",
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	app.registerTools(s)

	log.Info().Str("version", serverVersion).Msg("starting stdio server")
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "pimbridge: server error: %v\n", err)
		os.Exit(1)
	}
}

// loadDotEnv loads a .env next to the executable or in the working
// directory. Missing files are fine.
func loadDotEnv() {
	paths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		paths = append([]string{filepath.Join(filepath.Dir(exe), ".env")}, paths...)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

func configPath() string {
	if p := os.Getenv("PIMBRIDGE_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "pimbridge", "config.yaml")
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(os.Stderr).Level(parsed).With().Timestamp().Logger()
}
