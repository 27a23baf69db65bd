package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"smartual/internal/bootstrap"
	"smartual/internal/config"
	"smartual/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, logPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/smartual/config.yaml if not provided)")
	flag.StringVar(&logPath, "log", "smartual.log", "File the TUI writes its logs to")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// The alt screen owns stdout, so logs go to a file.
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("open log file: %v", err)
	}
	defer logFile.Close()
	logger := bootstrap.NewLogger(cfg.Log, logFile)

	app, err := bootstrap.Build(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.Close()

	m := tui.New(app.Engine, time.Duration(cfg.Server.QueryTimeoutSecs)*time.Second)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		logger.Error("tui exited with error", "error", err)
		log.Fatal(err)
	}
}
