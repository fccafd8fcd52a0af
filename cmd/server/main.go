// Package main provides the entry point for the chat proxy server.
// It serves authenticated, quota-gated chat and image requests to several
// LLM providers and relays their streamed output to the browser.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/multichat/chatproxy/internal/cmd"
	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/logging"
	"github.com/multichat/chatproxy/internal/store"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = "config.yaml"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
}

func main() {
	var configPath string
	var showVersion bool
	var noWatch bool

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&noWatch, "no-watch", false, "Disable configuration hot reload")
	flag.Parse()

	if showVersion {
		fmt.Printf("chatproxy Version: %s, Commit: %s, BuiltAt: %s\n", Version, Commit, BuildDate)
		return
	}

	if err := run(configPath, noWatch); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(configPath string, noWatch bool) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, fs.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	// A missing file is allowed so the server can run from environment
	// variables alone.
	_, errStat := os.Stat(configPath)
	configExists := errStat == nil
	cfg, err := config.LoadConfigOptional(configPath, !configExists)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyEnvironment(cfg, os.LookupEnv)

	warnings, err := config.ValidateConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, w := range warnings {
		log.Warnf("config warning: %s", w)
	}

	if err = logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogDir); err != nil {
		return fmt.Errorf("failed to configure log output: %w", err)
	}
	level := cfg.LogLevel
	if cfg.Debug && level == "" {
		level = "debug"
	}
	logging.SetLogLevel(level)
	log.Infof("chatproxy Version: %s, Commit: %s, BuiltAt: %s", Version, Commit, BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profiles, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}
	defer func() {
		if errClose := profiles.Close(); errClose != nil {
			log.Errorf("failed to close profile store: %v", errClose)
		}
	}()

	watchPath := configPath
	if noWatch || !configExists {
		watchPath = ""
	}
	return cmd.StartService(ctx, cfg, watchPath, profiles)
}
