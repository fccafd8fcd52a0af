package main

import (
	"context"
	"fmt"
	"os"

	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/store"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	cfg        *config.Config
	profiles   store.ProfileStore
}

// load reads the configuration and opens the profile store on first use.
func (a *app) load(ctx context.Context) error {
	if a.profiles != nil {
		return nil
	}
	_, errStat := os.Stat(a.configPath)
	cfg, err := config.LoadConfigOptional(a.configPath, errStat != nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyEnvironment(cfg, os.LookupEnv)
	profiles, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}
	a.cfg, a.profiles = cfg, profiles
	return nil
}

func (a *app) close() {
	if a.profiles != nil {
		_ = a.profiles.Close()
		a.profiles = nil
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "profilectl",
		Short:         "Administer chat proxy profiles",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "Configure File Path")

	rootCmd.AddCommand(
		newShowCmd(a),
		newCreateCmd(a),
		newSetTierCmd(a),
		newSetFreeQuestionsCmd(a),
		newSetKeyCmd(a),
		newTokenCmd(a),
	)
	return rootCmd
}
