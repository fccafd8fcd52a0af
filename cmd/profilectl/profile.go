package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/multichat/chatproxy/internal/cmd"
	"github.com/multichat/chatproxy/internal/session"
	"github.com/spf13/cobra"
)

func newShowCmd(a *app) *cobra.Command {
	var jsonOutput bool
	c := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := a.load(c.Context()); err != nil {
				return err
			}
			return cmd.ShowProfile(c.Context(), c.OutOrStdout(), a.profiles, args[0], jsonOutput)
		},
	}
	c.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return c
}

func newCreateCmd(a *app) *cobra.Command {
	var freeQuestions int
	c := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Create a profile on the free tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := a.load(c.Context()); err != nil {
				return err
			}
			n := a.cfg.GetDefaultFreeQuestions()
			if c.Flags().Changed("free-questions") {
				n = freeQuestions
			}
			_, err := cmd.CreateProfile(c.Context(), c.OutOrStdout(), a.profiles, args[0], n)
			return err
		},
	}
	c.Flags().IntVar(&freeQuestions, "free-questions", 0, "Initial free questions (default from config)")
	return c
}

func newSetTierCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-tier <user-id> <none|pending|active>",
		Short: "Overwrite a profile's subscription tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			if err := a.load(c.Context()); err != nil {
				return err
			}
			return cmd.SetTier(c.Context(), c.OutOrStdout(), a.profiles, args[0], args[1])
		},
	}
}

func newSetFreeQuestionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-free-questions <user-id> <count>",
		Short: "Overwrite a profile's free-question quota",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid count %q: %w", args[1], err)
			}
			if err = a.load(c.Context()); err != nil {
				return err
			}
			return cmd.SetFreeQuestions(c.Context(), c.OutOrStdout(), a.profiles, args[0], n)
		},
	}
}

func newSetKeyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <user-id> <provider> [key]",
		Short: "Store a provider key on a profile; omit the key to clear it",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(c *cobra.Command, args []string) error {
			if err := a.load(c.Context()); err != nil {
				return err
			}
			key := ""
			if len(args) == 3 {
				key = args[2]
			}
			return cmd.SetAPIKey(c.Context(), c.OutOrStdout(), a.profiles, args[0], args[1], key)
		},
	}
}

func newTokenCmd(a *app) *cobra.Command {
	var ttl time.Duration
	c := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a session token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := a.load(c.Context()); err != nil {
				return err
			}
			if a.cfg.Session.JWTSecret == "" {
				return fmt.Errorf("session.jwt-secret is not configured")
			}
			token, err := session.IssueToken(a.cfg.Session.JWTSecret, args[0], ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(c.OutOrStdout(), token)
			return nil
		},
	}
	c.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return c
}
