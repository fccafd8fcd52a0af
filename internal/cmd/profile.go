// Package cmd provides CLI command implementations for the chat proxy:
// the service runner and the profile administration commands.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/multichat/chatproxy/internal/store"
	"github.com/multichat/chatproxy/internal/util"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// ProfileInfo is the printable view of a profile. Credentials are masked.
type ProfileInfo struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Tier          string            `json:"subscribe"`
	FreeQuestions int               `json:"free_questions"`
	APIKeys       map[string]string `json:"api_keys,omitempty"`
}

func newProfileInfo(p *store.Profile) ProfileInfo {
	info := ProfileInfo{
		ID:            p.ID,
		UserID:        p.UserID,
		Tier:          p.Tier.String(),
		FreeQuestions: p.FreeQuestions,
	}
	for provider, key := range p.APIKeys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		if info.APIKeys == nil {
			info.APIKeys = make(map[string]string)
		}
		info.APIKeys[provider] = util.MaskCredential(key)
	}
	return info
}

// ShowProfile prints the profile of userID.
func ShowProfile(ctx context.Context, w io.Writer, profiles store.ProfileStore, userID string, jsonOutput bool) error {
	p, err := profiles.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load profile %q: %w", userID, err)
	}
	info := newProfileInfo(p)
	if jsonOutput {
		return outputJSON(w, info)
	}
	return outputTable(w, info)
}

// CreateProfile seeds a NONE-tier profile with freeQuestions. An existing
// profile is left untouched and reported as an error.
func CreateProfile(ctx context.Context, w io.Writer, profiles store.ProfileStore, userID string, freeQuestions int) (*store.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if freeQuestions < 0 {
		return nil, fmt.Errorf("free questions must not be negative, got %d", freeQuestions)
	}
	if existing, err := profiles.GetProfile(ctx, userID); err == nil {
		return existing, fmt.Errorf("profile for %q already exists (id %s)", userID, existing.ID)
	} else if !errors.Is(err, store.ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to check profile %q: %w", userID, err)
	}

	p := &store.Profile{
		ID:            uuid.NewString(),
		UserID:        userID,
		Tier:          store.TierNone,
		FreeQuestions: freeQuestions,
	}
	if err := profiles.CreateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	fmt.Fprintf(w, "%sCreated%s profile %s for %s with %d free questions\n", colorGreen, colorReset, p.ID, p.UserID, p.FreeQuestions)
	return p, nil
}

// SetTier overwrites the subscription tier of userID.
func SetTier(ctx context.Context, w io.Writer, profiles store.ProfileStore, userID, tierName string) error {
	tier, err := store.ParseTier(tierName)
	if err != nil {
		return err
	}
	p, err := profiles.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load profile %q: %w", userID, err)
	}
	if err = profiles.SetTierByID(ctx, p.ID, tier); err != nil {
		return fmt.Errorf("failed to set tier: %w", err)
	}
	fmt.Fprintf(w, "%s: %s -> %s\n", userID, p.Tier, tier)
	return nil
}

// SetFreeQuestions overwrites the free-question quota of userID.
func SetFreeQuestions(ctx context.Context, w io.Writer, profiles store.ProfileStore, userID string, n int) error {
	if n < 0 {
		return fmt.Errorf("free questions must not be negative, got %d", n)
	}
	if err := profiles.SetFreeQuestions(ctx, userID, n); err != nil {
		return fmt.Errorf("failed to set free questions: %w", err)
	}
	fmt.Fprintf(w, "%s: %d free questions\n", userID, n)
	return nil
}

// SetAPIKey stores a per-provider credential on the profile. An empty key
// clears it.
func SetAPIKey(ctx context.Context, w io.Writer, profiles store.ProfileStore, userID, provider, key string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return errors.New("provider is required")
	}
	if err := profiles.SetAPIKey(ctx, userID, provider, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("failed to set %s key: %w", provider, err)
	}
	if key == "" {
		fmt.Fprintf(w, "%s: cleared %s key\n", userID, provider)
	} else {
		fmt.Fprintf(w, "%s: stored %s key %s\n", userID, provider, util.MaskCredential(key))
	}
	return nil
}

// outputJSON outputs data as JSON
func outputJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// outputTable outputs a profile as a formatted table
func outputTable(w io.Writer, info ProfileInfo) error {
	status := colorYellow + info.Tier + colorReset
	switch info.Tier {
	case store.TierActive.String():
		status = colorGreen + info.Tier + colorReset
	case store.TierNone.String():
		if info.FreeQuestions == 0 {
			status = colorRed + info.Tier + colorReset
		}
	}

	fmt.Fprintf(w, "\n%s%s%-38s %-28s %-10s %s%s\n",
		colorBold, colorCyan,
		"PROFILE", "USER", "TIER", "FREE",
		colorReset)
	fmt.Fprintf(w, "%s──────────────────────────────────────────────────────────────────────────────────%s\n", colorDim, colorReset)

	user := info.UserID
	if len(user) > 26 {
		user = user[:23] + "..."
	}
	fmt.Fprintf(w, "%-38s %-28s %-19s %d\n", info.ID, user, status, info.FreeQuestions)

	if len(info.APIKeys) > 0 {
		providers := make([]string, 0, len(info.APIKeys))
		for provider := range info.APIKeys {
			providers = append(providers, provider)
		}
		sort.Strings(providers)
		fmt.Fprintf(w, "%sKeys:%s\n", colorDim, colorReset)
		for _, provider := range providers {
			fmt.Fprintf(w, "  %-12s %s\n", provider, info.APIKeys[provider])
		}
	}
	fmt.Fprintln(w)
	return nil
}
