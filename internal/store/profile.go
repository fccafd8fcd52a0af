// Package store persists user profiles: subscription tier, free-question
// quota and per-provider credentials. Two backends are provided, Postgres
// for deployments and SQLite for local use, behind the ProfileStore
// interface.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrProfileNotFound is returned when no profile matches the lookup key.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrConditionFailed is returned when a conditional update matched no row.
	ErrConditionFailed = errors.New("profile update precondition failed")
	// ErrInvalidProvider is returned for credential names outside providerNamePattern.
	ErrInvalidProvider = errors.New("invalid provider name")
)

// providerNamePattern covers built-in provider ids and "custom:<name>" keys.
var providerNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9:._-]*$`)

// ValidateProvider rejects credential names that could not be stored as a
// plain key in the api_keys document.
func ValidateProvider(provider string) error {
	if !providerNamePattern.MatchString(provider) {
		return fmt.Errorf("%w: %q", ErrInvalidProvider, provider)
	}
	return nil
}

// Tier is the subscription state persisted in the "subscribe" column.
type Tier int

const (
	TierNone    Tier = 0
	TierPending Tier = 1
	TierActive  Tier = 2
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierPending:
		return "pending"
	case TierActive:
		return "active"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t == TierNone || t == TierPending || t == TierActive
}

// ParseTier accepts a tier name or its numeric value.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "0":
		return TierNone, nil
	case "pending", "1":
		return TierPending, nil
	case "active", "2":
		return TierActive, nil
	default:
		return TierNone, fmt.Errorf("unknown tier %q", s)
	}
}

// Profile is the slice of the user profile the proxy reads and writes.
type Profile struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Tier          Tier              `json:"subscribe"`
	FreeQuestions int               `json:"free_questions"`
	APIKeys       map[string]string `json:"-"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// APIKey returns the profile's own credential for provider, if any.
func (p *Profile) APIKey(provider string) string {
	if p == nil || p.APIKeys == nil {
		return ""
	}
	return strings.TrimSpace(p.APIKeys[provider])
}

// ProfileStore is the persistence contract used by the entitlement gate, the
// payment handlers and the admin CLI. Every method is a single point read or
// a single atomic write.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	GetProfileByID(ctx context.Context, profileID string) (*Profile, error)
	CreateProfile(ctx context.Context, p *Profile) error
	// DecrementFreeQuestions removes one free question from a NONE-tier
	// profile with a positive quota and returns the remaining count.
	// ErrConditionFailed means the precondition did not hold.
	DecrementFreeQuestions(ctx context.Context, userID string) (int, error)
	// SetFreeQuestions overwrites the quota.
	SetFreeQuestions(ctx context.Context, userID string, n int) error
	// SetTierByID overwrites the tier of the profile with the given id.
	SetTierByID(ctx context.Context, profileID string, tier Tier) error
	// CompareAndSetTier moves userID from one tier to another, reporting
	// whether the row was in the expected tier.
	CompareAndSetTier(ctx context.Context, userID string, from, to Tier) (bool, error)
	// SetAPIKey stores or clears (empty key) a per-provider credential.
	SetAPIKey(ctx context.Context, userID, provider, key string) error
	Close() error
}

func encodeAPIKeys(keys map[string]string) ([]byte, error) {
	if keys == nil {
		keys = map[string]string{}
	}
	return json.Marshal(keys)
}

func decodeAPIKeys(raw []byte) (map[string]string, error) {
	keys := map[string]string{}
	if len(raw) == 0 {
		return keys, nil
	}
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("decode api_keys: %w", err)
	}
	return keys, nil
}
