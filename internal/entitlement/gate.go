// Package entitlement decides whether a caller may invoke a model given the
// subscription tier and free-question quota on their profile, and debits the
// quota after a successful free-tier completion.
package entitlement

import (
	"context"
	"errors"
	"strings"

	"github.com/multichat/chatproxy/internal/config"
	apperrors "github.com/multichat/chatproxy/internal/errors"
	"github.com/multichat/chatproxy/internal/store"
	log "github.com/sirupsen/logrus"
)

// Decision is the outcome of a permitted Authorize call.
type Decision struct {
	UserID string
	Model  string
	// Charge is set when a successful completion must debit one free question.
	Charge bool
}

// Gate applies the tier policy. It holds no per-request state.
type Gate struct {
	profiles   store.ProfileStore
	freeModels map[string]struct{}
}

// NewGate builds a gate over profiles with the given free-tier model set.
func NewGate(profiles store.ProfileStore, freeModels map[string]struct{}) *Gate {
	if freeModels == nil {
		freeModels = map[string]struct{}{}
	}
	return &Gate{profiles: profiles, freeModels: freeModels}
}

// IsFreeModel reports membership in the free-tier set.
func (g *Gate) IsFreeModel(model string) bool {
	_, ok := g.freeModels[model]
	return ok
}

// IsFreeRequest reports whether model counts as free when served by adapter.
// Free-tier models are only honoured on the OpenAI route; the same model name
// sent to any other adapter is a paid request.
func (g *Gate) IsFreeRequest(adapter, model string) bool {
	return adapter == config.ProviderOpenAI && g.IsFreeModel(model)
}

// Lookup performs the single profile read of a request.
func (g *Gate) Lookup(ctx context.Context, userID string) (*store.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Unauthenticated(nil)
	}
	p, err := g.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, apperrors.ProfileLookup(err)
	}
	return p, nil
}

// Authorize evaluates the policy for model served by adapter, in order:
//  1. a free-tier model on the OpenAI adapter for a NONE profile is allowed while quota remains and
//     is charged on completion;
//  2. any other model on a NONE profile requires an upgrade;
//  3. a PENDING profile waits for its upgrade unless the model is free;
//  4. everything else is allowed without charge.
func (g *Gate) Authorize(p *store.Profile, adapter, model string) (Decision, error) {
	if p == nil {
		return Decision{}, apperrors.Unauthenticated(nil)
	}
	d := Decision{UserID: p.UserID, Model: model}
	free := g.IsFreeRequest(adapter, model)
	switch {
	case free && p.Tier == store.TierNone:
		if p.FreeQuestions < 1 {
			return Decision{}, apperrors.NoFreeQuestions()
		}
		d.Charge = true
		return d, nil
	case p.Tier == store.TierNone:
		return Decision{}, apperrors.UpgradeRequired()
	case p.Tier == store.TierPending && !free:
		return Decision{}, apperrors.UpgradePending()
	default:
		return d, nil
	}
}

// Check combines Lookup and Authorize.
func (g *Gate) Check(ctx context.Context, userID, adapter, model string) (*store.Profile, Decision, error) {
	p, err := g.Lookup(ctx, userID)
	if err != nil {
		return nil, Decision{}, err
	}
	d, err := g.Authorize(p, adapter, model)
	if err != nil {
		return p, Decision{}, err
	}
	return p, d, nil
}

// Commit applies the decision's side effect: one atomic conditional
// decrement for charged decisions, nothing otherwise. A concurrent request
// that consumed the last question surfaces as NoFreeQuestions. When the
// decrement misses because the profile left the NONE tier mid-request the
// completion was already entitled, so nothing is charged and no error is
// returned.
func (g *Gate) Commit(ctx context.Context, d Decision) error {
	if !d.Charge {
		return nil
	}
	remaining, err := g.profiles.DecrementFreeQuestions(ctx, d.UserID)
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			if p, errGet := g.profiles.GetProfile(ctx, d.UserID); errGet == nil && p.Tier != store.TierNone {
				log.WithFields(log.Fields{"user_id": d.UserID, "model": d.Model, "tier": p.Tier.String()}).Debug("free question not debited: profile upgraded")
				return nil
			}
			return apperrors.NoFreeQuestions()
		}
		return apperrors.ProfileUpdate(err)
	}
	log.WithFields(log.Fields{"user_id": d.UserID, "model": d.Model, "remaining": remaining}).Debug("free question debited")
	return nil
}
