// Package billing moves profiles between subscription tiers in response to
// PayPal sale events and the in-app approve/check calls.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/multichat/chatproxy/internal/store"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// PayPal sale event types.
const (
	EventSaleCompleted = "PAYMENT.SALE.COMPLETED"
	EventSaleDenied    = "PAYMENT.SALE.DENIED"
	EventSaleRefunded  = "PAYMENT.SALE.REFUNDED"
	EventSaleReversed  = "PAYMENT.SALE.REVERSED"
)

// Webhook error messages returned to PayPal.
const (
	MsgMissingCustomID = "custom id does not exist"
	MsgBuyerLookup     = "failed to get buyer info"
	MsgTierUpdate      = "failed to set pricing status of buyer"
)

// Event is the part of a webhook notification the processor reads.
type Event struct {
	ID   string
	Type string
	// Custom is the buyer's profile id carried through the sale.
	Custom string
}

// ParseEvent reads an event from a raw notification body.
func ParseEvent(body []byte) (Event, error) {
	if !gjson.ValidBytes(body) {
		return Event{}, errors.New("webhook body is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	return Event{
		ID:     root.Get("id").String(),
		Type:   root.Get("event_type").String(),
		Custom: root.Get("resource.custom").String(),
	}, nil
}

// Outcome is the webhook response body. Error responses still use HTTP 200.
type Outcome struct {
	Success      bool
	ErrorMessage string
}

// JSON renders the outcome as {success} or {error:{message}}.
func (o Outcome) JSON() map[string]any {
	if o.ErrorMessage != "" {
		return map[string]any{"error": map[string]string{"message": o.ErrorMessage}}
	}
	return map[string]any{"success": o.Success}
}

// Processor applies payment events and tier requests to the profile store.
type Processor struct {
	profiles store.ProfileStore
}

// NewProcessor builds a processor over profiles.
func NewProcessor(profiles store.ProfileStore) *Processor {
	return &Processor{profiles: profiles}
}

// HandleEvent applies one sale event:
//   - COMPLETED activates the buyer's subscription;
//   - DENIED, REFUNDED and REVERSED drop the buyer back to no subscription;
//   - anything else is acknowledged without changes.
func (p *Processor) HandleEvent(ctx context.Context, ev Event) Outcome {
	var target store.Tier
	switch ev.Type {
	case EventSaleCompleted:
		if ev.Custom == "" {
			return Outcome{ErrorMessage: MsgMissingCustomID}
		}
		target = store.TierActive
	case EventSaleDenied, EventSaleRefunded, EventSaleReversed:
		if ev.Custom == "" {
			return Outcome{Success: false}
		}
		target = store.TierNone
	default:
		log.WithFields(log.Fields{"event_id": ev.ID, "event_type": ev.Type}).Debug("paypal webhook: ignoring event")
		return Outcome{Success: true}
	}

	fields := log.Fields{"event_id": ev.ID, "event_type": ev.Type, "profile_id": ev.Custom}
	buyer, err := p.profiles.GetProfileByID(ctx, ev.Custom)
	if err != nil {
		log.WithFields(fields).Warnf("paypal webhook: buyer lookup failed: %v", err)
		return Outcome{ErrorMessage: MsgBuyerLookup}
	}
	if err = p.profiles.SetTierByID(ctx, buyer.ID, target); err != nil {
		log.WithFields(fields).Errorf("paypal webhook: tier update failed: %v", err)
		return Outcome{ErrorMessage: MsgTierUpdate}
	}
	log.WithFields(fields).Infof("paypal webhook: tier %s -> %s", buyer.Tier, target)
	return Outcome{Success: true}
}

// Approve marks a NONE profile as PENDING after the buyer approved a
// subscription in the PayPal popup, and returns the resulting tier.
func (p *Processor) Approve(ctx context.Context, userID string) (store.Tier, error) {
	profile, err := p.profiles.GetProfile(ctx, userID)
	if err != nil {
		return store.TierNone, fmt.Errorf("approve: %w", err)
	}
	if profile.Tier != store.TierNone {
		return profile.Tier, nil
	}
	swapped, err := p.profiles.CompareAndSetTier(ctx, userID, store.TierNone, store.TierPending)
	if err != nil {
		return store.TierNone, fmt.Errorf("approve: %w", err)
	}
	if swapped {
		return store.TierPending, nil
	}
	// A webhook moved the profile in between; report where it landed.
	profile, err = p.profiles.GetProfile(ctx, userID)
	if err != nil {
		return store.TierNone, fmt.Errorf("approve: %w", err)
	}
	return profile.Tier, nil
}

// Check returns the caller's current tier.
func (p *Processor) Check(ctx context.Context, userID string) (store.Tier, error) {
	profile, err := p.profiles.GetProfile(ctx, userID)
	if err != nil {
		return store.TierNone, fmt.Errorf("check: %w", err)
	}
	return profile.Tier, nil
}
