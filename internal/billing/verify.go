package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/multichat/chatproxy/internal/config"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrInvalidSignature is returned when PayPal does not confirm a notification.
var ErrInvalidSignature = errors.New("paypal webhook signature verification failed")

// Verifier authenticates webhook notifications.
type Verifier interface {
	Verify(ctx context.Context, header http.Header, body []byte) error
}

// PayPalVerifier asks PayPal's verify-webhook-signature API whether a
// notification was sent by PayPal for the configured webhook.
type PayPalVerifier struct {
	apiBase   string
	webhookID string
	client    *http.Client
}

// NewPayPalVerifier returns nil when verification is not configured.
func NewPayPalVerifier(ctx context.Context, cfg config.PayPalConfig) *PayPalVerifier {
	if !cfg.Enabled() {
		return nil
	}
	base := strings.TrimSuffix(cfg.APIBase, "/")
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return &PayPalVerifier{apiBase: base, webhookID: cfg.WebhookID, client: cc.Client(ctx)}
}

// Verify posts the transmission headers and raw event to PayPal.
func (v *PayPalVerifier) Verify(ctx context.Context, header http.Header, body []byte) error {
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("%w: body is not valid JSON", ErrInvalidSignature)
	}
	required := map[string]string{
		"auth_algo":         header.Get("PAYPAL-AUTH-ALGO"),
		"cert_url":          header.Get("PAYPAL-CERT-URL"),
		"transmission_id":   header.Get("PAYPAL-TRANSMISSION-ID"),
		"transmission_sig":  header.Get("PAYPAL-TRANSMISSION-SIG"),
		"transmission_time": header.Get("PAYPAL-TRANSMISSION-TIME"),
	}
	for field, value := range required {
		if value == "" {
			return fmt.Errorf("%w: missing %s", ErrInvalidSignature, field)
		}
	}
	payload := struct {
		AuthAlgo         string          `json:"auth_algo"`
		CertURL          string          `json:"cert_url"`
		TransmissionID   string          `json:"transmission_id"`
		TransmissionSig  string          `json:"transmission_sig"`
		TransmissionTime string          `json:"transmission_time"`
		WebhookID        string          `json:"webhook_id"`
		WebhookEvent     json.RawMessage `json:"webhook_event"`
	}{
		AuthAlgo:         required["auth_algo"],
		CertURL:          required["cert_url"],
		TransmissionID:   required["transmission_id"],
		TransmissionSig:  required["transmission_sig"],
		TransmissionTime: required["transmission_time"],
		WebhookID:        v.webhookID,
		WebhookEvent:     body,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.apiBase+"/v1/notifications/verify-webhook-signature", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("paypal verify: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paypal verify: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("paypal verify: status %d: %s", resp.StatusCode, gjson.GetBytes(data, "message").String())
	}
	if status := gjson.GetBytes(data, "verification_status").String(); status != "SUCCESS" {
		return fmt.Errorf("%w: status %q", ErrInvalidSignature, status)
	}
	return nil
}
