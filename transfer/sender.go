package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"coverflow/settlement"
)

// Sender delivers one settled transfer to the value layer.
type Sender interface {
	Send(ctx context.Context, item settlement.OutboxTransfer) error
}

// HTTPSender posts transfers to the wallet bridge sidecar, which holds the
// signing keys and submits the actual chain messages.
type HTTPSender struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSender builds a sender against the bridge at baseURL.
func NewHTTPSender(baseURL, apiKey string) *HTTPSender {
	return &HTTPSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send submits a single transfer. The outbox row id doubles as the bridge's
// deduplication reference, so retried deliveries stay at-most-once on chain.
func (s *HTTPSender) Send(ctx context.Context, item settlement.OutboxTransfer) error {
	body, err := json.Marshal(map[string]any{
		"reference": item.ID,
		"policy_id": item.PolicyID,
		"recipient": item.Recipient,
		"amount":    item.Amount,
		"kind":      string(item.Kind),
	})
	if err != nil {
		return fmt.Errorf("transfer: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transfer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("transfer: post to wallet bridge: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("transfer: wallet bridge returned %s", resp.Status)
	}
	return nil
}

// LogSender records transfers instead of delivering them. It stands in for
// the wallet bridge when none is configured.
type LogSender struct {
	log zerolog.Logger
}

// NewLogSender builds a sender that writes to log.
func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the transfer and reports success.
func (s *LogSender) Send(_ context.Context, item settlement.OutboxTransfer) error {
	s.log.Info().
		Str("transfer_id", item.ID).
		Uint64("policy_id", item.PolicyID).
		Str("recipient", item.Recipient).
		Int64("amount", item.Amount).
		Str("kind", string(item.Kind)).
		Msg("transfer recorded without delivery")
	return nil
}
