package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"coverflow/escrow"
	"coverflow/telemetry"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram announces settled escrows to a chat via the Bot API. Delivery is
// best effort: every failure is logged and counted, none is surfaced to the
// settlement path.
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	log      zerolog.Logger
	metrics  *telemetry.Metrics

	retries int
}

// NewTelegram creates an announcer for the given bot and chat.
func NewTelegram(botToken, chatID string, log zerolog.Logger, metrics *telemetry.Metrics) *Telegram {
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log,
		metrics:  metrics,
		retries:  2,
	}
}

// EscrowSettled formats and sends the terminal-transition announcement.
func (t *Telegram) EscrowSettled(ctx context.Context, esc *escrow.Escrow, op escrow.Op) {
	if t.botToken == "" || t.chatID == "" {
		return
	}

	text := formatSettlement(esc, op)
	if err := t.sendWithRetry(ctx, text); err != nil {
		t.metrics.RecordNotification("failed")
		t.log.Warn().Err(err).Uint64("policy_id", esc.PolicyID).Msg("settlement announcement failed")
		return
	}
	t.metrics.RecordNotification("sent")
}

func formatSettlement(esc *escrow.Escrow, op escrow.Op) string {
	var headline string
	switch esc.Status {
	case escrow.StatusPaidOut:
		headline = "✅ Claim paid"
	case escrow.StatusExpired:
		headline = "⌛ Coverage expired"
	case escrow.StatusCancelled:
		headline = "🛑 Escrow cancelled"
	default:
		headline = "Escrow settled"
	}

	return fmt.Sprintf(
		"%s\nPolicy: <b>#%d</b>\nProduct: %s / %s\nOperation: %s\nCollateral: %d nanoton",
		headline, esc.PolicyID, esc.ProductType, esc.AssetID, op, esc.CollateralAmount,
	)
}

func (t *Telegram) sendWithRetry(ctx context.Context, text string) error {
	var lastErr error
	for i := 0; i <= t.retries; i++ {
		if err := t.send(ctx, text); err != nil {
			lastErr = err
			backoff := time.Duration(1<<uint(i)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("notify: %d attempts exhausted: %w", t.retries+1, lastErr)
}

func (t *Telegram) send(ctx context.Context, text string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: telegram API status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
