package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"coverflow/telemetry"
)

// Config wires a watcher to one oracle price stream.
type Config struct {
	WSURL           string
	RESTURL         string
	Assets          []string
	Threshold       uint32
	TriggerDuration time.Duration
	ReconnectMax    time.Duration
	SnapshotsPerMin int
}

// Watcher subscribes to the oracle price stream, runs every update through
// the breach tracker, and publishes depeg events. While the stream is down
// it falls back to rate-limited REST snapshots so a depeg during an outage
// is still observed.
type Watcher struct {
	cfg       Config
	tracker   *Tracker
	events    chan DepegEvent
	log       zerolog.Logger
	metrics   *telemetry.Metrics
	snapshots *rate.Limiter
	client    *http.Client
}

// NewWatcher builds a watcher for the given stream and trigger terms.
func NewWatcher(cfg Config, log zerolog.Logger, metrics *telemetry.Metrics) *Watcher {
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.SnapshotsPerMin <= 0 {
		cfg.SnapshotsPerMin = 12
	}
	return &Watcher{
		cfg:       cfg,
		tracker:   NewTracker(cfg.Threshold, cfg.TriggerDuration),
		events:    make(chan DepegEvent, 16),
		log:       log,
		metrics:   metrics,
		snapshots: rate.NewLimiter(rate.Limit(float64(cfg.SnapshotsPerMin)/60), 1),
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Events returns the channel qualifying breaches are published on.
func (w *Watcher) Events() <-chan DepegEvent {
	return w.events
}

// priceMessage is the stream's wire format for one observation.
type priceMessage struct {
	Asset    string `json:"asset"`
	PriceBps uint32 `json:"price_bps"`
	TS       int64  `json:"ts"`
}

// Run connects and re-connects until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.cfg.WSURL, nil)
		if err != nil {
			w.log.Warn().Err(err).Dur("backoff", backoff).Msg("price stream dial failed")
			w.pollSnapshot(ctx)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > w.cfg.ReconnectMax {
				backoff = w.cfg.ReconnectMax
			}
			continue
		}
		backoff = time.Second

		if err := w.subscribe(conn); err != nil {
			w.log.Warn().Err(err).Msg("price stream subscribe failed")
			conn.Close()
			continue
		}
		w.log.Info().Str("url", w.cfg.WSURL).Strs("assets", w.cfg.Assets).Msg("price stream connected")

		w.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.metrics.RecordFeedReconnect()
	}
}

func (w *Watcher) subscribe(conn *websocket.Conn) error {
	sub := map[string]any{"op": "subscribe", "assets": w.cfg.Assets}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	return nil
}

// readLoop consumes the connection until it breaks or ctx is cancelled.
func (w *Watcher) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				w.log.Warn().Err(err).Msg("price stream read error, reconnecting")
			}
			return
		}

		var pm priceMessage
		if err := json.Unmarshal(msg, &pm); err != nil {
			w.log.Debug().Err(err).Msg("undecodable price message")
			continue
		}
		if pm.Asset == "" {
			continue
		}
		w.handleUpdate(PriceUpdate{
			AssetID:   pm.Asset,
			PriceBps:  pm.PriceBps,
			Timestamp: time.Unix(pm.TS, 0).UTC(),
		})
	}
}

func (w *Watcher) handleUpdate(u PriceUpdate) {
	event, fired := w.tracker.Observe(u)
	if !fired {
		return
	}
	w.metrics.RecordTriggerEvent(event.AssetID)
	select {
	case w.events <- event:
		w.log.Info().
			Str("asset", event.AssetID).
			Uint32("lowest_bps", event.LowestBps).
			Time("window_start", event.WindowStart).
			Msg("depeg trigger observed")
	default:
		w.log.Warn().Str("asset", event.AssetID).Msg("event channel full, dropping trigger")
	}
}

// pollSnapshot fetches current prices over REST while the stream is down.
func (w *Watcher) pollSnapshot(ctx context.Context) {
	if w.cfg.RESTURL == "" || !w.snapshots.Allow() {
		return
	}

	url := strings.TrimRight(w.cfg.RESTURL, "/") + "/v1/prices?assets=" + strings.Join(w.cfg.Assets, ",")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		w.log.Warn().Err(err).Msg("snapshot request build failed")
		return
	}
	resp, err := w.client.Do(req)
	if err != nil {
		w.log.Warn().Err(err).Msg("snapshot fetch failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		w.log.Warn().Str("status", resp.Status).Msg("snapshot fetch rejected")
		return
	}

	var prices []priceMessage
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		w.log.Warn().Err(err).Msg("snapshot decode failed")
		return
	}
	for _, pm := range prices {
		if pm.Asset == "" {
			continue
		}
		w.handleUpdate(PriceUpdate{
			AssetID:   pm.Asset,
			PriceBps:  pm.PriceBps,
			Timestamp: time.Unix(pm.TS, 0).UTC(),
		})
	}
}
