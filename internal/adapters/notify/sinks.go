package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/fishy/internal/adapters/mq/worker"
	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/internal/domain/types"
	"github.com/okian/fishy/pkg/logger"
)

var (
	_ worker.Sink = (*LogSink)(nil)
	_ worker.Sink = (*WebhookSink)(nil)
	_ worker.Sink = (*Hub)(nil)
)

// LogSink writes every event as a structured log line.
type LogSink struct {
	log logger.Logger
}

// NewLogSink returns a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{log: logger.Get().Named("trade-events")}
}

// Name implements worker.Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements worker.Sink.
func (s *LogSink) Deliver(ctx context.Context, e model.TradeEvent) error { //nolint:gocritic // hugeParam: event passed by value
	s.log.Info(ctx, "trade "+string(e.Session.State),
		logger.String("trade_id", e.Session.ID),
		logger.String("list_id", e.Session.ListID),
		logger.String("requester", e.Session.Requester),
		logger.String("target", e.Session.Target),
		logger.String("recipients", strings.Join(e.Recipients(), ",")),
		logger.String("reason", e.Session.Reason),
	)
	return nil
}

// WebhookSink POSTs each event as JSON to a fixed URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink returns a sink posting to url. A nil client gets a 10s timeout client.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSink{url: url, client: client}
}

// Name implements worker.Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Deliver implements worker.Sink. Any non-2xx response is an error.
func (s *WebhookSink) Deliver(ctx context.Context, e model.TradeEvent) error { //nolint:gocritic // hugeParam: event passed by value
	body, err := json.Marshal(types.NewTradeEvent(e))
	if err != nil {
		return fmt.Errorf("webhook: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "fishy-notify")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
