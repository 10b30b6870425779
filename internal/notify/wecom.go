package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/codecheck/internal/retry"
	"github.com/codecheck/internal/segment"
)

// MessageType is the msgtype of a group bot message
type MessageType string

const (
	MessageMarkdown MessageType = "markdown"
	MessageText     MessageType = "text"
)

// ParseMessageType maps a configuration value to a MessageType
func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(s) {
	case "", MessageMarkdown:
		return MessageMarkdown, nil
	case MessageText:
		return MessageText, nil
	}
	return "", fmt.Errorf("unknown message type %q", s)
}

// errcode the group bot returns when it is sending too fast
const wecomRateLimited = 45009

// Notifier delivers a rendered report
type Notifier interface {
	Notify(ctx context.Context, report string) error
}

// WeComOptions configures a WeCom group bot transport
type WeComOptions struct {
	WebhookURL  string
	MessageType MessageType
	// Interval is the minimum time between two chunks
	Interval time.Duration
	Timeout  time.Duration
	Retry    retry.Config
}

// WeCom posts reports to a WeCom (WeChat Work) group bot webhook
type WeCom struct {
	webhookURL  string
	messageType MessageType
	httpClient  *http.Client
	limiter     *rate.Limiter
	retry       retry.Config
	splitter    *segment.Splitter
}

// NewWeCom creates a group bot transport
func NewWeCom(opts WeComOptions) *WeCom {
	if opts.MessageType == "" {
		opts.MessageType = MessageMarkdown
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}

	splitter := segment.ForMarkdown()
	if opts.MessageType == MessageText {
		splitter = segment.ForText()
	}

	return &WeCom{
		webhookURL:  opts.WebhookURL,
		messageType: opts.MessageType,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(limit, 1),
		retry:       opts.Retry,
		splitter:    splitter,
	}
}

// Splitter returns the segmenter matching the message type
func (w *WeCom) Splitter() *segment.Splitter {
	return w.splitter
}

// Notify splits the report and sends every chunk in order. It stops at the
// first chunk that could not be delivered.
func (w *WeCom) Notify(ctx context.Context, report string) error {
	chunks := w.splitter.Split(report)
	sent, err := w.SendChunks(ctx, chunks)
	log.Info().
		Int("chunks", len(chunks)).
		Int("sent", sent).
		Str("msgtype", string(w.messageType)).
		Msg("Report delivered to group bot")
	return err
}

// SendChunks posts the chunks one by one, paced by the configured interval,
// and returns how many were accepted.
func (w *WeCom) SendChunks(ctx context.Context, chunks []string) (int, error) {
	for i, chunk := range chunks {
		if err := w.limiter.Wait(ctx); err != nil {
			return i, err
		}

		result := retry.Do(ctx, w.retry, func(ctx context.Context) error {
			return w.post(ctx, chunk)
		}, log.Logger)
		if !result.Success {
			return i, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), result.LastError)
		}
	}
	return len(chunks), nil
}

type wecomResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (w *WeCom) post(ctx context.Context, content string) error {
	body, err := json.Marshal(map[string]any{
		"msgtype":             w.messageType,
		string(w.messageType): map[string]string{"content": content},
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("group bot returned HTTP %d: %s", resp.StatusCode, respBody)
	}

	var result wecomResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	switch {
	case result.ErrCode == wecomRateLimited:
		return fmt.Errorf("group bot rate limit (errcode %d): %s", result.ErrCode, result.ErrMsg)
	case result.ErrCode != 0:
		return fmt.Errorf("group bot rejected message (errcode %d): %s", result.ErrCode, result.ErrMsg)
	}
	return nil
}
