package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

// Bot talks to one Telegram chat: it posts mechanism events there and takes operator
// commands from it.
type Bot struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
	backoff time.Duration
	log     *zap.Logger
}

// NewBot creates a bot for chatID, optionally routed through proxyURL.
func NewBot(token, chatID, proxyURL string, log *zap.Logger) *Bot {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		} else {
			log.Warn("ignoring invalid proxy url", zap.Error(err))
		}
	}
	return &Bot{
		token:   token,
		chatID:  chatID,
		apiBase: defaultAPIBase,
		client:  &http.Client{Timeout: 30 * time.Second, Transport: transport},
		backoff: time.Second,
		log:     log.Named("telegram"),
	}
}

// SetAPIBase points the bot at another Bot API server.
func (b *Bot) SetAPIBase(base string) { b.apiBase = strings.TrimRight(base, "/") }

// APIError is a request the Bot API refused.
type APIError struct {
	Method      string
	Status      int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.Status, e.Description)
}

// Temporary reports whether repeating the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type envelope struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// call posts payload to a Bot API method and decodes the result into out, if given.
func (b *Bot) call(ctx context.Context, client *http.Client, method string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", b.apiBase, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", method, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || !env.OK {
		apiErr := &APIError{Method: method, Status: resp.StatusCode, Description: strings.TrimSpace(string(raw))}
		if err == nil {
			apiErr.Description = env.Description
			if env.ErrorCode != 0 {
				apiErr.Status = env.ErrorCode
			}
			if env.Parameters != nil {
				apiErr.RetryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
			}
		}
		return apiErr
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

type outgoing struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
	ReplyTo               int64  `json:"reply_to_message_id,omitempty"`
}

// Send posts an HTML message to the chat.
func (b *Bot) Send(ctx context.Context, text string) error {
	return b.send(ctx, text, 0)
}

func (b *Bot) send(ctx context.Context, text string, replyTo int64) error {
	return b.call(ctx, b.client, "sendMessage", outgoing{
		ChatID:                b.chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
		ReplyTo:               replyTo,
	}, nil)
}

// SendWithRetry retries transient failures with exponential backoff, or after the delay
// the API asks for. Rejected messages are not retried.
func (b *Bot) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := b.Send(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err

		wait := b.backoff << uint(i)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if !apiErr.Temporary() {
				return err
			}
			if apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
		}
		if i == maxRetries {
			break
		}
		b.log.Warn("send failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max", maxRetries+1),
			zap.Duration("backoff", wait),
			zap.Error(err))
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", maxRetries+1, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
