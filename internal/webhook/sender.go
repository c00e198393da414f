package webhook

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

	"github.com/sethvargo/go-retry"
)

type Options struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// MaxRetries is the number of attempts after the first one.
	MaxRetries uint64
	// Backoff is the base of the exponential backoff between attempts.
	Backoff time.Duration
	// Secret enables signature headers when non-empty.
	Secret string
	// OnAttempt observes every attempt, e.g. for metrics.
	OnAttempt func(Attempt)
}

type Attempt struct {
	URL        string
	Number     int
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Sender posts JSON payloads to user-configured URLs.
type Sender struct {
	client *http.Client
	opts   Options
	now    func() time.Time
}

func NewSender(opts Options) *Sender {
	return NewSenderWithClient(&http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}, opts)
}

func NewSenderWithClient(client *http.Client, opts Options) *Sender {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &Sender{client: client, opts: opts, now: time.Now}
}

// Send marshals data and POSTs it to webhookURL, retrying network errors, 5xx, 408, 425 and 429.
func (s *Sender) Send(ctx context.Context, webhookURL string, data any) error {
	if err := validateURL(webhookURL); err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	backoff := retry.WithMaxRetries(s.opts.MaxRetries, retry.NewExponential(s.opts.Backoff))

	attempt := 0
	var lastErr error
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		status, err := s.attempt(ctx, webhookURL, payload, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if isPermanent(status) {
			return fmt.Errorf("%w: %w", ErrPermanentFailure, err)
		}
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermanentFailure) {
		return err
	}
	if lastErr == nil {
		lastErr = err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, attempt, lastErr)
}

func (s *Sender) attempt(ctx context.Context, webhookURL string, payload []byte, number int) (int, error) {
	start := time.Now()
	status, err := s.post(ctx, webhookURL, payload)
	if s.opts.OnAttempt != nil {
		s.opts.OnAttempt(Attempt{URL: webhookURL, Number: number, StatusCode: status, Duration: time.Since(start), Err: err})
	}
	return status, err
}

func (s *Sender) post(ctx context.Context, webhookURL string, payload []byte) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "mailflow-automations/1.0")
	if s.opts.Secret != "" {
		Sign(s.opts.Secret, payload, s.now()).Apply(req.Header)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTemporaryFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return resp.StatusCode, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := fmt.Sprintf("webhook returned status %d", resp.StatusCode)
	if text := strings.TrimSpace(strings.ReplaceAll(string(body), "\n", " ")); text != "" {
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		msg += ": " + text
	}
	return resp.StatusCode, errors.New(msg)
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http and https are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return nil
}

func isPermanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}
