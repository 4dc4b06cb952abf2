package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/samarth-ai/samarth/pkg/events"
	"github.com/samarth-ai/samarth/pkg/urlvalidation"
)

const maxBreakers = 10000

// DelivererConfig holds gateway delivery settings.
type DelivererConfig struct {
	GatewayURL     string
	Secret         string
	MaxRetries     int
	Timeout        time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// CBFailThreshold consecutive failures open a recipient's breaker for
	// CBResetTimeout.
	CBFailThreshold uint32
	CBResetTimeout  time.Duration
}

func (c *DelivererConfig) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.CBFailThreshold == 0 {
		c.CBFailThreshold = 5
	}
	if c.CBResetTimeout <= 0 {
		c.CBResetTimeout = time.Minute
	}
}

// GatewayMessage is the JSON body posted to the gateway.
type GatewayMessage struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Deliverer posts messages to the SMS gateway with retries and a circuit
// breaker per recipient.
type Deliverer struct {
	repo         *Repository
	pub          Emitter
	httpClient   *http.Client
	config       DelivererConfig
	validateOpts []urlvalidation.Option

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[int]
}

// NewDeliverer creates a deliverer. repo and pub may be nil.
func NewDeliverer(repo *Repository, pub Emitter, cfg DelivererConfig, validateOpts ...urlvalidation.Option) *Deliverer {
	cfg.defaults()
	return &Deliverer{
		repo: repo,
		pub:  pub,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config:       cfg,
		validateOpts: validateOpts,
		breakers:     make(map[string]*gobreaker.CircuitBreaker[int]),
	}
}

func (d *Deliverer) breaker(recipient string) *gobreaker.CircuitBreaker[int] {
	d.mu.Lock()
	defer d.mu.Unlock()

	cb, ok := d.breakers[recipient]
	if ok {
		return cb
	}

	if len(d.breakers) >= maxBreakers {
		for k := range d.breakers {
			delete(d.breakers, k)
			break
		}
	}

	threshold := d.config.CBFailThreshold
	cb = gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "sms:" + recipient,
		MaxRequests: 1,
		Timeout:     d.config.CBResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	d.breakers[recipient] = cb
	return cb
}

// Deliver posts one message, retrying with exponential backoff. Client
// errors (4xx other than 429) are not retried. Exhausted messages are
// dead-lettered.
func (d *Deliverer) Deliver(ctx context.Context, messageID string, msg events.SMSData) error {
	if err := urlvalidation.Validate(ctx, d.config.GatewayURL, d.validateOpts...); err != nil {
		slog.ErrorContext(ctx, "sms gateway URL failed validation",
			slog.String("url", d.config.GatewayURL), slog.String("error", err.Error()))
		return err
	}

	body, err := json.Marshal(GatewayMessage{ID: messageID, To: msg.Phone, Body: msg.Body, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	cb := d.breaker(msg.Phone)
	attempt := 0
	op := func() (int, error) {
		attempt++
		code, err := cb.Execute(func() (int, error) {
			return d.post(ctx, messageID, msg.Phone, body, attempt)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, backoff.Permanent(err)
		}
		if err != nil && code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return code, backoff.Permanent(err)
		}
		return code, err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.config.BackoffInitial
	eb.MaxInterval = d.config.BackoffMax

	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(d.config.MaxRetries)),
	)
	if err != nil {
		d.deadLetter(ctx, messageID, msg, attempt, err)
		return err
	}

	d.emit(ctx, events.SMSDelivered, &events.SMSData{Phone: msg.Phone, Body: msg.Body, Attempt: attempt})
	return nil
}

func (d *Deliverer) post(ctx context.Context, messageID, recipient string, body []byte, attempt int) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(d.config.Secret, body))
	req.Header.Set("X-Samarth-Message", messageID)

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	da := &DeliveryAttempt{
		MessageID:     messageID,
		Recipient:     recipient,
		AttemptNumber: attempt,
		DurationMs:    time.Since(start).Milliseconds(),
	}

	if err != nil {
		da.Status = StatusFailed
		da.Error = err.Error()
		d.record(ctx, da)
		return 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	// Drain remainder for connection reuse.
	io.Copy(io.Discard, resp.Body)

	da.ResponseCode = resp.StatusCode
	da.ResponseBody = string(respBody)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		da.Status = StatusSuccess
		d.record(ctx, da)
		return resp.StatusCode, nil
	}

	da.Status = StatusFailed
	da.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	d.record(ctx, da)
	return resp.StatusCode, errors.New(da.Error)
}

func (d *Deliverer) record(ctx context.Context, da *DeliveryAttempt) {
	if err := d.repo.RecordDelivery(ctx, da); err != nil {
		slog.ErrorContext(ctx, "record delivery failed", slog.String("error", err.Error()))
	}
}

func (d *Deliverer) deadLetter(ctx context.Context, messageID string, msg events.SMSData, attempts int, cause error) {
	slog.ErrorContext(ctx, "sms delivery failed",
		slog.String("phone", msg.Phone),
		slog.Int("attempts", attempts),
		slog.String("error", cause.Error()))

	if err := d.repo.CreateDeadLetter(ctx, &DeadLetter{
		MessageID: messageID,
		Recipient: msg.Phone,
		Body:      msg.Body,
		LastError: cause.Error(),
		Attempts:  attempts,
	}); err != nil {
		slog.ErrorContext(ctx, "create dead letter failed", slog.String("error", err.Error()))
	}
	d.emit(ctx, events.SMSFailed, &events.SMSData{Phone: msg.Phone, Body: msg.Body, Attempt: attempts, Error: cause.Error()})
}

func (d *Deliverer) emit(ctx context.Context, et events.EventType, data *events.SMSData) {
	if d.pub == nil {
		return
	}
	if err := d.pub.Emit(ctx, et, data.Phone, data); err != nil {
		slog.WarnContext(ctx, "sms event publish failed", slog.String("error", err.Error()))
	}
}
