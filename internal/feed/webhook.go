package feed

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 signature of the request body.
const SignatureHeader = "X-Posting-Signature"

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Target is a configured webhook endpoint. An empty Events list matches every
// event type.
type Target struct {
	URL    string   `mapstructure:"url"`
	Secret string   `mapstructure:"secret"`
	Events []string `mapstructure:"events"`
}

func (t Target) matches(eventType string) bool {
	if len(t.Events) == 0 {
		return true
	}
	for _, e := range t.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Notifier relays broker events to webhook targets with retries.
type Notifier struct {
	targets    []Target
	httpClient *http.Client
	delays     []time.Duration
	onMetrics  MetricsRecorder
	logger     *zap.Logger
}

// NewNotifier creates a Notifier for the given targets.
func NewNotifier(targets []Target, logger *zap.Logger) *Notifier {
	return &Notifier{
		targets:    targets,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Retry with exponential backoff: 1s, 5s, 25s.
		delays: []time.Duration{1 * time.Second, 5 * time.Second, 25 * time.Second},
		logger: logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (n *Notifier) SetMetricsRecorder(fn MetricsRecorder) {
	n.onMetrics = fn
}

// SetRetryDelays replaces the delays between attempts. The number of attempts
// is len(delays)+1.
func (n *Notifier) SetRetryDelays(delays []time.Duration) {
	n.delays = delays
}

// Run consumes the subscription until it is closed or ctx is done.
func (n *Notifier) Run(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			n.Dispatch(ctx, ev)
		}
	}
}

// Dispatch fans ev out to every matching target. Deliveries run in their own
// goroutines and never block the caller.
func (n *Notifier) Dispatch(ctx context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}
	for _, t := range n.targets {
		if t.matches(ev.Type) {
			go n.deliver(ctx, t, ev.Type, body)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, t Target, eventType string, body []byte) {
	signature := signPayload(body, t.Secret)

	attempts := len(n.delays) + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(n.delays[attempt-2]):
			}
		}

		success, errMsg := n.doDelivery(ctx, t.URL, body, signature)
		if n.onMetrics != nil {
			n.onMetrics(success)
		}
		if success {
			return
		}

		n.logger.Warn("webhook: delivery failed",
			zap.String("url", t.URL),
			zap.String("event", eventType),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

func (n *Notifier) doDelivery(ctx context.Context, url string, body []byte, signature string) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return true, ""
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the HMAC of body under secret.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(signPayload(body, secret)), []byte(signature))
}
