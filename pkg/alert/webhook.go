package alert

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
	"strconv"
	"strings"
	"time"
)

// Webhook headers. The signature covers "<timestamp>.<body>" so a captured
// delivery cannot be replayed under a fresh timestamp.
const (
	HeaderEvent     = "X-Repscore-Event"
	HeaderDelivery  = "X-Repscore-Delivery"
	HeaderTimestamp = "X-Repscore-Timestamp"
	HeaderSignature = "X-Repscore-Signature"
)

// Webhook posts notifications as JSON to an HTTP endpoint.
type Webhook struct {
	client *http.Client
	url    string
	secret string
	now    func() time.Time
}

// NewWebhook creates a webhook notifier. An empty secret disables signing.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		secret: secret,
		now:    time.Now,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Send delivers n. Any non-2xx response is an error carrying the start of
// the response body.
func (w *Webhook) Send(ctx context.Context, n *Notification) error {
	req, err := w.request(ctx, n)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s %s: %w", n.Event, n.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("deliver %s %s: webhook status %d: %s",
			n.Event, n.ID, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func (w *Webhook) request(ctx context.Context, n *Notification) (*http.Request, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal %s notification: %w", n.Event, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create webhook request: %w", err)
	}

	ts := strconv.FormatInt(w.now().Unix(), 10)
	h := req.Header
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", "repscore/1.0")
	h.Set(HeaderEvent, n.Event)
	h.Set(HeaderDelivery, n.ID)
	h.Set(HeaderTimestamp, ts)
	if w.secret != "" {
		h.Set(HeaderSignature, "sha256="+Sign(w.secret, ts, body))
	}
	return req, nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>" under secret.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value produced by a Webhook with the same
// secret. Deliveries older than maxAge are rejected; a zero maxAge skips the
// age check.
func Verify(secret string, h http.Header, body []byte, maxAge time.Duration, now time.Time) bool {
	ts := h.Get(HeaderTimestamp)
	sig, ok := strings.CutPrefix(h.Get(HeaderSignature), "sha256=")
	if !ok || ts == "" {
		return false
	}
	if maxAge > 0 {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil || now.Sub(time.Unix(sec, 0)) > maxAge {
			return false
		}
	}
	return hmac.Equal([]byte(sig), []byte(Sign(secret, ts, body)))
}
