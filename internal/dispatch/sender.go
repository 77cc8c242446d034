package dispatch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxErrorBody = 512

// DeliveryError is a failed POST to a sink: a non-2xx answer or a transport error.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("delivery failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// SlackSender posts messages to Slack incoming webhooks.
type SlackSender struct {
	client *http.Client
}

func NewSlackSender(timeout time.Duration) *SlackSender {
	return &SlackSender{client: &http.Client{Timeout: timeout}}
}

type slackMessage struct {
	Text string `json:"text"`
}

func (s *SlackSender) Send(ctx context.Context, destination, payload string) error {
	body, err := json.Marshal(slackMessage{Text: payload})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Redact shortens a destination (a secret webhook URL) to a stable log-safe token.
func Redact(destination string) string {
	sum := sha256.Sum256([]byte(destination))
	return hex.EncodeToString(sum[:4])
}
