// Package sms sends outbound messages through the bulk-SMS provider's REST
// API. The sender is inert when credentials are not configured.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const sendPath = "/version1/messaging"

// Config holds the outbound SMS provider credentials.
type Config struct {
	BaseURL  string
	Username string
	APIKey   string
	SenderID string
}

// Sender delivers messages through the provider's send API.
type Sender struct {
	client *http.Client
	config *Config
}

// NewSender creates an outbound SMS sender.
func NewSender(cfg *Config) *Sender {
	return &Sender{
		client: &http.Client{Timeout: 30 * time.Second},
		config: cfg,
	}
}

// Enabled reports whether credentials are configured. When false, Send
// refuses to do anything and callers should treat the feature as absent.
func (s *Sender) Enabled() bool {
	return s.config.Username != "" && s.config.APIKey != ""
}

type sendResponse struct {
	SMSMessageData struct {
		Recipients []struct {
			Number string `json:"number"`
			Status string `json:"status"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// Send delivers one message to the given number.
func (s *Sender) Send(ctx context.Context, to, message string) error {
	if !s.Enabled() {
		return fmt.Errorf("outbound SMS is not configured")
	}

	form := url.Values{}
	form.Set("username", s.config.Username)
	form.Set("to", to)
	form.Set("message", message)
	if s.config.SenderID != "" {
		form.Set("from", s.config.SenderID)
	}

	endpoint := strings.TrimRight(s.config.BaseURL, "/") + sendPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send rejected with status %d: %s", resp.StatusCode, string(excerpt))
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode send response: %w", err)
	}
	if len(out.SMSMessageData.Recipients) == 0 {
		return fmt.Errorf("send accepted no recipients")
	}
	for _, recipient := range out.SMSMessageData.Recipients {
		if !strings.EqualFold(recipient.Status, "Success") {
			return fmt.Errorf("send to %s failed with status %q", recipient.Number, recipient.Status)
		}
	}
	return nil
}
