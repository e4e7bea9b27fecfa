package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// apiBackend posts mail to a transactional email provider's HTTP API.
type apiBackend struct {
	baseURL string
	apiKey  string
	from    string
	client  *http.Client
}

func newAPIBackend(cfg Config) *apiBackend {
	return &apiBackend{
		baseURL: cfg.APIBaseURL,
		apiKey:  cfg.APIKey,
		from:    cfg.FromAddress,
		client:  &http.Client{},
	}
}

func (b *apiBackend) Name() string { return "api" }

type apiSendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

func (b *apiBackend) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(apiSendRequest{
		From:    b.from,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("email api request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email api rejected send: status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

// Probe is a credential presence check only; the provider bills per request,
// so health checks must not hit the wire.
func (b *apiBackend) Probe(_ context.Context) bool {
	return b.apiKey != "" && b.from != ""
}
