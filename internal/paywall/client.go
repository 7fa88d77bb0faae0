package paywall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Resinat/Paygate/internal/model"
)

// maxResponseBytes caps a paywall definition body.
const maxResponseBytes = 4 << 20

// Client fetches paywall definitions from the network.
type Client interface {
	GetPaywall(ctx context.Context, paywallID string, event *model.EventData) (model.Paywall, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, paywallID string, event *model.EventData) (model.Paywall, error)

func (f ClientFunc) GetPaywall(ctx context.Context, paywallID string, event *model.EventData) (model.Paywall, error) {
	return f(ctx, paywallID, event)
}

// HTTPClient talks to the paywall API:
//
//	POST {BaseURL}/paywall/{id}   body: triggering event JSON (may be empty)
//
// 200 returns a paywall definition, 404 maps to ErrNotFound.
type HTTPClient struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
}

// NewHTTPClient creates an HTTPClient for baseURL.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, userAgent string) *HTTPClient {
	if baseURL == "" {
		panic("paywall: NewHTTPClient requires non-empty baseURL")
	}
	return &HTTPClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		Timeout:   timeout,
		UserAgent: userAgent,
	}
}

// GetPaywall implements Client.
func (c *HTTPClient) GetPaywall(ctx context.Context, paywallID string, event *model.EventData) (model.Paywall, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var body io.Reader = http.NoBody
	if event != nil {
		raw, err := json.Marshal(event)
		if err != nil {
			return model.Paywall{}, fmt.Errorf("paywall api: encode event: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	endpoint := c.BaseURL + "/paywall/" + url.PathEscape(paywallID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return model.Paywall{}, fmt.Errorf("paywall api: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return model.Paywall{}, fmt.Errorf("paywall api: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return model.Paywall{}, fmt.Errorf("paywall api: %s: %w", paywallID, ErrNotFound)
	default:
		return model.Paywall{}, &HTTPStatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.Paywall{}, fmt.Errorf("paywall api: read body: %w", err)
	}
	var p model.Paywall
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Paywall{}, &DecodeError{Err: err}
	}
	if p.ID == "" {
		p.ID = paywallID
	}
	// Experiment and timing are owned by the loader.
	p.Experiment = nil
	p.ResponseLoadingInfo = model.ResponseLoadingInfo{}
	return p, nil
}
