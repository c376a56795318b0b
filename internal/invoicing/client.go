package invoicing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ProviderResponse is the subset of the provider's answer we keep.
type ProviderResponse struct {
	Code        string `json:"codigo_unico"`
	Series      string `json:"serie"`
	Number      string `json:"numero"`
	PDFURL      string `json:"enlace_del_pdf"`
	ProviderKey string `json:"key"`
}

// Client wraps interactions with the receipt provider API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Submit sends the document and returns the provider's receipt data.
func (c *Client) Submit(ctx context.Context, payload Payload) (ProviderResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ProviderResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return ProviderResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ProviderResponse{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ProviderResponse{}, fmt.Errorf("invoicing: provider returned status %d: %s", resp.StatusCode, data)
	}
	var out ProviderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ProviderResponse{}, fmt.Errorf("invoicing: decode provider response: %w", err)
	}
	return out, nil
}
