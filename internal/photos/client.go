// Package photos is the read-only client for the photo-search service that
// stores pictures taken of physical vouchers. Not on the write path.
package photos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mkitdev/mkit-input-voucher/internal/config"
)

// Ref points at one stored voucher photo
type Ref struct {
	URL     string    `json:"url"`
	TakenAt time.Time `json:"takenAt"`
}

// Client queries the photo-search service
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a photo-search client; returns nil when no service is
// configured so callers can treat photos as absent
func NewClient(cfg config.PhotosConfig) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// BySerial returns the stored photos for one serial number
func (c *Client) BySerial(ctx context.Context, serial string) ([]Ref, error) {
	return c.get(ctx, fmt.Sprintf("%s/api/photos?serial=%s", c.baseURL, url.QueryEscape(serial)))
}

// ByBatch returns the stored photos for every record of a batch
func (c *Client) ByBatch(ctx context.Context, batchID string) ([]Ref, error) {
	return c.get(ctx, fmt.Sprintf("%s/api/photos?batch=%s", c.baseURL, url.QueryEscape(batchID)))
}

func (c *Client) get(ctx context.Context, endpoint string) ([]Ref, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("photo search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("photo search returned status %d", resp.StatusCode)
	}

	var refs []Ref
	if err := json.NewDecoder(resp.Body).Decode(&refs); err != nil {
		return nil, fmt.Errorf("photo search response unreadable: %w", err)
	}
	return refs, nil
}
