// Package otoplus is the HTTP client for the upstream serial verification
// service. Verdicts are advisory; the staging store stays the authoritative
// uniqueness gate.
package otoplus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mkitdev/mkit-input-voucher/internal/config"
	"github.com/mkitdev/mkit-input-voucher/internal/validate"
)

// Client queries Otoplus for upstream serial usage
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a verification client
func NewClient(cfg config.OtoplusConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type statusResponse struct {
	SerialNumber string `json:"serialNumber"`
	Status       string `json:"status"` // used, unused, unknown
}

// Check reports whether a serial number was already marked used upstream.
// Network failures and timeouts return an error so the caller can record a
// distinguishable "unreachable" rejection instead of a false verdict.
func (c *Client) Check(ctx context.Context, serial string) (validate.VerificationStatus, error) {
	endpoint := fmt.Sprintf("%s/api/serials/%s/status", c.baseURL, url.PathEscape(serial))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return validate.VerificationUnknown, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return validate.VerificationUnknown, fmt.Errorf("otoplus request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return validate.VerificationUnknown, fmt.Errorf("otoplus returned status %d", resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return validate.VerificationUnknown, fmt.Errorf("otoplus response unreadable: %w", err)
	}

	switch body.Status {
	case "used":
		return validate.VerificationUsed, nil
	case "unused":
		return validate.VerificationUnused, nil
	default:
		// an unrecognized verdict is advisory-unknown, not an error
		return validate.VerificationUnknown, nil
	}
}
