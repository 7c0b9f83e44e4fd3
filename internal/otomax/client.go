// Package otomax is the XML-RPC client for the external core system. The
// core owns the system of record for voucher inventory; this client only
// speaks its insert/search contract.
package otomax

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kolo/xmlrpc"

	"github.com/mkitdev/mkit-input-voucher/internal/config"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
)

const voucherModel = "mkit.voucher"

// Client represents an Otomax XML-RPC client
type Client struct {
	URL       string
	Database  string
	Username  string
	Password  string
	Uid       int
	CommonURL string
	ObjectURL string

	transport http.RoundTripper
}

// NewClient creates a new Otomax client
func NewClient(cfg config.OtomaxConfig) *Client {
	return &Client{
		URL:       cfg.URL,
		Database:  cfg.Database,
		Username:  cfg.Username,
		Password:  cfg.Password,
		CommonURL: fmt.Sprintf("%s/xmlrpc/2/common", cfg.URL),
		ObjectURL: fmt.Sprintf("%s/xmlrpc/2/object", cfg.URL),
		transport: &http.Transport{
			ResponseHeaderTimeout: cfg.Timeout,
		},
	}
}

// call runs one XML-RPC call bounded by ctx. The underlying client has no
// context support, so the call runs in a goroutine and the connection is
// closed when the deadline fires; ctx.Err() then reports the timeout.
func (c *Client) call(ctx context.Context, url, method string, args, reply interface{}) error {
	client, err := xmlrpc.NewClient(url, c.transport)
	if err != nil {
		return fmt.Errorf("failed to create XML-RPC client: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- client.Call(method, args, reply)
		client.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Authenticate authenticates with the core and caches the user ID
func (c *Client) Authenticate(ctx context.Context) (int, error) {
	args := []interface{}{c.Database, c.Username, c.Password, make([]interface{}, 0)}
	var uid int
	if err := c.call(ctx, c.CommonURL, "authenticate", args, &uid); err != nil {
		return 0, fmt.Errorf("authentication failed: %w", err)
	}
	c.Uid = uid
	return uid, nil
}

func (c *Client) executeArgs(model, method string, params ...interface{}) []interface{} {
	return append([]interface{}{c.Database, c.Uid, c.Password, model, method}, params...)
}

// InsertVoucher writes one committed voucher record into the core. The core
// rejects duplicates on serial number with its own constraint; that rejection
// surfaces as the returned error, verbatim.
func (c *Client) InsertVoucher(ctx context.Context, rec models.VoucherRecord) error {
	values := map[string]interface{}{
		"serial_number":  rec.SerialNumber,
		"voucher_number": rec.VoucherNumber,
		"product_code":   rec.ProductCode,
		"denomination":   rec.Denomination.String(),
		"source_channel": string(rec.SourceChannel),
		"batch_ref":      rec.BatchID,
	}
	if rec.ExpiryDate != nil {
		values["expiry_date"] = rec.ExpiryDate.Format("2006-01-02")
	}

	args := c.executeArgs(voucherModel, "create", []interface{}{values})
	var id int64
	if err := c.call(ctx, c.ObjectURL, "execute_kw", args, &id); err != nil {
		return fmt.Errorf("core insert rejected: %w", err)
	}
	return nil
}

// SerialExists reports whether the core already holds a voucher with this
// serial number. Used for check-before-write so retried commits stay
// idempotent after a lost acknowledgment.
func (c *Client) SerialExists(ctx context.Context, serial string) (bool, error) {
	domain := []interface{}{[]interface{}{"serial_number", "=", serial}}
	args := c.executeArgs(voucherModel, "search_count", []interface{}{domain})

	var count int64
	if err := c.call(ctx, c.ObjectURL, "execute_kw", args, &count); err != nil {
		return false, fmt.Errorf("core lookup failed: %w", err)
	}
	return count > 0, nil
}

// StockLevel is one product's remaining sellable voucher count in the core
type StockLevel struct {
	ProductCode string `xmlrpc:"product_code" json:"productCode"`
	Available   int    `xmlrpc:"available" json:"available"`
}

// FetchStockLevels reads per-product voucher stock from the core. Read-only,
// off the write path; consumed by the stock monitor.
func (c *Client) FetchStockLevels(ctx context.Context) ([]StockLevel, error) {
	args := c.executeArgs(voucherModel, "read_group",
		[]interface{}{
			[]interface{}{[]interface{}{"state", "=", "available"}},
		},
		map[string]interface{}{
			"fields":  []string{"product_code"},
			"groupby": []string{"product_code"},
		},
	)

	var rows []map[string]interface{}
	if err := c.call(ctx, c.ObjectURL, "execute_kw", args, &rows); err != nil {
		return nil, fmt.Errorf("stock query failed: %w", err)
	}

	levels := make([]StockLevel, 0, len(rows))
	for _, row := range rows {
		level := StockLevel{}
		if code, ok := row["product_code"].(string); ok {
			level.ProductCode = code
		}
		switch n := row["product_code_count"].(type) {
		case int64:
			level.Available = int(n)
		case float64:
			level.Available = int(n)
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// Healthy pings the core's common endpoint
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var version map[string]interface{}
	return c.call(ctx, c.CommonURL, "version", []interface{}{}, &version) == nil
}
