// Package stockmon watches per-product voucher stock in the core system and
// alerts operators when a product runs low. Read-only; never touches the
// staging write path.
package stockmon

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mkitdev/mkit-input-voucher/internal/otomax"
)

// Source provides stock levels; implemented by the Otomax client
type Source interface {
	FetchStockLevels(ctx context.Context) ([]otomax.StockLevel, error)
}

// Broadcaster pushes updates to connected operators; implemented by the
// websocket hub
type Broadcaster interface {
	Broadcast(message interface{})
}

// Update is one stock snapshot pushed to the feed
type Update struct {
	Type   string              `json:"type"` // stock_update or stock_alert
	Levels []otomax.StockLevel `json:"levels,omitempty"`
	Alerts []Alert             `json:"alerts,omitempty"`
	At     time.Time           `json:"at"`
}

// Alert flags one product at or below the low-stock threshold
type Alert struct {
	ProductCode string `json:"productCode"`
	Available   int    `json:"available"`
	Threshold   int    `json:"threshold"`
}

// Monitor polls the core on an interval and broadcasts snapshots and alerts
type Monitor struct {
	source    Source
	feed      Broadcaster
	Interval  time.Duration
	Threshold int

	mu     sync.RWMutex
	latest []otomax.StockLevel
}

// New creates a stock monitor
func New(source Source, feed Broadcaster, interval time.Duration, threshold int) *Monitor {
	return &Monitor{
		source:    source,
		feed:      feed,
		Interval:  interval,
		Threshold: threshold,
	}
}

// Latest returns the most recent snapshot, for the polling HTTP endpoint
func (m *Monitor) Latest() []otomax.StockLevel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Run polls until the context is cancelled
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	m.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	levels, err := m.source.FetchStockLevels(ctx)
	if err != nil {
		log.WithError(err).Warn("Stock poll failed")
		return
	}
	m.mu.Lock()
	m.latest = levels
	m.mu.Unlock()

	now := time.Now().UTC()
	m.feed.Broadcast(Update{Type: "stock_update", Levels: levels, At: now})

	var alerts []Alert
	for _, level := range levels {
		if level.Available <= m.Threshold {
			alerts = append(alerts, Alert{
				ProductCode: level.ProductCode,
				Available:   level.Available,
				Threshold:   m.Threshold,
			})
		}
	}
	if len(alerts) > 0 {
		log.WithField("products", len(alerts)).Warn("Voucher stock below threshold")
		m.feed.Broadcast(Update{Type: "stock_alert", Alerts: alerts, At: now})
	}
}
