// Package detector flags notable route price moves between successive checks.
package detector

import (
	"math"
	"sync"

	"github.com/wadatrip/farewatch/internal/config"
	"github.com/wadatrip/farewatch/internal/store"
)

// Detector compares each observed route price with the previous one.
type Detector struct {
	threshold float64

	mu         sync.Mutex
	lastPrices map[string]int // route key -> last price
}

// NewDetector creates a new Detector.
func NewDetector(cfg *config.Config) *Detector {
	return &Detector{
		threshold:  cfg.PriceSignalPct,
		lastPrices: make(map[string]int),
	}
}

// Observe records a route price and returns a signal when it moved by at
// least the configured fraction since the previous observation.
func (d *Detector) Observe(route store.Route, price int) (store.Signal, bool) {
	key := route.Key()

	// Must read before we update lastPrices
	d.mu.Lock()
	lastPrice, exists := d.lastPrices[key]
	d.lastPrices[key] = price
	d.mu.Unlock()

	if !exists || lastPrice <= 0 {
		return store.Signal{}, false
	}

	pctChange := float64(price-lastPrice) / float64(lastPrice)
	if math.Abs(pctChange) < d.threshold {
		return store.Signal{}, false
	}

	signalType := store.SignalPriceDrop
	if pctChange > 0 {
		signalType = store.SignalPriceSpike
	}
	return store.Signal{
		Type:      signalType,
		Route:     route,
		Previous:  lastPrice,
		Current:   price,
		PctChange: pctChange,
	}, true
}

