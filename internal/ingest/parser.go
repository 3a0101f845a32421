// Package ingest collects observed fares from the live quote feed and the
// fare search provider, and answers best-price queries for monitors.
package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wadatrip/farewatch/internal/store"
)

// Feed message types
const (
	MsgFareQuote  = "fare_quote"
	MsgFareQuotes = "fare_quotes"
)

// WSMessage represents the base structure of a quote feed message.
type WSMessage struct {
	Type   string          `json:"type"`
	Quotes []FareQuoteData `json:"quotes,omitempty"`
}

// FareQuoteData is one fare as published by the feed. Prices may arrive as
// numbers or numeric strings.
type FareQuoteData struct {
	Provider      string      `json:"provider"`
	Origin        string      `json:"origin"`
	Destination   string      `json:"destination"`
	DepartureDate string      `json:"departure_date"`
	Price         json.Number `json:"price"`
	Currency      string      `json:"currency"`
	Timestamp     string      `json:"timestamp"`
}

// ParseMessage parses a raw feed message and returns any quotes it carries.
// now stamps quotes that carry no timestamp of their own.
func ParseMessage(data []byte, now time.Time) ([]store.Quote, string, error) {
	// A bare array of quotes
	var batch []FareQuoteData
	if err := json.Unmarshal(data, &batch); err == nil {
		return convertQuotes(batch, now), MsgFareQuotes, nil
	}

	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal message: %w", err)
	}

	switch msg.Type {
	case MsgFareQuotes:
		return convertQuotes(msg.Quotes, now), msg.Type, nil
	case MsgFareQuote:
		var single FareQuoteData
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, msg.Type, fmt.Errorf("failed to parse fare_quote: %w", err)
		}
		return convertQuotes([]FareQuoteData{single}, now), msg.Type, nil
	}

	// Return message type for other messages
	return nil, msg.Type, nil
}

// convertQuotes drops entries without a route or a positive price.
func convertQuotes(data []FareQuoteData, now time.Time) []store.Quote {
	quotes := make([]store.Quote, 0, len(data))
	for _, d := range data {
		origin := strings.TrimSpace(d.Origin)
		destination := strings.TrimSpace(d.Destination)
		price := parsePrice(d.Price)
		if origin == "" || destination == "" || price <= 0 {
			continue
		}
		quotes = append(quotes, store.Quote{
			Provider:      coalesce(d.Provider, "feed"),
			Origin:        origin,
			Destination:   destination,
			DepartureDate: normalizeDate(d.DepartureDate),
			Price:         price,
			Currency:      coalesce(strings.ToUpper(d.Currency), "USD"),
			CollectedAt:   parseTimestamp(now, d.Timestamp),
		})
	}
	return quotes
}

// normalizeDate reduces RFC3339 timestamps to YYYY-MM-DD in their own
// offset. Other values are returned trimmed.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if _, err := time.Parse(time.DateOnly, s); err == nil {
		return s
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(time.DateOnly)
	}
	return s
}

// parsePrice rounds to whole currency units. Invalid input yields 0.
func parsePrice(n json.Number) int {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Round(f))
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseTimestamp tries multiple timestamp formats, falling back to now.
func parseTimestamp(now time.Time, values ...string) time.Time {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}

	for _, v := range values {
		if v == "" {
			continue
		}

		// Try parsing as Unix timestamp (seconds or milliseconds)
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			if ts > 1e12 {
				return time.UnixMilli(ts)
			}
			return time.Unix(ts, 0)
		}

		for _, format := range formats {
			if t, err := time.Parse(format, v); err == nil {
				return t
			}
		}
	}

	return now
}
