// Package store provides data models and persistence sinks for monitor state.
package store

import (
	"strings"
	"time"
)

// Route is an origin/destination pair.
type Route struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// Key returns the route in ORIGIN-DESTINATION form.
func (r Route) Key() string {
	return strings.TrimSpace(r.Origin) + "-" + strings.TrimSpace(r.Destination)
}

// String formats the route for human-readable messages.
func (r Route) String() string {
	return r.Origin + " → " + r.Destination
}

// QuoteRequest is the input to a fare estimate.
type QuoteRequest struct {
	Origin        string
	Destination   string
	DepartureDate *time.Time
	// Budget <= 0 means no budget was given.
	Budget float64
}

// Route returns the request's route.
func (q QuoteRequest) Route() Route {
	return Route{Origin: q.Origin, Destination: q.Destination}
}

// HasBudget reports whether a budget was supplied.
func (q QuoteRequest) HasBudget() bool {
	return q.Budget > 0
}

// Recommendation advises whether to purchase now or keep waiting.
type Recommendation string

const (
	RecommendBuyNow  Recommendation = "buy_now"
	RecommendBuySoon Recommendation = "buy_soon"
	RecommendWatch   Recommendation = "watch"
	RecommendWait    Recommendation = "wait"
)

// RouteClass buckets a route for base price and clamp bounds.
type RouteClass string

const (
	RouteShort  RouteClass = "short"
	RouteMedium RouteClass = "medium"
	RouteLong   RouteClass = "long"
)

// PriceAdvice is the output of a fare estimate.
type PriceAdvice struct {
	PredictedPrice     int            `json:"predicted_price"`
	LowerBound         int            `json:"lower_bound"`
	UpperBound         int            `json:"upper_bound"`
	Confidence         float64        `json:"confidence"`
	Recommendation     Recommendation `json:"recommendation"`
	Reason             string         `json:"reason"`
	NextCheckHours     int            `json:"next_check_hours"`
	RouteClass         RouteClass     `json:"route_class"`
	DaysUntilDeparture int            `json:"days_until_departure"`
}

// Status is the lifecycle state of a monitor.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

// Contact holds where a monitor's notifications go.
type Contact struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// Monitor is one watch on a route/budget/timeout combination.
type Monitor struct {
	ID            string     `json:"id"`
	Route         Route      `json:"route"`
	DepartureDate *time.Time `json:"departure_date,omitempty"`
	Budget        float64    `json:"budget"`
	MaxWaitHours  float64    `json:"max_wait_hours"`
	Contact       Contact    `json:"contact"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`

	// BestPriceSeen never increases while the monitor is active.
	BestPriceSeen     *int         `json:"best_price_seen,omitempty"`
	ChecksCount       int          `json:"checks_count"`
	LastCheckAt       *time.Time   `json:"last_check_at,omitempty"`
	LastAdvice        *PriceAdvice `json:"last_advice,omitempty"`
	LastObservedPrice *int         `json:"last_observed_price,omitempty"`
}

// Clone returns a copy that shares no pointers with m.
func (m Monitor) Clone() Monitor {
	out := m
	out.DepartureDate = clonePtr(m.DepartureDate)
	out.BestPriceSeen = clonePtr(m.BestPriceSeen)
	out.LastCheckAt = clonePtr(m.LastCheckAt)
	out.LastAdvice = clonePtr(m.LastAdvice)
	out.LastObservedPrice = clonePtr(m.LastObservedPrice)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// QuoteRequest builds the estimate input for this monitor.
func (m Monitor) QuoteRequest() QuoteRequest {
	return QuoteRequest{
		Origin:        m.Route.Origin,
		Destination:   m.Route.Destination,
		DepartureDate: m.DepartureDate,
		Budget:        m.Budget,
	}
}

// Quote is a normalized fare observation from a provider or the live feed.
type Quote struct {
	Provider      string    `json:"provider"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureDate string    `json:"departure_date,omitempty"`
	Price         int       `json:"price"`
	Currency      string    `json:"currency"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Route returns the quote's route.
func (q Quote) Route() Route {
	return Route{Origin: q.Origin, Destination: q.Destination}
}

// Alert kinds
const (
	AlertPriceFound = "price_found"
	AlertExpired    = "expired"
)

// Alert is a notification as seen by in-process consumers.
type Alert struct {
	MonitorID string    `json:"monitor_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Price     int       `json:"price,omitempty"`
	Route     Route     `json:"route"`
	SentAt    time.Time `json:"sent_at"`
}

// Signal types for route price moves
const (
	SignalPriceDrop  = "ROUTE_PRICE_DROP"
	SignalPriceSpike = "ROUTE_PRICE_SPIKE"
)

// Signal is a notable move in a route's price between two checks.
type Signal struct {
	Type      string
	Route     Route
	Previous  int
	Current   int
	PctChange float64
}

// Fields is a persistence payload.
type Fields map[string]any
