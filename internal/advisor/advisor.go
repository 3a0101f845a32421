// Package advisor estimates flight fares and turns them into buy/wait advice.
package advisor

import (
	"math"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wadatrip/farewatch/internal/clock"
	"github.com/wadatrip/farewatch/internal/store"
)

// RandomSource supplies uniform draws in [0, 1).
type RandomSource interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

var (
	basePrice = map[store.RouteClass]float64{
		store.RouteShort:  120,
		store.RouteMedium: 260,
		store.RouteLong:   520,
	}
	distanceWeight = map[store.RouteClass]float64{
		store.RouteShort:  120,
		store.RouteMedium: 250,
		store.RouteLong:   500,
	}
	priceFloor = map[store.RouteClass]float64{
		store.RouteShort:  80,
		store.RouteMedium: 180,
		store.RouteLong:   350,
	}
	priceCeiling = map[store.RouteClass]float64{
		store.RouteShort:  450,
		store.RouteMedium: 900,
		store.RouteLong:   2200,
	}
)

// Advisor is a stateless fare estimator. Safe for concurrent use when its
// RandomSource is.
type Advisor struct {
	clock  clock.Clock
	rand   RandomSource
	routes RouteTable
}

// Option configures an Advisor.
type Option func(*Advisor)

// WithClock sets the "now" source used for day-of-week and advance-window math.
func WithClock(c clock.Clock) Option {
	return func(a *Advisor) { a.clock = c }
}

// WithRand sets the source of the jitter and volatility draws.
func WithRand(r RandomSource) Option {
	return func(a *Advisor) { a.rand = r }
}

// WithRoutes replaces the long-haul and popular route lists.
func WithRoutes(t RouteTable) Option {
	return func(a *Advisor) { a.routes = t }
}

// New creates an Advisor using the system clock and math/rand by default.
func New(opts ...Option) *Advisor {
	a := &Advisor{
		clock:  clock.Real(),
		rand:   globalRand{},
		routes: DefaultRouteTable(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Estimate predicts a fare for the request and recommends whether to buy.
// It never fails: a missing departure date is treated as now.
func (a *Advisor) Estimate(req store.QuoteRequest) store.PriceAdvice {
	now := a.clock.Now()
	departure := now
	if req.DepartureDate != nil && !req.DepartureDate.IsZero() {
		departure = *req.DepartureDate
	}

	origin := strings.TrimSpace(req.Origin)
	destination := strings.TrimSpace(req.Destination)
	class := a.routes.Class(origin, destination)
	days := daysUntil(now, departure)

	raw := routeBasePrice(class, origin, destination) *
		seasonalityFactor(departure) *
		a.demandFactor(origin, destination) *
		dayOfWeekFactor(departure) *
		advanceFactor(days)

	floor, ceiling := priceFloor[class], priceCeiling[class]
	raw = clamp(raw, floor, ceiling)

	// Volatility is drawn before the jitter.
	volatility := 1 + a.rand.Float64()*0.5
	jitter := 1 + (a.rand.Float64()-0.5)*0.12*volatility
	predicted := int(math.Round(clamp(raw*jitter, floor, ceiling)))

	withinBudget := req.HasBudget() && float64(predicted) <= req.Budget

	confidence := 0.55
	if days >= 21 && days <= 60 {
		confidence += 0.15
	}
	if withinBudget {
		confidence += 0.10
	}
	confidence = clamp(confidence, 0.40, 0.90)

	spread := int(math.Max(25, math.Round(float64(predicted)*(1-confidence)*0.6)))
	lower := predicted - spread
	if lower < 50 {
		lower = 50
	}

	advice := store.PriceAdvice{
		PredictedPrice:     predicted,
		LowerBound:         lower,
		UpperBound:         predicted + spread,
		Confidence:         confidence,
		RouteClass:         class,
		DaysUntilDeparture: days,
	}

	switch {
	case withinBudget:
		advice.Recommendation = store.RecommendBuyNow
		advice.Reason = "Predicted price is within your budget."
		advice.NextCheckHours = 12
		if days <= 7 {
			advice.NextCheckHours = 6
		}
	case days <= 7:
		advice.Recommendation = store.RecommendBuySoon
		advice.Reason = "Close to departure; prices usually rise. Consider adjusting dates or budget."
		advice.NextCheckHours = 6
	case days <= 21:
		advice.Recommendation = store.RecommendWatch
		advice.Reason = "Approaching the buy window; check more frequently."
		advice.NextCheckHours = 12
	default:
		advice.Recommendation = store.RecommendWait
		advice.Reason = "Best deals often appear 3 to 8 weeks out."
		advice.NextCheckHours = 24
	}

	return advice
}

func (a *Advisor) demandFactor(origin, destination string) float64 {
	if a.routes.Popular(origin, destination) {
		return 1.18
	}
	return 1.0
}

// routeBasePrice is the class base plus a string-length distance proxy.
func routeBasePrice(class store.RouteClass, origin, destination string) float64 {
	diff := math.Abs(float64(utf8.RuneCountInString(destination) - utf8.RuneCountInString(origin)))
	approxDistance := math.Min(1, diff/10)
	return basePrice[class] + approxDistance*distanceWeight[class]
}

func seasonalityFactor(departure time.Time) float64 {
	switch departure.Month() {
	case time.December, time.June, time.July, time.August:
		return 1.35
	case time.February, time.October:
		return 0.88
	default:
		return 1.0
	}
}

func dayOfWeekFactor(departure time.Time) float64 {
	switch departure.Weekday() {
	case time.Tuesday, time.Wednesday:
		return 0.95
	case time.Saturday, time.Sunday:
		return 1.05
	default:
		return 1.0
	}
}

// advanceFactor models the advance-purchase curve: cheapest 21 to 60 days out.
func advanceFactor(days int) float64 {
	switch {
	case days <= 3:
		return 1.40
	case days <= 7:
		return 1.25
	case days <= 14:
		return 1.12
	case days <= 21:
		return 0.98
	case days <= 35:
		return 0.93
	case days <= 60:
		return 0.90
	case days <= 90:
		return 0.95
	default:
		return 1.0
	}
}

func daysUntil(now, departure time.Time) int {
	days := int(math.Round(departure.Sub(now).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
