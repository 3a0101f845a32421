package advisor

import (
	"strings"
	"unicode/utf8"

	"github.com/wadatrip/farewatch/internal/store"
)

// Default long-haul pairs, lowercased "origin-destination".
var DefaultLongHaulRoutes = []string{
	"san francisco-tokyo",
	"madrid-nueva york",
	"madrid-new york",
	"barcelona-new york",
}

// Default high-demand pairs.
var DefaultPopularRoutes = []string{
	"madrid-tokio",
	"barcelona-nueva york",
}

// RouteTable holds the route membership lists used by the estimator.
type RouteTable struct {
	longHaul map[string]bool
	popular  map[string]bool
}

// NewRouteTable builds a table from "origin-destination" pairs. Matching is case-insensitive.
func NewRouteTable(longHaul, popular []string) RouteTable {
	return RouteTable{
		longHaul: toSet(longHaul),
		popular:  toSet(popular),
	}
}

// DefaultRouteTable returns the built-in lists.
func DefaultRouteTable() RouteTable {
	return NewRouteTable(DefaultLongHaulRoutes, DefaultPopularRoutes)
}

// Class buckets a route into short, medium or long.
func (t RouteTable) Class(origin, destination string) store.RouteClass {
	if t.longHaul[pairKey(origin, destination)] {
		return store.RouteLong
	}
	if utf8.RuneCountInString(origin)+utf8.RuneCountInString(destination) > 14 {
		return store.RouteMedium
	}
	return store.RouteShort
}

// Popular reports whether the pair is in the high-demand list.
func (t RouteTable) Popular(origin, destination string) bool {
	return t.popular[pairKey(origin, destination)]
}

func pairKey(origin, destination string) string {
	return strings.ToLower(origin) + "-" + strings.ToLower(destination)
}

func toSet(pairs []string) map[string]bool {
	set := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			set[p] = true
		}
	}
	return set
}
