package ingest

import (
	"sort"

	"github.com/wadatrip/farewatch/internal/store"
)

// RouteKeys returns the distinct route keys of the given monitors, sorted,
// for use as the feed subscription set.
func RouteKeys(monitors []store.Monitor) []string {
	seen := make(map[string]bool)
	keys := []string{}

	for _, m := range monitors {
		if m.Route.Origin == "" || m.Route.Destination == "" {
			continue
		}
		key := m.Route.Key()
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys
}
