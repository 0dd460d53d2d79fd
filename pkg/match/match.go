// Package match pairs image-coordinate entities against GPS points by
// identifier and decides whether newly loaded route/spot records duplicate
// already known ones.
package match

import (
	"fmt"

	"github.com/kass/go-georef/pkg/models"
)

// Result is the outcome of one matching pass. It is derived data, recomputed
// on demand and never persisted.
type Result struct {
	// Pairs holds one control point per matched entity, in entity input order.
	Pairs []models.ControlPoint `json:"pairs"`
	// Unmatched lists resolved identifiers (or placeholders) of entities
	// without a GPS counterpart, in entity input order.
	Unmatched []string `json:"unmatchedIdentifiers"`
	// UnmatchedGps lists GPS identifiers no entity claimed, in GPS input order.
	UnmatchedGps []string `json:"unmatchedGpsIdentifiers"`
	// TotalCandidates is the number of entities considered.
	TotalCandidates int `json:"totalCandidates"`
}

// MatchedCount returns the number of matched pairs.
func (r *Result) MatchedCount() int {
	return len(r.Pairs)
}

// ResolveIdentifier resolves an entity's identifier through the ordered
// fallback primary ID, alternate ID, then name. Entities lacking all three
// get a synthetic placeholder recording their position in the input, so they
// are reported rather than silently dropped.
func ResolveIdentifier(e *models.ImageEntity, index int) (string, bool) {
	switch {
	case e.ID != "":
		return e.ID, true
	case e.AltID != "":
		return e.AltID, true
	case e.Name != "":
		return e.Name, true
	default:
		return fmt.Sprintf("unidentified#%d", index), false
	}
}

// Match pairs entities against GPS points by identifier equality. Duplicate
// GPS identifiers resolve last-write-wins. Matching is deterministic: the
// same inputs always produce the same pairs and unmatched lists, ordered by
// entity insertion order. No fuzzy or coordinate-based fallback is attempted.
func Match(gps []models.GpsPoint, entities []*models.ImageEntity) *Result {
	lookup := make(map[string]models.GpsPoint, len(gps))
	for _, g := range gps {
		lookup[g.Identifier] = g
	}

	result := &Result{TotalCandidates: len(entities)}
	claimed := make(map[string]bool)

	for i, e := range entities {
		id, resolved := ResolveIdentifier(e, i)
		if !resolved {
			result.Unmatched = append(result.Unmatched, id)
			continue
		}
		g, ok := lookup[id]
		if !ok {
			result.Unmatched = append(result.Unmatched, id)
			continue
		}
		claimed[id] = true
		result.Pairs = append(result.Pairs, models.ControlPoint{
			Identifier: id,
			ImageX:     e.ImageX,
			ImageY:     e.ImageY,
			Gps:        g,
		})
	}

	seen := make(map[string]bool, len(gps))
	for _, g := range gps {
		if seen[g.Identifier] {
			continue
		}
		seen[g.Identifier] = true
		if !claimed[g.Identifier] {
			result.UnmatchedGps = append(result.UnmatchedGps, g.Identifier)
		}
	}

	return result
}
