package match

import (
	"math"

	"github.com/kass/go-georef/pkg/models"
)

const (
	// PixelTolerance is the per-axis image-coordinate distance under which two
	// spot records describe the same entity.
	PixelTolerance = 0.1
	// DegreeTolerance is the per-axis GPS-coordinate tolerance used when pixel
	// coordinates are unavailable.
	DegreeTolerance = 1e-4
)

// SameSpot reports whether two spot records describe the same entity: image
// pixel coordinates within PixelTolerance per axis when both carry them,
// otherwise GPS coordinates within DegreeTolerance per axis when both carry
// those. Records comparable in neither space are distinct.
func SameSpot(a, b *models.ImageEntity) bool {
	if a == nil || b == nil {
		return false
	}
	if a.HasPixel && b.HasPixel {
		return math.Abs(a.ImageX-b.ImageX) < PixelTolerance &&
			math.Abs(a.ImageY-b.ImageY) < PixelTolerance
	}
	if a.HasGeo && b.HasGeo {
		return math.Abs(a.Lat-b.Lat) < DegreeTolerance &&
			math.Abs(a.Lng-b.Lng) < DegreeTolerance
	}
	return false
}

// SameRoute reports whether two route records describe the same route: their
// start/end identifiers match in forward or reverse order, falling back to
// start/end coordinates under the spot tolerances with the same
// forward/reverse rule when identifiers are unavailable. A route missing its
// start or end on either side is never a duplicate.
func SameRoute(a, b *models.Route) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Start == nil || a.End == nil || b.Start == nil || b.End == nil {
		return false
	}

	if a.Start.ID != "" && a.End.ID != "" && b.Start.ID != "" && b.End.ID != "" {
		forward := a.Start.ID == b.Start.ID && a.End.ID == b.End.ID
		reverse := a.Start.ID == b.End.ID && a.End.ID == b.Start.ID
		return forward || reverse
	}

	forward := sameEndpoint(a.Start, b.Start) && sameEndpoint(a.End, b.End)
	reverse := sameEndpoint(a.Start, b.End) && sameEndpoint(a.End, b.Start)
	return forward || reverse
}

func sameEndpoint(a, b *models.RouteEndpoint) bool {
	if a.HasPixel && b.HasPixel {
		return math.Abs(a.ImageX-b.ImageX) < PixelTolerance &&
			math.Abs(a.ImageY-b.ImageY) < PixelTolerance
	}
	if a.HasGeo && b.HasGeo {
		return math.Abs(a.Lat-b.Lat) < DegreeTolerance &&
			math.Abs(a.Lng-b.Lng) < DegreeTolerance
	}
	return false
}

// MergeSpot folds a duplicate spot record into the existing one. All fields of
// the incoming record win except previously resolved coordinates, which are
// preserved: a duplicate never moves a spot that already has a position.
func MergeSpot(existing, incoming *models.ImageEntity) {
	if incoming.ID != "" {
		existing.ID = incoming.ID
	}
	if incoming.AltID != "" {
		existing.AltID = incoming.AltID
	}
	if incoming.Name != "" {
		existing.Name = incoming.Name
	}
	if incoming.HasPixel && !existing.HasPixel {
		existing.HasPixel = true
		existing.ImageX = incoming.ImageX
		existing.ImageY = incoming.ImageY
	}
	if incoming.HasGeo && !existing.HasGeo {
		existing.HasGeo = true
		existing.Lat = incoming.Lat
		existing.Lng = incoming.Lng
		existing.Elevation = incoming.Elevation
	}
	if len(incoming.Props) > 0 {
		if existing.Props == nil {
			existing.Props = make(map[string]string, len(incoming.Props))
		}
		for k, v := range incoming.Props {
			existing.Props[k] = v
		}
	}
}
