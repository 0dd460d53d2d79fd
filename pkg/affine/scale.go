package affine

import (
	"fmt"
	"math"

	"github.com/kass/go-georef/pkg/models"
	"github.com/kass/go-georef/pkg/proj"
)

// ScaleMethod records how a display-scale factor was derived.
type ScaleMethod string

const (
	// ScaleFromControlPoints derives meters-per-pixel from the geodesic and
	// pixel distances of two control points. This is the preferred method.
	ScaleFromControlPoints ScaleMethod = "control-points"
	// ScaleFromMatrix falls back to the transform's row norms. It assumes
	// isotropic scaling and is only a degraded approximation; check
	// Anisotropy before trusting it.
	ScaleFromMatrix ScaleMethod = "matrix-norms"
)

// ScaleResult is the display-scale factor for the image overlay, normalized
// by the map's current ground resolution, plus diagnostics.
type ScaleResult struct {
	Factor         float64     `json:"factor"`
	MetersPerPixel float64     `json:"metersPerPixel"`
	Method         ScaleMethod `json:"method"`
	Anisotropy     float64     `json:"anisotropy"`
}

// Scale computes the display-scale factor for the image at the given map view.
// When two distinct control points are available it divides their geodesic
// distance by their pixel distance; otherwise it falls back to the transform's
// row norms sqrt(A²+D²) and sqrt(B²+E²), averaged. Either way the raw
// meters-per-pixel is normalized by the map's resolution at centerLat/zoom.
func Scale(t *Transform, p1, p2 *models.ControlPoint, mapCenterLat, mapZoom float64) (*ScaleResult, error) {
	if t == nil {
		return nil, ErrNoTransform
	}

	resolution := proj.MetersPerPixel(mapCenterLat, mapZoom)
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return nil, fmt.Errorf("%w: bad map resolution at lat=%v zoom=%v",
			proj.ErrInvalidGeometry, mapCenterLat, mapZoom)
	}

	if mpp, ok := metersPerPixelFromPair(p1, p2); ok {
		return &ScaleResult{
			Factor:         mpp / resolution,
			MetersPerPixel: mpp,
			Method:         ScaleFromControlPoints,
			Anisotropy:     t.Anisotropy(),
		}, nil
	}

	scaleX := math.Hypot(t.A, t.D)
	scaleY := math.Hypot(t.B, t.E)
	mpp := (scaleX + scaleY) / 2
	if !(mpp > 0) || math.IsInf(mpp, 0) {
		return nil, fmt.Errorf("%w: degenerate transform scale", proj.ErrInvalidGeometry)
	}

	return &ScaleResult{
		Factor:         mpp / resolution,
		MetersPerPixel: mpp,
		Method:         ScaleFromMatrix,
		Anisotropy:     t.Anisotropy(),
	}, nil
}

// metersPerPixelFromPair derives real-world meters-per-pixel from two distinct
// control points. Reports false when the pair is unusable (missing points or
// zero pixel distance).
func metersPerPixelFromPair(p1, p2 *models.ControlPoint) (float64, bool) {
	if p1 == nil || p2 == nil {
		return 0, false
	}
	pixelDist := math.Hypot(p2.ImageX-p1.ImageX, p2.ImageY-p1.ImageY)
	if pixelDist == 0 {
		return 0, false
	}
	gpsDist := proj.Distance(p1.Gps.Lat, p1.Gps.Lng, p2.Gps.Lat, p2.Gps.Lng)
	mpp := gpsDist / pixelDist
	if !(mpp > 0) || math.IsInf(mpp, 0) {
		return 0, false
	}
	return mpp, true
}
