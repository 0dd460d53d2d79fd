// Package proj provides the coordinate math used by the georeferencing engine:
// spherical Web Mercator conversions, haversine distance and display resolution.
package proj

import (
	"errors"
	"math"

	"github.com/kass/go-georef/pkg/models"
)

const (
	// EarthRadius is the Web Mercator sphere radius in meters.
	EarthRadius = 6378137.0
	// OriginShift is the maximum projected extent in meters, reached at ±180°.
	OriginShift = 20037508.34
	// MaxLatitude is the latitude where the projected Y extent equals OriginShift.
	MaxLatitude = 85.0511

	// baseResolution is the ground resolution in meters/pixel at the equator, zoom 0.
	baseResolution = 156543.03392

	haversineRadius = 6371000.0 // mean earth radius in meters
	degToRad        = math.Pi / 180.0
	radToDeg        = 180.0 / math.Pi
)

// ErrInvalidGeometry reports malformed bounds, non-positive image dimensions or
// non-finite computed offsets. Callers must not apply the affected result.
var ErrInvalidGeometry = errors.New("invalid geometry")

// LonToX projects a WGS84 longitude to Web Mercator X in meters.
func LonToX(lon float64) float64 {
	return lon * OriginShift / 180.0
}

// LatToY projects a WGS84 latitude to Web Mercator Y in meters.
// No clamping is applied; |lat| >= 90 is the caller's contract violation.
func LatToY(lat float64) float64 {
	y := math.Log(math.Tan((90.0+lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	return y * OriginShift / 180.0
}

// XToLon inverts LonToX.
func XToLon(x float64) float64 {
	return (x / OriginShift) * 180.0
}

// YToLat inverts LatToY.
func YToLat(y float64) float64 {
	lat := (y / OriginShift) * 180.0
	return radToDeg * (2.0*math.Atan(math.Exp(lat*degToRad)) - math.Pi/2.0)
}

// MetersPerPixel returns the ground resolution in meters/pixel at the given
// latitude and zoom level. Callers must treat a non-finite or non-positive
// result as failure.
func MetersPerPixel(centerLat, zoom float64) float64 {
	return baseResolution * math.Cos(centerLat*degToRad) / math.Pow(2, zoom)
}

// Distance calculates the haversine distance between two points in meters.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * degToRad
	lat2Rad := lat2 * degToRad

	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return haversineRadius * c
}

// ImageCoordsToGps positions a pixel inside the image's displayed geographic
// bounding box by linear interpolation. Pixel Y grows downward, so the image
// top row maps to the NE latitude.
func ImageCoordsToGps(imageX, imageY float64, bounds models.ImageBounds) (models.Location, error) {
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return models.Location{}, ErrInvalidGeometry
	}
	if !isFinite(bounds.SW.Lat) || !isFinite(bounds.SW.Lng) ||
		!isFinite(bounds.NE.Lat) || !isFinite(bounds.NE.Lng) {
		return models.Location{}, ErrInvalidGeometry
	}

	lng := bounds.SW.Lng + (imageX/bounds.Width)*(bounds.NE.Lng-bounds.SW.Lng)
	lat := bounds.NE.Lat - (imageY/bounds.Height)*(bounds.NE.Lat-bounds.SW.Lat)

	if !isFinite(lat) || !isFinite(lng) {
		return models.Location{}, ErrInvalidGeometry
	}
	return models.Location{Lat: lat, Lng: lng}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
