// Package loader turns raw GPS and image-coordinate files into the plain data
// structures the engine consumes: GeoJSON point features on the GPS side, and
// auto-classified point/route/spot JSON on the image side.
package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kass/go-georef/pkg/models"
)

// Payload is the classified content of one image-coordinate file.
type Payload struct {
	Points []*models.ImageEntity
	Routes []*models.Route
	Spots  []*models.ImageEntity
}

// LoadGpsPoints reads a GeoJSON file of Point features into GPS points.
func LoadGpsPoints(path string) ([]models.GpsPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gps file: %w", err)
	}
	return ParseGpsPoints(data)
}

// ParseGpsPoints decodes a GeoJSON FeatureCollection (or single Feature) of
// Point geometry. Identifier resolution order within properties: id,
// identifier, name. Elevation comes from the coordinate triple when present,
// falling back to an elevation/ele property.
func ParseGpsPoints(data []byte) ([]models.GpsPoint, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		feature, ferr := geojson.UnmarshalFeature(data)
		if ferr != nil {
			return nil, fmt.Errorf("failed to parse geojson: %w", err)
		}
		fc = geojson.NewFeatureCollection()
		fc.Append(feature)
	}

	// orb points are two-dimensional; recover elevation triples separately.
	elevations := coordinateElevations(data)

	points := make([]models.GpsPoint, 0, len(fc.Features))
	for i, feature := range fc.Features {
		point, ok := feature.Geometry.(orb.Point)
		if !ok {
			continue
		}

		p := models.GpsPoint{
			Identifier: stringProp(feature.Properties, "id", "identifier", "name"),
			Lng:        point.Lon(),
			Lat:        point.Lat(),
			Name:       stringProp(feature.Properties, "name"),
			Locality:   stringProp(feature.Properties, "locality", "location"),
		}
		if p.Identifier == "" {
			p.Identifier = fmt.Sprintf("gps#%d", i)
		}

		if elev, ok := elevations[i]; ok {
			p.Elevation = elev
		} else if elev, ok := floatProp(feature.Properties, "elevation", "ele"); ok {
			p.Elevation = elev
		}

		points = append(points, p)
	}
	return points, nil
}

// LoadImageEntities reads and classifies one image-coordinate JSON file.
func LoadImageEntities(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity file: %w", err)
	}
	return ParseImageEntities(data)
}

// rawRecord is the permissive shape image-coordinate sources decode into
// before classification.
type rawRecord struct {
	ID         string        `json:"id"`
	Identifier string        `json:"identifier"`
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	ImageX     *float64      `json:"imageX"`
	ImageY     *float64      `json:"imageY"`
	Lat        *float64      `json:"lat"`
	Lng        *float64      `json:"lng"`
	Elevation  *float64      `json:"elevation"`
	RouteInfo  *rawRouteInfo `json:"routeInfo"`
	Points     []rawRecord   `json:"points"`
	Spots      []rawRecord   `json:"spots"`
}

type rawRouteInfo struct {
	Name       string `json:"name"`
	StartPoint string `json:"startPoint"`
	EndPoint   string `json:"endPoint"`
}

// ParseImageEntities auto-classifies raw JSON into point, route and spot
// shapes: a record with routeInfo and waypoint entries is a route, a record
// with a spots array (or a bare object with a non-blank name plus pixel
// coordinates) contributes spots, everything else with coordinates is a point.
func ParseImageEntities(data []byte) (*Payload, error) {
	var records []rawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		var single rawRecord
		if serr := json.Unmarshal(data, &single); serr != nil {
			return nil, fmt.Errorf("failed to parse entity json: %w", err)
		}
		records = []rawRecord{single}
	}

	payload := &Payload{}
	for _, rec := range records {
		classify(rec, payload)
	}
	return payload, nil
}

func classify(rec rawRecord, payload *Payload) {
	switch {
	case rec.RouteInfo != nil || len(rec.Points) > 0:
		if route := buildRoute(rec); route != nil {
			payload.Routes = append(payload.Routes, route)
		}
	case len(rec.Spots) > 0:
		for _, s := range rec.Spots {
			if spot := buildEntity(s, models.KindSpot); spot != nil {
				payload.Spots = append(payload.Spots, spot)
			}
		}
	case rec.Name != "" && rec.ImageX != nil && rec.ImageY != nil && rec.ID == "" && rec.Identifier == "":
		if spot := buildEntity(rec, models.KindSpot); spot != nil {
			payload.Spots = append(payload.Spots, spot)
		}
	default:
		if point := buildEntity(rec, models.KindPoint); point != nil {
			payload.Points = append(payload.Points, point)
		}
	}
}

func buildEntity(rec rawRecord, kind models.Kind) *models.ImageEntity {
	hasPixel := rec.ImageX != nil && rec.ImageY != nil
	hasGeo := rec.Lat != nil && rec.Lng != nil
	if !hasPixel && !hasGeo {
		return nil
	}

	e := &models.ImageEntity{
		ID:       rec.ID,
		AltID:    rec.Identifier,
		Name:     rec.Name,
		Kind:     kind,
		HasPixel: hasPixel,
		HasGeo:   hasGeo,
	}
	if rec.Type != "" {
		switch models.Kind(rec.Type) {
		case models.KindPoint, models.KindWaypoint, models.KindSpot:
			e.Kind = models.Kind(rec.Type)
		}
	}
	if hasPixel {
		e.ImageX = *rec.ImageX
		e.ImageY = *rec.ImageY
		e.Origin = models.OriginImage
	} else {
		e.Origin = models.OriginGps
	}
	if hasGeo {
		e.Lat = *rec.Lat
		e.Lng = *rec.Lng
	}
	if rec.Elevation != nil {
		e.Elevation = *rec.Elevation
	}
	return e
}

func buildRoute(rec rawRecord) *models.Route {
	route := &models.Route{ID: rec.ID, Name: rec.Name}
	if route.Name == "" && rec.RouteInfo != nil {
		route.Name = rec.RouteInfo.Name
	}

	for _, p := range rec.Points {
		if p.Type != "" && p.Type != string(models.KindWaypoint) {
			continue
		}
		if wp := buildEntity(p, models.KindWaypoint); wp != nil {
			route.Waypoints = append(route.Waypoints, wp)
		}
	}

	if rec.RouteInfo != nil && rec.RouteInfo.StartPoint != "" {
		route.Start = &models.RouteEndpoint{ID: rec.RouteInfo.StartPoint}
	}
	if rec.RouteInfo != nil && rec.RouteInfo.EndPoint != "" {
		route.End = &models.RouteEndpoint{ID: rec.RouteInfo.EndPoint}
	}

	// Without endpoint identifiers, fall back to the first/last waypoints so
	// coordinate-based deduplication still has something to compare.
	if route.Start == nil && len(route.Waypoints) > 0 {
		route.Start = endpointFromEntity(route.Waypoints[0])
	}
	if route.End == nil && len(route.Waypoints) > 1 {
		route.End = endpointFromEntity(route.Waypoints[len(route.Waypoints)-1])
	}

	if len(route.Waypoints) == 0 && route.Start == nil && route.End == nil {
		return nil
	}
	return route
}

func endpointFromEntity(e *models.ImageEntity) *models.RouteEndpoint {
	return &models.RouteEndpoint{
		ID:       e.ID,
		HasPixel: e.HasPixel,
		ImageX:   e.ImageX,
		ImageY:   e.ImageY,
		HasGeo:   e.HasGeo,
		Lat:      e.Lat,
		Lng:      e.Lng,
	}
}

// coordinateElevations extracts third coordinates from the raw document,
// keyed by feature index. Handles both the FeatureCollection and bare Feature
// shapes; coordinates are decoded per feature so a non-Point geometry anywhere
// in the collection only loses its own entry.
func coordinateElevations(data []byte) map[int]float64 {
	var shadow struct {
		Geometry *struct {
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
		Features []struct {
			Geometry struct {
				Coordinates json.RawMessage `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}

	out := make(map[int]float64)
	if err := json.Unmarshal(data, &shadow); err != nil {
		return out
	}

	if len(shadow.Features) == 0 && shadow.Geometry != nil {
		if elev, ok := thirdCoordinate(shadow.Geometry.Coordinates); ok {
			out[0] = elev
		}
		return out
	}
	for i, f := range shadow.Features {
		if elev, ok := thirdCoordinate(f.Geometry.Coordinates); ok {
			out[i] = elev
		}
	}
	return out
}

// thirdCoordinate decodes one Point coordinate array and reports its elevation.
// Nested coordinate shapes (lines, polygons) fail to decode and report false.
func thirdCoordinate(raw json.RawMessage) (float64, bool) {
	var coords []float64
	if err := json.Unmarshal(raw, &coords); err != nil || len(coords) < 3 {
		return 0, false
	}
	return coords[2], true
}

func stringProp(props geojson.Properties, keys ...string) string {
	for _, key := range keys {
		switch v := props[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func floatProp(props geojson.Properties, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, ok := props[key].(float64); ok {
			return v, true
		}
	}
	return 0, false
}
