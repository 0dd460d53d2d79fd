package models

// Origin records which coordinate system produced an entity's last displayed position.
type Origin string

const (
	// OriginImage marks entities positioned from image pixel coordinates via the
	// current transform (or bounds interpolation before the first fit).
	OriginImage Origin = "image"
	// OriginGps marks entities positioned directly from GPS data; they are never
	// moved by synchronization.
	OriginGps Origin = "gps"
)

// Kind classifies an image entity.
type Kind string

const (
	KindPoint    Kind = "point"
	KindWaypoint Kind = "waypoint"
	KindSpot     Kind = "spot"
)

// Location represents a geographic location with latitude and longitude
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GpsPoint is a surveyed point loaded from a GPS source. Immutable after load
// except by replace-on-reload of its whole batch.
type GpsPoint struct {
	Identifier string  `json:"identifier"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Elevation  float64 `json:"elevation,omitempty"`
	Name       string  `json:"name,omitempty"`
	Locality   string  `json:"locality,omitempty"`
}

// ImageEntity is a displayed marker loaded from an image-coordinate source:
// a standalone point, one vertex of a route, or a spot. Position fields are
// overwritten in place by synchronization when Origin is OriginImage.
type ImageEntity struct {
	ID      string `json:"id"`
	AltID   string `json:"alt_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Kind    Kind   `json:"kind"`
	Origin  Origin `json:"origin"`
	RouteID string `json:"route_id,omitempty"`

	HasPixel bool    `json:"has_pixel"`
	ImageX   float64 `json:"image_x,omitempty"`
	ImageY   float64 `json:"image_y,omitempty"`

	HasGeo    bool    `json:"has_geo"`
	Lat       float64 `json:"lat,omitempty"`
	Lng       float64 `json:"lng,omitempty"`
	Elevation float64 `json:"elevation,omitempty"`

	Props map[string]string `json:"props,omitempty"`
}

// RouteEndpoint identifies one end of a route, by identifier when available
// and by coordinates otherwise.
type RouteEndpoint struct {
	ID       string  `json:"id,omitempty"`
	HasPixel bool    `json:"has_pixel"`
	ImageX   float64 `json:"image_x,omitempty"`
	ImageY   float64 `json:"image_y,omitempty"`
	HasGeo   bool    `json:"has_geo"`
	Lat      float64 `json:"lat,omitempty"`
	Lng      float64 `json:"lng,omitempty"`
}

// Route groups the waypoints loaded from one route record.
type Route struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Start     *RouteEndpoint `json:"start,omitempty"`
	End       *RouteEndpoint `json:"end,omitempty"`
	Waypoints []*ImageEntity `json:"waypoints,omitempty"`
}

// ControlPoint pairs one image-coordinate entity with its GPS counterpart.
// Both coordinate pairs must be finite.
type ControlPoint struct {
	Identifier string   `json:"identifier"`
	ImageX     float64  `json:"image_x"`
	ImageY     float64  `json:"image_y"`
	Gps        GpsPoint `json:"gps"`
}

// ImageBounds is the displayed geographic bounding box of the image overlay
// together with the image's pixel dimensions.
type ImageBounds struct {
	SW     Location `json:"sw"`
	NE     Location `json:"ne"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
}

// BoundingBox is a rectangular geographic query area.
type BoundingBox struct {
	BottomLeft Location `json:"bottom_left"`
	TopRight   Location `json:"top_right"`
}
