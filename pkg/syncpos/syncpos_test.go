package syncpos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-georef/pkg/affine"
	"github.com/kass/go-georef/pkg/models"
	"github.com/kass/go-georef/pkg/proj"
	"github.com/kass/go-georef/pkg/store"
)

func fittedTransform(t *testing.T) *affine.Transform {
	t.Helper()

	baseX := proj.LonToX(-122.4194)
	baseY := proj.LatToY(37.7749)
	truth := &affine.Transform{A: 1, B: 0, C: baseX, D: 0, E: -1, F: baseY}

	var points []models.ControlPoint
	for _, px := range [][2]float64{{0, 0}, {100, 0}, {100, 100}, {0, 100}} {
		mercX, mercY := truth.ApplyMercator(px[0], px[1])
		points = append(points, models.ControlPoint{
			ImageX: px[0], ImageY: px[1],
			Gps: models.GpsPoint{Lat: proj.YToLat(mercY), Lng: proj.XToLon(mercX)},
		})
	}

	fitted, _, err := affine.Estimate(points)
	require.NoError(t, err)
	return fitted
}

func testStore() *store.Store {
	s := store.New()
	s.AddEntity(&models.ImageEntity{
		ID: "img-1", Kind: models.KindPoint, Origin: models.OriginImage,
		HasPixel: true, ImageX: 50, ImageY: 50,
	})
	s.AddEntity(&models.ImageEntity{
		ID: "img-2", Kind: models.KindSpot, Origin: models.OriginImage,
		HasPixel: true, ImageX: 10, ImageY: 90,
	})
	s.AddEntity(&models.ImageEntity{
		ID: "gps-1", Kind: models.KindPoint, Origin: models.OriginGps,
		HasGeo: true, Lat: 40.0, Lng: -100.0,
	})
	return s
}

func TestResyncRepositionsImageOriginOnly(t *testing.T) {
	s := testStore()
	sync := New(s)
	sync.SetTransform(fittedTransform(t))

	result := sync.Resync()
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Untouched)
	assert.Equal(t, 0, result.Skipped)

	img, _ := s.Entity("img-1")
	assert.True(t, img.HasGeo)

	// The gps-origin entity is never moved, no matter how often we resync.
	for i := 0; i < 3; i++ {
		sync.Resync()
	}
	gps, _ := s.Entity("gps-1")
	assert.Equal(t, 40.0, gps.Lat)
	assert.Equal(t, -100.0, gps.Lng)
}

func TestResyncBoundsFallbackBeforeFirstFit(t *testing.T) {
	s := testStore()
	sync := New(s)

	// No transform, no bounds: image entities cannot be positioned yet.
	result := sync.Resync()
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 2, result.Skipped)

	sync.SetPlacement(models.ImageBounds{
		SW:     models.Location{Lat: 37.0, Lng: -122.5},
		NE:     models.Location{Lat: 38.0, Lng: -121.5},
		Width:  100,
		Height: 100,
	})

	result = sync.Resync()
	assert.Equal(t, 2, result.Updated)

	img, _ := s.Entity("img-1")
	assert.InDelta(t, 37.5, img.Lat, 1e-9) // pixel (50,50) is the bounds center
	assert.InDelta(t, -122.0, img.Lng, 1e-9)
}

func TestResyncTransformSupersedesBounds(t *testing.T) {
	s := testStore()
	sync := New(s)
	sync.SetPlacement(models.ImageBounds{
		SW:     models.Location{Lat: 0, Lng: 0},
		NE:     models.Location{Lat: 1, Lng: 1},
		Width:  100,
		Height: 100,
	})
	sync.SetTransform(fittedTransform(t))

	sync.Resync()
	img, _ := s.Entity("img-1")
	// Positioned by the transform near the fitted rectangle, not the bounds.
	assert.InDelta(t, 37.77, img.Lat, 0.05)
	assert.InDelta(t, -122.42, img.Lng, 0.05)
}

func TestResyncIdempotent(t *testing.T) {
	s := testStore()
	sync := New(s)
	sync.SetTransform(fittedTransform(t))

	sync.Resync()

	positions := func() map[string][2]float64 {
		out := make(map[string][2]float64)
		for _, e := range s.Entities() {
			out[e.ID] = [2]float64{e.Lat, e.Lng}
		}
		return out
	}

	first := positions()
	sync.Resync()
	second := positions()

	// Bit-identical positions with unchanged inputs.
	assert.Equal(t, first, second)
}

func TestResyncSkipsMalformedEntity(t *testing.T) {
	s := testStore()
	s.AddEntity(&models.ImageEntity{
		ID: "broken", Kind: models.KindPoint, Origin: models.OriginImage,
		HasPixel: false, // image origin but no pixel coordinates
	})

	sync := New(s)
	sync.SetTransform(fittedTransform(t))

	result := sync.Resync()
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Skipped)

	// The malformed entity kept its (absent) position, the rest proceeded.
	broken, _ := s.Entity("broken")
	assert.False(t, broken.HasGeo)
}

func TestSubscribeExactlyOnce(t *testing.T) {
	s := store.New()
	s.AddEntity(&models.ImageEntity{
		ID: "img-1", Kind: models.KindPoint, Origin: models.OriginImage,
		HasPixel: true, ImageX: 50, ImageY: 50,
	})

	sync := New(s)
	sync.SetPlacement(models.ImageBounds{
		SW: models.Location{Lat: 0, Lng: 0}, NE: models.Location{Lat: 1, Lng: 1},
		Width: 100, Height: 100,
	})

	notifier := &Notifier{}
	sync.Subscribe(notifier)
	sync.Subscribe(notifier) // idempotent: must not register twice
	sync.Subscribe(notifier)

	passes := 0
	notifier.Register(func() { passes++ })

	// Only two handlers: one resync subscription plus the counter above.
	assert.Len(t, notifier.handlers, 2)

	notifier.Notify()
	assert.Equal(t, 1, passes)

	e, _ := s.Entity("img-1")
	assert.True(t, e.HasGeo)
}

func TestNotifySnapshotsHandlers(t *testing.T) {
	notifier := &Notifier{}

	// A handler registering another handler must not affect the running
	// dispatch; Notify iterates a copy of the registration list.
	lateCalls := 0
	notifier.Register(func() {
		notifier.Register(func() { lateCalls++ })
	})

	notifier.Notify()
	assert.Equal(t, 0, lateCalls)

	notifier.Notify()
	assert.Equal(t, 1, lateCalls)
}

func TestLastResultAfterNotify(t *testing.T) {
	s := testStore()
	sync := New(s)
	sync.SetTransform(fittedTransform(t))

	notifier := &Notifier{}
	sync.Subscribe(notifier)

	assert.Equal(t, Result{}, sync.LastResult())

	// The pass ran inside the notification; its counts are still observable.
	notifier.Notify()
	result := sync.LastResult()
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Untouched)
	assert.Equal(t, 0, result.Skipped)
}

func TestNotifierDrivesResyncOnPlacementChange(t *testing.T) {
	s := store.New()
	s.AddEntity(&models.ImageEntity{
		ID: "img-1", Kind: models.KindPoint, Origin: models.OriginImage,
		HasPixel: true, ImageX: 0, ImageY: 0,
	})

	sync := New(s)
	notifier := &Notifier{}
	sync.Subscribe(notifier)

	sync.SetPlacement(models.ImageBounds{
		SW: models.Location{Lat: 10, Lng: 10}, NE: models.Location{Lat: 20, Lng: 20},
		Width: 100, Height: 100,
	})
	notifier.Notify()

	e, _ := s.Entity("img-1")
	require.True(t, e.HasGeo)
	assert.InDelta(t, 20.0, e.Lat, 1e-9)

	// User adjusts placement; the same notification path moves the marker.
	sync.SetPlacement(models.ImageBounds{
		SW: models.Location{Lat: 30, Lng: 30}, NE: models.Location{Lat: 40, Lng: 40},
		Width: 100, Height: 100,
	})
	notifier.Notify()

	e, _ = s.Entity("img-1")
	assert.InDelta(t, 40.0, e.Lat, 1e-9)
}
