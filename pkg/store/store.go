// Package store holds the running collection of image entities, routes and
// GPS batches, with an R-Tree index over every entity that has a resolved
// geographic position.
package store

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"
	"github.com/google/uuid"

	"github.com/kass/go-georef/pkg/match"
	"github.com/kass/go-georef/pkg/models"
	"github.com/kass/go-georef/pkg/proj"
)

const (
	tolerance   = 0.0001
	minChildren = 25
	maxChildren = 50
	dimensions  = 2

	earthRadius = 6371000.0 // m
)

// spatialEntity wraps an entity to implement rtreego.Spatial
type spatialEntity struct {
	entity *models.ImageEntity
	rect   *rtreego.Rect
}

func (se *spatialEntity) Bounds() *rtreego.Rect {
	return se.rect
}

// Store is a thread-safe arena of entities keyed by identifier. The store
// does not interpret positions; the synchronization component writes them and
// the spatial index follows.
type Store struct {
	mu sync.RWMutex

	entities map[string]*models.ImageEntity
	order    []string
	seq      int

	routes []*models.Route

	gps           map[string]models.GpsPoint
	gpsOrder      []string
	batchByID     map[string]uuid.UUID
	batchBySource map[string]uuid.UUID

	tree     *rtreego.Rtree
	indexed  map[string]*spatialEntity
	geoCount atomic.Int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entities:      make(map[string]*models.ImageEntity),
		gps:           make(map[string]models.GpsPoint),
		batchByID:     make(map[string]uuid.UUID),
		batchBySource: make(map[string]uuid.UUID),
		tree:          rtreego.NewTree(dimensions, minChildren, maxChildren),
		indexed:       make(map[string]*spatialEntity),
	}
}

// AddEntity inserts an entity and returns its arena key. Entities without any
// identifier get a synthetic key so they stay addressable.
func (s *Store) AddEntity(e *models.ImageEntity) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addEntityLocked(e)
}

func (s *Store) addEntityLocked(e *models.ImageEntity) string {
	key := e.ID
	if key == "" {
		key = e.AltID
	}
	if key == "" {
		key = e.Name
	}
	if key == "" {
		key = fmt.Sprintf("%s#%d", e.Kind, s.seq)
	}
	s.seq++

	if _, exists := s.entities[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entities[key] = e
	s.reindexLocked(key, e)
	return key
}

// Entities returns all entities in insertion order.
func (s *Store) Entities() []*models.ImageEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ImageEntity, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.entities[key])
	}
	return out
}

// Keys returns the arena keys in insertion order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Entity returns the entity stored under the given key.
func (s *Store) Entity(key string) (*models.ImageEntity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[key]
	return e, ok
}

// Count returns the number of tracked entities.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// GeoCount returns the number of entities currently in the spatial index.
func (s *Store) GeoCount() int64 {
	return s.geoCount.Load()
}

// AddSpot merges the spot into the collection: a record duplicating an
// existing spot (per the pixel/GPS tolerances) is folded into it, preserving
// resolved coordinates; anything else is inserted as new. Reports whether a
// merge happened.
func (s *Store) AddSpot(spot *models.ImageEntity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.order {
		existing := s.entities[key]
		if existing.Kind != models.KindSpot {
			continue
		}
		if match.SameSpot(existing, spot) {
			match.MergeSpot(existing, spot)
			s.reindexLocked(key, existing)
			return true
		}
	}

	spot.Kind = models.KindSpot
	s.addEntityLocked(spot)
	return false
}

// AddRoute merges the route into the collection: a duplicate (same start/end
// forward or reversed) replaces the existing record entirely, waypoints
// included. Reports whether a replacement happened.
func (s *Store) AddRoute(route *models.Route) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if route.ID == "" {
		route.ID = fmt.Sprintf("route#%d", s.seq)
		s.seq++
	}

	for i, existing := range s.routes {
		if match.SameRoute(existing, route) {
			s.removeRouteEntitiesLocked(existing.ID)
			s.routes[i] = route
			s.addRouteEntitiesLocked(route)
			return true
		}
	}

	s.routes = append(s.routes, route)
	s.addRouteEntitiesLocked(route)
	return false
}

// Routes returns all routes in insertion order.
func (s *Store) Routes() []*models.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Route(nil), s.routes...)
}

func (s *Store) addRouteEntitiesLocked(route *models.Route) {
	for _, wp := range route.Waypoints {
		wp.Kind = models.KindWaypoint
		wp.RouteID = route.ID
		s.addEntityLocked(wp)
	}
}

func (s *Store) removeRouteEntitiesLocked(routeID string) {
	kept := s.order[:0]
	for _, key := range s.order {
		e := s.entities[key]
		if e.RouteID == routeID {
			s.unindexLocked(key)
			delete(s.entities, key)
			continue
		}
		kept = append(kept, key)
	}
	s.order = kept
}

// LoadGps loads a batch of GPS points from the named source, replacing any
// batch previously loaded from the same source. Points from other sources
// with colliding identifiers resolve last-write-wins.
func (s *Store) LoadGps(source string, points []models.GpsPoint) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.batchBySource[source]; ok {
		kept := s.gpsOrder[:0]
		for _, id := range s.gpsOrder {
			if s.batchByID[id] == prev {
				delete(s.gps, id)
				delete(s.batchByID, id)
				continue
			}
			kept = append(kept, id)
		}
		s.gpsOrder = kept
	}

	batch := uuid.New()
	s.batchBySource[source] = batch

	for _, p := range points {
		if _, exists := s.gps[p.Identifier]; !exists {
			s.gpsOrder = append(s.gpsOrder, p.Identifier)
		}
		s.gps[p.Identifier] = p
		s.batchByID[p.Identifier] = batch
	}
	return batch
}

// GpsPoints returns the loaded GPS points in insertion order.
func (s *Store) GpsPoints() []models.GpsPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.GpsPoint, 0, len(s.gpsOrder))
	for _, id := range s.gpsOrder {
		out = append(out, s.gps[id])
	}
	return out
}

// UpdatePosition overwrites the entity's resolved position in place and keeps
// the spatial index consistent.
func (s *Store) UpdatePosition(key string, loc models.Location) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[key]
	if !ok {
		return false
	}
	e.HasGeo = true
	e.Lat = loc.Lat
	e.Lng = loc.Lng
	s.reindexLocked(key, e)
	return true
}

// SearchRadius returns all geo-resolved entities within radiusMeters of the
// center, nearest first not guaranteed.
func (s *Store) SearchRadius(center models.Location, radiusMeters float64) ([]*models.ImageEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deg := (radiusMeters / earthRadius) * (180 / math.Pi)
	bounds, err := rtreego.NewRect(
		rtreego.Point{center.Lat - deg, center.Lng - deg},
		[]float64{2 * deg, 2 * deg},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid radius search: %w", err)
	}

	results := s.tree.SearchIntersect(bounds)

	entities := make([]*models.ImageEntity, 0, len(results))
	for _, result := range results {
		item, ok := result.(*spatialEntity)
		if !ok || item.entity == nil {
			continue
		}
		dist := proj.Distance(center.Lat, center.Lng, item.entity.Lat, item.entity.Lng)
		if dist <= radiusMeters {
			entities = append(entities, item.entity)
		}
	}
	return entities, nil
}

// SearchBounds returns all geo-resolved entities inside the bounding box.
func (s *Store) SearchBounds(box models.BoundingBox) ([]*models.ImageEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bounds, err := rtreego.NewRect(
		rtreego.Point{box.BottomLeft.Lat, box.BottomLeft.Lng},
		[]float64{
			box.TopRight.Lat - box.BottomLeft.Lat,
			box.TopRight.Lng - box.BottomLeft.Lng,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid bounding box: %w", err)
	}

	results := s.tree.SearchIntersect(bounds)

	entities := make([]*models.ImageEntity, 0, len(results))
	for _, result := range results {
		if item, ok := result.(*spatialEntity); ok && item.entity != nil {
			entities = append(entities, item.entity)
		}
	}
	return entities, nil
}

// NearestNeighbors returns the n geo-resolved entities closest to the center.
func (s *Store) NearestNeighbors(center models.Location, n int) []*models.ImageEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := s.tree.NearestNeighbors(n, rtreego.Point{center.Lat, center.Lng})

	entities := make([]*models.ImageEntity, 0, len(results))
	for _, result := range results {
		if item, ok := result.(*spatialEntity); ok && item.entity != nil {
			entities = append(entities, item.entity)
		}
	}
	return entities
}

// Clear removes all entities, routes and GPS batches.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities = make(map[string]*models.ImageEntity)
	s.order = nil
	s.routes = nil
	s.gps = make(map[string]models.GpsPoint)
	s.gpsOrder = nil
	s.batchByID = make(map[string]uuid.UUID)
	s.batchBySource = make(map[string]uuid.UUID)
	s.tree = rtreego.NewTree(dimensions, minChildren, maxChildren)
	s.indexed = make(map[string]*spatialEntity)
	s.geoCount.Store(0)
}

func (s *Store) reindexLocked(key string, e *models.ImageEntity) {
	s.unindexLocked(key)
	if !e.HasGeo {
		return
	}
	point := rtreego.Point{e.Lat, e.Lng}
	item := &spatialEntity{entity: e, rect: point.ToRect(tolerance)}
	s.tree.Insert(item)
	s.indexed[key] = item
	s.geoCount.Add(1)
}

func (s *Store) unindexLocked(key string) {
	if item, ok := s.indexed[key]; ok {
		s.tree.Delete(item)
		delete(s.indexed, key)
		s.geoCount.Add(-1)
	}
}
