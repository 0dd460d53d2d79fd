// Package syncpos keeps displayed entity positions consistent with the
// current affine transform and image placement. Entities that originated from
// GPS data are never moved; image-origin entities are repositioned on every
// transform or placement change.
package syncpos

import (
	"sync"

	"github.com/kass/go-georef/pkg/affine"
	"github.com/kass/go-georef/pkg/models"
	"github.com/kass/go-georef/pkg/proj"
	"github.com/kass/go-georef/pkg/store"
)

// Notifier fans one "image updated" notification out to its subscribers.
// Both a new transform estimate and a manual placement change funnel through
// the same notification.
type Notifier struct {
	mu       sync.Mutex
	handlers []func()
}

// Register adds a handler. Callers are responsible for not registering the
// same logical handler twice; Synchronizer.Subscribe guards that itself.
func (n *Notifier) Register(handler func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, handler)
}

// Notify invokes all registered handlers in registration order.
func (n *Notifier) Notify() {
	n.mu.Lock()
	handlers := append([]func(){}, n.handlers...)
	n.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// Result summarizes one synchronization pass.
type Result struct {
	// Updated is the number of entities whose position was recomputed.
	Updated int
	// Skipped counts image-origin entities left at their last known position
	// because their coordinates could not be transformed.
	Skipped int
	// Untouched counts gps-origin entities, which this component never moves.
	Untouched int
}

// Synchronizer recomputes displayed positions for image-origin entities from
// the current transform, or from the image bounds before the first fit.
type Synchronizer struct {
	store *store.Store

	mu         sync.Mutex
	transform  *affine.Transform
	bounds     *models.ImageBounds
	subscribed bool
	last       Result
}

// New creates a synchronizer over the given entity store.
func New(s *store.Store) *Synchronizer {
	return &Synchronizer{store: s}
}

// Subscribe registers the synchronizer's resync handler on the notifier
// exactly once. Re-subscribing is a no-op, so repeated wiring cannot cause
// duplicate synchronization passes.
func (s *Synchronizer) Subscribe(n *Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		return
	}
	s.subscribed = true
	n.Register(func() { s.Resync() })
}

// SetTransform supersedes the current transform. The previous value is
// discarded, never mutated.
func (s *Synchronizer) SetTransform(t *affine.Transform) {
	s.mu.Lock()
	s.transform = t
	s.mu.Unlock()
}

// SetPlacement records the image overlay's displayed bounding box, used to
// position image-origin entities before the first successful fit.
func (s *Synchronizer) SetPlacement(b models.ImageBounds) {
	s.mu.Lock()
	bounds := b
	s.bounds = &bounds
	s.mu.Unlock()
}

// Transform returns the transform currently in effect, which may be nil.
func (s *Synchronizer) Transform() *affine.Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transform
}

// Resync runs one full pass over all tracked entities: points, route
// waypoints and spots. A failure on one entity skips it and the pass
// continues; the pass is idempotent when inputs are unchanged.
func (s *Synchronizer) Resync() Result {
	s.mu.Lock()
	transform := s.transform
	bounds := s.bounds
	s.mu.Unlock()

	var result Result
	for _, key := range s.store.Keys() {
		e, ok := s.store.Entity(key)
		if !ok {
			continue
		}
		if e.Origin != models.OriginImage {
			result.Untouched++
			continue
		}
		if !e.HasPixel {
			result.Skipped++
			continue
		}

		loc, err := s.position(e, transform, bounds)
		if err != nil {
			result.Skipped++
			continue
		}
		s.store.UpdatePosition(key, loc)
		result.Updated++
	}

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
	return result
}

// LastResult returns the counts of the most recent synchronization pass,
// including passes triggered through a Notifier.
func (s *Synchronizer) LastResult() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Synchronizer) position(e *models.ImageEntity, transform *affine.Transform, bounds *models.ImageBounds) (models.Location, error) {
	if transform != nil {
		return transform.Apply(e.ImageX, e.ImageY)
	}
	if bounds != nil {
		return proj.ImageCoordsToGps(e.ImageX, e.ImageY, *bounds)
	}
	return models.Location{}, affine.ErrNoTransform
}
