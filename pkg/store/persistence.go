package store

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/kass/go-georef/pkg/models"
)

// snapshot is the serializable form of a store: everything except the spatial
// index, which is rebuilt on load.
type snapshot struct {
	Keys          []string
	Entities      map[string]*models.ImageEntity
	Routes        []*models.Route
	GpsOrder      []string
	Gps           map[string]models.GpsPoint
	BatchByID     map[string]uuid.UUID
	BatchBySource map[string]uuid.UUID
	Seq           int
}

// SaveToFile saves the store to a binary file so a session can be resumed.
func (s *Store) SaveToFile(filename string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := snapshot{
		Keys:          s.order,
		Entities:      s.entities,
		Routes:        s.routes,
		GpsOrder:      s.gpsOrder,
		Gps:           s.gps,
		BatchByID:     s.batchByID,
		BatchBySource: s.batchBySource,
		Seq:           s.seq,
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return nil
}

// LoadFromFile restores a saved session, replacing the store's contents and
// rebuilding the spatial index.
func (s *Store) LoadFromFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var data snapshot
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return fmt.Errorf("failed to decode session: %w", err)
	}

	s.Clear()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = data.Keys
	if data.Entities != nil {
		s.entities = data.Entities
	}
	s.routes = data.Routes
	s.gpsOrder = data.GpsOrder
	if data.Gps != nil {
		s.gps = data.Gps
	}
	if data.BatchByID != nil {
		s.batchByID = data.BatchByID
	}
	if data.BatchBySource != nil {
		s.batchBySource = data.BatchBySource
	}
	s.seq = data.Seq

	for _, key := range s.order {
		s.reindexLocked(key, s.entities[key])
	}
	return nil
}
