// Package postgis publishes resolved entities to a PostGIS table so other
// tooling can query the georeferenced result spatially.
package postgis

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kass/go-georef/pkg/models"
)

type Publisher struct {
	db *sql.DB
}

// NewPublisher opens a PostGIS connection.
func NewPublisher(host, user, password, dbname string, port int) (*Publisher, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Publisher{db: db}, nil
}

// InitSchema creates the features table and its spatial index.
func (p *Publisher) InitSchema() error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis;`,

		`DROP TABLE IF EXISTS georef_features;`,

		`CREATE TABLE georef_features (
			id TEXT PRIMARY KEY,
			name TEXT,
			kind TEXT NOT NULL,
			source TEXT NOT NULL,
			elevation DOUBLE PRECISION,
			location GEOMETRY(POINT, 4326)
		);`,

		`CREATE INDEX idx_georef_features_location ON georef_features USING GIST(location);`,
	}

	for _, query := range queries {
		if _, err := p.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// PublishEntities inserts all geo-resolved entities in batched transactions.
// Entities without a resolved position are skipped.
func (p *Publisher) PublishEntities(entities []*models.ImageEntity) (int, error) {
	const batchSize = 1000

	stmt, err := p.db.Prepare(`
		INSERT INTO georef_features (id, name, kind, source, elevation, location)
		VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326))
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			source = EXCLUDED.source,
			elevation = EXCLUDED.elevation,
			location = EXCLUDED.location
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	tx, err := p.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStmt := tx.Stmt(stmt)

	inserted := 0
	for i, e := range entities {
		if !e.HasGeo {
			continue
		}

		id := e.ID
		if id == "" {
			id = fmt.Sprintf("%s#%d", e.Kind, i)
		}

		var elevation interface{}
		if e.Elevation > 0 {
			elevation = e.Elevation
		}

		if _, err := txStmt.Exec(id, e.Name, string(e.Kind), string(e.Origin), elevation, e.Lng, e.Lat); err != nil {
			tx.Rollback()
			return inserted, fmt.Errorf("failed to insert feature %s: %w", id, err)
		}
		inserted++

		if inserted%batchSize == 0 {
			if err := tx.Commit(); err != nil {
				return inserted, fmt.Errorf("failed to commit batch: %w", err)
			}
			tx, err = p.db.Begin()
			if err != nil {
				return inserted, fmt.Errorf("failed to begin new transaction: %w", err)
			}
			txStmt = tx.Stmt(stmt)
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("failed to commit final batch: %w", err)
	}
	return inserted, nil
}

// QueryRadius returns published features within radiusMeters of the center.
func (p *Publisher) QueryRadius(center models.Location, radiusMeters float64) ([]*models.ImageEntity, error) {
	query := `
		SELECT id, name, kind, source, ST_Y(location) as lat, ST_X(location) as lng
		FROM georef_features
		WHERE ST_DWithin(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
	`

	rows, err := p.db.Query(query, center.Lng, center.Lat, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var results []*models.ImageEntity
	for rows.Next() {
		var (
			id, kind, source string
			name             sql.NullString
			lat, lng         float64
		)
		if err := rows.Scan(&id, &name, &kind, &source, &lat, &lng); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, &models.ImageEntity{
			ID:     id,
			Name:   name.String,
			Kind:   models.Kind(kind),
			Origin: models.Origin(source),
			HasGeo: true,
			Lat:    lat,
			Lng:    lng,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}

// Count returns the number of published features.
func (p *Publisher) Count() (int64, error) {
	var count int64
	err := p.db.QueryRow("SELECT COUNT(*) FROM georef_features").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count features: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (p *Publisher) Close() error {
	return p.db.Close()
}
