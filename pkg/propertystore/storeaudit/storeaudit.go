// Package storeaudit optionally appends every finalization (entity,
// kind, final property, timestamp) to a Postgres table for offline
// analysis, following the sqlx query conventions this codebase's
// Postgres-backed services use.
package storeaudit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/propertystore/pkg/propertystore"
)

// Record is one row of the finalization audit trail.
type Record struct {
	PhaseID string    `db:"phase_id"`
	Kind    string    `db:"kind"`
	Entity  string    `db:"entity"`
	Value   string    `db:"value"`
	FinalAt time.Time `db:"final_at"`
}

// Trail is a Postgres-backed append-only log of finalizations.
type Trail struct {
	db *sqlx.DB
}

// Open connects to dsn and ensures the audit table exists.
func Open(dsn string) (*Trail, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storeaudit: connect: %w", err)
	}
	t := &Trail{db: db}
	if err := t.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Trail) ensureSchema() error {
	_, err := t.db.Exec(`
		CREATE TABLE IF NOT EXISTS property_finalizations (
			id       SERIAL PRIMARY KEY,
			phase_id TEXT NOT NULL,
			kind     TEXT NOT NULL,
			entity   TEXT NOT NULL,
			value    TEXT NOT NULL,
			final_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("storeaudit: ensure schema: %w", err)
	}
	return nil
}

// Append inserts one audit row.
func (t *Trail) Append(ctx context.Context, r Record) error {
	_, err := t.db.NamedExecContext(ctx, `
		INSERT INTO property_finalizations (phase_id, kind, entity, value, final_at)
		VALUES (:phase_id, :kind, :entity, :value, :final_at)`, r)
	if err != nil {
		return fmt.Errorf("storeaudit: append: %w", err)
	}
	return nil
}

// Observe registers an OnFinalize hook on store that appends a Record
// for every finalized value, rendering it with stringify.
func (t *Trail) Observe(store *propertystore.Store, stringify func(propertystore.Property) string) {
	store.OnFinalize(func(e propertystore.Entity, p propertystore.Property) {
		_ = t.Append(context.Background(), Record{
			PhaseID: store.PhaseID(),
			Kind:    p.Kind().Name(),
			Entity:  fmt.Sprint(e),
			Value:   stringify(p),
			FinalAt: time.Now(),
		})
	})
}

// Close releases the underlying database connection.
func (t *Trail) Close() error { return t.db.Close() }
