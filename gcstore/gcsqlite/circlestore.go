// Package gcsqlite contains gcstore implementations backed by SQLite,
// using the pure Go modernc.org/sqlite driver.
package gcsqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcstore"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

type CircleStore struct {
	log *slog.Logger
	db  *sql.DB
}

var _ gcstore.CircleStore = (*CircleStore)(nil)

// NewOnDiskCircleStore opens or creates the database at path.
func NewOnDiskCircleStore(ctx context.Context, log *slog.Logger, path string) (*CircleStore, error) {
	db, err := sql.Open("sqlite", path+
		"?_pragma=journal_mode(WAL)"+
		"&_pragma=busy_timeout(5000)"+
		"&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are serialized by SQLite anyway.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return newCircleStore(ctx, log, db)
}

// NewInMemoryCircleStore returns a store whose database
// lives only as long as the store.
func NewInMemoryCircleStore(ctx context.Context, log *slog.Logger) (*CircleStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to :memory: is a distinct database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	return newCircleStore(ctx, log, db)
}

func newCircleStore(ctx context.Context, log *slog.Logger, db *sql.DB) (*CircleStore, error) {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &CircleStore{log: log, db: db}, nil
}

func (s *CircleStore) Close() error {
	return s.db.Close()
}

func (s *CircleStore) SaveCircle(ctx context.Context, name string, gen gcircle.Generation, data []byte) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO circles (name, generation, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   generation = excluded.generation,
		   data = excluded.data,
		   updated_at = excluded.updated_at
		 WHERE excluded.generation >= circles.generation`,
		name, encodeGeneration(gen), data, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save circle %q: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check saved rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	// The upsert was skipped, so the stored generation must be newer.
	have, _, err := s.LoadCircle(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load circle %q after skipped save: %w", name, err)
	}

	s.log.Debug(
		"Refusing to save stale circle",
		"name", name,
		"have_generation", have,
		"want_generation", gen,
	)
	return gcstore.StaleGenerationError{Name: name, Have: have, Want: gen}
}

func (s *CircleStore) LoadCircle(ctx context.Context, name string) (gcircle.Generation, []byte, error) {
	var (
		gen  []byte
		data []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT generation, data FROM circles WHERE name = ?`,
		name,
	).Scan(&gen, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, gcstore.NoCircleError{Name: name}
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load circle %q: %w", name, err)
	}

	if len(gen) != 8 {
		return 0, nil, fmt.Errorf("circle %q has malformed stored generation (%d bytes)", name, len(gen))
	}

	return gcircle.Generation(binary.BigEndian.Uint64(gen)), data, nil
}

// Generations are stored big-endian so that SQLite's BLOB ordering
// matches unsigned integer ordering across the full uint64 range.
func encodeGeneration(g gcircle.Generation) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(g))
}

func (s *CircleStore) CircleNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM circles ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list circles: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan circle name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
