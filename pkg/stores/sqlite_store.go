package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SymbolStore persists symbol index runs in SQLite.
type SymbolStore struct {
	db   *sql.DB
	path string
}

// NewSymbolStore creates a store handle for the given database path.
func NewSymbolStore(path string) (*SymbolStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SymbolStore{path: path}, nil
}

// Init opens the database, enables WAL mode and foreign keys, and runs
// migrations.
func (s *SymbolStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s.db = db

	return s.migrate()
}

// migrate applies the embedded schema migrations.
func (s *SymbolStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SymbolStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// WriteIndex stores one complete index run transactionally and returns
// its run record.
func (s *SymbolStore) WriteIndex(ctx context.Context, kernelVersion, kernelDir string, symbols []SymbolRecord) (*IndexRun, error) {
	run := &IndexRun{
		ID:            uuid.NewString(),
		KernelVersion: kernelVersion,
		KernelDir:     kernelDir,
		Symbols:       len(symbols),
		CreatedAt:     time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO index_runs (id, kernel_version, kernel_dir, symbols, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.KernelVersion, run.KernelDir, run.Symbols, run.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to insert index run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO symbols (run_id, name, type, value, visibility, prompts, direct_deps, reverse_deps)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare symbol insert: %w", err)
	}
	defer stmt.Close()

	for _, sym := range symbols {
		if _, err := stmt.ExecContext(ctx,
			run.ID, sym.Name, sym.Type, sym.Value, sym.Visibility,
			sym.Prompts, sym.DirectDeps, sym.ReverseDeps,
		); err != nil {
			return nil, fmt.Errorf("failed to insert symbol %s: %w", sym.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit index: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recent index run, or nil when the
// database is empty.
func (s *SymbolStore) LatestRun(ctx context.Context) (*IndexRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kernel_version, kernel_dir, symbols, created_at
		 FROM index_runs ORDER BY created_at DESC LIMIT 1`)

	var run IndexRun
	err := row.Scan(&run.ID, &run.KernelVersion, &run.KernelDir, &run.Symbols, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest run: %w", err)
	}
	return &run, nil
}

// QuerySymbols returns the symbols of a run whose names match the LIKE
// pattern; an empty pattern returns every symbol.
func (s *SymbolStore) QuerySymbols(ctx context.Context, runID, pattern string) ([]SymbolRecord, error) {
	if pattern == "" {
		pattern = "%"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type, value, visibility, prompts, direct_deps, reverse_deps
		 FROM symbols WHERE run_id = ? AND name LIKE ? ORDER BY name`,
		runID, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var out []SymbolRecord
	for rows.Next() {
		var r SymbolRecord
		if err := rows.Scan(&r.Name, &r.Type, &r.Value, &r.Visibility,
			&r.Prompts, &r.DirectDeps, &r.ReverseDeps); err != nil {
			return nil, fmt.Errorf("failed to scan symbol row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
