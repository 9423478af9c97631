package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowgen/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/flowgen.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, sqlTarget{s.db}, "migrations")
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return storeError("vacuum", err)
	}
	return nil
}

// --- Projects ---

// SaveProject inserts rec or replaces the stored document, keeping the
// original created_at.
func (s *LibSQLStore) SaveProject(ctx context.Context, rec *ProjectRecord) error {
	if rec.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "project ID is required")
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, document, diagrams, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, document=excluded.document,
		   diagrams=excluded.diagrams, updated_at=excluded.updated_at`,
		rec.ID, rec.Name, string(rec.Document), rec.Diagrams, timeOrNow(rec.CreatedAt), now,
	)
	if err != nil {
		return storeError("save project", err)
	}
	rec.UpdatedAt = now
	return nil
}

func (s *LibSQLStore) GetProject(ctx context.Context, id string) (*ProjectRecord, error) {
	rec := &ProjectRecord{}
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, document, diagrams, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &doc, &rec.Diagrams, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("project", id)
	}
	if err != nil {
		return nil, storeError("get project", err)
	}
	rec.Document = []byte(doc)
	return rec, nil
}

func (s *LibSQLStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]*ProjectRecord, error) {
	var where []string
	var args []any
	if filter.NamePrefix != "" {
		where = append(where, "name LIKE ? ESCAPE '\\'")
		args = append(args, likePrefix(filter.NamePrefix))
	}

	query := "SELECT id, name, diagrams, created_at, updated_at FROM projects"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id" + pageClause(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list projects", err)
	}
	defer rows.Close()

	var out []*ProjectRecord
	for rows.Next() {
		rec := &ProjectRecord{}
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Diagrams, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, storeError("scan project", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return storeError("delete project", err)
	}
	return checkRowsAffected(res, "project", id)
}

// --- Generations ---

func (s *LibSQLStore) RecordGeneration(ctx context.Context, gen *Generation) error {
	gen.CreatedAt = timeOrNow(gen.CreatedAt)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (project_id, target, source, created_at) VALUES (?, ?, ?, ?)`,
		gen.ProjectID, gen.Target, gen.Source, gen.CreatedAt,
	)
	if err != nil {
		return storeError("record generation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storeError("record generation", err)
	}
	gen.ID = id
	return nil
}

// ListGenerations returns the newest generations of a project first.
func (s *LibSQLStore) ListGenerations(ctx context.Context, projectID string, limit int) ([]*Generation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, target, source, created_at FROM generations
		 WHERE project_id = ? ORDER BY created_at DESC, id DESC`+pageClause(limit, 0), projectID)
	if err != nil {
		return nil, storeError("list generations", err)
	}
	defer rows.Close()

	var out []*Generation
	for rows.Next() {
		g := &Generation{}
		if err := rows.Scan(&g.ID, &g.ProjectID, &g.Target, &g.Source, &g.CreatedAt); err != nil {
			return nil, storeError("scan generation", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// PruneGenerations deletes generations created before the cutoff.
func (s *LibSQLStore) PruneGenerations(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generations WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, storeError("prune generations", err)
	}
	return res.RowsAffected()
}

// sqlTarget runs migrations through database/sql.
type sqlTarget struct{ db *sql.DB }

func (t sqlTarget) prepare(ctx context.Context) (int, error) {
	if _, err := t.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}
	var current int
	if err := t.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return current, nil
}

func (t sqlTarget) apply(ctx context.Context, m migration, stmts []string) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s failed", op).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func pageClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	q := fmt.Sprintf(" LIMIT %d", limit)
	if offset > 0 {
		q += fmt.Sprintf(" OFFSET %d", offset)
	}
	return q
}

// likePrefix escapes LIKE wildcards in p and appends %.
func likePrefix(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(p) + "%"
}
