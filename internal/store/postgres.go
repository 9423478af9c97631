package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rendis/flowgen/pkg/schema"
)

// PostgresStore implements the Store interface on PostgreSQL via a pgx pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects to the database at url.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

// NewPostgresStoreFromPool wraps an existing pool. Close closes the pool.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, pgTarget{s.db}, "migrations/postgres")
}

func (s *PostgresStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `VACUUM ANALYZE projects, generations`); err != nil {
		return storeError("vacuum", err)
	}
	return nil
}

// --- Projects ---

func (s *PostgresStore) SaveProject(ctx context.Context, rec *ProjectRecord) error {
	if rec.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "project ID is required")
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx,
		`INSERT INTO projects (id, name, document, diagrams, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, document = EXCLUDED.document,
		   diagrams = EXCLUDED.diagrams, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Name, string(rec.Document), rec.Diagrams, timeOrNow(rec.CreatedAt), now,
	)
	if err != nil {
		return storeError("save project", err)
	}
	rec.UpdatedAt = now
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*ProjectRecord, error) {
	rec := &ProjectRecord{}
	var doc []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, name, document, diagrams, created_at, updated_at FROM projects WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Name, &doc, &rec.Diagrams, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storeNotFound("project", id)
	}
	if err != nil {
		return nil, storeError("get project", err)
	}
	rec.Document = doc
	return rec, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]*ProjectRecord, error) {
	var where []string
	var args []any
	if filter.NamePrefix != "" {
		args = append(args, likePrefix(filter.NamePrefix))
		where = append(where, fmt.Sprintf(`name LIKE $%d ESCAPE '\'`, len(args)))
	}

	query := "SELECT id, name, diagrams, created_at, updated_at FROM projects"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id" + pageClause(filter.Limit, filter.Offset)

	rows, err := s.db.Query(ctx, query, args...)
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

func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return storeError("delete project", err)
	}
	if tag.RowsAffected() == 0 {
		return storeNotFound("project", id)
	}
	return nil
}

// --- Generations ---

func (s *PostgresStore) RecordGeneration(ctx context.Context, gen *Generation) error {
	gen.CreatedAt = timeOrNow(gen.CreatedAt)
	err := s.db.QueryRow(ctx,
		`INSERT INTO generations (project_id, target, source, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		gen.ProjectID, gen.Target, gen.Source, gen.CreatedAt,
	).Scan(&gen.ID)
	if err != nil {
		return storeError("record generation", err)
	}
	return nil
}

func (s *PostgresStore) ListGenerations(ctx context.Context, projectID string, limit int) ([]*Generation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, project_id, target, source, created_at FROM generations
		 WHERE project_id = $1 ORDER BY created_at DESC, id DESC`+pageClause(limit, 0), projectID)
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

func (s *PostgresStore) PruneGenerations(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM generations WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, storeError("prune generations", err)
	}
	return tag.RowsAffected(), nil
}

// pgTarget runs migrations through a pgx pool.
type pgTarget struct{ db *pgxpool.Pool }

func (t pgTarget) prepare(ctx context.Context) (int, error) {
	if _, err := t.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ DEFAULT NOW()
	)`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}
	var current int
	if err := t.db.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return current, nil
}

func (t pgTarget) apply(ctx context.Context, m migration, stmts []string) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*LibSQLStore)(nil)
)
