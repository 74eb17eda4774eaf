package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the documents table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    data       JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data jsonb_path_ops);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(collection, created_at);
`

// DB is the database interface used by [PostgresStore]. *pgxpool.Pool
// satisfies it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// querier is the subset shared by DB and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL JSONB table.
type PostgresStore struct {
	db    DB
	close func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on top of db. The caller is
// responsible for calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects a pool to dsn, verifies the connection and applies the schema.
// Close releases the pool.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	s := &PostgresStore{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool if the store owns one.
func (s *PostgresStore) Close() {
	if s.close != nil {
		s.close()
	}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("docstore: migrate: %w", err)
	}
	return nil
}

// dataExpr returns a SQL expression producing the JSONB document for fields.
// Placeholders start at $next. Server timestamps are filled in by now().
func dataExpr(fields Fields, next int) (string, []any, error) {
	data, tsKeys := splitFields(fields)
	raw, err := json.Marshal(data)
	if err != nil {
		return "", nil, fmt.Errorf("docstore: encode fields: %w", err)
	}

	var b strings.Builder
	b.WriteString("$" + strconv.Itoa(next) + "::jsonb")
	args := []any{raw}
	next++
	if len(tsKeys) > 0 {
		b.WriteString(" || jsonb_build_object(")
		for i, k := range tsKeys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$" + strconv.Itoa(next) + "::text, to_jsonb(now())")
			args = append(args, k)
			next++
		}
		b.WriteString(")")
	}
	return b.String(), args, nil
}

func filterJSON(filters []Filter) ([]byte, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	m := make(map[string]any, len(filters))
	for _, f := range filters {
		m[f.Field] = f.Value
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode filters: %w", err)
	}
	return raw, nil
}

func insert(ctx context.Context, q querier, collection string, fields Fields) (string, error) {
	expr, args, err := dataExpr(fields, 3)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	query := `INSERT INTO documents (collection, id, data) VALUES ($1, $2, ` + expr + `)`
	if _, err := q.Exec(ctx, query, append([]any{collection, id}, args...)...); err != nil {
		if isDuplicateKeyError(err) {
			return "", fmt.Errorf("docstore: create %s/%s: %w", collection, id, ErrExists)
		}
		return "", fmt.Errorf("docstore: create in %s: %w", collection, err)
	}
	return id, nil
}

// Create implements [Store.Create].
func (s *PostgresStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	return insert(ctx, s.db, collection, fields)
}

// Set implements [Store.Set].
func (s *PostgresStore) Set(ctx context.Context, collection, id string, fields Fields) error {
	expr, args, err := dataExpr(fields, 3)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, ` + expr + `)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`
	if _, err := s.db.Exec(ctx, query, append([]any{collection, id}, args...)...); err != nil {
		return fmt.Errorf("docstore: set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update implements [Store.Update].
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	expr, args, err := dataExpr(fields, 3)
	if err != nil {
		return err
	}
	query := `
		UPDATE documents SET data = data || ` + expr + `, updated_at = now()
		WHERE collection = $1 AND id = $2
		RETURNING id`
	var got string
	err = s.db.QueryRow(ctx, query, append([]any{collection, id}, args...)...).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete implements [Store.Delete].
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	const query = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	if _, err := s.db.Exec(ctx, query, collection, id); err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Get implements [Store.Get].
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	const query = `
		SELECT data, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2`

	doc := Document{Collection: collection, ID: id}
	var data []byte
	err := s.db.QueryRow(ctx, query, collection, id).Scan(&data, &doc.CreateTime, &doc.UpdateTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	doc.Data = data
	return doc, nil
}

// Query implements [Store.Query].
func (s *PostgresStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	match, err := filterJSON(filters)
	if err != nil {
		return nil, err
	}

	const query = `
		SELECT id, data, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND data @> $2::jsonb
		ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query, collection, match)
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc := Document{Collection: collection}
		var data []byte
		if err := rows.Scan(&doc.ID, &data, &doc.CreateTime, &doc.UpdateTime); err != nil {
			return nil, fmt.Errorf("docstore: scan %s: %w", collection, err)
		}
		doc.Data = data
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}
	return out, nil
}

// CreateUnique implements [Store.CreateUnique]. Concurrent callers with the
// same key values are serialised by a transaction-scoped advisory lock, so the
// existence check and the insert cannot interleave.
func (s *PostgresStore) CreateUnique(ctx context.Context, collection string, fields Fields, keys ...string) (string, error) {
	filters, err := keyFilters(fields, keys)
	if err != nil {
		return "", err
	}
	match, err := filterJSON(filters)
	if err != nil {
		return "", err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("docstore: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	lockKey := collection + "\x00" + string(match)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return "", fmt.Errorf("docstore: lock %s: %w", collection, err)
	}

	const exists = `SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND data @> $2::jsonb)`
	var found bool
	if err := tx.QueryRow(ctx, exists, collection, match).Scan(&found); err != nil {
		return "", fmt.Errorf("docstore: check %s: %w", collection, err)
	}
	if found {
		return "", ErrExists
	}

	id, err := insert(ctx, tx, collection, fields)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("docstore: commit: %w", err)
	}
	return id, nil
}

// Ping implements [Store.Ping].
func (s *PostgresStore) Ping(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.Ping(pctx)
}

// isDuplicateKeyError reports whether err is a PostgreSQL unique-violation
// error (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
