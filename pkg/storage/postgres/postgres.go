// Package postgres provides a PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling and keeps every collection in a
// single JSONB table queried through SQL/JSON path expressions.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/ribamar/pkg/debug"
	"github.com/rhuss/ribamar/pkg/storage"
)

// Config holds the pool settings for the documents table.
type Config struct {
	DSN string
	// MaxConns caps the pool (default: 25). MinConns keeps that many idle
	// connections warm (default: 2).
	MaxConns int32
	MinConns int32
	// ConnectTimeout bounds the initial ping (default: 10 seconds).
	ConnectTimeout time.Duration
	// MigrateOnStart applies pending files under migrations/ before the
	// store is returned.
	MigrateOnStart bool
}

func (c *Config) applyDefaults() {
	if c.MaxConns <= 0 {
		c.MaxConns = 25
	}
	if c.MinConns <= 0 {
		c.MinConns = 2
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// Store is a PostgreSQL-backed document store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New opens a pool against cfg.DSN and verifies it answers.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, logger: logger}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Get returns the first document, in insertion order, whose key equals value.
func (s *Store) Get(ctx context.Context, collection, key string, value any) (storage.Document, error) {
	where, args, err := buildWhere([]storage.Condition{storage.Eq(key, value)}, collection)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = s.pool.QueryRow(ctx,
		"SELECT doc FROM documents WHERE "+where+" ORDER BY seq LIMIT 1",
		args...,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return decode(raw)
}

// Find returns every document matching all conditions, in insertion order.
func (s *Store) Find(ctx context.Context, collection string, conds ...storage.Condition) ([]storage.Document, error) {
	where, args, err := buildWhere(conds, collection)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		"SELECT doc FROM documents WHERE "+where+" ORDER BY seq",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	out := []storage.Document{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return out, nil
}

// Insert stores doc, generating an id when missing.
func (s *Store) Insert(ctx context.Context, collection string, doc storage.Document) (string, error) {
	cp, err := storage.Normalize(doc)
	if err != nil {
		return "", err
	}
	id := cp.ID()
	if id == "" {
		id = uuid.NewString()
		cp[storage.IDKey] = id
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("marshaling document: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		"INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3::jsonb)",
		collection, id, data,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return "", storage.ErrConflict
		}
		return "", fmt.Errorf("inserting document: %w", err)
	}
	return id, nil
}

// Update merges the top-level fields of set into the first matching
// document. The id field is never changed.
func (s *Store) Update(ctx context.Context, collection, key string, value any, set storage.Document) error {
	patch, err := storage.Normalize(set)
	if err != nil {
		return err
	}
	delete(patch, storage.IDKey)
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshaling patch: %w", err)
	}

	where, args, err := buildWhere([]storage.Condition{storage.Eq(key, value)}, collection)
	if err != nil {
		return err
	}
	args = append(args, data)
	patchArg := fmt.Sprintf("$%d", len(args))

	tag, err := s.pool.Exec(ctx,
		"UPDATE documents SET doc = doc || "+patchArg+"::jsonb"+
			" WHERE collection = $1 AND id = (SELECT id FROM documents WHERE "+where+" ORDER BY seq LIMIT 1)",
		args...,
	)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes every matching document.
func (s *Store) Delete(ctx context.Context, collection, key string, value any) (int, error) {
	where, args, err := buildWhere([]storage.Condition{storage.Eq(key, value)}, collection)
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting documents: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Exists reports whether any document matches.
func (s *Store) Exists(ctx context.Context, collection, key string, value any) (bool, error) {
	where, args, err := buildWhere([]storage.Condition{storage.Eq(key, value)}, collection)
	if err != nil {
		return false, err
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM documents WHERE "+where+")",
		args...,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return exists, nil
}

// HealthCheck verifies the database connection is alive.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// buildWhere renders conditions as a SQL predicate. Argument $1 is always
// the collection name.
func buildWhere(conds []storage.Condition, collection string) (string, []any, error) {
	if err := storage.ValidateConditions(conds); err != nil {
		return "", nil, err
	}

	args := []any{collection}
	clauses := []string{"collection = $1"}
	for _, c := range conds {
		v, err := storage.NormalizeValue(c.Value)
		if err != nil {
			return "", nil, err
		}

		switch v.(type) {
		case map[string]any, []any:
			// jsonpath comparisons are scalar only; containers compare
			// as whole values.
			if c.Op != storage.OpEq {
				clauses = append(clauses, "FALSE")
				continue
			}
			data, err := json.Marshal(v)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling condition: %w", err)
			}
			args = append(args, strings.Split(c.Key, "."), data)
			clauses = append(clauses, fmt.Sprintf("doc #> $%d::text[] = $%d::jsonb", len(args)-1, len(args)))
		default:
			vars, err := json.Marshal(map[string]any{"v": v})
			if err != nil {
				return "", nil, fmt.Errorf("marshaling condition: %w", err)
			}
			args = append(args, jsonPath(c), vars)
			clauses = append(clauses, fmt.Sprintf("jsonb_path_exists(doc, $%d::jsonpath, $%d::jsonb)", len(args)-1, len(args)))
		}
	}
	where := strings.Join(clauses, " AND ")
	debug.Log(debug.Storage, "postgres predicate", "where", where, "args", len(args))
	return where, args, nil
}

// jsonPath builds a lax-mode filter such as `$."data"."name" ? (@ == $v)`.
// Lax mode unwraps arrays along the path, matching the element-wise
// semantics of storage.Match.
func jsonPath(c storage.Condition) string {
	var b strings.Builder
	b.WriteString("$")
	for _, part := range strings.Split(c.Key, ".") {
		b.WriteString(`."`)
		b.WriteString(part)
		b.WriteString(`"`)
	}
	b.WriteString(" ? (@ ")
	b.WriteString(string(c.Op))
	b.WriteString(" $v)")
	return b.String()
}

func decode(raw []byte) (storage.Document, error) {
	var doc storage.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}

// isDuplicateKey checks if a PostgreSQL error is a unique violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
