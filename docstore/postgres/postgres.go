// Package postgres implementa docstore.Store sobre una tabla jsonb.
// Usa pgxpool directamente; las migraciones (goose) crean la tabla "documents".
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/dropDatabas3/hellodoc/docstore"
	"github.com/dropDatabas3/hellodoc/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func init() {
	docstore.Register("postgres", func(ctx context.Context, cfg docstore.Config) (docstore.Store, error) {
		return Open(ctx, cfg)
	})
}

var validIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store sobre PostgreSQL.
type Store struct {
	pool  *pgxpool.Pool
	table string // ya sanitizada
	log   *zap.Logger
}

// Open crea el pool, verifica la conexión y opcionalmente migra.
func Open(ctx context.Context, cfg docstore.Config) (*Store, error) {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !validIdentifier.MatchString(table) {
		return nil, fmt.Errorf("pg: invalid table name %q", table)
	}
	if cfg.Migrate && table != DefaultTable {
		return nil, fmt.Errorf("pg: migrations only manage table %q", DefaultTable)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}

	s := &Store{
		pool:  pool,
		table: pgx.Identifier{table}.Sanitize(),
		log:   logger.Or(cfg.Logger, "docstore.postgres"),
	}
	if cfg.Migrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		s.log.Info("migrations applied")
	}
	return s, nil
}

// NewWithPool usa un pool existente (la tabla ya debe existir).
func NewWithPool(pool *pgxpool.Pool, table string, log *zap.Logger) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validIdentifier.MatchString(table) {
		return nil, fmt.Errorf("pg: invalid table name %q", table)
	}
	return &Store{pool: pool, table: pgx.Identifier{table}.Sanitize(), log: logger.Or(log, "docstore.postgres")}, nil
}

func (s *Store) Name() string { return "postgres" }

// Pool expone el pool (CLI: migrate/status).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return docstore.Document{}, err
	}
	var raw []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE collection = $1 AND id = $2`, s.table),
		collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("pg: get %s/%s: %w", collection, id, err)
	}
	return decode(id, raw)
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`, s.table),
		collection, id, raw)
	if err != nil {
		return fmt.Errorf("pg: set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update lee con FOR UPDATE y mergea en Go dentro de la misma tx.
func (s *Store) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	norm, err := docstore.NormalizeMap(patch)
	if err != nil {
		return fmt.Errorf("pg: encode patch: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var raw []byte
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE collection = $1 AND id = $2 FOR UPDATE`, s.table),
		collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("pg: lock %s/%s: %w", collection, id, err)
	}
	cur, err := decode(id, raw)
	if err != nil {
		return err
	}
	merged, err := docstore.ApplyPatch(cur.Data, norm)
	if err != nil {
		return err
	}
	out, err := encode(merged)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET data = $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`, s.table),
		collection, id, out); err != nil {
		return fmt.Errorf("pg: update %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pg: commit: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE collection = $1 AND id = $2`, s.table),
		collection, id); err != nil {
		return fmt.Errorf("pg: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := docstore.ValidateName("collection", collection); err != nil {
		return nil, err
	}
	sql, args, err := buildQuery(s.table, collection, q)
	if err != nil {
		return nil, err
	}
	s.log.Debug("query", logger.Collection(collection), zap.String("sql", sql))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("pg: scan: %w", err)
		}
		d, err := decode(id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg: rows: %w", err)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func encode(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("pg: encode: %w", err)
	}
	return string(b), nil
}

func decode(id string, raw []byte) (docstore.Document, error) {
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return docstore.Document{}, fmt.Errorf("pg: decode %s: %w", id, err)
	}
	return docstore.Document{ID: id, Data: data}, nil
}
