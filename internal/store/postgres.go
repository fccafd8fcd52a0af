package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const profilesTable = "profiles"

// Querier abstracts the pgx methods PostgresStore needs. *pgxpool.Pool and
// pgxmock pools both satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps profiles in a Postgres table.
type PostgresStore struct {
	db     Querier
	table  string
	schema string
	close  func()
}

var _ ProfileStore = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn, verifies the connection and makes sure
// the profiles table exists. schema may be empty for the search path default.
func NewPostgresStore(ctx context.Context, dsn, schema string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: connect: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	s := NewPostgresStoreWithQuerier(pool, schema)
	s.close = pool.Close
	if err = s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithQuerier wraps an existing pool or transaction.
func NewPostgresStoreWithQuerier(db Querier, schema string) *PostgresStore {
	schema = strings.TrimSpace(schema)
	table := pgx.Identifier{profilesTable}.Sanitize()
	if schema != "" {
		table = pgx.Identifier{schema, profilesTable}.Sanitize()
	}
	return &PostgresStore{db: db, table: table, schema: schema}
}

// EnsureSchema creates the schema and profiles table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s.schema != "" {
		if _, err := s.db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{s.schema}.Sanitize()); err != nil {
			return fmt.Errorf("postgres store: create schema: %w", err)
		}
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE,
	subscribe INTEGER NOT NULL DEFAULT 0,
	free_questions INTEGER NOT NULL DEFAULT 0 CHECK (free_questions >= 0),
	api_keys JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres store: create table: %w", err)
	}
	return nil
}

func (s *PostgresStore) selectProfile(ctx context.Context, column, value string) (*Profile, error) {
	query := fmt.Sprintf(`SELECT id, user_id, subscribe, free_questions, api_keys, created_at, updated_at FROM %s WHERE %s = $1`, s.table, column)
	var (
		p       Profile
		tier    int
		rawKeys []byte
	)
	err := s.db.QueryRow(ctx, query, value).Scan(&p.ID, &p.UserID, &tier, &p.FreeQuestions, &rawKeys, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("postgres store: get profile: %w", err)
	}
	p.Tier = Tier(tier)
	if p.APIKeys, err = decodeAPIKeys(rawKeys); err != nil {
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.selectProfile(ctx, "user_id", userID)
}

func (s *PostgresStore) GetProfileByID(ctx context.Context, profileID string) (*Profile, error) {
	return s.selectProfile(ctx, "id", profileID)
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p *Profile) error {
	if p == nil || p.ID == "" || p.UserID == "" {
		return errors.New("postgres store: profile id and user id are required")
	}
	keys, err := encodeAPIKeys(p.APIKeys)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, user_id, subscribe, free_questions, api_keys) VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`, s.table)
	if err = s.db.QueryRow(ctx, query, p.ID, p.UserID, int(p.Tier), p.FreeQuestions, keys).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("postgres store: create profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) DecrementFreeQuestions(ctx context.Context, userID string) (int, error) {
	query := fmt.Sprintf(`UPDATE %s SET free_questions = free_questions - 1, updated_at = now() WHERE user_id = $1 AND subscribe = $2 AND free_questions >= 1 RETURNING free_questions`, s.table)
	var remaining int
	if err := s.db.QueryRow(ctx, query, userID, int(TierNone)).Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrConditionFailed
		}
		return 0, fmt.Errorf("postgres store: decrement free questions: %w", err)
	}
	return remaining, nil
}

func (s *PostgresStore) SetFreeQuestions(ctx context.Context, userID string, n int) error {
	if n < 0 {
		return fmt.Errorf("postgres store: free questions must be >= 0, got %d", n)
	}
	query := fmt.Sprintf(`UPDATE %s SET free_questions = $2, updated_at = now() WHERE user_id = $1`, s.table)
	return s.execOne(ctx, "set free questions", query, userID, n)
}

func (s *PostgresStore) SetTierByID(ctx context.Context, profileID string, tier Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("postgres store: invalid tier %d", int(tier))
	}
	query := fmt.Sprintf(`UPDATE %s SET subscribe = $2, updated_at = now() WHERE id = $1`, s.table)
	return s.execOne(ctx, "set tier", query, profileID, int(tier))
}

func (s *PostgresStore) CompareAndSetTier(ctx context.Context, userID string, from, to Tier) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("postgres store: invalid tier %d", int(to))
	}
	query := fmt.Sprintf(`UPDATE %s SET subscribe = $3, updated_at = now() WHERE user_id = $1 AND subscribe = $2`, s.table)
	tag, err := s.db.Exec(ctx, query, userID, int(from), int(to))
	if err != nil {
		return false, fmt.Errorf("postgres store: compare and set tier: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetAPIKey(ctx context.Context, userID, provider, key string) error {
	if err := ValidateProvider(provider); err != nil {
		return fmt.Errorf("postgres store: set api key: %w", err)
	}
	if key == "" {
		query := fmt.Sprintf(`UPDATE %s SET api_keys = api_keys - $2::text, updated_at = now() WHERE user_id = $1`, s.table)
		return s.execOne(ctx, "clear api key", query, userID, provider)
	}
	query := fmt.Sprintf(`UPDATE %s SET api_keys = jsonb_set(api_keys, ARRAY[$2::text], to_jsonb($3::text)), updated_at = now() WHERE user_id = $1`, s.table)
	return s.execOne(ctx, "set api key", query, userID, provider, key)
}

func (s *PostgresStore) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres store: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// Close releases the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
