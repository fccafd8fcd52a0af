package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE,
	subscribe INTEGER NOT NULL DEFAULT 0,
	free_questions INTEGER NOT NULL DEFAULT 0 CHECK (free_questions >= 0),
	api_keys TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps profiles in a local SQLite file. It is meant for single
// instance deployments and development.
type SQLiteStore struct {
	db *sql.DB
}

var _ ProfileStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite store: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite store: create dir: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// A single connection serializes writers; the conditional updates stay atomic either way.
	db.SetMaxOpenConns(1)
	if _, err = db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: create table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func nowMillis() int64 { return time.Now().UTC().UnixMilli() }

func (s *SQLiteStore) selectProfile(ctx context.Context, column, value string) (*Profile, error) {
	query := `SELECT id, user_id, subscribe, free_questions, api_keys, created_at, updated_at FROM profiles WHERE ` + column + ` = ?`
	var (
		p                  Profile
		tier               int
		rawKeys            string
		created, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, value).Scan(&p.ID, &p.UserID, &tier, &p.FreeQuestions, &rawKeys, &created, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("sqlite store: get profile: %w", err)
	}
	p.Tier = Tier(tier)
	p.CreatedAt = time.UnixMilli(created).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if p.APIKeys, err = decodeAPIKeys([]byte(rawKeys)); err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.selectProfile(ctx, "user_id", userID)
}

func (s *SQLiteStore) GetProfileByID(ctx context.Context, profileID string) (*Profile, error) {
	return s.selectProfile(ctx, "id", profileID)
}

func (s *SQLiteStore) CreateProfile(ctx context.Context, p *Profile) error {
	if p == nil || p.ID == "" || p.UserID == "" {
		return errors.New("sqlite store: profile id and user id are required")
	}
	keys, err := encodeAPIKeys(p.APIKeys)
	if err != nil {
		return err
	}
	now := nowMillis()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, user_id, subscribe, free_questions, api_keys, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, int(p.Tier), p.FreeQuestions, string(keys), now, now)
	if err != nil {
		return fmt.Errorf("sqlite store: create profile: %w", err)
	}
	p.CreatedAt = time.UnixMilli(now).UTC()
	p.UpdatedAt = p.CreatedAt
	return nil
}

func (s *SQLiteStore) DecrementFreeQuestions(ctx context.Context, userID string) (int, error) {
	var remaining int
	err := s.db.QueryRowContext(ctx,
		`UPDATE profiles SET free_questions = free_questions - 1, updated_at = ? WHERE user_id = ? AND subscribe = ? AND free_questions >= 1 RETURNING free_questions`,
		nowMillis(), userID, int(TierNone)).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrConditionFailed
		}
		return 0, fmt.Errorf("sqlite store: decrement free questions: %w", err)
	}
	return remaining, nil
}

func (s *SQLiteStore) SetFreeQuestions(ctx context.Context, userID string, n int) error {
	if n < 0 {
		return fmt.Errorf("sqlite store: free questions must be >= 0, got %d", n)
	}
	return s.execOne(ctx, "set free questions",
		`UPDATE profiles SET free_questions = ?, updated_at = ? WHERE user_id = ?`, n, nowMillis(), userID)
}

func (s *SQLiteStore) SetTierByID(ctx context.Context, profileID string, tier Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("sqlite store: invalid tier %d", int(tier))
	}
	return s.execOne(ctx, "set tier",
		`UPDATE profiles SET subscribe = ?, updated_at = ? WHERE id = ?`, int(tier), nowMillis(), profileID)
}

func (s *SQLiteStore) CompareAndSetTier(ctx context.Context, userID string, from, to Tier) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("sqlite store: invalid tier %d", int(to))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET subscribe = ?, updated_at = ? WHERE user_id = ? AND subscribe = ?`,
		int(to), nowMillis(), userID, int(from))
	if err != nil {
		return false, fmt.Errorf("sqlite store: compare and set tier: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite store: compare and set tier: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) SetAPIKey(ctx context.Context, userID, provider, key string) error {
	if err := ValidateProvider(provider); err != nil {
		return fmt.Errorf("sqlite store: set api key: %w", err)
	}
	path := `'$."' || ? || '"'`
	if key == "" {
		return s.execOne(ctx, "clear api key",
			`UPDATE profiles SET api_keys = json_remove(api_keys, `+path+`), updated_at = ? WHERE user_id = ?`,
			provider, nowMillis(), userID)
	}
	return s.execOne(ctx, "set api key",
		`UPDATE profiles SET api_keys = json_set(api_keys, `+path+`, ?), updated_at = ? WHERE user_id = ?`,
		provider, key, nowMillis(), userID)
}

func (s *SQLiteStore) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite store: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store: %s: %w", op, err)
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
