package keyedstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/grovekit/grove/internal/repository"
)

// SQLite is a Store backed by a single ordered table. Conditional writes rely
// on guarded statements checking rows-affected, which SQLite executes
// atomically per statement.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and initializes) a SQLite-backed store at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := `
CREATE TABLE IF NOT EXISTS kv (
    k TEXT PRIMARY KEY,
    v BLOB NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) ConditionalPut(ctx context.Context, key string, value, expected []byte) error {
	var result sql.Result
	var err error
	if expected == nil {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO NOTHING`,
			key, value)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE kv SET v = ? WHERE k = ? AND v = ?`,
			value, key, expected)
	}
	if err != nil {
		return fmt.Errorf("failed to conditionally put %q: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (s *SQLite) ConditionalDelete(ctx context.Context, key string, expected []byte) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE k = ? AND v = ?`, key, expected)
	if err != nil {
		return fmt.Errorf("failed to conditionally delete %q: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) QueryPrefix(ctx context.Context, prefix, startAfter string, limit int) ([]Pair, error) {
	query := `SELECT k, v FROM kv WHERE k >= ? AND k < ? AND k > ? ORDER BY k`
	args := []any{prefix, prefixUpperBound(prefix), startAfter}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var pair Pair
		if err := rows.Scan(&pair.Key, &pair.Value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return pairs, nil
}

// prefixUpperBound returns the smallest key greater than every key carrying
// prefix, so a half-open range scan covers exactly the prefix.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	// All 0xff bytes: no finite upper bound, use a sentinel past any sane key.
	return prefix + "\xff"
}
