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

	"shroomd.gg/internal/game"
)

// SQLiteStore is the embedded file-backed character store. A single
// connection serialises writers; reads share it. Good enough for one
// server process, which is the only supported deployment.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS characters (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	name       TEXT NOT NULL,
	level      INTEGER NOT NULL DEFAULT 1,
	map_id     INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_characters_account ON characters(account_id);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// GetOrCreateAccount looks a username up, creating the account on
// first sight.
func (s *SQLiteStore) GetOrCreateAccount(ctx context.Context, username string) (Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Account{}, fmt.Errorf("store: empty username")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (username, created_at) VALUES (?, ?)`,
		username, now()); err != nil {
		return Account{}, err
	}
	return s.accountByUsername(ctx, username)
}

func (s *SQLiteStore) accountByUsername(ctx context.Context, username string) (Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, created_at FROM accounts WHERE username = ?`, username)
	var a Account
	var created string
	if err := row.Scan(&a.ID, &a.Username, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.CreatedAt = parseTime(created)
	return a, nil
}

// CreateGuestAccount mints a fresh throwaway account.
func (s *SQLiteStore) CreateGuestAccount(ctx context.Context) (Account, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (username, created_at)
		 VALUES ('guest_' || hex(randomblob(8)), ?)`, now())
	if err != nil {
		return Account{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Account{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, created_at FROM accounts WHERE id = ?`, id)
	var a Account
	var created string
	if err := row.Scan(&a.ID, &a.Username, &created); err != nil {
		return Account{}, err
	}
	a.CreatedAt = parseTime(created)
	return a, nil
}

// EnsureDefaultCharacter returns the account's first character,
// creating one when the roster is empty.
func (s *SQLiteStore) EnsureDefaultCharacter(ctx context.Context, accountID game.AccountID) (Character, error) {
	chars, err := s.GetCharacters(ctx, accountID)
	if err != nil {
		return Character{}, err
	}
	if len(chars) > 0 {
		return chars[0], nil
	}
	name := fmt.Sprintf("Shroom%d", accountID)
	if len(name) > MaxCharacterName {
		name = name[:MaxCharacterName]
	}
	return s.createCharacter(ctx, accountID, name)
}

func (s *SQLiteStore) createCharacter(ctx context.Context, accountID game.AccountID, name string) (Character, error) {
	if len(name) > MaxCharacterName {
		return Character{}, fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO characters (account_id, name, level, map_id, created_at)
		 VALUES (?, ?, 1, 0, ?)`, accountID, name, now())
	if err != nil {
		return Character{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Character{}, err
	}
	return s.LoadCharacter(ctx, game.CharacterID(id))
}

// LoadCharacter fetches one character by id.
func (s *SQLiteStore) LoadCharacter(ctx context.Context, id game.CharacterID) (Character, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, name, level, map_id, created_at
		 FROM characters WHERE id = ?`, id)
	var c Character
	var created string
	if err := row.Scan(&c.ID, &c.AccountID, &c.Name, &c.Level, &c.MapID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Character{}, ErrNotFound
		}
		return Character{}, err
	}
	c.CreatedAt = parseTime(created)
	return c, nil
}

// GetCharacters lists an account's roster in creation order.
func (s *SQLiteStore) GetCharacters(ctx context.Context, accountID game.AccountID) ([]Character, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, name, level, map_id, created_at
		 FROM characters WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Character
	for rows.Next() {
		var c Character
		var created string
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &c.Level, &c.MapID, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}
