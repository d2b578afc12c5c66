package store

import (
	"context"
	"errors"
	"time"

	"shroomd.gg/internal/game"
)

// MaxCharacterName is the longest character name the store accepts,
// in Latin-1 bytes.
const MaxCharacterName = 12

var (
	ErrNotFound    = errors.New("store: not found")
	ErrNameTooLong = errors.New("store: character name too long")
)

// Account is a login identity. Usernames are unique.
type Account struct {
	ID        game.AccountID
	Username  string
	CreatedAt time.Time
}

// Character belongs to one account.
type Character struct {
	ID        game.CharacterID
	AccountID game.AccountID
	Name      string
	Level     int
	MapID     game.MapID
	CreatedAt time.Time
}

// Store is the character persistence contract. The session manager is
// its only consumer; implementations must be safe for concurrent use.
type Store interface {
	GetOrCreateAccount(ctx context.Context, username string) (Account, error)
	CreateGuestAccount(ctx context.Context) (Account, error)
	EnsureDefaultCharacter(ctx context.Context, accountID game.AccountID) (Character, error)
	LoadCharacter(ctx context.Context, id game.CharacterID) (Character, error)
	GetCharacters(ctx context.Context, accountID game.AccountID) ([]Character, error)
	Close() error
}
