package repositories

import (
	"context"

	"github.com/openvtt/battlemap/pkg/types"
)

// Repository is the durable store behind the scene state and the
// ownership chain. Character and user records are external collaborators;
// only the read paths the core needs are exposed here.
type Repository interface {
	Close(ctx context.Context) error

	// GetOrCreateUser returns the user with the given ID, creating it
	// with the player role on first sight.
	GetOrCreateUser(ctx context.Context, id string) (*types.User, error)
	GetUser(ctx context.Context, id string) (*types.User, error)
	// UpsertUser inserts a user or updates its role. Used by seeding and
	// user provisioning, which are otherwise outside the core.
	UpsertUser(ctx context.Context, user *types.User) error
	CreateCharacter(ctx context.Context, character *types.Character) error

	// ListCharacters returns the characters owned by userID, or all
	// characters when userID is empty.
	ListCharacters(ctx context.Context, userID string) ([]types.Character, error)
	// CharacterOwner resolves a character ID to its owning user ID.
	CharacterOwner(ctx context.Context, characterID string) (string, error)

	GetBattlefield(ctx context.Context, id string) (*types.Battlefield, error)
	GetActiveBattlefield(ctx context.Context) (*types.Battlefield, error)
	GetLatestBattlefield(ctx context.Context) (*types.Battlefield, error)
	CreateBattlefield(ctx context.Context, battlefield *types.Battlefield) error
	DeactivateBattlefields(ctx context.Context) error
	// UpdateBattlefield applies the non-nil patch fields and returns the
	// updated battlefield. The token list, when present, is replaced as a
	// single unit.
	UpdateBattlefield(ctx context.Context, id string, patch types.Patch) (*types.Battlefield, error)
}
