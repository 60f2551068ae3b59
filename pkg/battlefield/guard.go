package battlefield

import (
	"context"

	"github.com/openvtt/battlemap/pkg/repositories"
	"github.com/openvtt/battlemap/pkg/types"
)

// OwnershipResolver resolves the token -> character -> user chain.
// Ownership is derived through this read-only lookup, never stored on the
// token itself.
type OwnershipResolver interface {
	CharacterOwner(ctx context.Context, characterID string) (string, error)
}

// CheckTokenMoves compares the stored token list against a proposed
// replacement and rejects the whole update if the actor moved any token
// they do not control. Tokens only present in one of the lists (created or
// deleted) are outside the move check; that authorization is role-gated
// before this runs. Non-positional edits to unmoved tokens pass through
// unchecked.
func CheckTokenMoves(ctx context.Context, resolver OwnershipResolver, actor types.Actor, stored, proposed []types.Token) error {
	if actor.IsDM() {
		return nil
	}

	storedByID := make(map[string]types.Token, len(stored))
	for _, t := range stored {
		storedByID[t.ID] = t
	}

	for _, t := range proposed {
		prev, ok := storedByID[t.ID]
		if !ok {
			continue
		}
		if prev.X == t.X && prev.Y == t.Y {
			continue
		}
		if err := checkMove(ctx, resolver, actor, t); err != nil {
			return err
		}
	}
	return nil
}

// CheckTokenMove authorizes moving a single stored token to (x, y).
func CheckTokenMove(ctx context.Context, resolver OwnershipResolver, actor types.Actor, stored []types.Token, tokenID string, x, y float64) error {
	for _, t := range stored {
		if t.ID != tokenID {
			continue
		}
		if t.X == x && t.Y == y {
			return nil
		}
		if actor.IsDM() {
			return nil
		}
		return checkMove(ctx, resolver, actor, t)
	}
	return &repositories.ErrNotFound{}
}

func checkMove(ctx context.Context, resolver OwnershipResolver, actor types.Actor, token types.Token) error {
	if token.IsNPC {
		return &ErrPermissionDenied{Reason: "cannot move NPC tokens"}
	}
	if token.CharacterID == "" {
		return &ErrPermissionDenied{Reason: "cannot move tokens you do not own"}
	}
	owner, err := resolver.CharacterOwner(ctx, token.CharacterID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return &ErrPermissionDenied{Reason: "cannot move tokens you do not own"}
		}
		return err
	}
	if owner != actor.UserID {
		return &ErrPermissionDenied{Reason: "cannot move tokens you do not own"}
	}
	return nil
}
