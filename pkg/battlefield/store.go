package battlefield

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openvtt/battlemap/pkg/log"
	"github.com/openvtt/battlemap/pkg/repositories"
	"github.com/openvtt/battlemap/pkg/types"
)

const defaultBattlefieldName = "Battle Map"
const newBattlefieldName = "New Battle Map"

// Store owns the durable battlefield state and applies authorization
// before every commit. The token list is stored and replaced as a single
// unit, so two concurrent updates against the same battlefield race on a
// last-write-wins basis.
type Store struct {
	repository repositories.Repository
}

func NewStore(repository repositories.Repository) *Store {
	return &Store{
		repository: repository,
	}
}

// GetCurrent returns the active battlefield, falling back to the most
// recently updated one, falling back to creating a default. It never
// fails with not found.
func (s *Store) GetCurrent(ctx context.Context) (*types.Battlefield, error) {
	battlefield, err := s.repository.GetActiveBattlefield(ctx)
	if err == nil {
		return battlefield, nil
	}
	if !repositories.IsNotFound(err) {
		return nil, fmt.Errorf("failed to get active battlefield: %v", err)
	}

	battlefield, err = s.repository.GetLatestBattlefield(ctx)
	if err == nil {
		return battlefield, nil
	}
	if !repositories.IsNotFound(err) {
		return nil, fmt.Errorf("failed to get latest battlefield: %v", err)
	}

	log.Info("No battlefield found, creating default")
	now := time.Now()
	battlefield = &types.Battlefield{
		ID:         uuid.NewString(),
		Name:       defaultBattlefieldName,
		GridSize:   types.DefaultGridSize,
		GridWidth:  types.DefaultGridWidth,
		GridHeight: types.DefaultGridHeight,
		Tokens:     []types.Token{},
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repository.CreateBattlefield(ctx, battlefield); err != nil {
		return nil, fmt.Errorf("failed to create default battlefield: %v", err)
	}
	return battlefield, nil
}

// CreateParams are the optional settings for a new battlefield.
// Zero values fall back to defaults.
type CreateParams struct {
	Name        string
	MapImageURL string
	GridSize    int
	GridWidth   int
	GridHeight  int
}

// Create inserts a new active battlefield, deactivating every existing
// one first. DM only.
func (s *Store) Create(ctx context.Context, actor types.Actor, params CreateParams) (*types.Battlefield, error) {
	if !actor.IsDM() {
		return nil, &ErrPermissionDenied{Reason: "only the DM can create battlefields"}
	}

	if params.Name == "" {
		params.Name = newBattlefieldName
	}
	if params.GridSize == 0 {
		params.GridSize = types.DefaultGridSize
	}
	if params.GridWidth == 0 {
		params.GridWidth = types.DefaultGridWidth
	}
	if params.GridHeight == 0 {
		params.GridHeight = types.DefaultGridHeight
	}
	if params.GridSize < 0 || params.GridWidth < 0 || params.GridHeight < 0 {
		return nil, &ErrValidation{Reason: "grid geometry must be positive"}
	}

	if err := s.repository.DeactivateBattlefields(ctx); err != nil {
		return nil, fmt.Errorf("failed to deactivate battlefields: %v", err)
	}

	now := time.Now()
	battlefield := &types.Battlefield{
		ID:          uuid.NewString(),
		Name:        params.Name,
		MapImageURL: params.MapImageURL,
		GridSize:    params.GridSize,
		GridWidth:   params.GridWidth,
		GridHeight:  params.GridHeight,
		Tokens:      []types.Token{},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repository.CreateBattlefield(ctx, battlefield); err != nil {
		return nil, fmt.Errorf("failed to create battlefield: %v", err)
	}
	return battlefield, nil
}

// ApplyUpdate applies a partial update after authorization. Map settings
// are DM-only as a whole; token list updates by players are checked move
// by move against the stored list. Rejections are atomic: nothing is
// written on any failure.
func (s *Store) ApplyUpdate(ctx context.Context, battlefieldID string, actor types.Actor, patch types.Patch) (*types.Battlefield, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	if patch.TouchesMapSettings() && !actor.IsDM() {
		return nil, &ErrPermissionDenied{Reason: "only the DM can change map settings"}
	}

	if patch.Tokens != nil && !actor.IsDM() {
		stored, err := s.repository.GetBattlefield(ctx, battlefieldID)
		if err != nil {
			return nil, err
		}
		if err := CheckTokenMoves(ctx, s.repository, actor, stored.Tokens, *patch.Tokens); err != nil {
			return nil, err
		}
	}

	return s.repository.UpdateBattlefield(ctx, battlefieldID, patch)
}

// AuthorizeMove checks a single-token move against the stored battlefield
// without writing anything. It is the shared validation behind both the
// durable path and the realtime path.
func (s *Store) AuthorizeMove(ctx context.Context, battlefieldID string, actor types.Actor, tokenID string, x, y float64) error {
	if actor.IsDM() {
		return nil
	}
	stored, err := s.repository.GetBattlefield(ctx, battlefieldID)
	if err != nil {
		return err
	}
	return CheckTokenMove(ctx, s.repository, actor, stored.Tokens, tokenID, x, y)
}

// AuthorizeTokens checks a proposed whole-list replacement against the
// stored battlefield without writing anything.
func (s *Store) AuthorizeTokens(ctx context.Context, battlefieldID string, actor types.Actor, tokens []types.Token) error {
	if actor.IsDM() {
		return nil
	}
	stored, err := s.repository.GetBattlefield(ctx, battlefieldID)
	if err != nil {
		return err
	}
	return CheckTokenMoves(ctx, s.repository, actor, stored.Tokens, tokens)
}

func validatePatch(patch types.Patch) error {
	if patch.GridSize != nil && *patch.GridSize <= 0 {
		return &ErrValidation{Reason: "grid size must be positive"}
	}
	if patch.GridWidth != nil && *patch.GridWidth <= 0 {
		return &ErrValidation{Reason: "grid width must be positive"}
	}
	if patch.GridHeight != nil && *patch.GridHeight <= 0 {
		return &ErrValidation{Reason: "grid height must be positive"}
	}
	if patch.Name != nil && *patch.Name == "" {
		return &ErrValidation{Reason: "name must not be empty"}
	}
	return nil
}
