package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/openvtt/battlemap/pkg/log"
	"github.com/openvtt/battlemap/pkg/messages"
	"github.com/openvtt/battlemap/pkg/queue"
	"github.com/openvtt/battlemap/pkg/types"
)

const tokenSizeRatio = 0.8

// Reconciler merges the two update channels into one locally rendered
// scene: request/response against the durable store, and push events from
// the gateway. Local actions are applied optimistically before the
// persistence call resolves; the gateway excludes the sender from
// rebroadcast, so no echo dedup is needed here.
type Reconciler struct {
	actor      types.Actor
	api        DurableClient
	realtime   RealtimeClient
	scene      SceneManager
	events     queue.Queue
	characters []types.Character
}

type NewReconcilerOptions struct {
	Actor    types.Actor
	API      DurableClient
	Realtime RealtimeClient
	Scene    SceneManager
	Events   queue.Queue
}

func NewReconciler(opts NewReconcilerOptions) *Reconciler {
	return &Reconciler{
		actor:    opts.Actor,
		api:      opts.API,
		realtime: opts.Realtime,
		scene:    opts.Scene,
		events:   opts.Events,
	}
}

// Load fetches the current battlefield and character list, seeds the
// local scene, and joins the battlefield room.
func (r *Reconciler) Load(ctx context.Context) (*types.Battlefield, error) {
	battlefield, err := r.api.GetCurrentBattlefield(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch battlefield: %v", err)
	}
	if err := r.scene.Set(battlefield); err != nil {
		return nil, err
	}

	characters, err := r.api.ListCharacters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch characters: %v", err)
	}
	r.characters = characters

	join := messages.New(messages.EventJoinBattlefield, &messages.JoinBattlefield{BattlefieldID: battlefield.ID})
	if err := r.realtime.SendMessage(join); err != nil {
		return nil, fmt.Errorf("failed to join battlefield room: %v", err)
	}

	return battlefield, nil
}

// Scene returns a copy of the locally rendered scene.
func (r *Reconciler) Scene() (*types.Battlefield, error) {
	return r.scene.Get()
}

// ProcessEvents drains the inbound event queue and folds each event into
// the local scene.
func (r *Reconciler) ProcessEvents() error {
	items, err := r.events.ReadAllMessages()
	if err != nil {
		return fmt.Errorf("failed to read events: %v", err)
	}

	for _, item := range items {
		msg, ok := item.(*messages.Message)
		if !ok {
			log.Error("Unexpected event item type: %T", item)
			continue
		}
		if err := r.foldEvent(msg); err != nil {
			log.Error("Failed to fold %s event: %v", msg.Type, err)
		}
	}
	return nil
}

func (r *Reconciler) foldEvent(msg *messages.Message) error {
	scene, err := r.scene.Get()
	if err != nil {
		return err
	}
	if scene == nil {
		return fmt.Errorf("no scene loaded")
	}

	switch msg.Type {
	case messages.EventTokenMoved:
		payload := &messages.TokenMoved{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %v", err)
		}
		// token may have been deleted locally; ignore if no match
		for i := range scene.Tokens {
			if scene.Tokens[i].ID == payload.TokenID {
				scene.Tokens[i].X = payload.X
				scene.Tokens[i].Y = payload.Y
				break
			}
		}
	case messages.EventTokensUpdated:
		payload := &messages.TokensUpdated{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %v", err)
		}
		scene.Tokens = payload.Tokens
	case messages.EventMapUpdated:
		payload := &messages.MapUpdated{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %v", err)
		}
		if payload.MapImageURL != nil {
			scene.MapImageURL = *payload.MapImageURL
		}
		if payload.GridSize != nil {
			scene.GridSize = *payload.GridSize
		}
	case messages.EventError:
		payload := &messages.Error{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %v", err)
		}
		log.Warn("Gateway rejected an event: %s", payload.Reason)
		return nil
	default:
		return fmt.Errorf("unexpected event type %s", msg.Type)
	}

	return r.scene.Set(scene)
}

// MoveToken snaps the raw coordinates to the grid, applies the move
// optimistically, persists it, and announces it to the room. The
// optimistic state is retained when persistence fails; the next full
// fetch reverts it.
func (r *Reconciler) MoveToken(ctx context.Context, tokenID string, rawX, rawY float64) error {
	scene, err := r.scene.Get()
	if err != nil {
		return err
	}
	if scene == nil {
		return fmt.Errorf("no scene loaded")
	}

	x, y := scene.Snap(rawX, rawY)
	found := false
	for i := range scene.Tokens {
		if scene.Tokens[i].ID == tokenID {
			scene.Tokens[i].X = x
			scene.Tokens[i].Y = y
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("token %s not found", tokenID)
	}

	if err := r.scene.Set(scene); err != nil {
		return err
	}

	if _, err := r.api.UpdateBattlefield(ctx, scene.ID, types.Patch{Tokens: &scene.Tokens}); err != nil {
		log.Error("Failed to persist token move: %v", err)
	}

	move := messages.New(messages.EventTokenMove, &messages.TokenMove{
		BattlefieldID: scene.ID,
		TokenID:       tokenID,
		X:             x,
		Y:             y,
	})
	if err := r.realtime.SendMessage(move); err != nil {
		log.Warn("Failed to announce token move: %v", err)
	}
	return nil
}

// AddTokenParams describes a new token. Position is fixed at one grid
// cell in from the origin; the mover takes it from there.
type AddTokenParams struct {
	Name        string
	CharacterID string
	Color       string
	IsNPC       bool
}

// AddToken creates a token locally, persists the new list, and announces
// the whole-list replacement.
func (r *Reconciler) AddToken(ctx context.Context, params AddTokenParams) (*types.Token, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("token name is required")
	}

	scene, err := r.scene.Get()
	if err != nil {
		return nil, err
	}
	if scene == nil {
		return nil, fmt.Errorf("no scene loaded")
	}

	token := types.Token{
		ID:          uuid.NewString(),
		Name:        params.Name,
		CharacterID: params.CharacterID,
		X:           float64(scene.GridSize),
		Y:           float64(scene.GridSize),
		Size:        float64(scene.GridSize) * tokenSizeRatio,
		Color:       params.Color,
		IsNPC:       params.IsNPC,
	}
	scene.Tokens = append(scene.Tokens, token)

	if err := r.replaceTokens(ctx, scene); err != nil {
		return nil, err
	}
	return &token, nil
}

// RemoveToken deletes a token. DM only; deletion is gated at this level,
// not in the move guard.
func (r *Reconciler) RemoveToken(ctx context.Context, tokenID string) error {
	if !r.actor.IsDM() {
		return fmt.Errorf("only the DM can remove tokens")
	}

	scene, err := r.scene.Get()
	if err != nil {
		return err
	}
	if scene == nil {
		return fmt.Errorf("no scene loaded")
	}

	tokens := scene.Tokens[:0]
	for _, t := range scene.Tokens {
		if t.ID != tokenID {
			tokens = append(tokens, t)
		}
	}
	scene.Tokens = tokens

	return r.replaceTokens(ctx, scene)
}

func (r *Reconciler) replaceTokens(ctx context.Context, scene *types.Battlefield) error {
	if err := r.scene.Set(scene); err != nil {
		return err
	}

	if _, err := r.api.UpdateBattlefield(ctx, scene.ID, types.Patch{Tokens: &scene.Tokens}); err != nil {
		log.Error("Failed to persist token list: %v", err)
	}

	update := messages.New(messages.EventTokensUpdate, &messages.TokensUpdate{
		BattlefieldID: scene.ID,
		Tokens:        scene.Tokens,
	})
	if err := r.realtime.SendMessage(update); err != nil {
		log.Warn("Failed to announce token update: %v", err)
	}
	return nil
}

// MapSettings are the DM-only map configuration fields.
type MapSettings struct {
	MapImageURL string
	GridSize    int
	GridWidth   int
	GridHeight  int
}

// SetMapSettings persists new map settings and announces the image and
// grid size to the room.
func (r *Reconciler) SetMapSettings(ctx context.Context, settings MapSettings) error {
	scene, err := r.scene.Get()
	if err != nil {
		return err
	}
	if scene == nil {
		return fmt.Errorf("no scene loaded")
	}

	patch := types.Patch{
		MapImageURL: &settings.MapImageURL,
		GridSize:    &settings.GridSize,
		GridWidth:   &settings.GridWidth,
		GridHeight:  &settings.GridHeight,
	}
	updated, err := r.api.UpdateBattlefield(ctx, scene.ID, patch)
	if err != nil {
		return fmt.Errorf("failed to update map settings: %v", err)
	}
	if err := r.scene.Set(updated); err != nil {
		return err
	}

	update := messages.New(messages.EventMapUpdate, &messages.MapUpdate{
		BattlefieldID: scene.ID,
		MapImageURL:   &settings.MapImageURL,
		GridSize:      &settings.GridSize,
	})
	if err := r.realtime.SendMessage(update); err != nil {
		log.Warn("Failed to announce map update: %v", err)
	}
	return nil
}

// CanMoveToken is the local UX check mirroring the server-side guard.
func (r *Reconciler) CanMoveToken(token types.Token) bool {
	if r.actor.IsDM() {
		return true
	}
	if token.IsNPC || token.CharacterID == "" {
		return false
	}
	for _, c := range r.characters {
		if c.ID == token.CharacterID {
			return c.UserID == r.actor.UserID
		}
	}
	return false
}
