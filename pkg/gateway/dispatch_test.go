package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/openvtt/battlemap/pkg/battlefield"
	"github.com/openvtt/battlemap/pkg/messages"
	"github.com/openvtt/battlemap/pkg/repositories"
	"github.com/openvtt/battlemap/pkg/rooms"
	"github.com/openvtt/battlemap/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeer records every message sent to it.
type fakePeer struct {
	id       string
	actor    types.Actor
	received []*messages.Message
}

func (p *fakePeer) ID() string {
	return p.id
}

func (p *fakePeer) Actor() types.Actor {
	return p.actor
}

func (p *fakePeer) Send(msg *messages.Message) error {
	p.received = append(p.received, msg)
	return nil
}

// dispatchRepository serves a single battlefield and a character ownership
// table. Everything else is unused by the dispatcher.
type dispatchRepository struct {
	battlefield *types.Battlefield
	owners      map[string]string
}

var _ repositories.Repository = &dispatchRepository{}

func (r *dispatchRepository) Close(ctx context.Context) error { return nil }

func (r *dispatchRepository) GetOrCreateUser(ctx context.Context, id string) (*types.User, error) {
	return &types.User{ID: id, Role: types.RolePlayer}, nil
}

func (r *dispatchRepository) GetUser(ctx context.Context, id string) (*types.User, error) {
	return nil, &repositories.ErrNotFound{}
}

func (r *dispatchRepository) UpsertUser(ctx context.Context, user *types.User) error { return nil }

func (r *dispatchRepository) CreateCharacter(ctx context.Context, character *types.Character) error {
	return nil
}

func (r *dispatchRepository) ListCharacters(ctx context.Context, userID string) ([]types.Character, error) {
	return nil, nil
}

func (r *dispatchRepository) CharacterOwner(ctx context.Context, characterID string) (string, error) {
	owner, ok := r.owners[characterID]
	if !ok {
		return "", &repositories.ErrNotFound{}
	}
	return owner, nil
}

func (r *dispatchRepository) GetBattlefield(ctx context.Context, id string) (*types.Battlefield, error) {
	if r.battlefield == nil || r.battlefield.ID != id {
		return nil, &repositories.ErrNotFound{}
	}
	copy := *r.battlefield
	return &copy, nil
}

func (r *dispatchRepository) GetActiveBattlefield(ctx context.Context) (*types.Battlefield, error) {
	return nil, &repositories.ErrNotFound{}
}

func (r *dispatchRepository) GetLatestBattlefield(ctx context.Context) (*types.Battlefield, error) {
	return nil, &repositories.ErrNotFound{}
}

func (r *dispatchRepository) CreateBattlefield(ctx context.Context, battlefield *types.Battlefield) error {
	return nil
}

func (r *dispatchRepository) DeactivateBattlefields(ctx context.Context) error { return nil }

func (r *dispatchRepository) UpdateBattlefield(ctx context.Context, id string, patch types.Patch) (*types.Battlefield, error) {
	return nil, &repositories.ErrNotFound{}
}

func newTestGateway() *Gateway {
	repo := &dispatchRepository{
		battlefield: &types.Battlefield{
			ID:       "bf",
			GridSize: 40,
			Tokens: []types.Token{
				{ID: "t1", CharacterID: "char-1", X: 40, Y: 40},
				{ID: "npc", IsNPC: true, X: 120, Y: 120},
			},
		},
		owners: map[string]string{"char-1": "player1"},
	}
	return &Gateway{
		rooms: rooms.NewRoomManager(),
		store: battlefield.NewStore(repo),
	}
}

func join(g *Gateway, peer *fakePeer, battlefieldID string) {
	g.dispatch(context.Background(), peer, messages.New(messages.EventJoinBattlefield, &messages.JoinBattlefield{
		BattlefieldID: battlefieldID,
	}))
}

func TestDispatchTokenMove(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway()
	mover := &fakePeer{id: "s1", actor: types.Actor{UserID: "player1", Role: types.RolePlayer}}
	watcher := &fakePeer{id: "s2", actor: types.Actor{UserID: "player2", Role: types.RolePlayer}}
	elsewhere := &fakePeer{id: "s3", actor: types.Actor{UserID: "player2", Role: types.RolePlayer}}
	join(g, mover, "bf")
	join(g, watcher, "bf")
	join(g, elsewhere, "other")

	g.dispatch(ctx, mover, messages.New(messages.EventTokenMove, &messages.TokenMove{
		BattlefieldID: "bf",
		TokenID:       "t1",
		X:             80,
		Y:             80,
	}))

	// the sender and other rooms stay silent
	assert.Empty(t, mover.received)
	assert.Empty(t, elsewhere.received)
	require.Len(t, watcher.received, 1)
	assert.Equal(t, messages.EventTokenMoved, watcher.received[0].Type)

	moved := &messages.TokenMoved{}
	require.NoError(t, unmarshalPayload(t, watcher.received[0], moved))
	assert.Equal(t, "t1", moved.TokenID)
	assert.Equal(t, 80.0, moved.X)
	assert.Equal(t, 80.0, moved.Y)
}

func TestDispatchTokenMoveRejected(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway()
	mover := &fakePeer{id: "s1", actor: types.Actor{UserID: "player2", Role: types.RolePlayer}}
	watcher := &fakePeer{id: "s2", actor: types.Actor{UserID: "player1", Role: types.RolePlayer}}
	join(g, mover, "bf")
	join(g, watcher, "bf")

	g.dispatch(ctx, mover, messages.New(messages.EventTokenMove, &messages.TokenMove{
		BattlefieldID: "bf",
		TokenID:       "t1",
		X:             80,
		Y:             80,
	}))

	// rejection goes to the sender only, nothing is broadcast
	assert.Empty(t, watcher.received)
	require.Len(t, mover.received, 1)
	assert.Equal(t, messages.EventError, mover.received[0].Type)
}

func TestDispatchTokensUpdate(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway()
	sender := &fakePeer{id: "s1", actor: types.Actor{UserID: "player1", Role: types.RolePlayer}}
	watcher := &fakePeer{id: "s2", actor: types.Actor{UserID: "player2", Role: types.RolePlayer}}
	join(g, sender, "bf")
	join(g, watcher, "bf")

	t.Run("authorized replacement is broadcast", func(t *testing.T) {
		g.dispatch(ctx, sender, messages.New(messages.EventTokensUpdate, &messages.TokensUpdate{
			BattlefieldID: "bf",
			Tokens: []types.Token{
				{ID: "t1", CharacterID: "char-1", X: 0, Y: 0},
				{ID: "npc", IsNPC: true, X: 120, Y: 120},
			},
		}))

		require.Len(t, watcher.received, 1)
		assert.Equal(t, messages.EventTokensUpdated, watcher.received[0].Type)
		assert.Empty(t, sender.received)
	})

	t.Run("npc move is rejected", func(t *testing.T) {
		watcher.received = nil

		g.dispatch(ctx, sender, messages.New(messages.EventTokensUpdate, &messages.TokensUpdate{
			BattlefieldID: "bf",
			Tokens: []types.Token{
				{ID: "t1", CharacterID: "char-1", X: 40, Y: 40},
				{ID: "npc", IsNPC: true, X: 0, Y: 0},
			},
		}))

		assert.Empty(t, watcher.received)
		require.Len(t, sender.received, 1)
		assert.Equal(t, messages.EventError, sender.received[0].Type)
	})
}

func TestDispatchMapUpdate(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway()
	dm := &fakePeer{id: "s1", actor: types.Actor{UserID: "dm", Role: types.RoleDM}}
	player := &fakePeer{id: "s2", actor: types.Actor{UserID: "player1", Role: types.RolePlayer}}
	join(g, dm, "bf")
	join(g, player, "bf")

	t.Run("player is rejected", func(t *testing.T) {
		gridSize := 50
		g.dispatch(ctx, player, messages.New(messages.EventMapUpdate, &messages.MapUpdate{
			BattlefieldID: "bf",
			GridSize:      &gridSize,
		}))

		assert.Empty(t, dm.received)
		require.Len(t, player.received, 1)
		assert.Equal(t, messages.EventError, player.received[0].Type)
	})

	t.Run("dm is broadcast", func(t *testing.T) {
		player.received = nil
		mapImage := "https://example.com/map.png"
		g.dispatch(ctx, dm, messages.New(messages.EventMapUpdate, &messages.MapUpdate{
			BattlefieldID: "bf",
			MapImageURL:   &mapImage,
		}))

		require.Len(t, player.received, 1)
		assert.Equal(t, messages.EventMapUpdated, player.received[0].Type)

		updated := &messages.MapUpdated{}
		require.NoError(t, unmarshalPayload(t, player.received[0], updated))
		require.NotNil(t, updated.MapImageURL)
		assert.Equal(t, mapImage, *updated.MapImageURL)
		assert.Nil(t, updated.GridSize)
	})
}

func TestDispatchLeave(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway()
	leaver := &fakePeer{id: "s1", actor: types.Actor{UserID: "player2", Role: types.RolePlayer}}
	mover := &fakePeer{id: "s2", actor: types.Actor{UserID: "player1", Role: types.RolePlayer}}
	join(g, leaver, "bf")
	join(g, mover, "bf")

	g.dispatch(ctx, leaver, messages.New(messages.EventLeaveBattlefield, &messages.LeaveBattlefield{
		BattlefieldID: "bf",
	}))
	g.dispatch(ctx, mover, messages.New(messages.EventTokenMove, &messages.TokenMove{
		BattlefieldID: "bf",
		TokenID:       "t1",
		X:             80,
		Y:             80,
	}))

	assert.Empty(t, leaver.received)
}

func unmarshalPayload(t *testing.T, msg *messages.Message, out interface{}) error {
	t.Helper()
	return json.Unmarshal(msg.Payload, out)
}
