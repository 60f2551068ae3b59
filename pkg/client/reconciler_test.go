package client

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/openvtt/battlemap/pkg/messages"
	"github.com/openvtt/battlemap/pkg/queue"
	"github.com/openvtt/battlemap/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDurableClient records updates and serves canned responses.
type fakeDurableClient struct {
	battlefield *types.Battlefield
	characters  []types.Character
	updates     []types.Patch
	updateErr   error
}

var _ DurableClient = &fakeDurableClient{}

func (c *fakeDurableClient) GetCurrentBattlefield(ctx context.Context) (*types.Battlefield, error) {
	if c.battlefield == nil {
		return nil, fmt.Errorf("no battlefield")
	}
	copy := *c.battlefield
	return &copy, nil
}

func (c *fakeDurableClient) CreateBattlefield(ctx context.Context, params CreateBattlefieldParams) (*types.Battlefield, error) {
	return nil, fmt.Errorf("not supported")
}

func (c *fakeDurableClient) UpdateBattlefield(ctx context.Context, id string, patch types.Patch) (*types.Battlefield, error) {
	if c.updateErr != nil {
		return nil, c.updateErr
	}
	c.updates = append(c.updates, patch)
	if patch.Tokens != nil {
		c.battlefield.Tokens = *patch.Tokens
	}
	if patch.MapImageURL != nil {
		c.battlefield.MapImageURL = *patch.MapImageURL
	}
	if patch.GridSize != nil {
		c.battlefield.GridSize = *patch.GridSize
	}
	if patch.GridWidth != nil {
		c.battlefield.GridWidth = *patch.GridWidth
	}
	if patch.GridHeight != nil {
		c.battlefield.GridHeight = *patch.GridHeight
	}
	copy := *c.battlefield
	return &copy, nil
}

func (c *fakeDurableClient) ListCharacters(ctx context.Context) ([]types.Character, error) {
	return c.characters, nil
}

// fakeRealtimeClient records every outbound message.
type fakeRealtimeClient struct {
	sent []*messages.Message
}

var _ RealtimeClient = &fakeRealtimeClient{}

func (c *fakeRealtimeClient) SendMessage(msg *messages.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeRealtimeClient) Close() error {
	return nil
}

type reconcilerFixture struct {
	reconciler *Reconciler
	api        *fakeDurableClient
	realtime   *fakeRealtimeClient
	events     queue.Queue
}

func newFixture(t *testing.T, actor types.Actor) *reconcilerFixture {
	t.Helper()
	api := &fakeDurableClient{
		battlefield: &types.Battlefield{
			ID:         "bf",
			Name:       "Cragmaw Hideout",
			GridSize:   40,
			GridWidth:  20,
			GridHeight: 15,
			Tokens: []types.Token{
				{ID: "t1", CharacterID: "char-1", Name: "Thorin", X: 40, Y: 40},
				{ID: "npc", IsNPC: true, X: 120, Y: 120},
			},
		},
		characters: []types.Character{
			{ID: "char-1", UserID: "player1", Name: "Thorin"},
			{ID: "char-2", UserID: "player2", Name: "Elaria"},
		},
	}
	realtime := &fakeRealtimeClient{}
	events := queue.NewInMemoryQueue(16)
	reconciler := NewReconciler(NewReconcilerOptions{
		Actor:    actor,
		API:      api,
		Realtime: realtime,
		Scene:    NewInMemorySceneManager(),
		Events:   events,
	})
	_, err := reconciler.Load(context.Background())
	require.NoError(t, err)
	return &reconcilerFixture{reconciler: reconciler, api: api, realtime: realtime, events: events}
}

var (
	player1Actor = types.Actor{UserID: "player1", Role: types.RolePlayer}
	dmActor      = types.Actor{UserID: "dm", Role: types.RoleDM}
)

func TestReconcilerLoad(t *testing.T) {
	f := newFixture(t, player1Actor)

	scene, err := f.reconciler.Scene()
	require.NoError(t, err)
	require.NotNil(t, scene)
	assert.Equal(t, "Cragmaw Hideout", scene.Name)
	assert.Len(t, scene.Tokens, 2)

	// loading joins the battlefield room
	require.Len(t, f.realtime.sent, 1)
	assert.Equal(t, messages.EventJoinBattlefield, f.realtime.sent[0].Type)
}

func TestReconcilerMoveToken(t *testing.T) {
	f := newFixture(t, player1Actor)

	// raw coordinates snap to the nearest 40px intersection
	require.NoError(t, f.reconciler.MoveToken(context.Background(), "t1", 83, 77))

	scene, err := f.reconciler.Scene()
	require.NoError(t, err)
	assert.Equal(t, 80.0, scene.Tokens[0].X)
	assert.Equal(t, 80.0, scene.Tokens[0].Y)

	require.Len(t, f.api.updates, 1)
	require.NotNil(t, f.api.updates[0].Tokens)
	assert.Equal(t, 80.0, (*f.api.updates[0].Tokens)[0].X)

	require.Len(t, f.realtime.sent, 2)
	assert.Equal(t, messages.EventTokenMove, f.realtime.sent[1].Type)
	move := &messages.TokenMove{}
	require.NoError(t, json.Unmarshal(f.realtime.sent[1].Payload, move))
	assert.Equal(t, "bf", move.BattlefieldID)
	assert.Equal(t, "t1", move.TokenID)
	assert.Equal(t, 80.0, move.X)
	assert.Equal(t, 80.0, move.Y)
}

func TestReconcilerMoveTokenPersistFailure(t *testing.T) {
	f := newFixture(t, player1Actor)
	f.api.updateErr = fmt.Errorf("store unavailable")

	// the optimistic move sticks even when persistence fails
	require.NoError(t, f.reconciler.MoveToken(context.Background(), "t1", 83, 77))

	scene, err := f.reconciler.Scene()
	require.NoError(t, err)
	assert.Equal(t, 80.0, scene.Tokens[0].X)

	// and the move is still announced to the room
	require.Len(t, f.realtime.sent, 2)
	assert.Equal(t, messages.EventTokenMove, f.realtime.sent[1].Type)
}

func TestReconcilerMoveTokenUnknown(t *testing.T) {
	f := newFixture(t, player1Actor)

	err := f.reconciler.MoveToken(context.Background(), "missing", 83, 77)
	assert.Error(t, err)
	assert.Empty(t, f.api.updates)
}

func TestReconcilerFoldEvents(t *testing.T) {
	t.Run("token-moved", func(t *testing.T) {
		f := newFixture(t, player1Actor)
		require.NoError(t, f.events.Enqueue(messages.New(messages.EventTokenMoved, &messages.TokenMoved{
			TokenID: "t1",
			X:       160,
			Y:       200,
		})))

		require.NoError(t, f.reconciler.ProcessEvents())

		scene, err := f.reconciler.Scene()
		require.NoError(t, err)
		assert.Equal(t, 160.0, scene.Tokens[0].X)
		assert.Equal(t, 200.0, scene.Tokens[0].Y)
	})

	t.Run("token-moved for an unknown token is ignored", func(t *testing.T) {
		f := newFixture(t, player1Actor)
		require.NoError(t, f.events.Enqueue(messages.New(messages.EventTokenMoved, &messages.TokenMoved{
			TokenID: "missing",
			X:       160,
			Y:       200,
		})))

		require.NoError(t, f.reconciler.ProcessEvents())

		scene, err := f.reconciler.Scene()
		require.NoError(t, err)
		assert.Len(t, scene.Tokens, 2)
		assert.Equal(t, 40.0, scene.Tokens[0].X)
	})

	t.Run("tokens-updated replaces the list", func(t *testing.T) {
		f := newFixture(t, player1Actor)
		require.NoError(t, f.events.Enqueue(messages.New(messages.EventTokensUpdated, &messages.TokensUpdated{
			Tokens: []types.Token{{ID: "only", Name: "Grimm", X: 0, Y: 0}},
		})))

		require.NoError(t, f.reconciler.ProcessEvents())

		scene, err := f.reconciler.Scene()
		require.NoError(t, err)
		require.Len(t, scene.Tokens, 1)
		assert.Equal(t, "only", scene.Tokens[0].ID)
	})

	t.Run("map-updated merges present fields only", func(t *testing.T) {
		f := newFixture(t, player1Actor)
		mapImage := "https://example.com/map.png"
		require.NoError(t, f.events.Enqueue(messages.New(messages.EventMapUpdated, &messages.MapUpdated{
			MapImageURL: &mapImage,
		})))

		require.NoError(t, f.reconciler.ProcessEvents())

		scene, err := f.reconciler.Scene()
		require.NoError(t, err)
		assert.Equal(t, mapImage, scene.MapImageURL)
		assert.Equal(t, 40, scene.GridSize)
	})

	t.Run("error events do not touch the scene", func(t *testing.T) {
		f := newFixture(t, player1Actor)
		require.NoError(t, f.events.Enqueue(messages.New(messages.EventError, &messages.Error{
			Reason: "cannot move tokens you do not own",
		})))

		require.NoError(t, f.reconciler.ProcessEvents())

		scene, err := f.reconciler.Scene()
		require.NoError(t, err)
		assert.Equal(t, 40.0, scene.Tokens[0].X)
	})
}

func TestReconcilerAddToken(t *testing.T) {
	f := newFixture(t, dmActor)

	token, err := f.reconciler.AddToken(context.Background(), AddTokenParams{
		Name:  "Goblin",
		Color: "#00ff00",
		IsNPC: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token.ID)
	assert.Equal(t, 40.0, token.X)
	assert.Equal(t, 40.0, token.Y)
	assert.Equal(t, 32.0, token.Size)

	scene, err := f.reconciler.Scene()
	require.NoError(t, err)
	assert.Len(t, scene.Tokens, 3)

	require.Len(t, f.realtime.sent, 2)
	assert.Equal(t, messages.EventTokensUpdate, f.realtime.sent[1].Type)

	t.Run("name is required", func(t *testing.T) {
		_, err := f.reconciler.AddToken(context.Background(), AddTokenParams{})
		assert.Error(t, err)
	})
}

func TestReconcilerRemoveToken(t *testing.T) {
	t.Run("player is denied", func(t *testing.T) {
		f := newFixture(t, player1Actor)

		err := f.reconciler.RemoveToken(context.Background(), "npc")
		assert.Error(t, err)

		scene, err := f.reconciler.Scene()
		require.NoError(t, err)
		assert.Len(t, scene.Tokens, 2)
	})

	t.Run("dm removes", func(t *testing.T) {
		f := newFixture(t, dmActor)

		require.NoError(t, f.reconciler.RemoveToken(context.Background(), "npc"))

		scene, err := f.reconciler.Scene()
		require.NoError(t, err)
		require.Len(t, scene.Tokens, 1)
		assert.Equal(t, "t1", scene.Tokens[0].ID)

		require.Len(t, f.realtime.sent, 2)
		assert.Equal(t, messages.EventTokensUpdate, f.realtime.sent[1].Type)
	})
}

func TestReconcilerSetMapSettings(t *testing.T) {
	f := newFixture(t, dmActor)

	require.NoError(t, f.reconciler.SetMapSettings(context.Background(), MapSettings{
		MapImageURL: "https://example.com/cragmaw.png",
		GridSize:    50,
		GridWidth:   30,
		GridHeight:  20,
	}))

	scene, err := f.reconciler.Scene()
	require.NoError(t, err)
	assert.Equal(t, 50, scene.GridSize)
	assert.Equal(t, "https://example.com/cragmaw.png", scene.MapImageURL)

	require.Len(t, f.realtime.sent, 2)
	assert.Equal(t, messages.EventMapUpdate, f.realtime.sent[1].Type)
}

func TestReconcilerCanMoveToken(t *testing.T) {
	owned := types.Token{ID: "t1", CharacterID: "char-1"}
	other := types.Token{ID: "t2", CharacterID: "char-2"}
	npc := types.Token{ID: "npc", IsNPC: true}
	loose := types.Token{ID: "loose"}
	orphan := types.Token{ID: "orphan", CharacterID: "char-gone"}

	t.Run("player", func(t *testing.T) {
		f := newFixture(t, player1Actor)
		assert.True(t, f.reconciler.CanMoveToken(owned))
		assert.False(t, f.reconciler.CanMoveToken(other))
		assert.False(t, f.reconciler.CanMoveToken(npc))
		assert.False(t, f.reconciler.CanMoveToken(loose))
		assert.False(t, f.reconciler.CanMoveToken(orphan))
	})

	t.Run("dm", func(t *testing.T) {
		f := newFixture(t, dmActor)
		assert.True(t, f.reconciler.CanMoveToken(owned))
		assert.True(t, f.reconciler.CanMoveToken(npc))
	})
}
