package gateway

import (
	"context"
	"encoding/json"

	"github.com/openvtt/battlemap/pkg/battlefield"
	"github.com/openvtt/battlemap/pkg/log"
	"github.com/openvtt/battlemap/pkg/messages"
	"github.com/openvtt/battlemap/pkg/rooms"
	"github.com/openvtt/battlemap/pkg/types"
)

// sessionPeer is the slice of a session the dispatcher needs.
type sessionPeer interface {
	rooms.Session
	Actor() types.Actor
}

func (s *session) Actor() types.Actor {
	return s.actor
}

// dispatch routes one inbound event. Mutation events run through the same
// authorization as the durable path; a rejected event is answered with an
// error event to the sender and never broadcast.
func (g *Gateway) dispatch(ctx context.Context, s sessionPeer, msg *messages.Message) {
	switch msg.Type {
	case messages.EventJoinBattlefield:
		payload := &messages.JoinBattlefield{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			log.Error("Failed to unmarshal join-battlefield payload: %v", err)
			return
		}
		g.rooms.Join(payload.BattlefieldID, s)
		log.Debug("Session %s joined battlefield %s", s.ID(), payload.BattlefieldID)
	case messages.EventLeaveBattlefield:
		payload := &messages.LeaveBattlefield{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			log.Error("Failed to unmarshal leave-battlefield payload: %v", err)
			return
		}
		g.rooms.Leave(payload.BattlefieldID, s)
		log.Debug("Session %s left battlefield %s", s.ID(), payload.BattlefieldID)
	case messages.EventTokenMove:
		g.handleTokenMove(ctx, s, msg)
	case messages.EventTokensUpdate:
		g.handleTokensUpdate(ctx, s, msg)
	case messages.EventMapUpdate:
		g.handleMapUpdate(ctx, s, msg)
	default:
		log.Warn("Received unexpected message type from session %s: %s", s.ID(), msg.Type)
	}
}

func (g *Gateway) handleTokenMove(ctx context.Context, s sessionPeer, msg *messages.Message) {
	payload := &messages.TokenMove{}
	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		log.Error("Failed to unmarshal token-move payload: %v", err)
		return
	}

	if err := g.store.AuthorizeMove(ctx, payload.BattlefieldID, s.Actor(), payload.TokenID, payload.X, payload.Y); err != nil {
		g.reject(s, msg.Type, err)
		return
	}

	g.rooms.Broadcast(payload.BattlefieldID, messages.New(messages.EventTokenMoved, &messages.TokenMoved{
		TokenID: payload.TokenID,
		X:       payload.X,
		Y:       payload.Y,
	}), s.ID())
}

func (g *Gateway) handleTokensUpdate(ctx context.Context, s sessionPeer, msg *messages.Message) {
	payload := &messages.TokensUpdate{}
	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		log.Error("Failed to unmarshal tokens-update payload: %v", err)
		return
	}

	if err := g.store.AuthorizeTokens(ctx, payload.BattlefieldID, s.Actor(), payload.Tokens); err != nil {
		g.reject(s, msg.Type, err)
		return
	}

	g.rooms.Broadcast(payload.BattlefieldID, messages.New(messages.EventTokensUpdated, &messages.TokensUpdated{
		Tokens: payload.Tokens,
	}), s.ID())
}

func (g *Gateway) handleMapUpdate(ctx context.Context, s sessionPeer, msg *messages.Message) {
	payload := &messages.MapUpdate{}
	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		log.Error("Failed to unmarshal map-update payload: %v", err)
		return
	}

	if !s.Actor().IsDM() {
		g.reject(s, msg.Type, &battlefield.ErrPermissionDenied{Reason: "only the DM can change map settings"})
		return
	}

	g.rooms.Broadcast(payload.BattlefieldID, messages.New(messages.EventMapUpdated, &messages.MapUpdated{
		MapImageURL: payload.MapImageURL,
		GridSize:    payload.GridSize,
	}), s.ID())
}

func (g *Gateway) reject(s sessionPeer, eventType string, err error) {
	log.Debug("Rejected %s from session %s: %v", eventType, s.ID(), err)
	if sendErr := s.Send(messages.New(messages.EventError, &messages.Error{Reason: err.Error()})); sendErr != nil {
		log.Warn("Failed to send error to session %s: %v", s.ID(), sendErr)
	}
}
