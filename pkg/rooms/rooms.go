package rooms

import (
	"sync"

	"github.com/openvtt/battlemap/pkg/log"
	"github.com/openvtt/battlemap/pkg/messages"
)

// Session is a live connection that can receive room broadcasts.
type Session interface {
	ID() string
	Send(msg *messages.Message) error
}

// RoomManager maps battlefield IDs to the sessions currently viewing
// them. Membership is ephemeral and process-local: a session that joins
// after a broadcast never receives it.
type RoomManager struct {
	lock  sync.RWMutex
	rooms map[string]map[string]Session
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[string]map[string]Session),
	}
}

// Join adds a session to a room. Idempotent.
func (rm *RoomManager) Join(battlefieldID string, session Session) {
	rm.lock.Lock()
	defer rm.lock.Unlock()
	room, ok := rm.rooms[battlefieldID]
	if !ok {
		room = make(map[string]Session)
		rm.rooms[battlefieldID] = room
	}
	room[session.ID()] = session
}

// Leave removes a session from a room.
func (rm *RoomManager) Leave(battlefieldID string, session Session) {
	rm.lock.Lock()
	defer rm.lock.Unlock()
	rm.removeLocked(battlefieldID, session.ID())
}

// LeaveAll removes a session from every room. Called on disconnect.
func (rm *RoomManager) LeaveAll(session Session) {
	rm.lock.Lock()
	defer rm.lock.Unlock()
	for battlefieldID := range rm.rooms {
		rm.removeLocked(battlefieldID, session.ID())
	}
}

func (rm *RoomManager) removeLocked(battlefieldID, sessionID string) {
	room, ok := rm.rooms[battlefieldID]
	if !ok {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(rm.rooms, battlefieldID)
	}
}

// Size returns the number of sessions in a room.
func (rm *RoomManager) Size(battlefieldID string) int {
	rm.lock.RLock()
	defer rm.lock.RUnlock()
	return len(rm.rooms[battlefieldID])
}

// Broadcast delivers a message to every member of the room except the
// session identified by excludeID. Delivery is best-effort: send errors
// are logged and otherwise ignored.
func (rm *RoomManager) Broadcast(battlefieldID string, msg *messages.Message, excludeID string) {
	rm.lock.RLock()
	members := make([]Session, 0, len(rm.rooms[battlefieldID]))
	for id, session := range rm.rooms[battlefieldID] {
		if id == excludeID {
			continue
		}
		members = append(members, session)
	}
	rm.lock.RUnlock()

	for _, session := range members {
		if err := session.Send(msg); err != nil {
			log.Warn("Failed to send %s to session %s: %v", msg.Type, session.ID(), err)
		}
	}
}
