// Package rooms implements the Room Manager component described in
// spec.md §4.3: named rooms, membership, ownership, topics, and
// private-room passwords, all under a single manager-wide lock.
//
// Grounded on the teacher's internal/rooms.go (createRoom/joinRoom/
// listRooms) and generalized to match
// original_source/chat_room.{h,cpp}'s ChatRoomManager, which the
// distilled spec names operation-for-operation in its §4.3 list.
package rooms

import (
	"sort"
	"sync"
	"time"

	"chatserver/internal/chaterr"
)

// GeneralRoom is the always-present, undeletable default room, owned by
// the sentinel administrator ID 0.
const GeneralRoom = "general"

// AdminID is the sentinel administrator principal, never bound to a
// real connection (spec.md GLOSSARY).
const AdminID = 0

// Room is the Room Manager's record for one named room.
type Room struct {
	Name      string
	Topic     string
	OwnerID   int
	CreatedAt time.Time
	Private   bool
	Password  string
	Members   map[int]struct{}
}

// Info is a read-only snapshot of a Room, safe to use without the
// manager's lock.
type Info struct {
	Name        string
	Topic       string
	OwnerID     int
	CreatedAt   time.Time
	Private     bool
	MemberCount int
}

// Manager owns every room and the client->room membership index. All
// operations take the single manager-wide lock spec.md §4.3 allows
// ("per-room locking is an acceptable refinement but not required").
type Manager struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	clientRooms map[int]string
}

func New() *Manager {
	m := &Manager{
		rooms:       make(map[string]*Room),
		clientRooms: make(map[int]string),
	}
	m.rooms[GeneralRoom] = &Room{
		Name:      GeneralRoom,
		Topic:     "Welcome to the chat server!",
		OwnerID:   AdminID,
		CreatedAt: time.Now(),
		Members:   make(map[int]struct{}),
	}
	return m
}

// CreateRoom creates a new, initially empty room. Fails with
// chaterr.ErrRoomExists if the name is taken.
func (m *Manager) CreateRoom(name string, owner int, private bool, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[name]; exists {
		return chaterr.ErrRoomExists
	}

	m.rooms[name] = &Room{
		Name:      name,
		OwnerID:   owner,
		CreatedAt: time.Now(),
		Private:   private,
		Password:  password,
		Members:   make(map[int]struct{}),
	}
	return nil
}

// DeleteRoom removes a room, migrating every member into general.
// general itself cannot be deleted. Only the room's owner or the
// administrator (AdminID) may delete it.
func (m *Manager) DeleteRoom(name string, requester int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == GeneralRoom {
		return chaterr.ErrNotOwner
	}

	room, exists := m.rooms[name]
	if !exists {
		return chaterr.ErrRoomMissing
	}
	if room.OwnerID != requester && requester != AdminID {
		return chaterr.ErrNotOwner
	}

	general := m.rooms[GeneralRoom]
	for clientID := range room.Members {
		general.Members[clientID] = struct{}{}
		m.clientRooms[clientID] = GeneralRoom
	}

	delete(m.rooms, name)
	return nil
}

// JoinRoom moves a client into the named room. A private room requires
// password to equal the room's stored password (empty string counts,
// per DESIGN.md Open Question #3). The client is atomically removed
// from its previous room, if any, before joining the new one.
func (m *Manager) JoinRoom(name string, client int, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[name]
	if !exists {
		return chaterr.ErrRoomMissing
	}
	if room.Private && room.Password != password {
		return chaterr.ErrBadPassword
	}

	if oldName, ok := m.clientRooms[client]; ok {
		if oldRoom, ok := m.rooms[oldName]; ok {
			delete(oldRoom.Members, client)
		}
	}

	room.Members[client] = struct{}{}
	m.clientRooms[client] = name
	return nil
}

// LeaveRoom removes a client from its current room without placing it
// into another one. Callers that want the spec.md "move to general on
// leave" behavior should follow with JoinRoom(general, ...).
func (m *Manager) LeaveRoom(client int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.clientRooms[client]
	if !ok {
		return
	}
	if room, ok := m.rooms[name]; ok {
		delete(room.Members, client)
	}
	delete(m.clientRooms, client)
}

// SetTopic updates a room's topic. Only the room's owner or the
// administrator may do so.
func (m *Manager) SetTopic(name, topic string, requester int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[name]
	if !exists {
		return chaterr.ErrRoomMissing
	}
	if room.OwnerID != requester && requester != AdminID {
		return chaterr.ErrNotOwner
	}
	room.Topic = topic
	return nil
}

// ListRooms returns a snapshot of every public room, sorted
// lexicographically by name.
func (m *Manager) ListRooms() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.rooms))
	for _, room := range m.rooms {
		if room.Private {
			continue
		}
		out = append(out, infoOf(room))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetMembers returns the client IDs currently in the named room.
func (m *Manager) GetMembers(name string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, exists := m.rooms[name]
	if !exists {
		return nil
	}
	return memberList(room)
}

// GetClientRoom returns the name of the client's current room, or ""
// if the client is not a member of any room.
func (m *Manager) GetClientRoom(client int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientRooms[client]
}

// RoomExists reports whether a room by that name currently exists.
func (m *Manager) RoomExists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.rooms[name]
	return exists
}

// GetRoomInfo returns a snapshot of a single room's metadata.
func (m *Manager) GetRoomInfo(name string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, exists := m.rooms[name]
	if !exists {
		return Info{}, false
	}
	return infoOf(room), true
}

// GetRoommates returns the members of the client's current room. If the
// client is unregistered (not a member of any room), it returns
// general's members, per spec.md §4.3.
func (m *Manager) GetRoommates(client int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.clientRooms[client]
	if !ok {
		return memberList(m.rooms[GeneralRoom])
	}
	room, ok := m.rooms[name]
	if !ok {
		return nil
	}
	return memberList(room)
}

func memberList(room *Room) []int {
	if room == nil {
		return nil
	}
	out := make([]int, 0, len(room.Members))
	for id := range room.Members {
		out = append(out, id)
	}
	return out
}

func infoOf(room *Room) Info {
	return Info{
		Name:        room.Name,
		Topic:       room.Topic,
		OwnerID:     room.OwnerID,
		CreatedAt:   room.CreatedAt,
		Private:     room.Private,
		MemberCount: len(room.Members),
	}
}
