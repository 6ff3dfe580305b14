// Package registry implements the Client Registry component: the
// thread-safe mapping of client_id -> (name, current room, activity)
// described in spec.md §4.2.
//
// Grounded on the teacher's Server.clients map (internal/server.go)
// and original_source/server.cpp's g_client_names/g_clients_mutex
// globals, reshaped into an owned struct held by the composition root
// in internal/app.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the connection state named in spec.md §3.
type State int

const (
	StateConnected State = iota
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateAuthenticated:
		return "Authenticated"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Client is the Registry's exclusive record for one connection.
//
// Named is an explicit tag rather than a string comparison against the
// placeholder: comparing Name against "User#<id>" to detect anonymity
// would collide with a user who literally chooses that name.
type Client struct {
	ID           int
	PeerAddr     string
	Name         string
	Named        bool
	State        State
	ConnectedAt  time.Time
	LastActivity time.Time
	MessageCount int
	Room         string

	// CorrelationID is a random per-connection string logged with the
	// connect and disconnect events, alongside the client ID.
	CorrelationID string
}

// Placeholder returns the display name used before a client registers one.
func Placeholder(id int) string {
	return fmt.Sprintf("User#%d", id)
}

// Snapshot is a point-in-time copy safe to read without the Registry's lock.
type Snapshot struct {
	ID            int
	PeerAddr      string
	Name          string
	Named         bool
	State         State
	ConnectedAt   time.Time
	LastActivity  time.Time
	MessageCount  int
	Room          string
	CorrelationID string
}

// Registry maps stable integer client IDs to their records. Expected to
// hold at most max_total_connections (~1000) entries; reads resolve
// names with a linear scan, per spec.md §4.2.
//
// Client IDs themselves are assigned by Transport (mirroring
// original_source/iocp_server.h's atomic next_client_id counter) and
// simply handed to Register; the Registry never generates an ID on its
// own, so there is exactly one source of truth for "which ID is next".
type Registry struct {
	mu      sync.Mutex
	clients map[int]*Client
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		clients: make(map[int]*Client),
	}
}

// Register inserts a fresh record for id with the placeholder name and
// StateConnected.
func (r *Registry) Register(id int, peerAddr string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	c := &Client{
		ID:            id,
		PeerAddr:      peerAddr,
		Name:          Placeholder(id),
		State:         StateConnected,
		ConnectedAt:   now,
		LastActivity:  now,
		CorrelationID: uuid.NewString(),
	}
	r.clients[id] = c
	return c
}

// Get returns the client record for id, if still registered.
func (r *Registry) Get(id int) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// SetName registers a chosen display name and marks the client Named
// and StateAuthenticated. Name collisions are not rejected (DESIGN.md
// Open Question #1): a later registrant under a taken name also
// succeeds, and FindByName may then return either client.
func (r *Registry) SetName(id int, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return false
	}
	c.Name = name
	c.Named = true
	c.State = StateAuthenticated
	return true
}

// SetRoom records the client's current room, mirroring the Room
// Manager's own membership change under its own lock (spec.md §4.2's
// invariant is maintained by the caller performing both updates).
func (r *Registry) SetRoom(id int, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		c.Room = room
	}
}

// Touch updates the last-inbound-activity timestamp and bumps the
// message counter. This is the Registry's own activity timestamp,
// distinct from the Rate & Policy Controller's idle-sweep tracking per
// spec.md §3.
func (r *Registry) Touch(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		c.LastActivity = time.Now()
		c.MessageCount++
	}
}

// Remove deletes the client's record, e.g. on disconnect cleanup.
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// FindByName performs the case-sensitive exact-match linear scan spec.md
// §4.2 specifies. Map iteration order is unspecified, so on a name
// collision either colliding client may be returned; the spec does not
// define resolution beyond "the late registrant still succeeds" at
// write time.
func (r *Registry) FindByName(name string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// All returns a snapshot of every registered client, safe to use
// without holding the Registry's lock.
func (r *Registry) All() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, snapshot(c))
	}
	return out
}

// Count returns the number of currently registered clients.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func snapshot(c *Client) Snapshot {
	return Snapshot{
		ID:            c.ID,
		PeerAddr:      c.PeerAddr,
		Name:          c.Name,
		Named:         c.Named,
		State:         c.State,
		ConnectedAt:   c.ConnectedAt,
		LastActivity:  c.LastActivity,
		MessageCount:  c.MessageCount,
		Room:          c.Room,
		CorrelationID: c.CorrelationID,
	}
}
