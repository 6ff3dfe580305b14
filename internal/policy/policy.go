// Package policy implements the Rate & Policy Controller described in
// spec.md §4.4: connection/message rate limiting, mutes, IP bans, and
// idle-timeout detection.
//
// Grounded on original_source/connection_manager.{h,cpp}'s
// ConnectionManager: five independently locked state families (one
// lock per family, per spec.md §5's "Shared-resource policy"), lazy
// eviction of expired entries on the read path, and a Config struct
// carrying the same tunables.
package policy

import (
	"sync"
	"time"
)

// Config mirrors original_source/connection_manager.h's Config struct
// and spec.md §6's configuration constants.
type Config struct {
	MaxConnectionsPerSecond int
	MaxMessagesPerMinute    int
	ConnectionTimeoutSeconds int
	MaxTotalConnections     int
}

// DefaultConfig returns the spec.md §4.4 defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnectionsPerSecond: 50,
		MaxMessagesPerMinute:    60,
		ConnectionTimeoutSeconds: 300,
		MaxTotalConnections:     1000,
	}
}

// muteExpiry is a sum type standing in for the source's sentinel
// timestamp: forever means the mute never lazily expires; until
// carries the wall-clock deadline.
type muteExpiry struct {
	forever bool
	until   time.Time
}

// Controller owns the five independently-locked state families named
// in spec.md §3 and §5. No lock is ever held across a call into
// another component, and no two of these locks are ever held at once.
type Controller struct {
	cfg Config

	connMu       sync.Mutex
	connTimes    []time.Time
	currentConns int

	msgMu       sync.Mutex
	clientMsgs  map[int][]time.Time

	banMu sync.Mutex
	bans  map[string]struct{}

	muteMu sync.Mutex
	mutes  map[int]muteExpiry

	activityMu sync.Mutex
	activity   map[int]time.Time
}

// New builds a Controller with the given Config.
func New(cfg Config) *Controller {
	return &Controller{
		cfg:        cfg,
		clientMsgs: make(map[int][]time.Time),
		bans:       make(map[string]struct{}),
		mutes:      make(map[int]muteExpiry),
		activity:   make(map[int]time.Time),
	}
}

// AllowConnection admits a new connection from ip if it is not banned,
// the server is under its total-connection cap, and fewer than
// MaxConnectionsPerSecond connections have been accepted in the last
// second. A permitted call appends the current timestamp.
func (c *Controller) AllowConnection(ip string) bool {
	if c.IsBanned(ip) {
		return false
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.currentConns >= c.cfg.MaxTotalConnections {
		return false
	}

	now := time.Now()
	cutoff := now.Add(-1 * time.Second)
	c.connTimes = evictBefore(c.connTimes, cutoff)

	if len(c.connTimes) >= c.cfg.MaxConnectionsPerSecond {
		return false
	}

	c.connTimes = append(c.connTimes, now)
	return true
}

// AllowMessage reports whether client may send another message right
// now: false if muted (lazily expiring the mute entry if it has
// elapsed), otherwise true iff fewer than MaxMessagesPerMinute
// timestamps fall within the trailing 60-second window.
func (c *Controller) AllowMessage(client int) bool {
	if c.IsMuted(client) {
		return false
	}

	c.msgMu.Lock()
	defer c.msgMu.Unlock()

	now := time.Now()
	cutoff := now.Add(-1 * time.Minute)
	c.clientMsgs[client] = evictBefore(c.clientMsgs[client], cutoff)

	return len(c.clientMsgs[client]) < c.cfg.MaxMessagesPerMinute
}

// RecordMessage appends the current timestamp to client's message
// window and refreshes its activity timestamp.
func (c *Controller) RecordMessage(client int) {
	c.msgMu.Lock()
	c.clientMsgs[client] = append(c.clientMsgs[client], time.Now())
	c.msgMu.Unlock()

	c.UpdateActivity(client)
}

// IsBanned reports whether ip is currently banned.
func (c *Controller) IsBanned(ip string) bool {
	c.banMu.Lock()
	defer c.banMu.Unlock()
	_, banned := c.bans[ip]
	return banned
}

// Ban adds ip to the ban set.
func (c *Controller) Ban(ip string) {
	c.banMu.Lock()
	defer c.banMu.Unlock()
	c.bans[ip] = struct{}{}
}

// Unban removes ip from the ban set.
func (c *Controller) Unban(ip string) {
	c.banMu.Lock()
	defer c.banMu.Unlock()
	delete(c.bans, ip)
}

// Mute silences client for seconds; seconds == 0 means permanent, per
// spec.md §4.4.
func (c *Controller) Mute(client int, seconds int) {
	c.muteMu.Lock()
	defer c.muteMu.Unlock()

	if seconds == 0 {
		c.mutes[client] = muteExpiry{forever: true}
		return
	}
	c.mutes[client] = muteExpiry{until: time.Now().Add(time.Duration(seconds) * time.Second)}
}

// Unmute clears any mute on client.
func (c *Controller) Unmute(client int) {
	c.muteMu.Lock()
	defer c.muteMu.Unlock()
	delete(c.mutes, client)
}

// IsMuted reports whether client is currently muted, lazily expiring
// the entry if its deadline has passed.
func (c *Controller) IsMuted(client int) bool {
	c.muteMu.Lock()
	defer c.muteMu.Unlock()

	m, ok := c.mutes[client]
	if !ok {
		return false
	}
	if m.forever {
		return true
	}
	if time.Now().After(m.until) {
		delete(c.mutes, client)
		return false
	}
	return true
}

// UpdateActivity records "now" as client's last inbound activity for
// the idle sweep. Distinct from the Registry's own activity timestamp
// per spec.md §3.
func (c *Controller) UpdateActivity(client int) {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	c.activity[client] = time.Now()
}

// CheckTimeouts returns the subset of clients whose last recorded
// activity is older than ConnectionTimeoutSeconds. internal/app's idle
// sweep calls this once per second and disconnects the returned IDs.
func (c *Controller) CheckTimeouts(clients []int) []int {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()

	timeout := time.Duration(c.cfg.ConnectionTimeoutSeconds) * time.Second
	now := time.Now()

	var timedOut []int
	for _, id := range clients {
		last, ok := c.activity[id]
		if !ok {
			continue
		}
		if now.Sub(last) > timeout {
			timedOut = append(timedOut, id)
		}
	}
	return timedOut
}

// OnConnect increments the live connection count.
func (c *Controller) OnConnect() {
	c.connMu.Lock()
	c.currentConns++
	c.connMu.Unlock()
}

// OnDisconnect decrements the live connection count, floored at zero.
func (c *Controller) OnDisconnect() {
	c.connMu.Lock()
	if c.currentConns > 0 {
		c.currentConns--
	}
	c.connMu.Unlock()
}

// GetConnectionCount returns the current live connection count.
func (c *Controller) GetConnectionCount() int {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.currentConns
}

func evictBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}
