// Package eventbus is the Event Bus / Fan-out layer (spec component G):
// an in-memory graph of authenticated connections and rooms, with
// join/leave as the only mutators and a single read-write lock
// serialising every mutation (spec.md §9, §5). It is the exclusive owner
// of connection and room state — no other package holds a reference to
// a live connection.
package eventbus

import (
	"encoding/json"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Room key constants and the ad-hoc-room allow-list pattern (spec.md §4.G).
const (
	RoomSupervisors = "supervisors"
	RoomEmployees   = "employees"
)

// adHocRoomPattern matches the join_room allow-list: alerts_*, vitals_*, location_*.
var adHocRoomPattern = regexp.MustCompile(`^(alerts_|vitals_|location_)[A-Za-z0-9_-]+$`)

// UserRoom returns the per-user room key a connection auto-joins on connect.
func UserRoom(userID uuid.UUID) string { return "user_" + userID.String() }

// VitalsRoom returns the vitals room key for a given user.
func VitalsRoom(userID uuid.UUID) string { return "vitals_" + userID.String() }

// RoleRoom returns the auto-joined room for a role ("employee" → employees,
// "supervisor" → supervisors).
func RoleRoom(role string) string {
	if role == "supervisor" {
		return RoomSupervisors
	}
	return RoomEmployees
}

// IsAllowedAdHocRoom reports whether room matches the join_room allow-list
// pattern (spec.md §4.G).
func IsAllowedAdHocRoom(room string) bool {
	return adHocRoomPattern.MatchString(room)
}

// Event is the envelope for every outbound message (spec.md §6: "every
// outbound event carries a server-assigned ISO-8601 timestamp").
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEvent builds an Event stamped with the current time.
func NewEvent(typ string, data any) Event {
	return Event{Type: typ, Timestamp: time.Now().UTC(), Data: data}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Connection is a single authenticated duplex session (spec.md §4.G).
// The Socket Facade owns the read/write pumps; the Hub only owns the
// registries and outbound queue.
type Connection struct {
	ID         string
	UserID     uuid.UUID
	Email      string
	Role       string
	send       chan []byte
	sendMu     sync.Mutex
	closed     bool
	locationOn atomic.Bool
	roomsMu    sync.Mutex
	rooms      map[string]struct{}
}

// newConnection creates a connection with a bounded outbound queue of
// size queueSize (spec.md §5: "Per-connection outbound queue: bounded;
// overflow drops the oldest message").
func newConnection(id string, userID uuid.UUID, email, role string, queueSize int) *Connection {
	return &Connection{
		ID:     id,
		UserID: userID,
		Email:  email,
		Role:   role,
		send:   make(chan []byte, queueSize),
		rooms:  make(map[string]struct{}),
	}
}

// Send returns the channel the Socket Facade's write pump drains.
func (c *Connection) Send() <-chan []byte { return c.send }

// SetLocationSharing flips the per-connection location-sharing flag
// (spec.md §4.G toggle_location_sharing — per-connection, last-write-wins,
// not persisted; see DESIGN.md Open Question 1).
func (c *Connection) SetLocationSharing(on bool) { c.locationOn.Store(on) }

// LocationSharing reports the current per-connection location-sharing state.
func (c *Connection) LocationSharing() bool { return c.locationOn.Load() }

// Rooms returns a snapshot of the rooms this connection currently belongs to.
func (c *Connection) Rooms() []string {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// Metrics bundles the Prometheus instruments the Hub updates. Callers
// wire these to the package-level collectors in internal/telemetry.
type Metrics struct {
	FanoutDropped prometheus.Counter
	Active        prometheus.Gauge
	RoomMembers   *prometheus.GaugeVec
}

// Hub is the Event Bus. A single sync.RWMutex protects both registries
// (connections, rooms): Broadcast, BroadcastAll and Send take the read lock
// since they only read
// room membership, while join/leave/register/unregister take the write
// lock since they mutate it (spec.md §9: "a read-mostly lock with
// exclusive writes").
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*Connection
	rooms     map[string]map[string]*Connection
	queueSize int
	metrics   *Metrics
}

// NewHub creates an empty event bus.
func NewHub(queueSize int, metrics *Metrics) *Hub {
	return &Hub{
		conns:     make(map[string]*Connection),
		rooms:     make(map[string]map[string]*Connection),
		queueSize: queueSize,
		metrics:   metrics,
	}
}

// Register creates a connection for (userID, email, role), auto-joins it
// to its own user room and role room, and returns it (spec.md §4.G:
// "Per-connection auto-memberships on join").
func (h *Hub) Register(id string, userID uuid.UUID, email, role string) *Connection {
	conn := newConnection(id, userID, email, role, h.queueSize)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = conn
	h.joinLocked(conn, UserRoom(userID))
	h.joinLocked(conn, RoleRoom(role))
	if h.metrics != nil {
		h.metrics.Active.Set(float64(len(h.conns)))
	}
	return conn
}

// Unregister removes a connection from every room it belongs to and
// closes its outbound queue (spec.md §9: "disconnect must explicitly walk
// the connection's room set").
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[id]
	if !ok {
		return
	}
	for room := range conn.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, id)
			if len(members) == 0 {
				delete(h.rooms, room)
			} else if h.metrics != nil {
				h.metrics.RoomMembers.WithLabelValues(room).Set(float64(len(members)))
			}
		}
	}
	delete(h.conns, id)

	// Close under conn.sendMu, the same lock deliver holds while sending,
	// so a Broadcast/Send already past the Hub's snapshot (but not yet
	// past deliver's send) can never race a close of this channel.
	conn.sendMu.Lock()
	conn.closed = true
	close(conn.send)
	conn.sendMu.Unlock()

	if h.metrics != nil {
		h.metrics.Active.Set(float64(len(h.conns)))
	}
}

// joinLocked adds conn to room. Caller must hold h.mu for writing.
func (h *Hub) joinLocked(conn *Connection, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Connection)
		h.rooms[room] = members
	}
	members[conn.ID] = conn

	conn.roomsMu.Lock()
	conn.rooms[room] = struct{}{}
	conn.roomsMu.Unlock()

	if h.metrics != nil {
		h.metrics.RoomMembers.WithLabelValues(room).Set(float64(len(members)))
	}
}

// Join adds conn to room.
func (h *Hub) Join(conn *Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(conn, room)
}

// Leave removes conn from room.
func (h *Hub) Leave(conn *Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, conn.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		} else if h.metrics != nil {
			h.metrics.RoomMembers.WithLabelValues(room).Set(float64(len(members)))
		}
	}
	conn.roomsMu.Lock()
	delete(conn.rooms, room)
	conn.roomsMu.Unlock()
}

// Connection looks up a live connection by id.
func (h *Hub) Connection(id string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

// Broadcast publishes ev to every connection in room. It never blocks on
// a slow subscriber: a full outbound queue drops its oldest message to
// make room (spec.md §4.F: "Fan-out failure ... must not roll back the
// commit"; §5: "overflow drops the oldest message").
func (h *Hub) Broadcast(room string, ev Event) {
	data, err := ev.encode()
	if err != nil {
		return
	}

	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]*Connection, 0, len(members))
	for _, c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, room, data)
	}
}

// BroadcastAll publishes ev to every connected client (spec.md §4.G:
// SystemMessage → "every connection").
func (h *Hub) BroadcastAll(ev Event) {
	data, err := ev.encode()
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, "*", data)
	}
}

// Send publishes ev to a single connection, if still connected.
func (h *Hub) Send(connID string, ev Event) bool {
	data, err := ev.encode()
	if err != nil {
		return false
	}
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	h.deliver(c, "", data)
	return true
}

// deliver performs a non-blocking send, dropping the oldest queued
// message on overflow rather than blocking the publisher. It holds
// c.sendMu for the duration so it can never send on c.send after
// Unregister has closed it: Broadcast/BroadcastAll/Send snapshot
// connection pointers under the Hub lock and call deliver after
// releasing it, so a concurrent Unregister for the same connection is
// always possible here — c.closed, set under the same lock right
// before the close, is what makes that race safe instead of a panic.
func (h *Hub) deliver(c *Connection, room string, data []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
		return
	default:
	}

	// Queue full: drop the oldest message, then retry once.
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- data:
	default:
		// The connection's write pump isn't draining at all (e.g. mid
		// teardown); count the drop and move on.
	}
	if h.metrics != nil {
		h.metrics.FanoutDropped.Inc()
	}
}

// RoomSize returns the number of connections currently in room, for
// diagnostics and tests.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
