package rooms

import (
	"sync"

	"github.com/sirupsen/logrus"

	"pairpad-server/metrics"
)

// Conn is a live, bidirectional message channel owned by the transport.
// Values are compared by identity, so implementations should be pointers.
type Conn interface {
	// ID identifies the connection in logs.
	ID() string
	// Send delivers one encoded message. It must give up after a bounded
	// time and report that as an error.
	Send(data []byte) error
	// Close releases the transport. It must be safe to call more than once.
	Close() error
}

// Table maps room ids to the connections currently joined to them.
// A room id is present only while it has at least one connection.
type Table struct {
	mu    sync.RWMutex
	rooms map[string][]Conn
}

func NewTable() *Table {
	return &Table{rooms: make(map[string][]Conn)}
}

// Register adds conn to roomID, creating the entry on first join. Callers
// register a connection at most once per room.
func (t *Table) Register(roomID string, conn Conn) {
	t.mu.Lock()
	conns, ok := t.rooms[roomID]
	t.rooms[roomID] = append(conns, conn)
	total := len(t.rooms[roomID])
	t.mu.Unlock()

	if !ok {
		metrics.ActiveRooms.Inc()
	}
	metrics.ActiveConnections.Inc()
	logrus.WithFields(logrus.Fields{
		"room_id":     roomID,
		"conn_id":     conn.ID(),
		"connections": total,
	}).Info("Connection registered")
}

// Deregister removes conn from roomID. It reports whether anything was
// removed; absent rooms and connections are not an error.
func (t *Table) Deregister(roomID string, conn Conn) bool {
	t.mu.Lock()
	conns, ok := t.rooms[roomID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	idx := -1
	for i, c := range conns {
		if c == conn {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return false
	}

	remaining := make([]Conn, 0, len(conns)-1)
	remaining = append(remaining, conns[:idx]...)
	remaining = append(remaining, conns[idx+1:]...)
	emptied := len(remaining) == 0
	if emptied {
		delete(t.rooms, roomID)
	} else {
		t.rooms[roomID] = remaining
	}
	t.mu.Unlock()

	metrics.ActiveConnections.Dec()
	log := logrus.WithFields(logrus.Fields{
		"room_id":     roomID,
		"conn_id":     conn.ID(),
		"connections": len(remaining),
	})
	log.Info("Connection deregistered")
	if emptied {
		metrics.ActiveRooms.Dec()
		log.Info("Room is empty, entry removed")
	}
	return true
}

// Snapshot returns a copy of the room's connections, safe to iterate while
// the table keeps changing.
func (t *Table) Snapshot(roomID string) []Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := t.rooms[roomID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Conn, len(conns))
	copy(out, conns)
	return out
}

// Count returns the number of live connections in a room.
func (t *Table) Count(roomID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms[roomID])
}

// Active returns every live room with its connection count.
func (t *Table) Active() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]int, len(t.rooms))
	for id, conns := range t.rooms {
		out[id] = len(conns)
	}
	return out
}
