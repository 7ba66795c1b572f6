package rooms

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"pairpad-server/metrics"
)

// Broadcaster fans messages out to the members of a room.
//
// Dispatch is serialized per room, so every connection observes a room's
// messages in the order Broadcast was called. Different rooms never wait
// on each other. Sends happen on a snapshot of the membership, and the
// table lock is never held while a send is in flight.
type Broadcaster struct {
	table *Table
	locks *keyedMutex
}

func NewBroadcaster(table *Table) *Broadcaster {
	return &Broadcaster{table: table, locks: newKeyedMutex()}
}

// Table returns the membership table the broadcaster delivers to.
func (b *Broadcaster) Table() *Table { return b.table }

// Join registers conn in roomID and runs greet before any broadcast for
// that room can reach it. A greet error is returned as is; the caller is
// expected to run its normal leave path.
func (b *Broadcaster) Join(roomID string, conn Conn, greet func() error) error {
	unlock := b.locks.Lock(roomID)
	defer unlock()

	b.table.Register(roomID, conn)
	if greet == nil {
		return nil
	}
	return greet()
}

// Broadcast encodes msg once and delivers it to every connection in roomID
// except exclude. A failed send does not stop the pass; failed connections
// are closed and deregistered once the pass completes. Broadcasting to a
// room without members is a no-op. Only encoding errors are returned.
func (b *Broadcaster) Broadcast(roomID string, msg any, exclude Conn) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message for room %s: %w", roomID, err)
	}

	unlock := b.locks.Lock(roomID)
	defer unlock()

	b.fanOut(roomID, data, exclude)
	return nil
}

// Notify is a best-effort Broadcast: any failure, including a panic in a
// connection's Send, is logged and swallowed.
func (b *Broadcaster) Notify(roomID string, msg any, exclude Conn) {
	log := logrus.WithField("room_id", roomID)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Notification broadcast panicked")
		}
	}()
	if err := b.Broadcast(roomID, msg, exclude); err != nil {
		log.WithError(err).Warn("Notification broadcast failed")
	}
}

func (b *Broadcaster) fanOut(roomID string, data []byte, exclude Conn) {
	log := logrus.WithField("room_id", roomID)

	conns := b.table.Snapshot(roomID)
	if len(conns) == 0 {
		log.Debug("No active connections, broadcast skipped")
		return
	}

	var dead []Conn
	delivered := 0
	for _, c := range conns {
		if exclude != nil && c == exclude {
			continue
		}
		if err := c.Send(data); err != nil {
			log.WithError(err).WithField("conn_id", c.ID()).Warn("Delivery failed, pruning connection")
			metrics.DeliveryFailures.Inc()
			dead = append(dead, c)
			continue
		}
		delivered++
		metrics.MessagesDelivered.Inc()
	}

	for _, c := range dead {
		_ = c.Close()
		b.table.Deregister(roomID, c)
	}

	log.WithFields(logrus.Fields{
		"delivered": delivered,
		"pruned":    len(dead),
	}).Debug("Broadcast complete")
}
