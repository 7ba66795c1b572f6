package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pairpad-server/core"
	"pairpad-server/metrics"
	"pairpad-server/rooms"
)

const (
	defaultSendTimeout    = 5 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultStoreTimeout   = 5 * time.Second
	defaultMaxMessageSize = 1 << 20
)

type Options struct {
	// SendTimeout bounds each write; a slower peer is pruned.
	SendTimeout    time.Duration
	PongWait       time.Duration
	StoreTimeout   time.Duration
	MaxMessageSize int64
	// AllowedOrigins lists accepted Origin headers. Empty or "*" accepts all.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.SendTimeout <= 0 {
		o.SendTimeout = defaultSendTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = defaultStoreTimeout
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	return o
}

// Handler upgrades /ws/{roomId} requests and runs one session per connection.
type Handler struct {
	store    core.RoomStore
	hub      *rooms.Broadcaster
	opts     Options
	upgrader websocket.Upgrader

	closing  atomic.Bool
	sessions sync.WaitGroup
}

func NewHandler(store core.RoomStore, hub *rooms.Broadcaster, opts Options) *Handler {
	opts = opts.withDefaults()
	return &Handler{
		store: store,
		hub:   hub,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
	}
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// ServeWS serves GET /ws/{roomId}. It returns once the session has closed.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Room id is required"})
		return
	}
	if h.closing.Load() {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"error": "Server is shutting down"})
		return
	}

	h.sessions.Add(1)
	defer h.sessions.Done()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		logrus.WithError(err).WithField("room_id", roomID).Warn("WebSocket upgrade failed")
		return
	}

	newSession(h, roomID, newWSConn(ws, h.opts.SendTimeout)).run()
}

// Shutdown refuses new upgrades and closes every live connection. Each
// session then runs its normal leave path; Wait blocks until they are done.
func (h *Handler) Shutdown() {
	h.closing.Store(true)
	table := h.hub.Table()
	for roomID := range table.Active() {
		for _, c := range table.Snapshot(roomID) {
			_ = c.Close()
		}
	}
}

// Wait blocks until every session has returned or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type sessionState int32

const (
	stateConnecting sessionState = iota
	stateActive
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type session struct {
	h      *Handler
	roomID string
	conn   *wsConn
	log    *logrus.Entry
	state  atomic.Int32
	done   chan struct{}
}

func newSession(h *Handler, roomID string, conn *wsConn) *session {
	return &session{
		h:      h,
		roomID: roomID,
		conn:   conn,
		log: logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"conn_id": conn.ID(),
		}),
		done: make(chan struct{}),
	}
}

func (s *session) currentState() sessionState {
	return sessionState(s.state.Load())
}

func (s *session) transition(from, to sessionState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *session) run() {
	defer s.close()
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("Session panicked, closing connection")
		}
	}()

	if err := s.h.hub.Join(s.roomID, s.conn, s.greet); err != nil {
		s.log.WithError(err).Warn("Failed to send initial snapshot")
		return
	}
	if !s.transition(stateConnecting, stateActive) {
		return
	}
	s.log.Info("Session active")

	go s.keepalive()
	s.readLoop()
}

// greet sends the room snapshot to this connection only.
func (s *session) greet() error {
	data, err := json.Marshal(core.NewInitMessage(s.loadSnapshot()))
	if err != nil {
		return err
	}
	return s.conn.Send(data)
}

func (s *session) loadSnapshot() *core.Room {
	ctx, cancel := context.WithTimeout(context.Background(), s.h.opts.StoreTimeout)
	defer cancel()

	room, err := s.h.store.GetRoom(ctx, s.roomID)
	if err != nil {
		if errors.Is(err, core.ErrRoomNotFound) {
			s.log.Debug("Room not stored, sending empty snapshot")
		} else {
			metrics.StoreErrors.WithLabelValues("get").Inc()
			s.log.WithError(err).Warn("Failed to load room, sending empty snapshot")
		}
		return core.DefaultSnapshot(s.roomID)
	}
	return room
}

func (s *session) readLoop() {
	ws := s.conn.ws
	pongWait := s.h.opts.PongWait

	ws.SetReadLimit(s.h.opts.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.WithError(err).Warn("Connection closed unexpectedly")
			} else {
				s.log.WithError(err).Debug("Connection closed")
			}
			return
		}
		s.dispatch(data)
	}
}

func (s *session) dispatch(data []byte) {
	in, err := core.DecodeInbound(data)
	if err != nil {
		metrics.InboundMessages.WithLabelValues("malformed").Inc()
		s.log.WithError(err).Debug("Ignoring malformed frame")
		return
	}

	switch in.Type {
	case core.TypeCodeUpdate:
		metrics.InboundMessages.WithLabelValues(in.Type).Inc()
		s.persist(in.Code)
		s.broadcast(core.NewCodeUpdate(in))
	case core.TypeCursorUpdate:
		metrics.InboundMessages.WithLabelValues(in.Type).Inc()
		s.broadcast(core.NewCursorUpdate(in))
	default:
		metrics.InboundMessages.WithLabelValues("unknown").Inc()
		s.log.WithField("type", in.Type).Debug("Ignoring unknown message type")
	}
}

// persist writes the latest code. Failures never reach the client and never
// block the broadcast that follows.
func (s *session) persist(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.h.opts.StoreTimeout)
	defer cancel()

	if err := s.h.store.UpdateRoomCode(ctx, s.roomID, code); err != nil {
		if errors.Is(err, core.ErrRoomNotFound) {
			s.log.Debug("Room not stored, code update not persisted")
			return
		}
		metrics.StoreErrors.WithLabelValues("update").Inc()
		s.log.WithError(err).Warn("Failed to persist code update")
	}
}

func (s *session) broadcast(msg any) {
	if err := s.h.hub.Broadcast(s.roomID, msg, s.conn); err != nil {
		s.log.WithError(err).Error("Failed to broadcast message")
	}
}

func (s *session) keepalive() {
	ticker := time.NewTicker(s.h.opts.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.ping(); err != nil {
				s.log.WithError(err).Debug("Ping failed, closing connection")
				_ = s.conn.Close()
				return
			}
		}
	}
}

// close is the single exit path for every session, whatever ended it.
func (s *session) close() {
	for {
		cur := s.currentState()
		if cur == stateClosed {
			return
		}
		if s.transition(cur, stateClosed) {
			break
		}
	}
	close(s.done)

	s.h.hub.Table().Deregister(s.roomID, s.conn)
	_ = s.conn.Close()
	s.h.hub.Notify(s.roomID, core.NewUserLeft(), s.conn)
	s.log.Info("Session closed")
}
