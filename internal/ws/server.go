package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"interactive-gym/internal/arena"
	"interactive-gym/internal/stream"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Coordinator is the session core the hub forwards client messages to.
type Coordinator interface {
	JoinOrCreate(ctx context.Context, participantID string) (arena.JoinResult, error)
	Leave(ctx context.Context, participantID string) (arena.ExitStatus, error)
	SubmitKeys(participantID, sessionUUID string, keys []string) (bool, error)
	AckReset(participantID, room string) error
	RecordPing(participantID string, pingMS int, inFocus bool) error
}

type Options struct {
	ReadLimit           int64
	InputRate           float64
	InputBurst          int
	MaxLatency          int
	MinPingMeasurements int
	SendBuffer          int
	NewID               func() string
}

type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
}

// Server upgrades browser connections and implements arena.Transport over
// them. Every room broadcast is also kept in the room's spectator buffer.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader
	rooms    *stream.Rooms
	seq      atomic.Uint64

	mu      sync.RWMutex
	coord   Coordinator
	clients map[string]*Client
	members map[string]map[string]struct{}
}

func NewServer(opts Options, rooms *stream.Rooms) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.InputBurst <= 0 {
		opts.InputBurst = 1
	}
	if rooms == nil {
		rooms = stream.NewRooms(stream.DefaultBufferSize)
	}
	return &Server{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		rooms:    rooms,
		clients:  map[string]*Client{},
		members:  map[string]map[string]struct{}{},
	}
}

// SetCoordinator wires the session core once both sides exist.
func (s *Server) SetCoordinator(c Coordinator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coord = c
}

func (s *Server) coordinator() Coordinator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coord
}

func (s *Server) Rooms() *stream.Rooms { return s.rooms }

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if s.opts.ReadLimit > 0 {
		conn.SetReadLimit(s.opts.ReadLimit)
	}
	client := &Client{
		id:   s.newID(),
		conn: conn,
		send: make(chan []byte, s.opts.SendBuffer),
	}
	if s.opts.InputRate > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(s.opts.InputRate), s.opts.InputBurst)
	}
	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()
	metricConnectionsActive.Add(1)
	log.Debug().Str("participant_id", client.id).Str("remote_addr", r.RemoteAddr).Msg("ws_connected")

	s.sendTo(client, EventServerSession, ServerSessionPayload{SessionID: client.id})
	go s.writeLoop(client)
	s.readLoop(client)
}

func (s *Server) newID() string {
	if s.opts.NewID != nil {
		return s.opts.NewID()
	}
	return "p" + strconv.FormatUint(s.seq.Add(1), 10)
}

func (s *Server) readLoop(c *Client) {
	defer func() {
		s.unregister(c)
		_ = c.conn.Close()
	}()
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in InboundMessage
		if err := json.Unmarshal(msg, &in); err != nil {
			log.Debug().Err(err).Str("participant_id", c.id).Msg("ws_bad_message")
			continue
		}
		s.handle(c, in)
	}
}

func (s *Server) handle(c *Client, in InboundMessage) {
	coord := s.coordinator()
	if coord == nil {
		return
	}
	if in.SessionID != "" && in.SessionID != c.id {
		s.sendTo(c, EventInvalidSession, ServerSessionPayload{SessionID: c.id})
		return
	}
	ctx := context.Background()
	switch in.Type {
	case MsgJoin:
		if _, err := coord.JoinOrCreate(ctx, c.id); err != nil {
			code := "join_failed"
			if errors.Is(err, arena.ErrAlreadyInSession) {
				code = "already_in_session"
			} else if errors.Is(err, arena.ErrShuttingDown) {
				code = "server_shutting_down"
			}
			log.Debug().Err(err).Str("participant_id", c.id).Msg("join_rejected")
			s.sendTo(c, EventJoinFailed, JoinFailedPayload{Error: code})
		}
	case MsgLeaveGame:
		s.leave(coord, c.id)
	case MsgSendPressedKeys:
		if c.limiter != nil && !c.limiter.Allow() {
			metricInputDropped.Add(1)
			return
		}
		if _, err := coord.SubmitKeys(c.id, "", in.PressedKeys); err != nil {
			log.Debug().Err(err).Str("participant_id", c.id).Msg("pressed_keys_ignored")
		}
	case MsgResetComplete:
		if err := coord.AckReset(c.id, in.Room); err != nil {
			log.Warn().Err(err).Str("participant_id", c.id).Str("room", in.Room).Msg("reset_ack_ignored")
		}
	case MsgPing:
		ping, focus := 0, true
		if in.PingMS != nil {
			ping = *in.PingMS
		}
		if in.DocumentInFocus != nil {
			focus = *in.DocumentInFocus
		}
		_ = coord.RecordPing(c.id, ping, focus)
		s.sendTo(c, EventPong, PongPayload{MaxLatency: s.opts.MaxLatency, MinPingMeasurements: s.opts.MinPingMeasurements})
	default:
		log.Debug().Str("participant_id", c.id).Str("type", in.Type).Msg("ws_unknown_message")
	}
}

func (s *Server) leave(coord Coordinator, id string) {
	status, err := coord.Leave(context.Background(), id)
	if err != nil {
		if !errors.Is(err, arena.ErrNotInSession) {
			log.Error().Err(err).Str("participant_id", id).Msg("leave_failed")
		}
		return
	}
	log.Debug().Str("participant_id", id).Str("exit_status", status.String()).Msg("ws_left_game")
}

func (s *Server) writeLoop(c *Client) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = c.conn.Close()
			for range c.send {
			}
			return
		}
	}
}

func (s *Server) unregister(c *Client) {
	if coord := s.coordinator(); coord != nil {
		s.leave(coord, c.id)
	}
	s.mu.Lock()
	if s.clients[c.id] == c {
		delete(s.clients, c.id)
	}
	for _, m := range s.members {
		delete(m, c.id)
	}
	s.mu.Unlock()
	metricConnectionsActive.Add(-1)
	safeClose(c.send)
	log.Debug().Str("participant_id", c.id).Msg("ws_disconnected")
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: payload, ServerTS: time.Now().UnixMilli()})
}

func (s *Server) sendTo(c *Client, event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("ws_encode_failed")
		return
	}
	if !safeSend(c.send, msg) {
		metricSendDropped.Add(1)
	}
}

func (s *Server) Broadcast(room, event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Str("session_uuid", room).Msg("ws_encode_failed")
		return
	}
	if buf, ok := s.rooms.Get(room); ok {
		buf.Append(event, payload)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.members[room] {
		if c := s.clients[id]; c != nil && !safeSend(c.send, msg) {
			metricSendDropped.Add(1)
		}
	}
}

func (s *Server) Emit(participantID, event string, payload any) {
	s.mu.RLock()
	c := s.clients[participantID]
	s.mu.RUnlock()
	if c == nil {
		return
	}
	s.sendTo(c, event, payload)
}

func (s *Server) JoinRoom(participantID, room string) {
	s.rooms.Open(room)
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.members[room]
	if m == nil {
		m = map[string]struct{}{}
		s.members[room] = m
	}
	m[participantID] = struct{}{}
}

func (s *Server) LeaveRoom(participantID, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[room], participantID)
}

func (s *Server) CloseRoom(room string) {
	s.mu.Lock()
	delete(s.members, room)
	s.mu.Unlock()
	s.rooms.Close(room)
}

func safeClose(ch chan []byte) {
	defer func() {
		_ = recover()
	}()
	close(ch)
}

// safeSend never blocks the game loop; a full or closed queue drops msg.
func safeSend(ch chan []byte, msg []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}
