package ws

import (
	"interactive-gym/internal/arena"

	"github.com/invopop/jsonschema"
)

const (
	MsgJoin            = "join"
	MsgLeaveGame       = "leave_game"
	MsgSendPressedKeys = "send_pressed_keys"
	MsgResetComplete   = "reset_complete"
	MsgPing            = "ping"
)

const (
	EventServerSession  = "server_session"
	EventInvalidSession = "invalid_session"
	EventPong           = "pong"
	EventJoinFailed     = "join_failed"
)

// InboundMessage is every client frame. Type selects which fields apply.
type InboundMessage struct {
	Type            string   `json:"type" jsonschema:"enum=join,enum=leave_game,enum=send_pressed_keys,enum=reset_complete,enum=ping"`
	SessionID       string   `json:"session_id,omitempty"`
	PressedKeys     []string `json:"pressed_keys,omitempty"`
	Room            string   `json:"room,omitempty"`
	PingMS          *int     `json:"ping_ms,omitempty"`
	DocumentInFocus *bool    `json:"document_in_focus,omitempty"`
}

// Envelope wraps every server frame.
type Envelope struct {
	Event    string `json:"event" jsonschema:"enum=server_session,enum=invalid_session,enum=pong,enum=join_failed,enum=waiting_room,enum=waiting_room_timeout,enum=start_game,enum=environment_state,enum=request_pressed_keys,enum=game_reset,enum=end_game,enum=end_lobby,enum=create_game_failed,enum=update_game_page_text"`
	Data     any    `json:"data"`
	ServerTS int64  `json:"server_ts"`
}

type ServerSessionPayload struct {
	SessionID string `json:"session_id"`
}

type PongPayload struct {
	MaxLatency          int `json:"max_latency"`
	MinPingMeasurements int `json:"min_ping_measurements"`
}

type JoinFailedPayload struct {
	Error string `json:"error"`
}

// outboundEvents is kept in step with the Envelope enum.
var outboundEvents = []string{
	EventServerSession,
	EventInvalidSession,
	EventPong,
	EventJoinFailed,
	arena.EventWaitingRoom,
	arena.EventWaitingRoomTimeout,
	arena.EventStartGame,
	arena.EventEnvironmentState,
	arena.EventRequestPressedKeys,
	arena.EventGameReset,
	arena.EventEndGame,
	arena.EventEndLobby,
	arena.EventCreateGameFailed,
	arena.EventUpdatePageText,
}

// ProtocolSchema describes the websocket protocol: a frame is either an
// inbound message or an outbound envelope.
func ProtocolSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{AllowAdditionalProperties: true, DoNotReference: true}
	inbound := r.Reflect(&InboundMessage{})
	outbound := r.Reflect(&Envelope{})
	for _, s := range []*jsonschema.Schema{inbound, outbound} {
		s.Version = ""
		s.ID = ""
	}
	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          "ws_v1.schema.json",
		Title:       "interactive-gym websocket protocol v1",
		Description: "Client frames carry a type; server frames are event envelopes.",
		AnyOf:       []*jsonschema.Schema{inbound, outbound},
	}
}
