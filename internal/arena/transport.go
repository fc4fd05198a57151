package arena

// Transport is the outbound side of the client connection layer. Rooms are
// keyed by session UUID.
type Transport interface {
	Broadcast(room, event string, payload any)
	Emit(participantID, event string, payload any)
	JoinRoom(participantID, room string)
	LeaveRoom(participantID, room string)
	CloseRoom(room string)
}

const (
	EventWaitingRoom        = "waiting_room"
	EventWaitingRoomTimeout = "waiting_room_timeout"
	EventStartGame          = "start_game"
	EventEnvironmentState   = "environment_state"
	EventRequestPressedKeys = "request_pressed_keys"
	EventGameReset          = "game_reset"
	EventEndGame            = "end_game"
	EventEndLobby           = "end_lobby"
	EventCreateGameFailed   = "create_game_failed"
	EventUpdatePageText     = "update_game_page_text"
)

// End reasons carried by end_game.
const (
	ReasonComplete       = "complete"
	ReasonSessionError   = "session_error"
	ReasonResetTimeout   = "reset_timeout"
	ReasonAllPlayersLeft = "all_players_left"
	ReasonPartnerLeft    = "partner_left"
	ReasonServerShutdown = "server_shutdown"
)

const (
	ErrCodeServerAtCapacity = "server_at_capacity"
	ErrCodeSessionError     = "session_error"
)

const partnerLeftMessage = "You were matched with a partner but your game ended because the other player disconnected."

type WaitingRoomPayload struct {
	CurNumPlayers int   `json:"cur_num_players"`
	PlayersNeeded int   `json:"players_needed"`
	MSRemaining   int64 `json:"ms_remaining"`
}

type StartGamePayload struct {
	SceneMetadata map[string]any `json:"scene_metadata"`
}

type EnvironmentStatePayload struct {
	GameStateObjects any    `json:"game_state_objects,omitempty"`
	GameImageBinary  []byte `json:"game_image_binary,omitempty"`
	Step             int    `json:"step"`
	HUDText          string `json:"hud_text"`
}

type GameResetPayload struct {
	Timeout int64          `json:"timeout"`
	Config  map[string]any `json:"config"`
	Room    string         `json:"room"`
}

type EndGamePayload struct {
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

type CreateGameFailedPayload struct {
	Error string `json:"error"`
}

type PageTextPayload struct {
	GamePageText string `json:"game_page_text"`
}

type EmptyPayload struct{}
