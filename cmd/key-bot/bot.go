package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"

	"interactive-gym/internal/arena"
	"interactive-gym/internal/config"
	"interactive-gym/internal/ws"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type bot struct {
	cfg    config.BotConfig
	rnd    *rand.Rand
	dialer *websocket.Dialer
}

func newBot(cfg config.BotConfig) *bot {
	return &bot{
		cfg:    cfg,
		rnd:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		dialer: websocket.DefaultDialer,
	}
}

// playOnce connects, joins a game and plays until the server ends it. It
// returns the end reason.
func (b *bot) playOnce(ctx context.Context) (string, error) {
	conn, _, err := b.dialer.DialContext(ctx, b.cfg.WSURL, nil)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", b.cfg.WSURL, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var sessionID string
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return "interrupted", nil
			}
			return "", fmt.Errorf("read: %w", err)
		}
		if env.Event == ws.EventServerSession {
			var p ws.ServerSessionPayload
			if err := json.Unmarshal(env.Data, &p); err != nil {
				return "", fmt.Errorf("decode server_session: %w", err)
			}
			sessionID = p.SessionID
			log.Debug().Str("bot", b.cfg.Name).Str("participant_id", sessionID).Msg("bot_connected")
		}
		replies, reason, err := b.respond(sessionID, env)
		if err != nil {
			return "", err
		}
		for _, msg := range replies {
			if err := conn.WriteJSON(msg); err != nil {
				return "", fmt.Errorf("write %s: %w", msg.Type, err)
			}
		}
		if reason != "" {
			return reason, nil
		}
	}
}

// respond maps one server frame to the frames the bot sends back. A non-empty
// reason means the game is over.
func (b *bot) respond(sessionID string, env envelope) ([]ws.InboundMessage, string, error) {
	switch env.Event {
	case ws.EventServerSession:
		return []ws.InboundMessage{{Type: ws.MsgJoin}}, "", nil
	case arena.EventRequestPressedKeys, arena.EventEnvironmentState:
		return []ws.InboundMessage{{
			Type:        ws.MsgSendPressedKeys,
			SessionID:   sessionID,
			PressedKeys: b.pickKeys(),
		}}, "", nil
	case arena.EventGameReset:
		var p arena.GameResetPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, "", fmt.Errorf("decode game_reset: %w", err)
		}
		return []ws.InboundMessage{{Type: ws.MsgResetComplete, SessionID: sessionID, Room: p.Room}}, "", nil
	case arena.EventEndGame:
		var p arena.EndGamePayload
		_ = json.Unmarshal(env.Data, &p)
		if p.Reason == "" {
			p.Reason = "finished"
		}
		return nil, p.Reason, nil
	case arena.EventEndLobby:
		return nil, "lobby_closed", nil
	case arena.EventWaitingRoomTimeout:
		return nil, "waiting_room_timeout", nil
	case arena.EventCreateGameFailed:
		var p arena.CreateGameFailedPayload
		_ = json.Unmarshal(env.Data, &p)
		return nil, "", errors.New("create game failed: " + p.Error)
	case ws.EventJoinFailed:
		var p ws.JoinFailedPayload
		_ = json.Unmarshal(env.Data, &p)
		return nil, "", errors.New("join failed: " + p.Error)
	}
	return nil, "", nil
}

// pickKeys holds nothing, one key, or two keys at random.
func (b *bot) pickKeys() []string {
	keys := b.cfg.Keys
	if len(keys) == 0 {
		return nil
	}
	n := b.rnd.IntN(3)
	if n > len(keys) {
		n = len(keys)
	}
	out := make([]string, 0, n)
	for _, i := range b.rnd.Perm(len(keys))[:n] {
		out = append(out, keys[i])
	}
	return out
}
