package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"interactive-gym/internal/arena"
	"interactive-gym/internal/config"
	"interactive-gym/internal/ws"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, event string, data any) envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return envelope{Event: event, Data: raw}
}

func TestRespond(t *testing.T) {
	b := newBot(config.BotConfig{Keys: []string{"ArrowLeft", "ArrowRight"}})

	out, reason, err := b.respond("", frame(t, ws.EventServerSession, ws.ServerSessionPayload{SessionID: "p1"}))
	require.NoError(t, err)
	assert.Empty(t, reason)
	require.Len(t, out, 1)
	assert.Equal(t, ws.MsgJoin, out[0].Type)

	out, _, err = b.respond("p1", frame(t, arena.EventRequestPressedKeys, arena.EmptyPayload{}))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ws.MsgSendPressedKeys, out[0].Type)
	assert.Equal(t, "p1", out[0].SessionID)
	assert.LessOrEqual(t, len(out[0].PressedKeys), 2)

	out, _, err = b.respond("p1", frame(t, arena.EventGameReset, arena.GameResetPayload{Room: "room-9", Timeout: 3000}))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ws.MsgResetComplete, out[0].Type)
	assert.Equal(t, "room-9", out[0].Room)

	_, reason, err = b.respond("p1", frame(t, arena.EventEndGame, arena.EndGamePayload{Reason: arena.ReasonPartnerLeft}))
	require.NoError(t, err)
	assert.Equal(t, arena.ReasonPartnerLeft, reason)

	_, reason, err = b.respond("p1", frame(t, arena.EventEndGame, arena.EndGamePayload{}))
	require.NoError(t, err)
	assert.Equal(t, "finished", reason)

	_, _, err = b.respond("p1", frame(t, ws.EventJoinFailed, ws.JoinFailedPayload{Error: "already_in_session"}))
	assert.ErrorContains(t, err, "already_in_session")
}

func TestPickKeysStaysWithinConfiguredKeys(t *testing.T) {
	b := newBot(config.BotConfig{Keys: []string{"a", "b", "c"}})
	for i := 0; i < 50; i++ {
		keys := b.pickKeys()
		assert.LessOrEqual(t, len(keys), 2)
		for _, k := range keys {
			assert.Contains(t, b.cfg.Keys, k)
		}
	}
	assert.Nil(t, newBot(config.BotConfig{}).pickKeys())
}

func TestPlayOnce(t *testing.T) {
	upgrader := websocket.Upgrader{}
	got := make(chan ws.InboundMessage, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		send := func(event string, data any) {
			_ = conn.WriteJSON(ws.Envelope{Event: event, Data: data, ServerTS: time.Now().UnixMilli()})
		}
		read := func() {
			var msg ws.InboundMessage
			if conn.ReadJSON(&msg) == nil {
				got <- msg
			}
		}
		send(ws.EventServerSession, ws.ServerSessionPayload{SessionID: "p7"})
		read()
		send(arena.EventStartGame, arena.StartGamePayload{})
		send(arena.EventRequestPressedKeys, arena.EmptyPayload{})
		read()
		send(arena.EventGameReset, arena.GameResetPayload{Room: "r1"})
		read()
		send(arena.EventEndGame, arena.EndGamePayload{Reason: "done"})
	}))
	t.Cleanup(srv.Close)

	b := newBot(config.BotConfig{WSURL: "ws" + strings.TrimPrefix(srv.URL, "http"), Keys: []string{"ArrowLeft"}})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	reason, err := b.playOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, "done", reason)

	close(got)
	var types []string
	for msg := range got {
		types = append(types, msg.Type)
		if msg.Type != ws.MsgJoin {
			assert.Equal(t, "p7", msg.SessionID)
		}
	}
	assert.Equal(t, []string{ws.MsgJoin, ws.MsgSendPressedKeys, ws.MsgResetComplete}, types)
}
