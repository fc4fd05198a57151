package arena

import (
	"context"
	"sync"
	"testing"
	"time"

	"interactive-gym/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinFillsLobbyThenStarts(t *testing.T) {
	h := newHarness(t, testConfig(humans(2)), 4, 0)

	first := h.join(t, "p1")
	assert.Equal(t, JoinWaiting, first.Status)
	assert.Equal(t, game.Role("agent-0"), first.Role)
	assert.Equal(t, time.Minute, first.Remaining)

	waiting := h.tr.broadcastsOf(first.SessionUUID, EventWaitingRoom)
	require.Len(t, waiting, 1)
	assert.Equal(t, WaitingRoomPayload{CurNumPlayers: 1, PlayersNeeded: 1, MSRemaining: 60000}, waiting[0])
	assert.Equal(t, Capacity{Max: 4, InUse: 1, Free: 3, Waiting: 1, Active: 0, Participants: 1}, h.c.Capacity())

	second := h.join(t, "p2")
	assert.Equal(t, JoinStarted, second.Status)
	assert.Equal(t, first.SessionUUID, second.SessionUUID)
	assert.Equal(t, game.Role("agent-1"), second.Role)
	assert.Equal(t, 0, h.c.Capacity().Waiting)
	assert.Equal(t, 1, h.c.Capacity().Active)
	assert.Len(t, h.tr.broadcastsOf(first.SessionUUID, EventStartGame), 1)
	assert.Equal(t, 2, h.tr.members(first.SessionUUID))

	require.Eventually(t, func() bool {
		return len(h.tr.broadcastsOf(first.SessionUUID, EventEnvironmentState)) > 2
	}, eventually, poll)
	assert.NotEmpty(t, h.tr.broadcastsOf(first.SessionUUID, EventRequestPressedKeys))
	assert.Equal(t, []string{"p1", "p2"}, h.hooks.joins)

	snap, ok := h.c.Snapshot(first.SessionUUID)
	require.True(t, ok)
	assert.Equal(t, "p1", snap.Humans["agent-0"])
	assert.Equal(t, "p2", snap.Humans["agent-1"])
}

func TestJoinRejectsParticipantAlreadyInSession(t *testing.T) {
	h := newHarness(t, testConfig(humans(2)), 4, 0)
	h.join(t, "p1")

	_, err := h.c.JoinOrCreate(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrAlreadyInSession)
	assert.Equal(t, 1, h.slots.InUse())
}

func TestJoinAtCapacityFailsOnlyTheNewcomer(t *testing.T) {
	h := newHarness(t, testConfig(humans(1)), 1, 0)
	first := h.join(t, "p1")
	require.Equal(t, JoinStarted, first.Status)

	res := h.join(t, "p2")
	assert.Equal(t, JoinCreateGameFailed, res.Status)
	assert.Equal(t, []any{CreateGameFailedPayload{Error: ErrCodeServerAtCapacity}}, h.tr.emitsTo("p2", EventCreateGameFailed))
	_, bound := h.c.Participant("p2")
	assert.False(t, bound)

	require.Eventually(t, func() bool {
		snap, ok := h.c.Snapshot(first.SessionUUID)
		return ok && snap.Status == game.StatusActive
	}, eventually, poll)
}

func TestLeaveActiveGameAlone(t *testing.T) {
	h := newHarness(t, testConfig(humans(1)), 1, 0)
	res := h.join(t, "p1")
	require.Eventually(t, func() bool {
		return len(h.tr.broadcastsOf(res.SessionUUID, EventEnvironmentState)) > 0
	}, eventually, poll)

	status, err := h.c.Leave(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, ExitActiveNoPlayers, status)
	assert.Equal(t, 1, h.slots.Free())
	assert.Equal(t, 1, h.hooks.get(&h.hooks.gameEnds))
	assert.Equal(t, []any{EndGamePayload{Reason: ReasonAllPlayersLeft}}, h.tr.broadcastsOf(res.SessionUUID, EventEndGame))
	_, ok := h.c.Snapshot(res.SessionUUID)
	assert.False(t, ok)

	// the slot is immediately reusable
	again := h.join(t, "p2")
	assert.Equal(t, JoinStarted, again.Status)
	assert.Equal(t, res.SlotID, again.SlotID)
}

func TestLeaveActiveGameWithPartner(t *testing.T) {
	h := newHarness(t, testConfig(humans(2)), 2, 0)
	h.join(t, "p1")
	res := h.join(t, "p2")
	require.Equal(t, JoinStarted, res.Status)

	status, err := h.c.Leave(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, ExitActiveWithOthers, status)

	ends := h.tr.broadcastsOf(res.SessionUUID, EventEndGame)
	require.Len(t, ends, 1)
	assert.Equal(t, partnerLeftMessage, ends[0].(EndGamePayload).Message)
	end := h.hooks.ending(t)
	assert.Equal(t, game.StatusActive, end.Status)
	assert.Equal(t, ReasonPartnerLeft, end.EndReason)
	_, bound := h.c.Participant("p2")
	assert.False(t, bound)
	assert.Equal(t, 0, h.tr.members(res.SessionUUID))
	assert.Equal(t, 2, h.slots.Free())

	_, err = h.c.Leave(context.Background(), "p2")
	assert.ErrorIs(t, err, ErrNotInSession)
}

func TestLeaveLobbyAlone(t *testing.T) {
	h := newHarness(t, testConfig(humans(2)), 2, 0)
	res := h.join(t, "p1")

	status, err := h.c.Leave(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, ExitInactiveNoPlayers, status)
	assert.Len(t, h.tr.emitsTo("p1", EventEndLobby), 1)
	assert.Empty(t, h.tr.broadcastsOf(res.SessionUUID, EventEndGame))
	assert.Equal(t, 0, h.hooks.get(&h.hooks.gameEnds))
	assert.Equal(t, Capacity{Max: 2, Free: 2}, h.c.Capacity())
}

func TestLeaveLobbyWithOthersKeepsWaiting(t *testing.T) {
	h := newHarness(t, testConfig(humans(3)), 2, 0)
	res := h.join(t, "p1")
	h.join(t, "p2")

	status, err := h.c.Leave(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, ExitInactiveWithOthers, status)

	waiting := h.tr.broadcastsOf(res.SessionUUID, EventWaitingRoom)
	last := waiting[len(waiting)-1].(WaitingRoomPayload)
	assert.Equal(t, 1, last.CurNumPlayers)
	assert.Equal(t, 2, last.PlayersNeeded)

	// the freed role is handed to the next arrival
	next := h.join(t, "p3")
	assert.Equal(t, res.SessionUUID, next.SessionUUID)
	assert.Equal(t, game.Role("agent-0"), next.Role)
	assert.Equal(t, 1, h.slots.InUse())
}

func TestLobbyExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	cfg := testConfig(humans(2))
	cfg.WaitroomTimeout = time.Second
	h := newHarness(t, cfg, 1, 0, WithClock(clock))
	res := h.join(t, "p1")

	assert.Equal(t, 0, h.c.ExpireLobbies(now.Add(500*time.Millisecond)))
	assert.Equal(t, 1, h.c.ExpireLobbies(now.Add(2*time.Second)))

	assert.Len(t, h.tr.broadcastsOf(res.SessionUUID, EventWaitingRoomTimeout), 1)
	assert.Equal(t, 1, h.hooks.get(&h.hooks.timeouts))
	_, bound := h.c.Participant("p1")
	assert.False(t, bound)
	assert.Equal(t, 1, h.slots.Free())
	assert.Contains(t, h.tr.closed, res.SessionUUID)
}

func TestJoinSweepsExpiredLobbies(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	cfg := testConfig(humans(2))
	cfg.WaitroomTimeout = time.Second
	h := newHarness(t, cfg, 1, 0, WithClock(clock))
	stale := h.join(t, "p1")

	clockMu.Lock()
	now = now.Add(5 * time.Second)
	clockMu.Unlock()

	fresh := h.join(t, "p2")
	assert.Equal(t, JoinWaiting, fresh.Status)
	assert.NotEqual(t, stale.SessionUUID, fresh.SessionUUID)
	_, bound := h.c.Participant("p1")
	assert.False(t, bound)
}

func TestSubmitKeysRoutesToSession(t *testing.T) {
	h := newHarness(t, testConfig(humans(1)), 1, 0)
	res := h.join(t, "p1")

	_, err := h.c.SubmitKeys("ghost", "", []string{"ArrowLeft"})
	assert.ErrorIs(t, err, ErrNotInSession)
	_, err = h.c.SubmitKeys("p1", "other-session", []string{"ArrowLeft"})
	assert.ErrorIs(t, err, ErrSessionMismatch)

	ok, err := h.c.SubmitKeys("p1", res.SessionUUID, []string{"Space"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		_, _ = h.c.SubmitKeys("p1", res.SessionUUID, []string{"ArrowRight"})
		return h.env(0).sawAction(2)
	}, eventually, poll)
}

func TestRecordPing(t *testing.T) {
	h := newHarness(t, testConfig(humans(2)), 1, 0)
	res := h.join(t, "p1")

	require.NoError(t, h.c.RecordPing("p1", 42, false))
	info, ok := h.c.Participant("p1")
	require.True(t, ok)
	assert.Equal(t, ParticipantInfo{SessionUUID: res.SessionUUID, Role: "agent-0", PingMS: 42, InFocus: false, LastSeen: info.LastSeen}, info)
	assert.ErrorIs(t, h.c.RecordPing("ghost", 1, true), ErrNotInSession)
}

func TestSessionEndsAfterEpisodeBudget(t *testing.T) {
	h := newHarness(t, testConfig(humans(1)), 1, 3)
	res := h.join(t, "p1")

	require.Eventually(t, func() bool {
		return h.slots.Free() == 1
	}, eventually, poll)
	assert.Equal(t, []any{EndGamePayload{Reason: ReasonComplete}}, h.tr.broadcastsOf(res.SessionUUID, EventEndGame))
	assert.Equal(t, 1, h.hooks.get(&h.hooks.episodeStarts))
	assert.Equal(t, 1, h.hooks.get(&h.hooks.episodeEnds))
	assert.Equal(t, 3, h.hooks.get(&h.hooks.ticks))
	assert.Equal(t, 1, h.hooks.get(&h.hooks.gameEnds))
	assert.Equal(t, 1, h.slots.Free())
	_, bound := h.c.Participant("p1")
	assert.False(t, bound)

	end := h.hooks.ending(t)
	assert.Equal(t, game.StatusDone, end.Status)
	assert.Equal(t, ReasonComplete, end.EndReason)
	assert.Equal(t, 1, end.EpisodeNum)
}

func TestLeaveAfterFinalTickEndsAsComplete(t *testing.T) {
	h := newHarness(t, testConfig(humans(2)), 1, 3)
	left := make(chan ExitStatus, 1)
	h.hooks.mu.Lock()
	h.hooks.afterEpisode = func(*game.Session) {
		status, err := h.c.Leave(context.Background(), "p1")
		if err == nil {
			left <- status
		}
	}
	h.hooks.mu.Unlock()

	h.join(t, "p1")
	res := h.join(t, "p2")
	require.Equal(t, JoinStarted, res.Status)

	select {
	case status := <-left:
		assert.Equal(t, ExitInactiveWithOthers, status)
	case <-time.After(eventually):
		t.Fatal("leave never ran")
	}
	require.Eventually(t, func() bool { return h.slots.Free() == 1 }, eventually, poll)
	assert.Equal(t, []any{EndGamePayload{Reason: ReasonComplete}}, h.tr.broadcastsOf(res.SessionUUID, EventEndGame))
	end := h.hooks.ending(t)
	assert.Equal(t, game.StatusDone, end.Status)
	assert.Equal(t, ReasonComplete, end.EndReason)
}

func TestResetWaitsForEveryAck(t *testing.T) {
	cfg := testConfig(humans(2))
	cfg.Session.EpisodeBudget = 2
	h := newHarness(t, cfg, 1, 2)
	h.join(t, "p1")
	res := h.join(t, "p2")

	require.Eventually(t, func() bool {
		return len(h.tr.broadcastsOf(res.SessionUUID, EventGameReset)) == 1
	}, eventually, poll)
	reset := h.tr.broadcastsOf(res.SessionUUID, EventGameReset)[0].(GameResetPayload)
	assert.Equal(t, int64(3000), reset.Timeout)
	assert.Equal(t, res.SessionUUID, reset.Room)

	require.NoError(t, h.c.AckReset("p1", res.SessionUUID))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.env(0).resetCount())
	snap, _ := h.c.Snapshot(res.SessionUUID)
	assert.Equal(t, game.StatusResetPending, snap.Status)

	assert.ErrorIs(t, h.c.AckReset("p2", "wrong-room"), ErrSessionMismatch)
	require.NoError(t, h.c.AckReset("p2", res.SessionUUID))

	require.Eventually(t, func() bool {
		return len(h.tr.broadcastsOf(res.SessionUUID, EventEndGame)) == 1
	}, eventually, poll)
	assert.Equal(t, 2, h.env(0).resetCount())
	assert.Equal(t, 2, h.hooks.get(&h.hooks.episodeStarts))
	assert.Equal(t, 2, h.hooks.get(&h.hooks.episodeEnds))
	assert.Equal(t, 1, h.hooks.get(&h.hooks.gameEnds))
}

func TestResetAckDeadlineEndsGame(t *testing.T) {
	cfg := testConfig(humans(1))
	cfg.Session.EpisodeBudget = 2
	cfg.ResetAckDeadline = 20 * time.Millisecond
	h := newHarness(t, cfg, 1, 1)
	res := h.join(t, "p1")

	require.Eventually(t, func() bool {
		return h.slots.Free() == 1
	}, eventually, poll)
	assert.Equal(t, []any{EndGamePayload{Reason: ReasonResetTimeout}}, h.tr.broadcastsOf(res.SessionUUID, EventEndGame))
}

func TestLeaveDuringResetReleasesLoop(t *testing.T) {
	cfg := testConfig(humans(1))
	cfg.Session.EpisodeBudget = 2
	h := newHarness(t, cfg, 1, 1)
	res := h.join(t, "p1")
	require.Eventually(t, func() bool {
		return len(h.tr.broadcastsOf(res.SessionUUID, EventGameReset)) == 1
	}, eventually, poll)

	status, err := h.c.Leave(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, ExitActiveNoPlayers, status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.c.Shutdown(ctx))
	assert.Equal(t, 1, h.hooks.get(&h.hooks.gameEnds))
	assert.Equal(t, 1, h.slots.Free())
}

func TestEnvFailureEndsOnlyThatSession(t *testing.T) {
	h := newHarness(t, testConfig(humans(1)), 2, 0)
	healthy := h.join(t, "p1")
	broken := h.join(t, "p2")
	h.env(1).mu.Lock()
	h.env(1).failStep = true
	h.env(1).mu.Unlock()

	require.Eventually(t, func() bool {
		return h.slots.Free() == 1
	}, eventually, poll)
	assert.Equal(t, []any{EndGamePayload{Reason: ReasonSessionError}}, h.tr.broadcastsOf(broken.SessionUUID, EventEndGame))

	require.Eventually(t, func() bool {
		snap, ok := h.c.Snapshot(healthy.SessionUUID)
		return ok && snap.Status == game.StatusActive
	}, eventually, poll)
}

func TestShutdownClosesEverything(t *testing.T) {
	h := newHarness(t, testConfig(humans(2)), 3, 0)
	h.join(t, "p1")
	active := h.join(t, "p2")
	lobby := h.join(t, "p3")
	require.Equal(t, JoinWaiting, lobby.Status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.c.Shutdown(ctx))

	assert.Equal(t, []any{EndGamePayload{Reason: ReasonServerShutdown}}, h.tr.broadcastsOf(active.SessionUUID, EventEndGame))
	assert.Len(t, h.tr.broadcastsOf(lobby.SessionUUID, EventEndLobby), 1)
	assert.Equal(t, 3, h.slots.Free())

	_, err := h.c.JoinOrCreate(context.Background(), "p4")
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestPacerKeepsGridAndReanchors(t *testing.T) {
	start := time.Unix(100, 0)
	p := newPacer(100*time.Millisecond, start)

	assert.Equal(t, start.Add(100*time.Millisecond), p.next(start.Add(10*time.Millisecond)))
	// a late tick keeps the grid
	assert.Equal(t, start.Add(200*time.Millisecond), p.next(start.Add(150*time.Millisecond)))

	stalled := start.Add(time.Second)
	assert.Equal(t, stalled, p.next(stalled))
	assert.Equal(t, stalled.Add(100*time.Millisecond), p.next(stalled))
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig([]game.RoleSpec{{Role: "bot", Policy: "random"}})
	_, err := New(cfg, Deps{})
	assert.ErrorIs(t, err, game.ErrInvalidConfig)

	cfg = testConfig(humans(1))
	cfg.FPS = 0
	_, err = New(cfg, Deps{})
	assert.ErrorIs(t, err, game.ErrInvalidConfig)

	_, err = New(testConfig(humans(1)), Deps{})
	assert.Error(t, err)
}
