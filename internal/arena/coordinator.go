// Package arena matches participants into game sessions, runs each active
// session's fixed-rate loop and reclaims sessions when participants leave.
package arena

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"interactive-gym/internal/game"
	"interactive-gym/internal/slots"

	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyInSession = errors.New("participant already in a session")
	ErrNotInSession     = errors.New("participant not in a session")
	ErrSessionMismatch  = errors.New("session id does not match participant session")
	ErrShuttingDown     = errors.New("coordinator shutting down")
)

type JoinStatus int

const (
	JoinWaiting JoinStatus = iota
	JoinStarted
	JoinCreateGameFailed
)

func (s JoinStatus) String() string {
	switch s {
	case JoinWaiting:
		return "waiting"
	case JoinStarted:
		return "started"
	case JoinCreateGameFailed:
		return "create_game_failed"
	}
	return fmt.Sprintf("JoinStatus(%d)", int(s))
}

type JoinResult struct {
	SessionUUID string
	SlotID      int
	Role        game.Role
	Status      JoinStatus
	Remaining   time.Duration
}

type ExitStatus int

const (
	ExitActiveNoPlayers ExitStatus = iota + 1
	ExitActiveWithOthers
	ExitInactiveNoPlayers
	ExitInactiveWithOthers
)

func (s ExitStatus) String() string {
	switch s {
	case ExitActiveNoPlayers:
		return "active_no_players"
	case ExitActiveWithOthers:
		return "active_with_others"
	case ExitInactiveNoPlayers:
		return "inactive_no_players"
	case ExitInactiveWithOthers:
		return "inactive_with_others"
	}
	return fmt.Sprintf("ExitStatus(%d)", int(s))
}

type gameEntry struct {
	session  *game.Session
	slotID   int
	deadline time.Time
	started  bool
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
}

type Capacity struct {
	Max          int `json:"max"`
	InUse        int `json:"in_use"`
	Free         int `json:"free"`
	Waiting      int `json:"waiting"`
	Active       int `json:"active"`
	Participants int `json:"participants"`
}

type Coordinator struct {
	cfg   Config
	deps  Deps
	hooks Callbacks
	now   func() time.Time

	mu       sync.Mutex
	waiting  []*gameEntry
	games    map[string]*gameEntry
	shutdown bool

	dir *directory

	loopCtx  context.Context
	stopAll  context.CancelFunc
	loops    sync.WaitGroup
	seedMu   sync.Mutex
	seedRand *rand.Rand
}

func New(cfg Config, deps Deps, opts ...Option) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:      cfg,
		deps:     deps,
		hooks:    NopCallbacks{},
		now:      time.Now,
		games:    map[string]*gameEntry{},
		dir:      newDirectory(),
		loopCtx:  ctx,
		stopAll:  cancel,
		seedRand: rand.New(rand.NewPCG(uint64(cfg.EnvSeed), 0)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// JoinOrCreate places participantID in the oldest lobby with an open role,
// creating a new session when none exists. Capacity exhaustion is reported to
// the participant and in the result, not as an error.
func (c *Coordinator) JoinOrCreate(ctx context.Context, participantID string) (JoinResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return JoinResult{}, ErrShuttingDown
	}
	if _, ok := c.dir.get(participantID); ok {
		return JoinResult{}, ErrAlreadyInSession
	}
	now := c.now()
	c.expireLobbiesLocked(now)

	e := c.findOpenLobbyLocked()
	if e == nil {
		var err error
		e, err = c.createGameLocked(now)
		if err != nil {
			metricGamesCreateFailed.Add(1)
			code := ErrCodeSessionError
			if errors.Is(err, slots.ErrExhausted) {
				code = ErrCodeServerAtCapacity
			}
			log.Warn().
				Err(err).
				Str("participant_id", participantID).
				Str("code", code).
				Msg("create_game_failed")
			c.deps.Transport.Emit(participantID, EventCreateGameFailed, CreateGameFailedPayload{Error: code})
			return JoinResult{Status: JoinCreateGameFailed}, nil
		}
	}

	s := e.session
	role, err := s.BindAvailable(participantID)
	if err != nil {
		return JoinResult{}, fmt.Errorf("bind participant: %w", err)
	}
	c.dir.put(participantID, &participant{
		session: s,
		info:    ParticipantInfo{SessionUUID: s.UUID(), Role: role, InFocus: true, LastSeen: now},
	})
	c.deps.Transport.JoinRoom(participantID, s.UUID())
	if c.cfg.PageTextFn != nil {
		c.deps.Transport.Emit(participantID, EventUpdatePageText, PageTextPayload{GamePageText: c.cfg.PageTextFn(participantID)})
	}
	if lc, ok := c.hooks.(LobbyCallbacks); ok {
		lc.OnWaitroomJoin(s, participantID)
	}
	log.Info().
		Str("participant_id", participantID).
		Str("session_uuid", s.UUID()).
		Int("slot_id", e.slotID).
		Str("role", string(role)).
		Msg("participant_joined")

	res := JoinResult{SessionUUID: s.UUID(), SlotID: e.slotID, Role: role}
	if s.IsAtCapacity() {
		c.removeWaitingLocked(e)
		c.startLocked(e)
		res.Status = JoinStarted
		return res, nil
	}
	c.broadcastWaitingLocked(e, now)
	res.Status = JoinWaiting
	if !e.deadline.IsZero() {
		res.Remaining = e.deadline.Sub(now)
	}
	return res, nil
}

func (c *Coordinator) findOpenLobbyLocked() *gameEntry {
	for _, e := range c.waiting {
		if !e.closed && !e.session.IsAtCapacity() {
			return e
		}
	}
	return nil
}

func (c *Coordinator) createGameLocked(now time.Time) (*gameEntry, error) {
	slotID, err := c.deps.Slots.Acquire()
	if err != nil {
		return nil, err
	}
	env, err := c.deps.NewEnv()
	if err != nil {
		c.releaseSlot(slotID, "")
		return nil, fmt.Errorf("build environment: %w", err)
	}
	opts := []game.Option{game.WithClock(c.now)}
	if c.deps.NewID != nil {
		opts = append(opts, game.WithUUID(c.deps.NewID()))
	}
	if c.deps.Encoder != nil {
		opts = append(opts, game.WithFrameEncoder(c.deps.Encoder))
	}
	s, err := game.NewSession(slotID, env, c.cfg.Session, c.deps.Policies, opts...)
	if err != nil {
		c.releaseSlot(slotID, "")
		return nil, fmt.Errorf("build session: %w", err)
	}
	e := &gameEntry{session: s, slotID: slotID, done: make(chan struct{})}
	if c.cfg.WaitroomTimeout > 0 {
		e.deadline = now.Add(c.cfg.WaitroomTimeout)
	}
	c.games[s.UUID()] = e
	c.waiting = append(c.waiting, e)
	metricGamesCreated.Add(1)
	log.Info().Str("session_uuid", s.UUID()).Int("slot_id", slotID).Msg("game_created")
	return e, nil
}

func (c *Coordinator) broadcastWaitingLocked(e *gameEntry, now time.Time) {
	s := e.session
	occupied := s.HumanOccupantCount()
	var remaining int64
	if !e.deadline.IsZero() {
		remaining = max(0, e.deadline.Sub(now).Milliseconds())
	}
	c.deps.Transport.Broadcast(s.UUID(), EventWaitingRoom, WaitingRoomPayload{
		CurNumPlayers: occupied,
		PlayersNeeded: s.HumanRoleCount() - occupied,
		MSRemaining:   remaining,
	})
}

func (c *Coordinator) removeWaitingLocked(e *gameEntry) {
	for i, w := range c.waiting {
		if w == e {
			c.waiting = append(c.waiting[:i], c.waiting[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) isWaitingLocked(e *gameEntry) bool {
	for _, w := range c.waiting {
		if w == e {
			return true
		}
	}
	return false
}

func (c *Coordinator) startLocked(e *gameEntry) {
	ctx, cancel := context.WithCancel(c.loopCtx)
	e.started = true
	e.cancel = cancel
	metricGamesActive.Add(1)
	c.deps.Transport.Broadcast(e.session.UUID(), EventStartGame, StartGamePayload{SceneMetadata: c.cfg.SceneMetadata})
	log.Info().Str("session_uuid", e.session.UUID()).Int("slot_id", e.slotID).Msg("game_started")
	c.loops.Add(1)
	go c.runGame(ctx, e)
}

// Leave removes participantID from its session and applies the exit policy
// for the session's state.
func (c *Coordinator) Leave(ctx context.Context, participantID string) (ExitStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.dir.get(participantID)
	if !ok {
		return 0, ErrNotInSession
	}
	uuid := p.info.SessionUUID
	c.dir.remove(participantID)
	c.deps.Transport.LeaveRoom(participantID, uuid)
	e := c.games[uuid]
	if e == nil || e.closed {
		return 0, ErrNotInSession
	}
	s := e.session
	if _, err := s.UnbindParticipant(participantID); err != nil {
		log.Warn().Err(err).Str("participant_id", participantID).Str("session_uuid", uuid).Msg("unbind_participant_failed")
	}
	others := s.HumanOccupantCount() > 0

	var status ExitStatus
	switch {
	case e.started && s.Status() == game.StatusDone:
		// The last episode already finished; the loop is only draining.
		status = ExitInactiveWithOthers
		if !others {
			status = ExitInactiveNoPlayers
		}
		c.closeGameLocked(e, ReasonComplete, "")
	case e.started && !others:
		status = ExitActiveNoPlayers
		c.closeGameLocked(e, ReasonAllPlayersLeft, "")
	case e.started:
		status = ExitActiveWithOthers
		c.closeGameLocked(e, ReasonPartnerLeft, partnerLeftMessage)
	case !others:
		status = ExitInactiveNoPlayers
		c.closeGameLocked(e, "", "")
		c.deps.Transport.Emit(participantID, EventEndLobby, EmptyPayload{})
	default:
		status = ExitInactiveWithOthers
		c.deps.Transport.Emit(participantID, EventEndLobby, EmptyPayload{})
		if !c.isWaitingLocked(e) {
			c.waiting = append(c.waiting, e)
		}
		now := c.now()
		c.expireLobbiesLocked(now)
		if !e.closed {
			c.broadcastWaitingLocked(e, now)
		}
	}
	log.Info().
		Str("participant_id", participantID).
		Str("session_uuid", uuid).
		Str("exit_status", status.String()).
		Msg("participant_left")
	return status, nil
}

// closeGameLocked tears the session down once and returns its slot. Only
// started sessions report OnGameEnd and end_game.
func (c *Coordinator) closeGameLocked(e *gameEntry, reason, message string) {
	if e.closed {
		return
	}
	e.closed = true
	if e.cancel != nil {
		e.cancel()
	}
	s := e.session
	uuid := s.UUID()
	// OnGameEnd observes the final status before teardown resets it.
	if e.started {
		s.MarkEnded(reason)
		c.hooks.OnGameEnd(s)
	}
	if err := s.TearDown(); err != nil {
		log.Error().Err(err).Str("session_uuid", uuid).Msg("session_teardown_failed")
	}
	if e.started {
		metricGamesActive.Add(-1)
		c.deps.Transport.Broadcast(uuid, EventEndGame, EndGamePayload{Reason: reason, Message: message})
	}
	for _, pid := range s.Participants() {
		if _, err := s.UnbindParticipant(pid); err != nil {
			log.Warn().Err(err).Str("participant_id", pid).Str("session_uuid", uuid).Msg("unbind_participant_failed")
		}
		c.dir.remove(pid)
		c.deps.Transport.LeaveRoom(pid, uuid)
	}
	c.deps.Transport.CloseRoom(uuid)
	c.removeWaitingLocked(e)
	delete(c.games, uuid)
	c.releaseSlot(e.slotID, uuid)
	log.Info().
		Str("session_uuid", uuid).
		Int("slot_id", e.slotID).
		Str("reason", reason).
		Bool("started", e.started).
		Msg("game_closed")
}

func (c *Coordinator) releaseSlot(slotID int, uuid string) {
	if err := c.deps.Slots.Release(slotID); err != nil {
		metricSlotDoubleRelease.Add(1)
		log.Error().Err(err).Int("slot_id", slotID).Str("session_uuid", uuid).Msg("slot_double_release")
	}
}

// finish is called by the game loop when it exits on its own.
func (c *Coordinator) finish(e *gameEntry, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeGameLocked(e, reason, "")
}

// SubmitKeys translates a pressed-key set and stores it as the participant's
// pending action. It reports whether an action was enqueued.
func (c *Coordinator) SubmitKeys(participantID, sessionUUID string, keys []string) (bool, error) {
	p, ok := c.dir.get(participantID)
	if !ok {
		return false, ErrNotInSession
	}
	if sessionUUID != "" && sessionUUID != p.info.SessionUUID {
		return false, ErrSessionMismatch
	}
	action := c.cfg.Session.DefaultAction
	if len(keys) > 0 {
		a, ok := c.deps.Translator.Resolve(keys)
		if !ok {
			return false, nil
		}
		action = a
	}
	return p.session.EnqueueAction(participantID, action), nil
}

// AckReset records that the participant finished its reset countdown.
func (c *Coordinator) AckReset(participantID, room string) error {
	p, ok := c.dir.get(participantID)
	if !ok {
		return ErrNotInSession
	}
	if room != "" && room != p.info.SessionUUID {
		return ErrSessionMismatch
	}
	return p.session.AckReset(participantID)
}

func (c *Coordinator) RecordPing(participantID string, pingMS int, inFocus bool) error {
	ok := c.dir.touch(participantID, c.now(), func(info *ParticipantInfo) {
		info.PingMS = pingMS
		info.InFocus = inFocus
	})
	if !ok {
		return ErrNotInSession
	}
	return nil
}

func (c *Coordinator) Participant(participantID string) (ParticipantInfo, bool) {
	return c.dir.info(participantID)
}

func (c *Coordinator) Snapshot(sessionUUID string) (game.Snapshot, bool) {
	c.mu.Lock()
	e := c.games[sessionUUID]
	c.mu.Unlock()
	if e == nil {
		return game.Snapshot{}, false
	}
	return e.session.Snapshot(), true
}

// Sessions lists every live session ordered by slot id.
func (c *Coordinator) Sessions() []game.Snapshot {
	c.mu.Lock()
	sessions := make([]*game.Session, 0, len(c.games))
	for _, e := range c.games {
		sessions = append(sessions, e.session)
	}
	c.mu.Unlock()
	out := make([]game.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotID < out[j].SlotID })
	return out
}

func (c *Coordinator) Capacity() Capacity {
	c.mu.Lock()
	waiting := len(c.waiting)
	active := len(c.games) - waiting
	c.mu.Unlock()
	return Capacity{
		Max:          c.deps.Slots.Capacity(),
		InUse:        c.deps.Slots.InUse(),
		Free:         c.deps.Slots.Free(),
		Waiting:      waiting,
		Active:       active,
		Participants: c.dir.len(),
	}
}

// Shutdown ends every session and waits for their loops to exit.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.shutdown = true
	entries := make([]*gameEntry, 0, len(c.games))
	for _, e := range c.games {
		entries = append(entries, e)
	}
	for _, e := range entries {
		if !e.started {
			c.deps.Transport.Broadcast(e.session.UUID(), EventEndLobby, EmptyPayload{})
		}
		c.closeGameLocked(e, ReasonServerShutdown, "")
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.loops.Wait()
		close(done)
	}()
	defer c.stopAll()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) episodeSeed() *int64 {
	if !c.cfg.RandomSeed {
		seed := c.cfg.EnvSeed
		return &seed
	}
	c.seedMu.Lock()
	defer c.seedMu.Unlock()
	seed := c.seedRand.Int64()
	return &seed
}
