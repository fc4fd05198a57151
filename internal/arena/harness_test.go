package arena

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"interactive-gym/internal/game"
	"interactive-gym/internal/input"
	"interactive-gym/internal/slots"

	"github.com/stretchr/testify/require"
)

type sent struct {
	target  string
	event   string
	payload any
}

type recordingTransport struct {
	mu         sync.Mutex
	broadcasts []sent
	emits      []sent
	rooms      map[string]map[string]bool
	closed     []string
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{rooms: map[string]map[string]bool{}}
}

func (r *recordingTransport) Broadcast(room, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, sent{target: room, event: event, payload: payload})
}

func (r *recordingTransport) Emit(participantID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emits = append(r.emits, sent{target: participantID, event: event, payload: payload})
}

func (r *recordingTransport) JoinRoom(participantID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] == nil {
		r.rooms[room] = map[string]bool{}
	}
	r.rooms[room][participantID] = true
}

func (r *recordingTransport) LeaveRoom(participantID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms[room], participantID)
}

func (r *recordingTransport) CloseRoom(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, room)
	r.closed = append(r.closed, room)
}

func (r *recordingTransport) broadcastsOf(room, event string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, s := range r.broadcasts {
		if s.target == room && s.event == event {
			out = append(out, s.payload)
		}
	}
	return out
}

func (r *recordingTransport) emitsTo(participantID, event string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, s := range r.emits {
		if s.target == participantID && s.event == event {
			out = append(out, s.payload)
		}
	}
	return out
}

func (r *recordingTransport) members(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

// loopEnv terminates every episode after endAt steps; zero runs forever.
type loopEnv struct {
	mu       sync.Mutex
	roles    []game.Role
	endAt    int
	steps    int
	resets   int
	failStep bool
	actions  []game.Action
}

func (e *loopEnv) MultiAgent() bool { return true }

func (e *loopEnv) Reset(*int64) (game.Observations, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets++
	e.steps = 0
	return game.Observations{}, nil
}

func (e *loopEnv) Step(actions map[game.Role]game.Action) (game.StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failStep {
		return game.StepResult{}, errors.New("physics exploded")
	}
	e.steps++
	e.actions = append(e.actions, actions[e.roles[0]])
	rewards := map[game.Role]float64{}
	for _, r := range e.roles {
		rewards[r] = 1
	}
	done := e.endAt > 0 && e.steps >= e.endAt
	return game.StepResult{
		Rewards:    rewards,
		Terminated: game.Flags{game.AllRoles: done},
		Truncated:  game.Flags{},
	}, nil
}

func (e *loopEnv) sawAction(a game.Action) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, got := range e.actions {
		if got == a {
			return true
		}
	}
	return false
}

func (e *loopEnv) resetCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets
}

func loopState(env game.Environment) (any, error) {
	e := env.(*loopEnv)
	e.mu.Lock()
	defer e.mu.Unlock()
	return map[string]int{"steps": e.steps}, nil
}

type countingHooks struct {
	mu            sync.Mutex
	episodeStarts int
	episodeEnds   int
	ticks         int
	gameEnds      int
	joins         []string
	timeouts      int
	endings       []game.Snapshot

	// afterEpisode runs inside OnEpisodeEnd, on the game loop goroutine.
	afterEpisode func(*game.Session)
}

func (h *countingHooks) OnEpisodeStart(*game.Session)  { h.inc(&h.episodeStarts) }
func (h *countingHooks) OnGameTickStart(*game.Session) {}
func (h *countingHooks) OnGameTickEnd(*game.Session)   { h.inc(&h.ticks) }

func (h *countingHooks) OnEpisodeEnd(s *game.Session) {
	h.mu.Lock()
	h.episodeEnds++
	fn := h.afterEpisode
	h.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (h *countingHooks) OnGameEnd(s *game.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gameEnds++
	h.endings = append(h.endings, s.Snapshot())
}

func (h *countingHooks) ending(t *testing.T) game.Snapshot {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.endings, 1)
	return h.endings[0]
}

func (h *countingHooks) OnWaitroomJoin(_ *game.Session, participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joins = append(h.joins, participantID)
}

func (h *countingHooks) OnWaitroomTimeout(*game.Session) { h.inc(&h.timeouts) }

func (h *countingHooks) inc(n *int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	*n++
}

func (h *countingHooks) get(n *int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *n
}

func humans(n int) []game.RoleSpec {
	roles := make([]game.RoleSpec, n)
	for i := range roles {
		roles[i] = game.RoleSpec{Role: game.Role("agent-" + string(rune('0'+i))), Policy: game.HumanPolicy}
	}
	return roles
}

func testConfig(roles []game.RoleSpec) Config {
	return Config{
		Session: game.Config{
			Roles:         roles,
			EpisodeBudget: 1,
			DefaultAction: 0,
			Population:    game.PopulateDefaultAction,
			FrameSkip:     1,
			StateFn:       loopState,
		},
		FPS:             500,
		WaitroomTimeout: time.Minute,
		InputMode:       InputPressedKeys,
		ResetTimeout:    3 * time.Second,
		EnvSeed:         42,
	}
}

type harness struct {
	c     *Coordinator
	tr    *recordingTransport
	slots *slots.Registry
	hooks *countingHooks

	mu   sync.Mutex
	envs []*loopEnv
}

func newHarness(t *testing.T, cfg Config, maxGames, endAt int, opts ...Option) *harness {
	t.Helper()
	tr, err := input.NewTranslator([]input.Binding{
		{Keys: []string{"ArrowLeft"}, Action: 1},
		{Keys: []string{"ArrowRight"}, Action: 2},
	})
	require.NoError(t, err)

	h := &harness{
		tr:    newRecordingTransport(),
		slots: slots.NewRegistry(maxGames),
		hooks: &countingHooks{},
	}
	var roles []game.Role
	for _, r := range cfg.Session.Roles {
		roles = append(roles, r.Role)
	}
	deps := Deps{
		Slots: h.slots,
		NewEnv: func() (game.Environment, error) {
			env := &loopEnv{roles: roles, endAt: endAt}
			h.mu.Lock()
			h.envs = append(h.envs, env)
			h.mu.Unlock()
			return env, nil
		},
		Translator: tr,
		Transport:  h.tr,
	}
	opts = append([]Option{WithCallbacks(h.hooks)}, opts...)
	h.c, err = New(cfg, deps, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.c.Shutdown(ctx)
	})
	return h
}

func (h *harness) env(i int) *loopEnv {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.envs[i]
}

func (h *harness) join(t *testing.T, pid string) JoinResult {
	t.Helper()
	res, err := h.c.JoinOrCreate(context.Background(), pid)
	require.NoError(t, err)
	return res
}

const eventually = 2 * time.Second
const poll = 2 * time.Millisecond
