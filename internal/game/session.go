package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type RoleSpec struct {
	Role   Role
	Policy string
}

type Config struct {
	// Roles in declaration order. Policy HumanPolicy marks a participant role.
	Roles         []RoleSpec
	EpisodeBudget int
	DefaultAction Action
	Population    PopulationPolicy
	FrameSkip     int
	// MaxSteps truncates an episode after that many ticks. Zero disables it.
	MaxSteps int
	StateFn  StateFunc
	HUDFn    HUDFunc
}

type Option func(*Session)

func WithUUID(uuid string) Option {
	return func(s *Session) { s.uuid = uuid }
}

func WithFrameEncoder(enc FrameEncoder) Option {
	return func(s *Session) { s.encoder = enc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

type Frame struct {
	State any
	Image []byte
	Step  int
	HUD   string
}

type Snapshot struct {
	SlotID         int              `json:"slot_id"`
	UUID           string           `json:"session_uuid"`
	Status         Status           `json:"status"`
	TickNum        int              `json:"tick_num"`
	EpisodeNum     int              `json:"episode_num"`
	EpisodeBudget  int              `json:"episode_budget"`
	Humans         map[Role]string  `json:"humans"`
	Bots           map[Role]string  `json:"bots"`
	EpisodeRewards map[Role]float64 `json:"episode_rewards"`
	TotalRewards   map[Role]float64 `json:"total_rewards"`
	TotalPositive  map[Role]float64 `json:"total_positive"`
	TotalNegative  map[Role]float64 `json:"total_negative"`
	CreatedAt      time.Time        `json:"created_at"`
	EndReason      string           `json:"end_reason,omitempty"`
}

// Session owns one environment instance and the roster playing it. Tick and
// Reset are driven by a single loop; binding and input arrive concurrently
// from connection handlers.
type Session struct {
	id        int
	uuid      string
	createdAt time.Time
	now       func() time.Time

	cfg      Config
	env      Environment
	policies PolicyRuntime
	encoder  FrameEncoder
	renderer FrameRenderer

	mu             sync.Mutex
	status         Status
	tornDown       bool
	endReason      string
	humanOrder     []Role
	humans         map[Role]string
	botOrder       []Role
	bots           map[Role]Policy
	botIDs         map[Role]string
	mailboxes      map[Role]*mailbox
	prevActions    map[Role]Action
	prevRewards    map[Role]float64
	obs            Observations
	tickNum        int
	episodeNum     int
	episodeRewards map[Role]float64
	totalRewards   map[Role]float64
	totalPositive  map[Role]float64
	totalNegative  map[Role]float64
	barrier        *ResetBarrier

	// routes maps participant id to mailbox; replaced on bind/unbind so input
	// never waits on a running tick.
	routes atomic.Pointer[map[string]*mailbox]
	active atomic.Bool
}

func NewSession(id int, env Environment, cfg Config, policies PolicyRuntime, opts ...Option) (*Session, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil environment", ErrInvalidConfig)
	}
	if err := validateConfig(cfg, env.MultiAgent()); err != nil {
		return nil, err
	}
	s := &Session{
		id:             id,
		now:            time.Now,
		cfg:            cfg,
		env:            env,
		policies:       policies,
		humans:         map[Role]string{},
		bots:           map[Role]Policy{},
		botIDs:         map[Role]string{},
		mailboxes:      map[Role]*mailbox{},
		prevActions:    map[Role]Action{},
		prevRewards:    map[Role]float64{},
		episodeRewards: map[Role]float64{},
		totalRewards:   map[Role]float64{},
		totalPositive:  map[Role]float64{},
		totalNegative:  map[Role]float64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createdAt = s.now()
	if s.uuid == "" {
		s.uuid = fmt.Sprintf("game-%d-%d", id, s.createdAt.UnixNano())
	}
	if cfg.StateFn == nil {
		fr, ok := frameRenderer(env)
		if !ok || s.encoder == nil {
			return nil, ErrNoRenderer
		}
		s.renderer = fr
	}

	for _, spec := range cfg.Roles {
		if spec.Policy == HumanPolicy {
			s.humanOrder = append(s.humanOrder, spec.Role)
			s.humans[spec.Role] = Available
			s.mailboxes[spec.Role] = &mailbox{}
			continue
		}
		if policies == nil {
			return nil, fmt.Errorf("%w: bot role %q without policy runtime", ErrInvalidConfig, spec.Role)
		}
		p, err := policies.Load(spec.Policy)
		if err != nil {
			return nil, fmt.Errorf("load policy %q for role %q: %w", spec.Policy, spec.Role, err)
		}
		s.botOrder = append(s.botOrder, spec.Role)
		s.bots[spec.Role] = p
		s.botIDs[spec.Role] = spec.Policy
	}
	empty := map[string]*mailbox{}
	s.routes.Store(&empty)
	return s, nil
}

func validateConfig(cfg Config, multi bool) error {
	if len(cfg.Roles) == 0 {
		return fmt.Errorf("%w: no roles declared", ErrInvalidConfig)
	}
	if !multi && len(cfg.Roles) != 1 {
		return fmt.Errorf("%w: single-agent environment needs exactly one role, got %d", ErrInvalidConfig, len(cfg.Roles))
	}
	if cfg.EpisodeBudget < 1 {
		return fmt.Errorf("%w: episode budget must be >= 1", ErrInvalidConfig)
	}
	if cfg.FrameSkip < 1 {
		return fmt.Errorf("%w: frame skip must be >= 1", ErrInvalidConfig)
	}
	if cfg.Population != PopulateDefaultAction && cfg.Population != PopulatePreviousSubmittedAction {
		return fmt.Errorf("%w: population policy %q", ErrInvalidConfig, cfg.Population)
	}
	seen := map[Role]bool{}
	for _, spec := range cfg.Roles {
		if spec.Role == "" || spec.Role == AllRoles {
			return fmt.Errorf("%w: invalid role name %q", ErrInvalidConfig, spec.Role)
		}
		if seen[spec.Role] {
			return fmt.Errorf("%w: duplicate role %q", ErrInvalidConfig, spec.Role)
		}
		seen[spec.Role] = true
		if spec.Policy == "" {
			return fmt.Errorf("%w: role %q has no policy", ErrInvalidConfig, spec.Role)
		}
	}
	return nil
}

func (s *Session) ID() int { return s.id }

func (s *Session) UUID() string { return s.uuid }

func (s *Session) Env() Environment { return s.env }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) BindParticipant(role Role, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindLocked(role, participantID)
}

// BindAvailable binds participantID to the first open human role in
// declaration order.
func (s *Session) BindAvailable(participantID string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.humanOrder {
		if s.humans[role] == Available {
			return role, s.bindLocked(role, participantID)
		}
	}
	return "", ErrRoleUnavailable
}

func (s *Session) bindLocked(role Role, participantID string) error {
	occupant, ok := s.humans[role]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if occupant != Available {
		return fmt.Errorf("%w: %q held by %s", ErrRoleUnavailable, role, occupant)
	}
	if _, bound := s.roleOfLocked(participantID); bound {
		return ErrAlreadyBound
	}
	s.humans[role] = participantID
	s.publishRoutesLocked()
	return nil
}

func (s *Session) UnbindParticipant(participantID string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roleOfLocked(participantID)
	if !ok {
		return "", ErrParticipantNotFound
	}
	s.humans[role] = Available
	s.mailboxes[role].clear()
	s.publishRoutesLocked()
	if s.barrier != nil {
		s.barrier.Remove(participantID)
	}
	return role, nil
}

func (s *Session) RoleOf(participantID string) (Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roleOfLocked(participantID)
}

func (s *Session) roleOfLocked(participantID string) (Role, bool) {
	if participantID == Available {
		return "", false
	}
	for _, role := range s.humanOrder {
		if s.humans[role] == participantID {
			return role, true
		}
	}
	return "", false
}

func (s *Session) publishRoutesLocked() {
	routes := make(map[string]*mailbox, len(s.humans))
	for role, occupant := range s.humans {
		if occupant != Available {
			routes[occupant] = s.mailboxes[role]
		}
	}
	s.routes.Store(&routes)
}

// EnqueueAction overwrites the participant's pending action. It never blocks
// and reports false when the action was dropped.
func (s *Session) EnqueueAction(participantID string, action Action) bool {
	if !s.active.Load() {
		return false
	}
	mb, ok := (*s.routes.Load())[participantID]
	if !ok {
		return false
	}
	mb.put(action)
	return true
}

func (s *Session) IsAtCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, occupant := range s.humans {
		if occupant == Available {
			return false
		}
	}
	return true
}

func (s *Session) HumanOccupantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupantCountLocked()
}

func (s *Session) occupantCountLocked() int {
	n := 0
	for _, occupant := range s.humans {
		if occupant != Available {
			n++
		}
	}
	return n
}

func (s *Session) HumanRoleCount() int {
	return len(s.humanOrder)
}

func (s *Session) AvailableRoles() []Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Role{}
	for _, role := range s.humanOrder {
		if s.humans[role] == Available {
			out = append(out, role)
		}
	}
	return out
}

// Participants returns bound participant ids in role declaration order.
func (s *Session) Participants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantsLocked()
}

func (s *Session) participantsLocked() []string {
	out := make([]string, 0, len(s.humanOrder))
	for _, role := range s.humanOrder {
		if occupant := s.humans[role]; occupant != Available {
			out = append(out, occupant)
		}
	}
	return out
}

func (s *Session) Tick(ctx context.Context) (TickOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return TickContinue, ErrNotActive
	}
	actions, err := s.resolveActionsLocked(ctx)
	if err != nil {
		return TickContinue, err
	}
	res, err := s.env.Step(actions)
	if err != nil {
		return TickContinue, fmt.Errorf("env step: %w", err)
	}

	s.prevActions = actions
	s.prevRewards = make(map[Role]float64, len(res.Rewards))
	for role, r := range res.Rewards {
		s.prevRewards[role] = r
		s.episodeRewards[role] += r
		s.totalRewards[role] += r
		if r > 0 {
			s.totalPositive[role] += r
		} else if r < 0 {
			s.totalNegative[role] += r
		}
	}
	if res.Observations != nil {
		s.obs = res.Observations
	}
	s.tickNum++

	finished := res.Terminated.All() || res.Truncated.All() ||
		(s.cfg.MaxSteps > 0 && s.tickNum >= s.cfg.MaxSteps)
	if !finished {
		return TickContinue, nil
	}
	if s.episodeNum < s.cfg.EpisodeBudget {
		s.setStatusLocked(StatusResetPending)
		return TickEpisodeBoundary, nil
	}
	s.setStatusLocked(StatusDone)
	return TickSessionDone, nil
}

func (s *Session) resolveActionsLocked(ctx context.Context) (map[Role]Action, error) {
	actions := make(map[Role]Action, len(s.humanOrder)+len(s.botOrder))
	for _, role := range s.humanOrder {
		if a, ok := s.mailboxes[role].take(); ok {
			actions[role] = a
			continue
		}
		actions[role] = s.fallbackLocked(role)
	}
	for _, role := range s.botOrder {
		if s.tickNum%s.cfg.FrameSkip != 0 {
			actions[role] = s.fallbackLocked(role)
			continue
		}
		a, err := s.policies.Infer(ctx, s.obs[role], s.bots[role])
		if err != nil {
			return nil, fmt.Errorf("policy %q inference for role %q: %w", s.botIDs[role], role, err)
		}
		actions[role] = a
	}
	return actions, nil
}

func (s *Session) fallbackLocked(role Role) Action {
	if s.cfg.Population == PopulatePreviousSubmittedAction {
		if prev, ok := s.prevActions[role]; ok {
			return prev
		}
	}
	return s.cfg.DefaultAction
}

func (s *Session) Reset(seed *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return ErrAlreadyTornDown
	}
	obs, err := s.env.Reset(seed)
	if err != nil {
		return fmt.Errorf("env reset: %w", err)
	}
	s.obs = obs
	for _, mb := range s.mailboxes {
		mb.clear()
	}
	s.prevActions = map[Role]Action{}
	s.prevRewards = map[Role]float64{}
	s.episodeRewards = map[Role]float64{}
	s.episodeNum++
	s.tickNum = 0
	s.barrier = nil
	s.setStatusLocked(StatusActive)
	return nil
}

func (s *Session) setStatusLocked(st Status) {
	s.status = st
	s.active.Store(st == StatusActive)
}

// ArmResetBarrier replaces any previous barrier with a fresh one covering
// the currently bound participants.
func (s *Session) ArmResetBarrier() *ResetBarrier {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.barrier != nil {
		s.barrier.Cancel()
	}
	s.barrier = NewResetBarrier(s.participantsLocked())
	return s.barrier
}

func (s *Session) AckReset(participantID string) error {
	s.mu.Lock()
	b := s.barrier
	s.mu.Unlock()
	if b == nil {
		return ErrNoResetPending
	}
	return b.Ack(participantID)
}

func (s *Session) TearDown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return ErrAlreadyTornDown
	}
	s.tornDown = true
	s.setStatusLocked(StatusInactive)
	for _, mb := range s.mailboxes {
		mb.clear()
	}
	if s.barrier != nil {
		s.barrier.Cancel()
	}
	return nil
}

// MarkEnded records why the session is ending. It does not change status,
// so a completed session still reports Done until TearDown.
func (s *Session) MarkEnded(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endReason = reason
}

func (s *Session) TornDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tornDown
}

func (s *Session) Render() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := Frame{Step: s.tickNum}
	if s.cfg.StateFn != nil {
		state, err := s.cfg.StateFn(s.env)
		if err != nil {
			return Frame{}, fmt.Errorf("render state: %w", err)
		}
		f.State = state
	} else {
		img, err := s.renderer.RenderFrame()
		if err != nil {
			return Frame{}, fmt.Errorf("render frame: %w", err)
		}
		b, err := s.encoder.Encode(img)
		if err != nil {
			return Frame{}, fmt.Errorf("encode frame: %w", err)
		}
		f.Image = b
	}
	if s.cfg.HUDFn != nil {
		f.HUD = s.cfg.HUDFn(s.snapshotLocked())
	}
	return f, nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	humans := make(map[Role]string, len(s.humans))
	for k, v := range s.humans {
		humans[k] = v
	}
	bots := make(map[Role]string, len(s.botIDs))
	for k, v := range s.botIDs {
		bots[k] = v
	}
	return Snapshot{
		SlotID:         s.id,
		UUID:           s.uuid,
		Status:         s.status,
		TickNum:        s.tickNum,
		EpisodeNum:     s.episodeNum,
		EpisodeBudget:  s.cfg.EpisodeBudget,
		Humans:         humans,
		Bots:           bots,
		EpisodeRewards: copyRewards(s.episodeRewards),
		TotalRewards:   copyRewards(s.totalRewards),
		TotalPositive:  copyRewards(s.totalPositive),
		TotalNegative:  copyRewards(s.totalNegative),
		CreatedAt:      s.createdAt,
		EndReason:      s.endReason,
	}
}

func copyRewards(in map[Role]float64) map[Role]float64 {
	out := make(map[Role]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SortedRoles returns the keys of m in lexical order.
func SortedRoles[V any](m map[Role]V) []Role {
	out := make([]Role, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
