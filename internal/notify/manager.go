package notify

import (
	"context"
	"hash/fnv"
	"os"
	"strings"
	"sync"
	"time"

	"interactive-gym/internal/arena"
	"interactive-gym/internal/game"
	"interactive-gym/internal/notify/platforms"

	"github.com/rs/zerolog/log"
)

type breakerState struct {
	consecutiveFailures int
	openUntil           time.Time
}

// Manager turns session lifecycle callbacks into webhook messages. Callbacks
// only enqueue; workers started by Start do the HTTP calls. Jobs for one
// session and target always land on the same worker, so a session's messages
// go out in order.
type Manager struct {
	arena.NopCallbacks

	cfg      Config
	env      string
	adapters map[string]platforms.Adapter
	shards   []chan job
	done     chan struct{}
	now      func() time.Time

	mu       sync.Mutex
	started  bool
	targets  []Target
	breakers map[string]breakerState
}

func NewManager(cfg Config, envName string) *Manager {
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.CircuitOpenDuration <= 0 {
		cfg.CircuitOpenDuration = 30 * time.Second
	}
	if cfg.ConfigReload <= 0 {
		cfg.ConfigReload = time.Second
	}
	client := platforms.NewHTTPClient(cfg.RequestTimeout)
	m := &Manager{
		cfg: cfg,
		env: envName,
		adapters: map[string]platforms.Adapter{
			"discord": platforms.NewDiscordAdapter(client),
			"feishu":  platforms.NewFeishuAdapter(client),
			"webhook": platforms.NewWebhookAdapter(client),
		},
		shards:   make([]chan job, cfg.Workers),
		done:     make(chan struct{}),
		now:      time.Now,
		targets:  append([]Target(nil), cfg.Targets...),
		breakers: map[string]breakerState{},
	}
	per := max(cfg.DispatchBuffer/cfg.Workers, 1)
	for i := range m.shards {
		m.shards[i] = make(chan job, per)
	}
	return m
}

func (m *Manager) Enabled() bool { return m.cfg.Enabled }

// Start runs the workers until ctx ends. Queued jobs get a short grace period
// to drain after that.
func (m *Manager) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	for _, ch := range m.shards {
		go m.worker(ctx, ch)
	}
	if m.cfg.ConfigPath != "" {
		go m.watchConfigLoop(ctx)
	}
	go func() {
		<-ctx.Done()
		close(m.done)
	}()
	log.Info().Int("targets", len(m.currentTargets())).Int("workers", len(m.shards)).Msg("notify_started")
	return nil
}

func (m *Manager) OnEpisodeStart(s *game.Session) {
	snap := s.Snapshot()
	if snap.EpisodeNum != 1 {
		return
	}
	m.publish(m.event(EventGameStarted, snap))
}

func (m *Manager) OnEpisodeEnd(s *game.Session) {
	m.publish(m.event(EventEpisodeEnded, s.Snapshot()))
}

func (m *Manager) OnGameEnd(s *game.Session) {
	m.publish(m.event(EventGameEnded, s.Snapshot()))
}

func (m *Manager) OnWaitroomJoin(*game.Session, string) {}

func (m *Manager) OnWaitroomTimeout(s *game.Session) {
	m.publish(m.event(EventLobbyTimeout, s.Snapshot()))
}

func (m *Manager) event(typ string, snap game.Snapshot) Event {
	return Event{
		Type:          typ,
		SessionUUID:   snap.UUID,
		SlotID:        snap.SlotID,
		Env:           m.env,
		EpisodeNum:    snap.EpisodeNum,
		EpisodeBudget: snap.EpisodeBudget,
		Ticks:         snap.TickNum,
		Humans:        roleStrings(snap.Humans),
		Bots:          roleStrings(snap.Bots),
		Rewards:       roleFloats(snap.EpisodeRewards),
		TotalRewards:  roleFloats(snap.TotalRewards),
		Status:        snap.Status.String(),
		EndReason:     snap.EndReason,
		At:            m.now().UTC(),
	}
}

func (m *Manager) publish(ev Event) {
	if !m.cfg.Enabled {
		return
	}
	for _, target := range matchTargets(m.currentTargets(), ev) {
		msg, ok := formatMessage(target, ev)
		if !ok {
			continue
		}
		j := job{target: target, event: ev, msg: msg, terminal: ev.Type == EventGameEnded}
		if !m.enqueue(j) {
			metricDroppedTotal.Add(1)
			log.Warn().Str("session_uuid", ev.SessionUUID).Str("event", ev.Type).Str("platform", target.Platform).Msg("notify_queue_full")
		}
	}
}

func (m *Manager) shard(j job) chan job {
	h := fnv.New32a()
	_, _ = h.Write([]byte(j.target.key() + "|" + j.event.SessionUUID))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

func (m *Manager) enqueue(j job) bool {
	select {
	case <-m.done:
		return false
	case m.shard(j) <- j:
		metricQueuedTotal.Add(1)
		return true
	default:
		return false
	}
}

func (m *Manager) currentTargets() []Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Target(nil), m.targets...)
}

func (m *Manager) watchConfigLoop(ctx context.Context) {
	lastRaw := ""
	if raw, err := os.ReadFile(m.cfg.ConfigPath); err == nil {
		lastRaw = strings.TrimSpace(string(raw))
	}
	ticker := time.NewTicker(m.cfg.ConfigReload)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			raw, err := os.ReadFile(m.cfg.ConfigPath)
			if err != nil {
				metricConfigReloadError.Add(1)
				continue
			}
			next := strings.TrimSpace(string(raw))
			if next == lastRaw {
				continue
			}
			targets, err := parseTargets(next)
			if err != nil {
				metricConfigReloadError.Add(1)
				log.Warn().Err(err).Str("path", m.cfg.ConfigPath).Msg("notify_config_reload_failed")
				continue
			}
			m.mu.Lock()
			m.targets = targets
			m.mu.Unlock()
			lastRaw = next
			metricConfigReloadTotal.Add(1)
			log.Info().Int("targets", len(targets)).Msg("notify_config_reloaded")
		}
	}
}

func roleStrings(in map[game.Role]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

func roleFloats(in map[game.Role]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}
