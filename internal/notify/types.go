package notify

import (
	"time"

	"interactive-gym/internal/notify/platforms"
)

const (
	EventGameStarted  = "game_started"
	EventEpisodeEnded = "episode_ended"
	EventGameEnded    = "game_ended"
	EventLobbyTimeout = "lobby_timeout"
)

// Target is one webhook destination. ScopeType "all" matches every session;
// "env" matches sessions whose environment name equals ScopeValue.
type Target struct {
	Platform       string   `json:"platform"`
	Endpoint       string   `json:"endpoint"`
	Secret         string   `json:"secret"`
	ScopeType      string   `json:"scope_type"`
	ScopeValue     string   `json:"scope_value"`
	EventAllowlist []string `json:"event_allowlist"`
	Enabled        bool     `json:"enabled"`
}

func (t Target) key() string {
	return t.Platform + "|" + t.Endpoint + "|" + t.ScopeType + "|" + t.ScopeValue
}

type Config struct {
	Enabled             bool
	ConfigPath          string
	ConfigReload        time.Duration
	Targets             []Target
	Workers             int
	RetryMax            int
	RetryBase           time.Duration
	FailureThreshold    int
	CircuitOpenDuration time.Duration
	RequestTimeout      time.Duration
	DispatchBuffer      int
}

// Event is a session lifecycle change, flattened from a game snapshot.
type Event struct {
	Type          string             `json:"event"`
	SessionUUID   string             `json:"session_uuid"`
	SlotID        int                `json:"slot_id"`
	Env           string             `json:"env"`
	EpisodeNum    int                `json:"episode_num"`
	EpisodeBudget int                `json:"episode_budget"`
	Ticks         int                `json:"ticks"`
	Humans        map[string]string  `json:"humans"`
	Bots          map[string]string  `json:"bots"`
	Rewards       map[string]float64 `json:"episode_rewards,omitempty"`
	TotalRewards  map[string]float64 `json:"total_rewards,omitempty"`
	Status        string             `json:"status"`
	EndReason     string             `json:"end_reason,omitempty"`
	At            time.Time          `json:"at"`
}

type job struct {
	target   Target
	event    Event
	msg      platforms.Message
	attempt  int
	terminal bool
}
