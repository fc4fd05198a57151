package store

import "time"

type GameRecord struct {
	ID             string             `json:"id"`
	SessionUUID    string             `json:"session_uuid"`
	SlotID         int                `json:"slot_id"`
	EnvName        string             `json:"env_name"`
	Status         string             `json:"status"`
	EndReason      string             `json:"end_reason,omitempty"`
	EpisodeBudget  int                `json:"episode_budget"`
	EpisodesPlayed int                `json:"episodes_played"`
	Humans         map[string]string  `json:"humans"`
	Bots           map[string]string  `json:"bots"`
	TotalRewards   map[string]float64 `json:"total_rewards"`
	TotalPositive  map[string]float64 `json:"total_positive"`
	TotalNegative  map[string]float64 `json:"total_negative"`
	CreatedAt      time.Time          `json:"created_at"`
	EndedAt        *time.Time         `json:"ended_at,omitempty"`
}

type EpisodeRecord struct {
	ID          string             `json:"id"`
	SessionUUID string             `json:"session_uuid"`
	EpisodeNum  int                `json:"episode_num"`
	Ticks       int                `json:"ticks"`
	Humans      map[string]string  `json:"humans"`
	Rewards     map[string]float64 `json:"rewards"`
	EndedAt     time.Time          `json:"ended_at"`
}
