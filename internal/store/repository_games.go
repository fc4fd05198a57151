package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const upsertGameSQL = `
INSERT INTO games (id, session_uuid, slot_id, env_name, status, episode_budget, episodes_played,
	humans, bots, total_rewards, total_positive, total_negative, created_at, ended_at, end_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (session_uuid) DO UPDATE SET
	status = EXCLUDED.status,
	end_reason = EXCLUDED.end_reason,
	episodes_played = EXCLUDED.episodes_played,
	humans = EXCLUDED.humans,
	bots = EXCLUDED.bots,
	total_rewards = EXCLUDED.total_rewards,
	total_positive = EXCLUDED.total_positive,
	total_negative = EXCLUDED.total_negative,
	ended_at = EXCLUDED.ended_at`

const selectGameColumns = `id, session_uuid, slot_id, env_name, status, episode_budget, episodes_played,
	humans, bots, total_rewards, total_positive, total_negative, created_at, ended_at, end_reason`

// UpsertGame keys on session_uuid; a later write for the same session
// replaces the counters and roster but keeps the original id.
func (s *Store) UpsertGame(ctx context.Context, g GameRecord) error {
	if g.ID == "" {
		g.ID = NewID()
	}
	_, err := s.Pool.Exec(ctx, upsertGameSQL,
		g.ID, g.SessionUUID, g.SlotID, g.EnvName, g.Status, g.EpisodeBudget, g.EpisodesPlayed,
		nonNilStrings(g.Humans), nonNilStrings(g.Bots),
		nonNilFloats(g.TotalRewards), nonNilFloats(g.TotalPositive), nonNilFloats(g.TotalNegative),
		timestamptzParam(g.CreatedAt), timeParam(g.EndedAt), g.EndReason,
	)
	return err
}

func (s *Store) GetGame(ctx context.Context, sessionUUID string) (*GameRecord, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+selectGameColumns+` FROM games WHERE session_uuid = $1`, sessionUUID)
	g, err := scanGame(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return g, nil
}

// ListGames returns finished and running games, newest first.
func (s *Store) ListGames(ctx context.Context, limit, offset int) ([]GameRecord, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+selectGameColumns+` FROM games ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []GameRecord{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func scanGame(row pgx.Row) (*GameRecord, error) {
	var (
		g     GameRecord
		ended pgtype.Timestamptz
	)
	if err := row.Scan(&g.ID, &g.SessionUUID, &g.SlotID, &g.EnvName, &g.Status, &g.EpisodeBudget, &g.EpisodesPlayed,
		&g.Humans, &g.Bots, &g.TotalRewards, &g.TotalPositive, &g.TotalNegative, &g.CreatedAt, &ended, &g.EndReason); err != nil {
		return nil, err
	}
	g.EndedAt = timePtrVal(ended)
	return &g, nil
}

func (s *Store) InsertEpisode(ctx context.Context, e EpisodeRecord) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	_, err := s.Pool.Exec(ctx, `
INSERT INTO episodes (id, session_uuid, episode_num, ticks, humans, rewards, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_uuid, episode_num) DO NOTHING`,
		e.ID, e.SessionUUID, e.EpisodeNum, e.Ticks, nonNilStrings(e.Humans), nonNilFloats(e.Rewards), timestamptzParam(e.EndedAt),
	)
	return err
}

func (s *Store) ListEpisodes(ctx context.Context, sessionUUID string) ([]EpisodeRecord, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT id, session_uuid, episode_num, ticks, humans, rewards, ended_at
FROM episodes WHERE session_uuid = $1 ORDER BY episode_num`, sessionUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []EpisodeRecord{}
	for rows.Next() {
		var e EpisodeRecord
		if err := rows.Scan(&e.ID, &e.SessionUUID, &e.EpisodeNum, &e.Ticks, &e.Humans, &e.Rewards, &e.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nonNilStrings(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilFloats(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
