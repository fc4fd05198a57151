package store

import (
	"context"
	"expvar"
	"time"

	"interactive-gym/internal/arena"
	"interactive-gym/internal/game"

	"github.com/rs/zerolog/log"
)

var (
	metricRecorderDropped = expvar.NewInt("recorder_dropped_total")
	metricRecorderWritten = expvar.NewInt("recorder_written_total")
	metricRecorderErrors  = expvar.NewInt("recorder_errors_total")
)

const defaultRecorderBuffer = 256

// Sink is the write side of Store used by Recorder.
type Sink interface {
	UpsertGame(ctx context.Context, g GameRecord) error
	InsertEpisode(ctx context.Context, e EpisodeRecord) error
}

type record struct {
	game    *GameRecord
	episode *EpisodeRecord
}

// Recorder turns session lifecycle callbacks into game and episode rows.
// Callbacks only enqueue; Run does the writes so the game loop never waits
// on the database. A full queue drops the record.
type Recorder struct {
	arena.NopCallbacks

	sink    Sink
	envName string
	queue   chan record
	now     func() time.Time
}

func NewRecorder(sink Sink, envName string, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultRecorderBuffer
	}
	return &Recorder{
		sink:    sink,
		envName: envName,
		queue:   make(chan record, buffer),
		now:     time.Now,
	}
}

func (r *Recorder) OnEpisodeStart(s *game.Session) {
	snap := s.Snapshot()
	if snap.EpisodeNum != 1 {
		return
	}
	g := r.gameRecord(snap)
	r.enqueue(record{game: &g})
}

func (r *Recorder) OnEpisodeEnd(s *game.Session) {
	snap := s.Snapshot()
	r.enqueue(record{episode: &EpisodeRecord{
		ID:          NewID(),
		SessionUUID: snap.UUID,
		EpisodeNum:  snap.EpisodeNum,
		Ticks:       snap.TickNum,
		Humans:      roleStrings(snap.Humans),
		Rewards:     roleFloats(snap.EpisodeRewards),
		EndedAt:     r.now().UTC(),
	}})
}

func (r *Recorder) OnGameEnd(s *game.Session) {
	snap := s.Snapshot()
	g := r.gameRecord(snap)
	ended := r.now().UTC()
	g.EndedAt = &ended
	r.enqueue(record{game: &g})
}

func (r *Recorder) gameRecord(snap game.Snapshot) GameRecord {
	return GameRecord{
		SessionUUID:    snap.UUID,
		SlotID:         snap.SlotID,
		EnvName:        r.envName,
		Status:         snap.Status.String(),
		EndReason:      snap.EndReason,
		EpisodeBudget:  snap.EpisodeBudget,
		EpisodesPlayed: snap.EpisodeNum,
		Humans:         roleStrings(snap.Humans),
		Bots:           roleStrings(snap.Bots),
		TotalRewards:   roleFloats(snap.TotalRewards),
		TotalPositive:  roleFloats(snap.TotalPositive),
		TotalNegative:  roleFloats(snap.TotalNegative),
		CreatedAt:      snap.CreatedAt.UTC(),
	}
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.queue <- rec:
	default:
		metricRecorderDropped.Add(1)
		log.Warn().Msg("recorder_queue_full")
	}
}

// Run writes queued records until ctx ends, then flushes what is left
// with a short grace period.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			for {
				select {
				case rec := <-r.queue:
					r.write(flushCtx, rec)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec record) {
	var err error
	var uuid string
	switch {
	case rec.game != nil:
		uuid = rec.game.SessionUUID
		err = r.sink.UpsertGame(ctx, *rec.game)
	case rec.episode != nil:
		uuid = rec.episode.SessionUUID
		err = r.sink.InsertEpisode(ctx, *rec.episode)
	}
	if err != nil {
		metricRecorderErrors.Add(1)
		log.Error().Err(err).Str("session_uuid", uuid).Msg("record_write_failed")
		return
	}
	metricRecorderWritten.Add(1)
}

func roleStrings(m map[game.Role]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func roleFloats(m map[game.Role]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
