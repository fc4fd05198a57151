package arena

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultJanitorInterval = time.Second

// StartJanitor expires idle lobbies every interval until ctx is done.
func (c *Coordinator) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultJanitorInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.ExpireLobbies(c.now())
			}
		}
	}()
}

// ExpireLobbies closes every waiting session whose deadline is before now and
// returns how many were closed.
func (c *Coordinator) ExpireLobbies(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expireLobbiesLocked(now)
}

func (c *Coordinator) expireLobbiesLocked(now time.Time) int {
	var expired []*gameEntry
	for _, e := range c.waiting {
		if !e.deadline.IsZero() && now.After(e.deadline) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		s := e.session
		c.deps.Transport.Broadcast(s.UUID(), EventWaitingRoomTimeout, EmptyPayload{})
		if lc, ok := c.hooks.(LobbyCallbacks); ok {
			lc.OnWaitroomTimeout(s)
		}
		c.closeGameLocked(e, "", "")
		metricLobbyExpired.Add(1)
		log.Info().Str("session_uuid", s.UUID()).Int("slot_id", e.slotID).Msg("lobby_expired")
	}
	return len(expired)
}
