package notify

import (
	"context"
	"errors"
	"time"

	"interactive-gym/internal/notify/platforms"

	"github.com/rs/zerolog/log"
)

var errCircuitOpen = errors.New("circuit open")

const drainTimeout = 2 * time.Second

func (m *Manager) worker(ctx context.Context, ch chan job) {
	for {
		select {
		case j := <-ch:
			m.process(ctx, j)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			for {
				select {
				case j := <-ch:
					m.process(drainCtx, j)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) process(ctx context.Context, j job) {
	adapter := m.adapters[j.target.Platform]
	if adapter == nil {
		metricDroppedTotal.Add(1)
		return
	}
	key := j.target.key()

	if err := m.beforeSend(key, m.now()); err != nil {
		metricCircuitOpenTotal.Add(1)
		m.retryOrDrop(adapter, j, err)
		return
	}
	if err := adapter.Send(ctx, j.target.Endpoint, j.target.Secret, j.msg); err != nil {
		metricFailedTotal.Add(1)
		m.afterFailure(key, m.now())
		m.retryOrDrop(adapter, j, err)
		return
	}

	metricSentTotal.Add(1)
	m.afterSuccess(key)
	if j.terminal {
		forgetPanel(adapter, j)
	}
}

func (m *Manager) retryOrDrop(adapter platforms.Adapter, j job, err error) {
	if j.attempt >= m.cfg.RetryMax {
		metricRetryDroppedTotal.Add(1)
		log.Warn().Err(err).Str("session_uuid", j.event.SessionUUID).Str("event", j.event.Type).Str("platform", j.target.Platform).Int("attempts", j.attempt+1).Msg("notify_dropped")
		if j.terminal {
			forgetPanel(adapter, j)
		}
		return
	}
	j.attempt++
	metricRetryTotal.Add(1)
	m.retryLater(j, m.cfg.RetryBase*time.Duration(1<<(j.attempt-1)))
}

// retryLater puts j back on its worker after delay unless the manager has
// stopped.
func (m *Manager) retryLater(j job, delay time.Duration) {
	time.AfterFunc(max(delay, 0), func() {
		select {
		case <-m.done:
		case m.shard(j) <- j:
		}
	})
}

func forgetPanel(adapter platforms.Adapter, j job) {
	if f, ok := adapter.(platforms.PanelForgetter); ok && j.msg.PanelKey != "" {
		f.ForgetPanel(j.target.Endpoint, j.msg.PanelKey)
	}
}

func (m *Manager) beforeSend(key string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.breakers[key]; now.Before(st.openUntil) {
		return errCircuitOpen
	}
	return nil
}

func (m *Manager) afterFailure(key string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.breakers[key]
	st.consecutiveFailures++
	if st.consecutiveFailures >= m.cfg.FailureThreshold {
		st.openUntil = now.Add(m.cfg.CircuitOpenDuration)
		st.consecutiveFailures = 0
	}
	m.breakers[key] = st
}

func (m *Manager) afterSuccess(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, key)
}
