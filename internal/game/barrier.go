package game

import (
	"context"
	"sync"
)

// ResetBarrier completes once every remaining participant has acknowledged.
// It is cancelled when its participant set becomes empty.
type ResetBarrier struct {
	mu        sync.Mutex
	pending   map[string]bool
	done      chan struct{}
	finished  bool
	cancelled bool
}

func NewResetBarrier(participants []string) *ResetBarrier {
	b := &ResetBarrier{
		pending: make(map[string]bool, len(participants)),
		done:    make(chan struct{}),
	}
	for _, p := range participants {
		b.pending[p] = false
	}
	b.mu.Lock()
	b.evaluateLocked()
	b.mu.Unlock()
	return b
}

func (b *ResetBarrier) Ack(participantID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[participantID]; !ok {
		return ErrUnknownParticipant
	}
	b.pending[participantID] = true
	b.evaluateLocked()
	return nil
}

func (b *ResetBarrier) Remove(participantID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, participantID)
	b.evaluateLocked()
}

func (b *ResetBarrier) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return
	}
	b.cancelled = true
	b.finishLocked()
}

// Wait blocks until completion, cancellation or ctx expiry.
func (b *ResetBarrier) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		b.mu.Lock()
		cancelled := b.cancelled
		b.mu.Unlock()
		if cancelled {
			return ErrBarrierCancelled
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *ResetBarrier) Done() <-chan struct{} {
	return b.done
}

// Outstanding returns participants that have not acknowledged yet.
func (b *ResetBarrier) Outstanding() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.pending))
	for id, acked := range b.pending {
		if !acked {
			out = append(out, id)
		}
	}
	return out
}

func (b *ResetBarrier) evaluateLocked() {
	if b.finished {
		return
	}
	if len(b.pending) == 0 {
		b.cancelled = true
		b.finishLocked()
		return
	}
	for _, acked := range b.pending {
		if !acked {
			return
		}
	}
	b.finishLocked()
}

func (b *ResetBarrier) finishLocked() {
	b.finished = true
	close(b.done)
}
