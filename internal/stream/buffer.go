// Package stream keeps a short history of each session's broadcasts for
// spectators and writes it out as server-sent events.
package stream

import (
	"strconv"
	"sync"
	"time"
)

const DefaultBufferSize = 64

type Event struct {
	ID          string `json:"id"`
	Event       string `json:"event"`
	SessionUUID string `json:"session_uuid"`
	ServerTS    int64  `json:"server_ts"`
	Data        any    `json:"data"`
}

// Buffer is a bounded, ordered log of events for one session. Slow watchers
// miss events rather than block the publisher.
type Buffer struct {
	session string

	mu       sync.Mutex
	seq      uint64
	max      int
	events   []Event
	watchers map[chan Event]struct{}
	closed   bool
}

func NewBuffer(sessionUUID string, max int) *Buffer {
	if max <= 0 {
		max = DefaultBufferSize
	}
	return &Buffer{
		session:  sessionUUID,
		max:      max,
		watchers: map[chan Event]struct{}{},
	}
}

func (b *Buffer) Append(event string, data any) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Event{}, false
	}
	b.seq++
	ev := Event{
		ID:          strconv.FormatUint(b.seq, 10),
		Event:       event,
		SessionUUID: b.session,
		ServerTS:    time.Now().UnixMilli(),
		Data:        data,
	}
	b.events = append(b.events, ev)
	if over := len(b.events) - b.max; over > 0 {
		b.events = append(b.events[:0], b.events[over:]...)
	}
	for ch := range b.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev, true
}

// Since returns buffered events newer than lastID. An empty or malformed id
// replays everything still held.
func (b *Buffer) Since(lastID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	last, err := strconv.ParseUint(lastID, 10, 64)
	if err != nil {
		last = 0
	}
	out := make([]Event, 0, len(b.events))
	for _, ev := range b.events {
		id, _ := strconv.ParseUint(ev.ID, 10, 64)
		if id > last {
			out = append(out, ev)
		}
	}
	return out
}

func (b *Buffer) Subscribe() chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.watchers[ch] = struct{}{}
	return ch
}

func (b *Buffer) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watchers[ch]; ok {
		delete(b.watchers, ch)
		close(ch)
	}
}

// Close ends every subscription. Appends after Close are dropped.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.watchers {
		close(ch)
		delete(b.watchers, ch)
	}
}

// Rooms tracks one Buffer per live session.
type Rooms struct {
	size int

	mu      sync.RWMutex
	buffers map[string]*Buffer
}

func NewRooms(size int) *Rooms {
	return &Rooms{size: size, buffers: map[string]*Buffer{}}
}

// Open returns the session's buffer, creating it on first use.
func (r *Rooms) Open(sessionUUID string) *Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buffers[sessionUUID]; ok {
		return b
	}
	b := NewBuffer(sessionUUID, r.size)
	r.buffers[sessionUUID] = b
	return b
}

func (r *Rooms) Get(sessionUUID string) (*Buffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buffers[sessionUUID]
	return b, ok
}

func (r *Rooms) Close(sessionUUID string) {
	r.mu.Lock()
	b, ok := r.buffers[sessionUUID]
	delete(r.buffers, sessionUUID)
	r.mu.Unlock()
	if ok {
		b.Close()
	}
}

func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buffers)
}
