package arena

import (
	"sync"
	"time"

	"interactive-gym/internal/game"
)

type ParticipantInfo struct {
	SessionUUID string    `json:"session_uuid"`
	Role        game.Role `json:"role"`
	PingMS      int       `json:"ping_ms"`
	InFocus     bool      `json:"in_focus"`
	LastSeen    time.Time `json:"last_seen"`
}

type participant struct {
	session *game.Session
	info    ParticipantInfo
}

// directory maps participant ids to their session. Input handlers read it
// without taking the coordinator lock.
type directory struct {
	mu   sync.RWMutex
	byID map[string]*participant
}

func newDirectory() *directory {
	return &directory{byID: map[string]*participant{}}
}

func (d *directory) get(id string) (*participant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.byID[id]
	return p, ok
}

func (d *directory) put(id string, p *participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[id] = p
}

func (d *directory) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byID, id)
}

func (d *directory) info(id string) (ParticipantInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.byID[id]
	if !ok {
		return ParticipantInfo{}, false
	}
	return p.info, true
}

func (d *directory) touch(id string, at time.Time, fn func(*ParticipantInfo)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return false
	}
	if fn != nil {
		fn(&p.info)
	}
	p.info.LastSeen = at
	return true
}

func (d *directory) len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}
