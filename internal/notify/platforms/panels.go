package platforms

import (
	"strings"
	"sync"
)

// panelIDs remembers the platform message id behind each panel.
type panelIDs struct {
	mu sync.Mutex
	by map[string]string
}

func newPanelIDs() *panelIDs {
	return &panelIDs{by: map[string]string{}}
}

func panelID(endpoint, panelKey string) string {
	return strings.TrimSpace(endpoint) + "|" + strings.TrimSpace(panelKey)
}

func (p *panelIDs) get(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.by[key]
}

func (p *panelIDs) set(key, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.by[key] = id
}

func (p *panelIDs) forget(endpoint, panelKey string) {
	if strings.TrimSpace(endpoint) == "" && strings.TrimSpace(panelKey) == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.by, panelID(endpoint, panelKey))
}

func (p *panelIDs) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.by)
}
