package game

import "sync/atomic"

// mailbox holds the latest unconsumed action for one human role.
type mailbox struct {
	v atomic.Pointer[Action]
}

func (m *mailbox) put(a Action) {
	m.v.Store(&a)
}

func (m *mailbox) take() (Action, bool) {
	p := m.v.Swap(nil)
	if p == nil {
		return 0, false
	}
	return *p, true
}

func (m *mailbox) clear() {
	m.v.Store(nil)
}
