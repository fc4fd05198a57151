package arena

import "interactive-gym/internal/game"

// Callbacks observe a session's lifecycle. They run on the game loop or with
// the coordinator locked and must not call back into the Coordinator.
type Callbacks interface {
	OnEpisodeStart(s *game.Session)
	OnEpisodeEnd(s *game.Session)
	OnGameTickStart(s *game.Session)
	OnGameTickEnd(s *game.Session)
	OnGameEnd(s *game.Session)
}

// LobbyCallbacks is implemented by callbacks that also want waiting-room
// events.
type LobbyCallbacks interface {
	OnWaitroomJoin(s *game.Session, participantID string)
	OnWaitroomTimeout(s *game.Session)
}

type NopCallbacks struct{}

func (NopCallbacks) OnEpisodeStart(*game.Session)  {}
func (NopCallbacks) OnEpisodeEnd(*game.Session)    {}
func (NopCallbacks) OnGameTickStart(*game.Session) {}
func (NopCallbacks) OnGameTickEnd(*game.Session)   {}
func (NopCallbacks) OnGameEnd(*game.Session)       {}

// MultiCallbacks fans every hook out in order.
type MultiCallbacks []Callbacks

func (m MultiCallbacks) OnEpisodeStart(s *game.Session) {
	for _, cb := range m {
		cb.OnEpisodeStart(s)
	}
}

func (m MultiCallbacks) OnEpisodeEnd(s *game.Session) {
	for _, cb := range m {
		cb.OnEpisodeEnd(s)
	}
}

func (m MultiCallbacks) OnGameTickStart(s *game.Session) {
	for _, cb := range m {
		cb.OnGameTickStart(s)
	}
}

func (m MultiCallbacks) OnGameTickEnd(s *game.Session) {
	for _, cb := range m {
		cb.OnGameTickEnd(s)
	}
}

func (m MultiCallbacks) OnGameEnd(s *game.Session) {
	for _, cb := range m {
		cb.OnGameEnd(s)
	}
}

func (m MultiCallbacks) OnWaitroomJoin(s *game.Session, participantID string) {
	for _, cb := range m {
		if lc, ok := cb.(LobbyCallbacks); ok {
			lc.OnWaitroomJoin(s, participantID)
		}
	}
}

func (m MultiCallbacks) OnWaitroomTimeout(s *game.Session) {
	for _, cb := range m {
		if lc, ok := cb.(LobbyCallbacks); ok {
			lc.OnWaitroomTimeout(s)
		}
	}
}
