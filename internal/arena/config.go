package arena

import (
	"errors"
	"fmt"
	"time"

	"interactive-gym/internal/game"
	"interactive-gym/internal/input"
	"interactive-gym/internal/slots"
)

type InputMode string

const (
	InputPressedKeys    InputMode = "pressed_keys"
	InputSingleKeypress InputMode = "single_keypress"
)

func ParseInputMode(v string) (InputMode, error) {
	switch InputMode(v) {
	case InputPressedKeys, InputSingleKeypress:
		return InputMode(v), nil
	}
	return "", fmt.Errorf("unknown input mode %q", v)
}

type Config struct {
	Session game.Config
	FPS     int
	// WaitroomTimeout bounds how long a lobby waits for players. Zero waits
	// forever.
	WaitroomTimeout time.Duration
	InputMode       InputMode
	ResetFreeze     time.Duration
	// ResetTimeout is the countdown shown by clients in game_reset.
	ResetTimeout time.Duration
	// ResetAckDeadline ends the game when reset acknowledgements take longer.
	// Zero waits until every participant acks or leaves.
	ResetAckDeadline time.Duration
	EnvSeed          int64
	RandomSeed       bool
	SceneMetadata    map[string]any
	PageTextFn       func(participantID string) string
}

func (c Config) period() time.Duration {
	return time.Second / time.Duration(c.FPS)
}

func (c Config) validate() error {
	if c.FPS < 1 {
		return fmt.Errorf("%w: fps must be >= 1", game.ErrInvalidConfig)
	}
	if _, err := ParseInputMode(string(c.InputMode)); err != nil {
		return fmt.Errorf("%w: %v", game.ErrInvalidConfig, err)
	}
	humans := 0
	for _, r := range c.Session.Roles {
		if r.Policy == game.HumanPolicy {
			humans++
		}
	}
	if humans == 0 {
		return fmt.Errorf("%w: no human roles", game.ErrInvalidConfig)
	}
	return nil
}

// EnvFactory builds a fresh environment for each new session.
type EnvFactory func() (game.Environment, error)

type Deps struct {
	Slots      *slots.Registry
	NewEnv     EnvFactory
	Policies   game.PolicyRuntime
	Translator *input.Translator
	Transport  Transport
	Encoder    game.FrameEncoder
	// NewID names sessions; the session default is used when nil.
	NewID func() string
}

func (d Deps) validate() error {
	switch {
	case d.Slots == nil:
		return errors.New("arena: slot registry required")
	case d.NewEnv == nil:
		return errors.New("arena: env factory required")
	case d.Translator == nil:
		return errors.New("arena: action translator required")
	case d.Transport == nil:
		return errors.New("arena: transport required")
	}
	return nil
}

type Option func(*Coordinator)

func WithCallbacks(cb Callbacks) Option {
	return func(c *Coordinator) {
		if cb != nil {
			c.hooks = cb
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}
