package game

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

type Role string

type Action int

const (
	// HumanPolicy marks a role in the policy mapping that is filled by a participant.
	HumanPolicy = "human"
	// Available is the occupant of a human role nobody has claimed yet.
	Available = ""
	// AllRoles is the aggregate key of per-role termination flags.
	AllRoles Role = "__all__"
)

type Status int

const (
	StatusInactive Status = iota
	StatusActive
	StatusResetPending
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusResetPending:
		return "reset_pending"
	case StatusDone:
		return "done"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type TickOutcome int

const (
	TickContinue TickOutcome = iota
	TickEpisodeBoundary
	TickSessionDone
)

func (o TickOutcome) String() string {
	switch o {
	case TickContinue:
		return "continue"
	case TickEpisodeBoundary:
		return "episode_boundary"
	case TickSessionDone:
		return "session_done"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// PopulationPolicy decides what a role submits on a tick without fresh input.
type PopulationPolicy string

const (
	PopulateDefaultAction           PopulationPolicy = "default_action"
	PopulatePreviousSubmittedAction PopulationPolicy = "previous_submitted_action"
)

func ParsePopulationPolicy(v string) (PopulationPolicy, error) {
	switch PopulationPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case "", PopulateDefaultAction:
		return PopulateDefaultAction, nil
	case PopulatePreviousSubmittedAction:
		return PopulatePreviousSubmittedAction, nil
	default:
		return "", fmt.Errorf("%w: unknown action population method %q", ErrInvalidConfig, v)
	}
}

type Observations map[Role]any

// Flags is a per-role termination or truncation mapping. AllRoles, when
// present, overrides the per-role values.
type Flags map[Role]bool

func (f Flags) All() bool {
	if v, ok := f[AllRoles]; ok {
		return v
	}
	if len(f) == 0 {
		return false
	}
	for _, v := range f {
		if !v {
			return false
		}
	}
	return true
}

type StepResult struct {
	Observations Observations
	Rewards      map[Role]float64
	Terminated   Flags
	Truncated    Flags
}

type Environment interface {
	Reset(seed *int64) (Observations, error)
	Step(actions map[Role]Action) (StepResult, error)
	MultiAgent() bool
}

// FrameRenderer is implemented by environments that can draw themselves.
type FrameRenderer interface {
	RenderFrame() (image.Image, error)
}

type FrameEncoder interface {
	Encode(img image.Image) ([]byte, error)
}

type StateFunc func(env Environment) (any, error)

type HUDFunc func(snap Snapshot) string

// Policy is an opaque handle returned by a PolicyRuntime.
type Policy any

type PolicyRuntime interface {
	Load(id string) (Policy, error)
	Infer(ctx context.Context, obs any, p Policy) (Action, error)
}

var (
	ErrInvalidConfig       = errors.New("invalid session config")
	ErrNoRenderer          = errors.New("no state function and no frame encoder for environment")
	ErrRoleUnavailable     = errors.New("role unavailable")
	ErrUnknownRole         = errors.New("unknown human role")
	ErrAlreadyBound        = errors.New("participant already bound in session")
	ErrParticipantNotFound = errors.New("participant not found in session")
	ErrNotActive           = errors.New("session not active")
	ErrAlreadyTornDown     = errors.New("session already torn down")
	ErrNoResetPending      = errors.New("no reset pending")
	ErrUnknownParticipant  = errors.New("participant not part of reset")
	ErrBarrierCancelled    = errors.New("reset barrier cancelled")
)
