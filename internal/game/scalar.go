package game

import (
	"fmt"
	"image"
)

// ScalarEnvironment is a single-role environment that reports one observation,
// one reward and plain termination booleans.
type ScalarEnvironment interface {
	Reset(seed *int64) (any, error)
	Step(action Action) (obs any, reward float64, terminated, truncated bool, err error)
}

// WrapScalar adapts a ScalarEnvironment to Environment. Observations and
// rewards are keyed under role, so reward accounting sees one shape.
func WrapScalar(env ScalarEnvironment, role Role) Environment {
	return &scalarEnv{inner: env, role: role}
}

type scalarEnv struct {
	inner ScalarEnvironment
	role  Role
}

func (e *scalarEnv) MultiAgent() bool { return false }

func (e *scalarEnv) Unwrap() ScalarEnvironment { return e.inner }

func (e *scalarEnv) Reset(seed *int64) (Observations, error) {
	obs, err := e.inner.Reset(seed)
	if err != nil {
		return nil, err
	}
	return Observations{e.role: obs}, nil
}

func (e *scalarEnv) Step(actions map[Role]Action) (StepResult, error) {
	action, ok := actions[e.role]
	if !ok {
		return StepResult{}, fmt.Errorf("no action for role %q", e.role)
	}
	obs, reward, terminated, truncated, err := e.inner.Step(action)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{
		Observations: Observations{e.role: obs},
		Rewards:      map[Role]float64{e.role: reward},
		Terminated:   Flags{AllRoles: terminated},
		Truncated:    Flags{AllRoles: truncated},
	}, nil
}

func (e *scalarEnv) RenderFrame() (image.Image, error) {
	fr, ok := e.inner.(FrameRenderer)
	if !ok {
		return nil, ErrNoRenderer
	}
	return fr.RenderFrame()
}

func frameRenderer(env Environment) (FrameRenderer, bool) {
	if se, ok := env.(*scalarEnv); ok {
		if _, ok := se.inner.(FrameRenderer); !ok {
			return nil, false
		}
		return se, true
	}
	fr, ok := env.(FrameRenderer)
	return fr, ok
}
