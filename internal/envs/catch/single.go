package catch

import (
	"fmt"
	"image"

	"interactive-gym/internal/game"
)

// Single is the one-paddle form of catch. It reports a bare Observation and a
// scalar reward, so sessions drive it through game.WrapScalar.
type Single struct {
	env  *Env
	role game.Role
}

func NewSingle(role game.Role, p Params) (*Single, error) {
	env, err := New([]game.Role{role}, p)
	if err != nil {
		return nil, err
	}
	return &Single{env: env, role: role}, nil
}

func (s *Single) Reset(seed *int64) (any, error) {
	obs, err := s.env.Reset(seed)
	if err != nil {
		return nil, err
	}
	return obs[s.role], nil
}

func (s *Single) Step(action game.Action) (any, float64, bool, bool, error) {
	res, err := s.env.Step(map[game.Role]game.Action{s.role: action})
	if err != nil {
		return nil, 0, false, false, err
	}
	return res.Observations[s.role], res.Rewards[s.role], res.Terminated.All(), res.Truncated.All(), nil
}

func (s *Single) RenderFrame() (image.Image, error) { return s.env.RenderFrame() }

// unwrap finds the board behind either form of the environment.
func unwrap(env game.Environment) (*Env, error) {
	switch e := env.(type) {
	case *Env:
		return e, nil
	case interface{ Unwrap() game.ScalarEnvironment }:
		if s, ok := e.Unwrap().(*Single); ok {
			return s.env, nil
		}
	}
	return nil, fmt.Errorf("catch: state for %T", env)
}
