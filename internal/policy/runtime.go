package policy

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"interactive-gym/internal/game"
)

var (
	ErrUnknownPolicy = errors.New("unknown policy")
	ErrBadHandle     = errors.New("policy handle not issued by this runtime")
)

// Handle is a loaded policy instance. One handle serves one bot role.
type Handle interface {
	Act(ctx context.Context, obs any) (game.Action, error)
}

type Factory func(seed int64) (Handle, error)

// Runtime loads policies by identifier and runs inference on them.
type Runtime struct {
	mu        sync.RWMutex
	factories map[string]Factory

	seedMu sync.Mutex
	seeds  *rand.Rand
}

// NewRuntime registers the builtin "random" and "noop" policies over actions.
func NewRuntime(actions []game.Action, seed int64) *Runtime {
	r := &Runtime{
		factories: map[string]Factory{},
		seeds:     rand.New(rand.NewPCG(uint64(seed), 0)),
	}
	r.Register("random", func(seed int64) (Handle, error) {
		return NewRandom(actions, seed)
	})
	r.Register("noop", func(int64) (Handle, error) {
		if len(actions) == 0 {
			return Constant(0), nil
		}
		return Constant(actions[0]), nil
	})
	return r
}

func (r *Runtime) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

func (r *Runtime) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for id := range r.factories {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Runtime) Load(id string) (game.Policy, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, id)
	}
	r.seedMu.Lock()
	seed := r.seeds.Int64()
	r.seedMu.Unlock()
	h, err := f(seed)
	if err != nil {
		return nil, fmt.Errorf("load policy %q: %w", id, err)
	}
	return h, nil
}

func (r *Runtime) Infer(ctx context.Context, obs any, p game.Policy) (game.Action, error) {
	h, ok := p.(Handle)
	if !ok {
		return 0, ErrBadHandle
	}
	return h.Act(ctx, obs)
}

type Random struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	actions []game.Action
}

func NewRandom(actions []game.Action, seed int64) (*Random, error) {
	if len(actions) == 0 {
		return nil, errors.New("random policy needs at least one action")
	}
	return &Random{
		rnd:     rand.New(rand.NewPCG(uint64(seed), 0)),
		actions: append([]game.Action(nil), actions...),
	}, nil
}

func (p *Random) Act(context.Context, any) (game.Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.actions[p.rnd.IntN(len(p.actions))], nil
}

type Constant game.Action

func (c Constant) Act(context.Context, any) (game.Action, error) {
	return game.Action(c), nil
}
