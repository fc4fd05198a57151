package slots

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrExhausted   = errors.New("no free game slot")
	ErrNotInUse    = errors.New("slot released while free")
	ErrUnknownSlot = errors.New("unknown slot")
)

// Registry is a fixed pool of game slot ids. Released ids go to the back of
// the free queue.
type Registry struct {
	mu    sync.Mutex
	free  []int
	inUse []bool
	used  int
}

func NewRegistry(max int) *Registry {
	if max < 0 {
		max = 0
	}
	r := &Registry{
		free:  make([]int, 0, max),
		inUse: make([]bool, max),
	}
	for i := 0; i < max; i++ {
		r.free = append(r.free, i)
	}
	return r
}

func (r *Registry) Acquire() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.free) == 0 {
		return 0, ErrExhausted
	}
	id := r.free[0]
	r.free = r.free[1:]
	r.inUse[id] = true
	r.used++
	return id, nil
}

// Release returns id to the pool. Releasing a free or unknown id is a
// lifecycle bug; the pool is left untouched and an error is returned.
func (r *Registry) Release(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.inUse) {
		return fmt.Errorf("%w: %d", ErrUnknownSlot, id)
	}
	if !r.inUse[id] {
		return fmt.Errorf("%w: %d", ErrNotInUse, id)
	}
	r.inUse[id] = false
	r.used--
	r.free = append(r.free, id)
	return nil
}

func (r *Registry) InUse() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

func (r *Registry) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.free)
}

func (r *Registry) Capacity() int {
	return len(r.inUse)
}
