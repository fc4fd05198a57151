package input

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"interactive-gym/internal/game"
)

var ErrInvalidBinding = errors.New("invalid key binding")

type Binding struct {
	Keys   []string
	Action game.Action
}

// Translator maps pressed key sets to environment actions. Chorded bindings
// are stored under their sorted key tuple so press order does not matter.
type Translator struct {
	singles    map[string]game.Action
	composites map[string]game.Action
	arity      int
}

func NewTranslator(bindings []Binding) (*Translator, error) {
	t := &Translator{
		singles:    map[string]game.Action{},
		composites: map[string]game.Action{},
	}
	for _, b := range bindings {
		switch len(b.Keys) {
		case 0:
			return nil, fmt.Errorf("%w: no keys for action %d", ErrInvalidBinding, b.Action)
		case 1:
			k := b.Keys[0]
			if k == "" {
				return nil, fmt.Errorf("%w: empty key for action %d", ErrInvalidBinding, b.Action)
			}
			if _, dup := t.singles[k]; dup {
				return nil, fmt.Errorf("%w: key %q bound twice", ErrInvalidBinding, k)
			}
			t.singles[k] = b.Action
		default:
			keys := append([]string(nil), b.Keys...)
			sort.Strings(keys)
			for i, k := range keys {
				if k == "" || (i > 0 && keys[i-1] == k) {
					return nil, fmt.Errorf("%w: composite %v", ErrInvalidBinding, b.Keys)
				}
			}
			id := compositeID(keys)
			if _, dup := t.composites[id]; dup {
				return nil, fmt.Errorf("%w: composite %v bound twice", ErrInvalidBinding, keys)
			}
			t.composites[id] = b.Action
			if len(keys) > t.arity {
				t.arity = len(keys)
			}
		}
	}
	return t, nil
}

// MaxArity is the largest composite size, or 0 without composites.
func (t *Translator) MaxArity() int {
	return t.arity
}

// Resolve picks at most one action for the pressed keys. Only combinations of
// exactly MaxArity keys are tested against composites.
func (t *Translator) Resolve(pressed []string) (game.Action, bool) {
	keys := dedupe(pressed)
	if len(keys) > 1 {
		if t.arity == 0 {
			keys = keys[:1]
		} else if a, ok := t.matchComposite(keys); ok {
			return a, true
		}
	}
	for _, k := range keys {
		if a, ok := t.singles[k]; ok {
			return a, true
		}
	}
	return 0, false
}

func (t *Translator) matchComposite(keys []string) (game.Action, bool) {
	if len(keys) < t.arity {
		return 0, false
	}
	var (
		found  game.Action
		ok     bool
		combo  = make([]string, t.arity)
		sorted = make([]string, t.arity)
	)
	var walk func(start, depth int) bool
	walk = func(start, depth int) bool {
		if depth == t.arity {
			copy(sorted, combo)
			sort.Strings(sorted)
			if a, hit := t.composites[compositeID(sorted)]; hit {
				found, ok = a, true
				return true
			}
			return false
		}
		for i := start; i <= len(keys)-(t.arity-depth); i++ {
			combo[depth] = keys[i]
			if walk(i+1, depth+1) {
				return true
			}
		}
		return false
	}
	walk(0, 0)
	return found, ok
}

func compositeID(sorted []string) string {
	return strings.Join(sorted, "\x1f")
}

func dedupe(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
