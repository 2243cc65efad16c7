package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Factory builds a fresh strategy for one run.
type Factory func(Params) (Strategy, error)

var registry = map[string]Factory{
	"arena":    func(p Params) (Strategy, error) { return NewArena(p) },
	"corridor": func(p Params) (Strategy, error) { return NewCorridor(p) },
	"branch":   func(p Params) (Strategy, error) { return NewBranch(p) },
	"star":     func(p Params) (Strategy, error) { return NewStar(p) },
}

// Names returns the registered strategy names in sorted order.
func Names() []string {
	names := lo.Keys(registry)
	sort.Strings(names)
	return names
}

// New builds the strategy named by p.Name.
func New(p Params) (Strategy, error) {
	f, ok := registry[strings.ToLower(p.Name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownStrategy, p.Name, strings.Join(Names(), ", "))
	}
	s, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", p.Name, err)
	}
	return s, nil
}
