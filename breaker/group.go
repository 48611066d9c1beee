package breaker

import (
	"sync"
	"time"
)

// Group hands out one Breaker per entity name, created on first use with a
// shared Config.
type Group struct {
	cfg      Config
	nowFunc  func() time.Time
	onChange StateChangeFunc

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates an empty Group.
func NewGroup(cfg Config) *Group {
	return &Group{
		cfg:      cfg,
		nowFunc:  time.Now,
		breakers: make(map[string]*Breaker),
	}
}

// Notify installs fn as the transition hook of every breaker the group
// creates from now on. It returns g.
func (g *Group) Notify(fn StateChangeFunc) *Group {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
	return g
}

// For returns the breaker for entity.
func (g *Group) For(entity string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[entity]
	if !ok {
		b = newWithClock(g.cfg, g.nowFunc)
		b.name = entity
		b.onChange = g.onChange
		g.breakers[entity] = b
	}
	return b
}

// States returns a snapshot of every known breaker's state.
func (g *Group) States() map[string]State {
	g.mu.Lock()
	names := make([]string, 0, len(g.breakers))
	bs := make([]*Breaker, 0, len(g.breakers))
	for name, b := range g.breakers {
		names = append(names, name)
		bs = append(bs, b)
	}
	g.mu.Unlock()

	out := make(map[string]State, len(names))
	for i, name := range names {
		out[name] = bs[i].State()
	}
	return out
}
