package core

import (
	"sort"
	"sync"

	"github.com/web3guy0/trailguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION STORE - At most one tracked position per symbol
// ═══════════════════════════════════════════════════════════════════════════════

type slot struct {
	mu  sync.Mutex
	pos *types.Position
}

// PositionStore serializes every state-machine step per symbol
type PositionStore struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewPositionStore creates an empty store
func NewPositionStore() *PositionStore {
	return &PositionStore{
		slots: make(map[string]*slot),
	}
}

func (s *PositionStore) slot(symbol string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[symbol]
	if !ok {
		sl = &slot{}
		s.slots[symbol] = sl
	}
	return sl
}

// Apply runs fn with the symbol locked. fn may mutate cur in place and
// returns the position to keep (nil removes it). When fn fails the stored
// value is left as it was.
func (s *PositionStore) Apply(symbol string, fn func(cur *types.Position) (*types.Position, error)) error {
	sl := s.slot(symbol)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	next, err := fn(sl.pos)
	if err != nil {
		return err
	}
	sl.pos = next
	return nil
}

// Get returns a copy of the position for symbol. It waits for any step in
// progress on that symbol.
func (s *PositionStore) Get(symbol string) (*types.Position, bool) {
	sl := s.slot(symbol)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.pos == nil {
		return nil, false
	}
	return sl.pos.Clone(), true
}

// Symbols lists symbols that currently hold a position
func (s *PositionStore) Symbols() []string {
	s.mu.Lock()
	slots := make(map[string]*slot, len(s.slots))
	for k, v := range s.slots {
		slots[k] = v
	}
	s.mu.Unlock()

	var out []string
	for sym, sl := range slots {
		sl.mu.Lock()
		if sl.pos != nil {
			out = append(out, sym)
		}
		sl.mu.Unlock()
	}
	sort.Strings(out)
	return out
}
