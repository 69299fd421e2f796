package compute

import (
	"time"

	"github.com/gbl08ma/sqalx"
	cache "github.com/patrickmn/go-cache"
	"github.com/underlx/disturbancesvie/types"
)

// LineStore finds persisted lines, creating missing ones
type LineStore interface {
	FindOrCreateLine(code, typeString string) (*types.Line, error)
}

// NodeLineStore is a LineStore that operates on a sqalx node, usually the
// transaction of the current cycle
type NodeLineStore struct {
	Node sqalx.Node
}

// FindOrCreateLine implements LineStore
func (s NodeLineStore) FindOrCreateLine(code, typeString string) (*types.Line, error) {
	return types.FindOrCreateLine(s.Node, code, typeString)
}

// NewLineCache returns a cache suitable for sharing known lines between cycles
func NewLineCache() *cache.Cache {
	return cache.New(1*time.Hour, 30*time.Minute)
}

// LineRegistry resolves feed line codes to persisted lines during one cycle.
// Each code hits the store at most once per cycle, and codes known from past
// cycles don't hit it at all.
type LineRegistry struct {
	store    LineStore
	known    *cache.Cache
	resolved map[string]*types.Line
}

// NewLineRegistry returns a LineRegistry for a single cycle. known may be shared
// across cycles.
func NewLineRegistry(store LineStore, known *cache.Cache) *LineRegistry {
	if known == nil {
		known = NewLineCache()
	}
	return &LineRegistry{
		store:    store,
		known:    known,
		resolved: make(map[string]*types.Line),
	}
}

// ResolveLine implements wlscraper.LineResolver
func (r *LineRegistry) ResolveLine(code, typeString string) (*types.Line, error) {
	if line, ok := r.resolved[code]; ok {
		return line, nil
	}
	if v, ok := r.known.Get(code); ok {
		l := *(v.(*types.Line))
		r.resolved[code] = &l
		return &l, nil
	}
	line, err := r.store.FindOrCreateLine(code, typeString)
	if err != nil {
		return nil, &StorageError{Op: "resolve line " + code, Err: err}
	}
	r.resolved[code] = line
	return line, nil
}

// Commit makes the lines resolved in this cycle known to future cycles.
// Call only after the cycle transaction has been committed.
func (r *LineRegistry) Commit() {
	for code, line := range r.resolved {
		l := *line
		r.known.SetDefault(code, &l)
	}
}
