package compilestate

import (
	"errors"
	"sync"

	"github.com/quantadb/quantadb/ddl"
)

type (
	State string

	row struct {
		ddl   *ddl.Table
		owner string
		state State
	}

	// Registry tracks, per table, whether its helper module is compiling,
	// compiled, or failed, and which task owns the compile. It is rebuilt
	// on process restart.
	Registry struct {
		mu   sync.RWMutex
		rows map[string]row
	}
)

const (
	StateCompiling State = "compiling"
	StateCompiled  State = "compiled"
	StateFailed    State = "failed"
	StateNotFound  State = "not_found"
)

var (
	ErrNotFound     = errors.New("no row for owner")
	ErrUnknownState = errors.New("unknown compile state")
)

func New() *Registry {
	return &Registry{
		rows: make(map[string]row),
	}
}

// Insert unconditionally upserts a table's compile state.
func (r *Registry) Insert(table string, tbl *ddl.Table, owner string, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[table] = row{ddl: tbl, owner: owner, state: state}
}

// IsCompiling reports whether the table is currently compiling, and by whom.
func (r *Registry) IsCompiling(table string) (bool, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rw, ok := r.rows[table]
	if !ok || rw.state != StateCompiling {
		return false, ""
	}
	return true, rw.owner
}

func (r *Registry) GetState(table string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rw, ok := r.rows[table]
	if !ok {
		return StateNotFound
	}
	return rw.state
}

// DDL returns the table's schema as registered by the activation path.
func (r *Registry) DDL(table string) (*ddl.Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rw, ok := r.rows[table]
	if !ok {
		return nil, false
	}
	return rw.ddl, true
}

// UpdateState moves the row owned by owner to a new state, keeping its
// table and schema bindings. Owners are unique across live rows.
func (r *Registry) UpdateState(owner string, newState State) error {
	switch newState {
	case StateCompiling, StateCompiled, StateFailed:
	default:
		return ErrUnknownState
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for table, rw := range r.rows {
		if rw.owner == owner {
			rw.state = newState
			r.rows[table] = rw
			return nil
		}
	}
	return ErrNotFound
}
