// Package memdb is an in-memory hostdb engine. Committed state is
// copy-on-write: readonly scopes read the snapshot current at Begin and
// never block, readwrite scopes and upgrades run one at a time.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

type state struct {
	version     int
	collections map[string]*collection
}

func (s *state) topology() types.Topology {
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	sort.Strings(names)

	topo := make(types.Topology, 0, len(names))
	for _, n := range names {
		desc := s.collections[n].desc
		desc.Indexes = append([]types.IndexDescriptor{}, desc.Indexes...)
		topo = append(topo, desc)
	}
	return topo
}

// Engine is an in-memory hostdb.Engine. The zero value is not usable;
// call New.
type Engine struct {
	mu       sync.RWMutex
	state    *state
	opened   bool
	closed   bool
	writeSem chan struct{}
}

var _ hostdb.Engine = (*Engine)(nil)

// New returns an empty engine at version 0.
func New() *Engine {
	return &Engine{
		state:    &state{collections: map[string]*collection{}},
		writeSem: make(chan struct{}, 1),
	}
}

func (e *Engine) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("%w: engine closed", hostdb.ErrUnavailable)
	}
	e.opened = true
	return nil
}

func (e *Engine) Version() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.version
}

func (e *Engine) Topology() types.Topology {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.topology()
}

func (e *Engine) current() (*state, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.opened || e.closed {
		return nil, fmt.Errorf("%w: engine not open", hostdb.ErrUnavailable)
	}
	return e.state, nil
}

func (e *Engine) acquireWrite(ctx context.Context) error {
	select {
	case e.writeSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) releaseWrite() {
	<-e.writeSem
}

// publish replaces changed collections in the committed state.
func (e *Engine) publish(changed map[string]*collection, version int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := &state{version: version, collections: make(map[string]*collection, len(e.state.collections))}
	for n, c := range e.state.collections {
		next.collections[n] = c
	}
	for n, c := range changed {
		if c == nil {
			delete(next.collections, n)
			continue
		}
		next.collections[n] = c
	}
	e.state = next
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *Engine) Upgrade(ctx context.Context, version int, fn hostdb.UpgradeFunc) error {
	if _, err := e.current(); err != nil {
		return err
	}
	if err := e.acquireWrite(ctx); err != nil {
		return err
	}
	defer e.releaseWrite()

	base, err := e.current()
	if err != nil {
		return err
	}
	if version <= base.version {
		return fmt.Errorf("%w: requested %d, current %d", hostdb.ErrVersion, version, base.version)
	}

	m := &migrator{base: base, changed: map[string]*collection{}}
	if fn != nil {
		if err := fn(ctx, m, base.version, version); err != nil {
			return err
		}
	}
	e.publish(m.changed, version)
	return nil
}

func (e *Engine) Begin(ctx context.Context, tables []string, mode hostdb.Mode) (hostdb.Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := e.current(); err != nil {
		return nil, err
	}

	if mode == hostdb.ReadWrite {
		if err := e.acquireWrite(ctx); err != nil {
			return nil, err
		}
	}

	base, err := e.current()
	if err == nil {
		for _, t := range tables {
			if _, ok := base.collections[t]; !ok {
				err = fmt.Errorf("%w: collection %q", hostdb.ErrNotFound, t)
				break
			}
		}
	}
	if err != nil {
		if mode == hostdb.ReadWrite {
			e.releaseWrite()
		}
		return nil, err
	}

	s := &scope{
		engine:     e,
		mode:       mode,
		base:       base,
		tables:     make(map[string]bool, len(tables)),
		work:       map[string]*collection{},
		done:       make(chan struct{}),
		holdsWrite: mode == hostdb.ReadWrite,
	}
	for _, t := range tables {
		s.tables[t] = true
	}
	return s, nil
}

// Close marks the engine closed. Scopes still open fail their next
// request; their data is discarded.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

type migrator struct {
	base    *state
	changed map[string]*collection
}

func (m *migrator) lookup(name string) (*collection, bool) {
	if c, ok := m.changed[name]; ok {
		return c, c != nil
	}
	c, ok := m.base.collections[name]
	return c, ok
}

func (m *migrator) writable(name string) (*collection, error) {
	if c, ok := m.changed[name]; ok && c != nil {
		return c, nil
	}
	c, ok := m.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", hostdb.ErrNotFound, name)
	}
	cp := c.clone()
	m.changed[name] = cp
	return cp, nil
}

func (m *migrator) Topology() types.Topology {
	s := &state{collections: map[string]*collection{}}
	for n, c := range m.base.collections {
		s.collections[n] = c
	}
	for n, c := range m.changed {
		if c == nil {
			delete(s.collections, n)
		} else {
			s.collections[n] = c
		}
	}
	return s.topology()
}

func (m *migrator) CreateCollection(desc types.CollectionDescriptor) error {
	if _, exists := m.lookup(desc.Name); exists {
		return fmt.Errorf("%w: collection %q already exists", hostdb.ErrConstraint, desc.Name)
	}
	m.changed[desc.Name] = newCollection(desc)
	return nil
}

func (m *migrator) DeleteCollection(name string) error {
	if _, exists := m.lookup(name); !exists {
		return fmt.Errorf("%w: collection %q", hostdb.ErrNotFound, name)
	}
	m.changed[name] = nil
	return nil
}

func (m *migrator) CreateIndex(collection string, idx types.IndexDescriptor) error {
	c, err := m.writable(collection)
	if err != nil {
		return err
	}
	if _, exists := c.indexes[idx.Name]; exists {
		return fmt.Errorf("%w: index %q already exists on %q", hostdb.ErrConstraint, idx.Name, collection)
	}
	return c.buildIndex(idx)
}

func (m *migrator) DeleteIndex(collection, name string) error {
	c, err := m.writable(collection)
	if err != nil {
		return err
	}
	if _, exists := c.indexes[name]; !exists {
		return fmt.Errorf("%w: index %q on %q", hostdb.ErrNotFound, name, collection)
	}
	c.dropIndex(name)
	return nil
}
