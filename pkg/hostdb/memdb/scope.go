package memdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

type scope struct {
	engine     *Engine
	mode       hostdb.Mode
	base       *state
	tables     map[string]bool
	work       map[string]*collection
	holdsWrite bool

	mu       sync.Mutex
	finished bool
	err      error
	done     chan struct{}
}

func (s *scope) Mode() hostdb.Mode { return s.mode }

func (s *scope) Done() <-chan struct{} { return s.done }

func (s *scope) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// finish records the outcome once. Callers hold s.mu.
func (s *scope) finish(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	s.work = nil
	if s.holdsWrite {
		s.engine.releaseWrite()
	}
	close(s.done)
}

func (s *scope) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return hostdb.ErrInactive
	}
	if s.engine.isClosed() {
		s.finish(fmt.Errorf("%w: engine closed", hostdb.ErrAborted))
		return s.err
	}
	if s.mode == hostdb.ReadWrite && len(s.work) > 0 {
		s.engine.publish(s.work, s.base.version)
	}
	s.finish(nil)
	return nil
}

func (s *scope) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return hostdb.ErrInactive
	}
	s.finish(hostdb.ErrAborted)
	return nil
}

// fail aborts the scope because a request failed. Callers hold s.mu.
func (s *scope) fail(cause error) error {
	s.finish(fmt.Errorf("%w: %w", hostdb.ErrAborted, cause))
	return cause
}

// check validates the scope for a request. Callers hold s.mu.
func (s *scope) check(ctx context.Context, write bool) error {
	if s.finished {
		return hostdb.ErrInactive
	}
	if s.engine.isClosed() {
		return s.fail(fmt.Errorf("%w: engine closed", hostdb.ErrUnavailable))
	}
	if err := ctx.Err(); err != nil {
		return s.fail(err)
	}
	if write && s.mode != hostdb.ReadWrite {
		return hostdb.ErrReadOnly
	}
	return nil
}

func (s *scope) read(name string) *collection {
	if c, ok := s.work[name]; ok {
		return c
	}
	return s.base.collections[name]
}

func (s *scope) writable(name string) *collection {
	if c, ok := s.work[name]; ok {
		return c
	}
	c := s.base.collections[name].clone()
	s.work[name] = c
	return c
}

func (s *scope) Collection(name string) (hostdb.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil, hostdb.ErrInactive
	}
	if !s.tables[name] {
		return nil, fmt.Errorf("%w: collection %q is outside the scope", hostdb.ErrNotFound, name)
	}
	return &scopeCollection{s: s, name: name}, nil
}

type scopeCollection struct {
	s    *scope
	name string
}

func (c *scopeCollection) Name() string { return c.name }

func (c *scopeCollection) Descriptor() types.CollectionDescriptor {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.finished {
		return types.CollectionDescriptor{Name: c.name}
	}
	return c.s.read(c.name).desc
}

func (c *scopeCollection) Get(ctx context.Context, key interface{}) (types.Record, bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, false); err != nil {
		return nil, false, err
	}
	k, ok := hostdb.NormalizeKey(key)
	if !ok {
		return nil, false, fmt.Errorf("%w: %v is not a valid key", hostdb.ErrData, key)
	}
	rec, found := c.s.read(c.name).get(k)
	return rec.Clone(), found, nil
}

func (c *scopeCollection) GetAll(ctx context.Context, r *hostdb.KeyRange, limit int) ([]types.Record, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, false); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	entries := c.s.read(c.name).scan(r, types.Asc, limit)
	out := make([]types.Record, len(entries))
	for i, e := range entries {
		out[i] = e.Value.Clone()
	}
	return out, nil
}

func (c *scopeCollection) Count(ctx context.Context, r *hostdb.KeyRange) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, false); err != nil {
		return 0, err
	}
	if err := r.Validate(); err != nil {
		return 0, err
	}
	col := c.s.read(c.name)
	if r == nil {
		return len(col.records), nil
	}
	return len(col.scan(r, types.Asc, 0)), nil
}

func (c *scopeCollection) OpenCursor(ctx context.Context, r *hostdb.KeyRange, dir types.Direction) (hostdb.Cursor, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, false); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	entries := c.s.read(c.name).scan(r, dir, 0)
	for i := range entries {
		entries[i].Value = entries[i].Value.Clone()
	}
	return hostdb.NewSliceCursor(entries), nil
}

func (c *scopeCollection) Add(ctx context.Context, rec types.Record) (interface{}, error) {
	return c.write(ctx, rec, false)
}

func (c *scopeCollection) Put(ctx context.Context, rec types.Record) (interface{}, error) {
	return c.write(ctx, rec, true)
}

func (c *scopeCollection) write(ctx context.Context, rec types.Record, overwrite bool) (interface{}, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, true); err != nil {
		return nil, err
	}
	key, err := c.s.writable(c.name).write(hostdb.NormalizeRecord(rec), overwrite)
	if err != nil {
		return nil, c.s.fail(err)
	}
	return key, nil
}

func (c *scopeCollection) Delete(ctx context.Context, key interface{}) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, true); err != nil {
		return err
	}
	k, ok := hostdb.NormalizeKey(key)
	if !ok {
		return c.s.fail(fmt.Errorf("%w: %v is not a valid key", hostdb.ErrData, key))
	}
	c.s.writable(c.name).delete(k)
	return nil
}

func (c *scopeCollection) Clear(ctx context.Context) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, true); err != nil {
		return err
	}
	c.s.writable(c.name).clear()
	return nil
}

func (c *scopeCollection) Index(name string) (hostdb.Index, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.finished {
		return nil, hostdb.ErrInactive
	}
	idx, ok := c.s.read(c.name).indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: index %q on %q", hostdb.ErrNotFound, name, c.name)
	}
	return &scopeIndex{c: c, desc: idx.desc}, nil
}

type scopeIndex struct {
	c    *scopeCollection
	desc types.IndexDescriptor
}

func (i *scopeIndex) Name() string { return i.desc.Name }

func (i *scopeIndex) Descriptor() types.IndexDescriptor { return i.desc }

// entries resolves index entries to records. Callers hold the scope lock.
func (i *scopeIndex) entries(ctx context.Context, r *hostdb.KeyRange, dir types.Direction, limit int) ([]hostdb.Entry, error) {
	s := i.c.s
	if err := s.check(ctx, false); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	col := s.read(i.c.name)
	idx, ok := col.indexes[i.desc.Name]
	if !ok {
		return nil, fmt.Errorf("%w: index %q on %q", hostdb.ErrNotFound, i.desc.Name, i.c.name)
	}
	matched := idx.scan(r, dir)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]hostdb.Entry, 0, len(matched))
	for _, e := range matched {
		rec, found := col.get(e.PrimaryKey)
		if !found {
			continue
		}
		out = append(out, hostdb.Entry{Key: e.Key, PrimaryKey: e.PrimaryKey, Value: rec.Clone()})
	}
	return out, nil
}

func (i *scopeIndex) Get(ctx context.Context, key interface{}) (types.Record, bool, error) {
	i.c.s.mu.Lock()
	defer i.c.s.mu.Unlock()
	k, ok := hostdb.NormalizeKey(key)
	if !ok {
		return nil, false, fmt.Errorf("%w: %v is not a valid key", hostdb.ErrData, key)
	}
	entries, err := i.entries(ctx, hostdb.Only(k), types.Asc, 1)
	if err != nil || len(entries) == 0 {
		return nil, false, err
	}
	return entries[0].Value, true, nil
}

func (i *scopeIndex) GetAll(ctx context.Context, r *hostdb.KeyRange, limit int) ([]types.Record, error) {
	i.c.s.mu.Lock()
	defer i.c.s.mu.Unlock()
	entries, err := i.entries(ctx, r, types.Asc, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.Record, len(entries))
	for j, e := range entries {
		out[j] = e.Value
	}
	return out, nil
}

func (i *scopeIndex) Count(ctx context.Context, r *hostdb.KeyRange) (int, error) {
	i.c.s.mu.Lock()
	defer i.c.s.mu.Unlock()
	s := i.c.s
	if err := s.check(ctx, false); err != nil {
		return 0, err
	}
	if err := r.Validate(); err != nil {
		return 0, err
	}
	idx, ok := s.read(i.c.name).indexes[i.desc.Name]
	if !ok {
		return 0, fmt.Errorf("%w: index %q on %q", hostdb.ErrNotFound, i.desc.Name, i.c.name)
	}
	return len(idx.scan(r, types.Asc)), nil
}

func (i *scopeIndex) OpenCursor(ctx context.Context, r *hostdb.KeyRange, dir types.Direction) (hostdb.Cursor, error) {
	i.c.s.mu.Lock()
	defer i.c.s.mu.Unlock()
	entries, err := i.entries(ctx, r, dir, 0)
	if err != nil {
		return nil, err
	}
	return hostdb.NewSliceCursor(entries), nil
}
