package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

type scope struct {
	engine *Engine
	tx     *sql.Tx
	mode   hostdb.Mode
	descs  map[string]types.CollectionDescriptor

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

func (s *scope) finish(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	close(s.done)
}

func (s *scope) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return hostdb.ErrInactive
	}
	if err := s.tx.Commit(); err != nil {
		s.tx.Rollback()
		s.finish(fmt.Errorf("%w: %w", hostdb.ErrAborted, mapError(err)))
		return s.err
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
	s.tx.Rollback()
	s.finish(hostdb.ErrAborted)
	return nil
}

// fail rolls back after a failed request. Callers hold s.mu.
func (s *scope) fail(cause error) error {
	cause = mapError(cause)
	s.tx.Rollback()
	s.finish(fmt.Errorf("%w: %w", hostdb.ErrAborted, cause))
	return cause
}

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

func (s *scope) Collection(name string) (hostdb.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil, hostdb.ErrInactive
	}
	desc, ok := s.descs[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q is outside the scope", hostdb.ErrNotFound, name)
	}
	return &collection{s: s, desc: desc, table: collectionTable(name)}, nil
}

type collection struct {
	s     *scope
	desc  types.CollectionDescriptor
	table string
}

func (c *collection) Name() string { return c.desc.Name }

func (c *collection) Descriptor() types.CollectionDescriptor { return c.desc }

// rangeClause builds "col >= ? AND col < ?" style conditions.
func rangeClause(col string, r *hostdb.KeyRange) (string, []interface{}, error) {
	if r == nil {
		return "1=1", nil, nil
	}
	if err := r.Validate(); err != nil {
		return "", nil, err
	}
	var conds []string
	var args []interface{}
	if r.Lower != nil {
		k, err := encodeKey(r.Lower)
		if err != nil {
			return "", nil, err
		}
		op := ">="
		if r.LowerOpen {
			op = ">"
		}
		conds = append(conds, col+" "+op+" ?")
		args = append(args, k)
	}
	if r.Upper != nil {
		k, err := encodeKey(r.Upper)
		if err != nil {
			return "", nil, err
		}
		op := "<="
		if r.UpperOpen {
			op = "<"
		}
		conds = append(conds, col+" "+op+" ?")
		args = append(args, k)
	}
	if len(conds) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

func limitClause(limit int) string {
	if limit > 0 {
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	return ""
}

func (c *collection) lookup(ctx context.Context, k []byte) (types.Record, bool, error) {
	var doc string
	err := c.s.tx.QueryRowContext(ctx, "SELECT doc FROM "+c.table+" WHERE k = ?", k).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlitedb: failed to get from %s: %w", c.desc.Name, err)
	}
	rec, err := decodeDoc([]byte(doc))
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (c *collection) Get(ctx context.Context, key interface{}) (types.Record, bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, false); err != nil {
		return nil, false, err
	}
	k, err := encodeKey(key)
	if err != nil {
		return nil, false, err
	}
	return c.lookup(ctx, k)
}

func (c *collection) queryEntries(ctx context.Context, r *hostdb.KeyRange, dir types.Direction, limit int) ([]hostdb.Entry, error) {
	where, args, err := rangeClause("k", r)
	if err != nil {
		return nil, err
	}
	order := "ASC"
	if dir == types.Desc {
		order = "DESC"
	}
	rows, err := c.s.tx.QueryContext(ctx,
		"SELECT doc FROM "+c.table+" WHERE "+where+" ORDER BY k "+order+limitClause(limit), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: failed to scan %s: %w", c.desc.Name, err)
	}
	defer rows.Close()

	var out []hostdb.Entry
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlitedb: failed to read row: %w", err)
		}
		rec, err := decodeDoc([]byte(doc))
		if err != nil {
			return nil, err
		}
		pk, _ := hostdb.KeyOf(rec, c.desc.PrimaryKeyPath)
		out = append(out, hostdb.Entry{Key: pk, PrimaryKey: pk, Value: rec})
	}
	return out, rows.Err()
}

func (c *collection) GetAll(ctx context.Context, r *hostdb.KeyRange, limit int) ([]types.Record, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, false); err != nil {
		return nil, err
	}
	entries, err := c.queryEntries(ctx, r, types.Asc, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.Record, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out, nil
}

func (c *collection) Count(ctx context.Context, r *hostdb.KeyRange) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, false); err != nil {
		return 0, err
	}
	where, args, err := rangeClause("k", r)
	if err != nil {
		return 0, err
	}
	var n int
	if err := c.s.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table+" WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitedb: failed to count %s: %w", c.desc.Name, err)
	}
	return n, nil
}

func (c *collection) OpenCursor(ctx context.Context, r *hostdb.KeyRange, dir types.Direction) (hostdb.Cursor, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, false); err != nil {
		return nil, err
	}
	entries, err := c.queryEntries(ctx, r, dir, 0)
	if err != nil {
		return nil, err
	}
	return hostdb.NewSliceCursor(entries), nil
}

func (c *collection) Add(ctx context.Context, rec types.Record) (interface{}, error) {
	return c.write(ctx, rec, false)
}

func (c *collection) Put(ctx context.Context, rec types.Record) (interface{}, error) {
	return c.write(ctx, rec, true)
}

func (c *collection) write(ctx context.Context, rec types.Record, overwrite bool) (interface{}, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, true); err != nil {
		return nil, err
	}
	key, err := c.store(ctx, rec.Clone(), overwrite)
	if err != nil {
		return nil, c.s.fail(err)
	}
	return key, nil
}

func (c *collection) store(ctx context.Context, rec types.Record, overwrite bool) (interface{}, error) {
	key, err := c.primaryKey(ctx, rec)
	if err != nil {
		return nil, err
	}
	k, err := encodeKey(key)
	if err != nil {
		return nil, err
	}

	old, exists, err := c.lookup(ctx, k)
	if err != nil {
		return nil, err
	}
	if exists && !overwrite {
		return nil, fmt.Errorf("%w: key %v already exists in %q", hostdb.ErrConstraint, key, c.desc.Name)
	}

	doc, err := encodeDoc(rec)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := c.unindex(ctx, old, k); err != nil {
			return nil, err
		}
		if _, err := c.s.tx.ExecContext(ctx, "UPDATE "+c.table+" SET doc = ? WHERE k = ?", string(doc), k); err != nil {
			return nil, fmt.Errorf("sqlitedb: failed to update %s: %w", c.desc.Name, err)
		}
	} else {
		if _, err := c.s.tx.ExecContext(ctx, "INSERT INTO "+c.table+" (k, doc) VALUES (?, ?)", k, string(doc)); err != nil {
			return nil, fmt.Errorf("sqlitedb: failed to insert into %s: %w", c.desc.Name, mapError(err))
		}
	}
	if err := c.index(ctx, rec, k); err != nil {
		return nil, err
	}
	if err := c.bumpSequence(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (c *collection) primaryKey(ctx context.Context, rec types.Record) (interface{}, error) {
	v, ok := rec[c.desc.PrimaryKeyPath]
	if ok && v != nil {
		key, valid := hostdb.NormalizeKey(v)
		if !valid {
			return nil, fmt.Errorf("%w: %v is not a valid key for %q", hostdb.ErrData, v, c.desc.PrimaryKeyPath)
		}
		return key, nil
	}
	if !c.desc.AutoIncrement {
		return nil, fmt.Errorf("%w: record has no value for primary key %q", hostdb.ErrData, c.desc.PrimaryKeyPath)
	}

	next := int64(1)
	err := c.s.tx.QueryRowContext(ctx,
		"SELECT next_key FROM arkdb_sequences WHERE collection = ?", c.desc.Name).Scan(&next)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlitedb: failed to read sequence for %s: %w", c.desc.Name, err)
	}
	rec[c.desc.PrimaryKeyPath] = next
	return next, nil
}

func (c *collection) bumpSequence(ctx context.Context, key interface{}) error {
	var next int64
	switch k := key.(type) {
	case int64:
		if k == math.MaxInt64 {
			return nil
		}
		next = k + 1
	case float64:
		if k >= math.MaxInt64 {
			return nil
		}
		next = int64(math.Floor(k)) + 1
	default:
		return nil
	}
	_, err := c.s.tx.ExecContext(ctx, `
		INSERT INTO arkdb_sequences (collection, next_key) VALUES (?, ?)
		ON CONFLICT(collection) DO UPDATE SET next_key = MAX(next_key, excluded.next_key)`,
		c.desc.Name, next)
	if err != nil {
		return fmt.Errorf("sqlitedb: failed to advance sequence for %s: %w", c.desc.Name, err)
	}
	return nil
}

func (c *collection) index(ctx context.Context, rec types.Record, pk []byte) error {
	for _, idx := range c.desc.Indexes {
		ik, ok := hostdb.KeyOf(rec, idx.KeyPath)
		if !ok {
			continue
		}
		enc, err := encodeKey(ik)
		if err != nil {
			return err
		}
		if _, err := c.s.tx.ExecContext(ctx,
			"INSERT INTO "+indexTable(c.desc.Name, idx.Name)+" (k, pk) VALUES (?, ?)", enc, pk); err != nil {
			if mapped := mapError(err); errors.Is(mapped, hostdb.ErrConstraint) {
				return fmt.Errorf("%w: unique index %q of %q already has %v", hostdb.ErrConstraint, idx.Name, c.desc.Name, ik)
			}
			return fmt.Errorf("sqlitedb: failed to index %s.%s: %w", c.desc.Name, idx.Name, err)
		}
	}
	return nil
}

func (c *collection) unindex(ctx context.Context, rec types.Record, pk []byte) error {
	for _, idx := range c.desc.Indexes {
		ik, ok := hostdb.KeyOf(rec, idx.KeyPath)
		if !ok {
			continue
		}
		enc, err := encodeKey(ik)
		if err != nil {
			return err
		}
		if _, err := c.s.tx.ExecContext(ctx,
			"DELETE FROM "+indexTable(c.desc.Name, idx.Name)+" WHERE k = ? AND pk = ?", enc, pk); err != nil {
			return fmt.Errorf("sqlitedb: failed to unindex %s.%s: %w", c.desc.Name, idx.Name, err)
		}
	}
	return nil
}

func (c *collection) Delete(ctx context.Context, key interface{}) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, true); err != nil {
		return err
	}
	k, err := encodeKey(key)
	if err != nil {
		return c.s.fail(err)
	}
	old, exists, err := c.lookup(ctx, k)
	if err != nil {
		return c.s.fail(err)
	}
	if !exists {
		return nil
	}
	if err := c.unindex(ctx, old, k); err != nil {
		return c.s.fail(err)
	}
	if _, err := c.s.tx.ExecContext(ctx, "DELETE FROM "+c.table+" WHERE k = ?", k); err != nil {
		return c.s.fail(fmt.Errorf("sqlitedb: failed to delete from %s: %w", c.desc.Name, err))
	}
	return nil
}

func (c *collection) Clear(ctx context.Context) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.check(ctx, true); err != nil {
		return err
	}
	for _, idx := range c.desc.Indexes {
		if _, err := c.s.tx.ExecContext(ctx, "DELETE FROM "+indexTable(c.desc.Name, idx.Name)); err != nil {
			return c.s.fail(fmt.Errorf("sqlitedb: failed to clear index %s.%s: %w", c.desc.Name, idx.Name, err))
		}
	}
	if _, err := c.s.tx.ExecContext(ctx, "DELETE FROM "+c.table); err != nil {
		return c.s.fail(fmt.Errorf("sqlitedb: failed to clear %s: %w", c.desc.Name, err))
	}
	return nil
}

func (c *collection) Index(name string) (hostdb.Index, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.finished {
		return nil, hostdb.ErrInactive
	}
	desc, ok := c.desc.Index(name)
	if !ok {
		return nil, fmt.Errorf("%w: index %q on %q", hostdb.ErrNotFound, name, c.desc.Name)
	}
	return &index{c: c, desc: desc, table: indexTable(c.desc.Name, name)}, nil
}

type index struct {
	c     *collection
	desc  types.IndexDescriptor
	table string
}

func (i *index) Name() string { return i.desc.Name }

func (i *index) Descriptor() types.IndexDescriptor { return i.desc }

func (i *index) query(ctx context.Context, r *hostdb.KeyRange, dir types.Direction, limit int) ([]hostdb.Entry, error) {
	s := i.c.s
	if err := s.check(ctx, false); err != nil {
		return nil, err
	}
	where, args, err := rangeClause("i.k", r)
	if err != nil {
		return nil, err
	}
	order := "i.k ASC, i.pk ASC"
	if dir == types.Desc {
		order = "i.k DESC, i.pk ASC"
	}
	rows, err := s.tx.QueryContext(ctx,
		"SELECT c.doc FROM "+i.table+" i JOIN "+i.c.table+" c ON c.k = i.pk WHERE "+where+
			" ORDER BY "+order+limitClause(limit), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: failed to scan index %s.%s: %w", i.c.desc.Name, i.desc.Name, err)
	}
	defer rows.Close()

	var out []hostdb.Entry
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlitedb: failed to read row: %w", err)
		}
		rec, err := decodeDoc([]byte(doc))
		if err != nil {
			return nil, err
		}
		ik, _ := hostdb.KeyOf(rec, i.desc.KeyPath)
		pk, _ := hostdb.KeyOf(rec, i.c.desc.PrimaryKeyPath)
		out = append(out, hostdb.Entry{Key: ik, PrimaryKey: pk, Value: rec})
	}
	return out, rows.Err()
}

func (i *index) Get(ctx context.Context, key interface{}) (types.Record, bool, error) {
	i.c.s.mu.Lock()
	defer i.c.s.mu.Unlock()
	entries, err := i.query(ctx, hostdb.Only(key), types.Asc, 1)
	if err != nil || len(entries) == 0 {
		return nil, false, err
	}
	return entries[0].Value, true, nil
}

func (i *index) GetAll(ctx context.Context, r *hostdb.KeyRange, limit int) ([]types.Record, error) {
	i.c.s.mu.Lock()
	defer i.c.s.mu.Unlock()
	entries, err := i.query(ctx, r, types.Asc, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.Record, len(entries))
	for j, e := range entries {
		out[j] = e.Value
	}
	return out, nil
}

func (i *index) Count(ctx context.Context, r *hostdb.KeyRange) (int, error) {
	i.c.s.mu.Lock()
	defer i.c.s.mu.Unlock()
	if err := i.c.s.check(ctx, false); err != nil {
		return 0, err
	}
	where, args, err := rangeClause("k", r)
	if err != nil {
		return 0, err
	}
	var n int
	if err := i.c.s.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+i.table+" WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitedb: failed to count index %s.%s: %w", i.c.desc.Name, i.desc.Name, err)
	}
	return n, nil
}

func (i *index) OpenCursor(ctx context.Context, r *hostdb.KeyRange, dir types.Direction) (hostdb.Cursor, error) {
	i.c.s.mu.Lock()
	defer i.c.s.mu.Unlock()
	entries, err := i.query(ctx, r, dir, 0)
	if err != nil {
		return nil, err
	}
	return hostdb.NewSliceCursor(entries), nil
}
