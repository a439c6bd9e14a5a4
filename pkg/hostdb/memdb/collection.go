package memdb

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/arkilian/arkdb/internal/bloom"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

const (
	filterCapacity = 1024
	filterFPR      = 0.01
)

type record struct {
	key   interface{}
	value types.Record
}

type index struct {
	desc    types.IndexDescriptor
	entries []hostdb.Entry // sorted by (Key, PrimaryKey); Value unused
}

// collection is immutable once published in a state. Writers clone it
// first.
type collection struct {
	desc    types.CollectionDescriptor
	records []record // sorted by key
	indexes map[string]*index
	nextKey int64
	filter  *bloom.BloomFilter
}

func newCollection(desc types.CollectionDescriptor) *collection {
	c := &collection{
		desc:    desc,
		indexes: make(map[string]*index, len(desc.Indexes)),
		nextKey: 1,
		filter:  bloom.NewWithEstimates(filterCapacity, filterFPR),
	}
	c.desc.Indexes = append([]types.IndexDescriptor{}, desc.Indexes...)
	for _, idx := range c.desc.Indexes {
		c.indexes[idx.Name] = &index{desc: idx}
	}
	return c
}

func (c *collection) clone() *collection {
	out := &collection{
		desc:    c.desc,
		records: append([]record(nil), c.records...),
		indexes: make(map[string]*index, len(c.indexes)),
		nextKey: c.nextKey,
		filter:  c.filter.Clone(),
	}
	out.desc.Indexes = append([]types.IndexDescriptor{}, c.desc.Indexes...)
	for name, idx := range c.indexes {
		out.indexes[name] = &index{desc: idx.desc, entries: append([]hostdb.Entry(nil), idx.entries...)}
	}
	return out
}

func (c *collection) search(key interface{}) (int, bool) {
	i := sort.Search(len(c.records), func(i int) bool {
		return hostdb.CompareKeys(c.records[i].key, key) >= 0
	})
	return i, i < len(c.records) && hostdb.CompareKeys(c.records[i].key, key) == 0
}

func (c *collection) get(key interface{}) (types.Record, bool) {
	if !c.filter.Contains(keyBytes(key)) {
		return nil, false
	}
	i, ok := c.search(key)
	if !ok {
		return nil, false
	}
	return c.records[i].value, true
}

// primaryKey resolves the record's key, generating one when the
// collection auto-increments.
func (c *collection) primaryKey(rec types.Record) (interface{}, error) {
	v, ok := rec[c.desc.PrimaryKeyPath]
	if !ok || v == nil {
		if !c.desc.AutoIncrement {
			return nil, fmt.Errorf("%w: record has no value for primary key %q", hostdb.ErrData, c.desc.PrimaryKeyPath)
		}
		key := c.nextKey
		rec[c.desc.PrimaryKeyPath] = key
		return key, nil
	}
	key, ok := hostdb.NormalizeKey(v)
	if !ok {
		return nil, fmt.Errorf("%w: %v is not a valid key for %q", hostdb.ErrData, v, c.desc.PrimaryKeyPath)
	}
	return key, nil
}

// write stores rec. With overwrite false an existing key is a constraint
// violation.
func (c *collection) write(rec types.Record, overwrite bool) (interface{}, error) {
	key, err := c.primaryKey(rec)
	if err != nil {
		return nil, err
	}

	i, exists := c.search(key)
	if exists && !overwrite {
		return nil, fmt.Errorf("%w: key %v already exists in %q", hostdb.ErrConstraint, key, c.desc.Name)
	}

	for _, idx := range c.indexes {
		if !idx.desc.Unique {
			continue
		}
		ik, ok := hostdb.KeyOf(rec, idx.desc.KeyPath)
		if !ok {
			continue
		}
		if owner, taken := idx.owner(ik); taken && hostdb.CompareKeys(owner, key) != 0 {
			return nil, fmt.Errorf("%w: unique index %q of %q already has %v", hostdb.ErrConstraint, idx.desc.Name, c.desc.Name, ik)
		}
	}

	if exists {
		c.unindex(c.records[i])
		c.records[i] = record{key: key, value: rec}
	} else {
		c.records = append(c.records, record{})
		copy(c.records[i+1:], c.records[i:])
		c.records[i] = record{key: key, value: rec}
		c.addToFilter(key)
	}
	c.indexRecord(c.records[i])
	c.bumpGenerator(key)
	return key, nil
}

func (c *collection) delete(key interface{}) {
	i, ok := c.search(key)
	if !ok {
		return
	}
	c.unindex(c.records[i])
	c.records = append(c.records[:i], c.records[i+1:]...)
}

func (c *collection) clear() {
	c.records = nil
	for _, idx := range c.indexes {
		idx.entries = nil
	}
	c.filter = bloom.NewWithEstimates(filterCapacity, filterFPR)
}

func (c *collection) addToFilter(key interface{}) {
	if c.filter.Saturated() {
		c.filter = bloom.NewWithEstimates(len(c.records)*2, filterFPR)
		for _, r := range c.records {
			c.filter.Add(keyBytes(r.key))
		}
		return
	}
	c.filter.Add(keyBytes(key))
}

func (c *collection) bumpGenerator(key interface{}) {
	var next int64
	switch k := key.(type) {
	case int64:
		if k == math.MaxInt64 {
			return
		}
		next = k + 1
	case float64:
		if k >= math.MaxInt64 {
			return
		}
		next = int64(math.Floor(k)) + 1
	default:
		return
	}
	if next > c.nextKey {
		c.nextKey = next
	}
}

func (c *collection) indexRecord(r record) {
	for _, idx := range c.indexes {
		if ik, ok := hostdb.KeyOf(r.value, idx.desc.KeyPath); ok {
			idx.insert(hostdb.Entry{Key: ik, PrimaryKey: r.key})
		}
	}
}

func (c *collection) unindex(r record) {
	for _, idx := range c.indexes {
		if ik, ok := hostdb.KeyOf(r.value, idx.desc.KeyPath); ok {
			idx.remove(hostdb.Entry{Key: ik, PrimaryKey: r.key})
		}
	}
}

// buildIndex populates a new index from existing records.
func (c *collection) buildIndex(desc types.IndexDescriptor) error {
	idx := &index{desc: desc}
	for _, r := range c.records {
		ik, ok := hostdb.KeyOf(r.value, desc.KeyPath)
		if !ok {
			continue
		}
		if desc.Unique {
			if _, taken := idx.owner(ik); taken {
				return fmt.Errorf("%w: existing rows of %q violate unique index %q", hostdb.ErrConstraint, c.desc.Name, desc.Name)
			}
		}
		idx.insert(hostdb.Entry{Key: ik, PrimaryKey: r.key})
	}
	c.indexes[desc.Name] = idx
	c.desc.Indexes = append(c.desc.Indexes, desc)
	return nil
}

func (c *collection) dropIndex(name string) {
	delete(c.indexes, name)
	kept := c.desc.Indexes[:0]
	for _, d := range c.desc.Indexes {
		if d.Name != name {
			kept = append(kept, d)
		}
	}
	c.desc.Indexes = kept
}

// scan returns entries inside r in dir order.
func (c *collection) scan(r *hostdb.KeyRange, dir types.Direction, limit int) []hostdb.Entry {
	var out []hostdb.Entry
	n := len(c.records)
	for j := 0; j < n; j++ {
		i := j
		if dir == types.Desc {
			i = n - 1 - j
		}
		rec := c.records[i]
		if !r.Includes(rec.key) {
			continue
		}
		out = append(out, hostdb.Entry{Key: rec.key, PrimaryKey: rec.key, Value: rec.value})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (idx *index) search(e hostdb.Entry) (int, bool) {
	i := sort.Search(len(idx.entries), func(i int) bool {
		return hostdb.CompareEntries(idx.entries[i], e, types.Asc) >= 0
	})
	return i, i < len(idx.entries) && hostdb.CompareEntries(idx.entries[i], e, types.Asc) == 0
}

func (idx *index) insert(e hostdb.Entry) {
	i, found := idx.search(e)
	if found {
		return
	}
	idx.entries = append(idx.entries, hostdb.Entry{})
	copy(idx.entries[i+1:], idx.entries[i:])
	idx.entries[i] = e
}

func (idx *index) remove(e hostdb.Entry) {
	if i, found := idx.search(e); found {
		idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
	}
}

// owner returns the primary key of the first entry with key k.
func (idx *index) owner(k interface{}) (interface{}, bool) {
	i := sort.Search(len(idx.entries), func(i int) bool {
		return hostdb.CompareKeys(idx.entries[i].Key, k) >= 0
	})
	if i < len(idx.entries) && hostdb.CompareKeys(idx.entries[i].Key, k) == 0 {
		return idx.entries[i].PrimaryKey, true
	}
	return nil, false
}

// scan returns index entries inside r in dir order, with ties on key
// ordered by ascending primary key.
func (idx *index) scan(r *hostdb.KeyRange, dir types.Direction) []hostdb.Entry {
	var out []hostdb.Entry
	for _, e := range idx.entries {
		if r.Includes(e.Key) {
			out = append(out, e)
		}
	}
	if dir == types.Desc {
		sort.SliceStable(out, func(i, j int) bool {
			return hostdb.CompareEntries(out[i], out[j], types.Desc) < 0
		})
	}
	return out
}

// keyBytes encodes a normalized key for the bloom filter.
func keyBytes(k interface{}) []byte {
	var b strings.Builder
	writeKey(&b, k)
	return []byte(b.String())
}

func writeKey(b *strings.Builder, k interface{}) {
	switch v := k.(type) {
	case int64:
		b.WriteString("n:")
		b.WriteString(strconv.FormatInt(v, 10))
	case float64:
		b.WriteString("n:")
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case time.Time:
		b.WriteString("d:")
		b.WriteString(strconv.FormatInt(v.UnixNano(), 10))
	case string:
		b.WriteString("s:")
		b.WriteString(v)
	case []byte:
		b.WriteString("b:")
		b.Write(v)
	case []interface{}:
		b.WriteString("a:[")
		for i, e := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			writeKey(b, e)
		}
		b.WriteByte(']')
	default:
		fmt.Fprintf(b, "?:%v", v)
	}
}
