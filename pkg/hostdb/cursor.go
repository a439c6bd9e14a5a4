package hostdb

import "github.com/arkilian/arkdb/pkg/types"

// Entry is one cursor position.
type Entry struct {
	Key        interface{}
	PrimaryKey interface{}
	Value      types.Record
}

// SliceCursor walks a materialized entry list. Engines that read a range
// eagerly return it from OpenCursor.
type SliceCursor struct {
	entries []Entry
	pos     int
	closed  bool
}

// NewSliceCursor returns a cursor positioned before the first entry.
func NewSliceCursor(entries []Entry) *SliceCursor {
	return &SliceCursor{entries: entries, pos: -1}
}

func (c *SliceCursor) Next() bool {
	if c.closed || c.pos+1 >= len(c.entries) {
		c.pos = len(c.entries)
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) current() *Entry {
	if c.pos < 0 || c.pos >= len(c.entries) {
		return nil
	}
	return &c.entries[c.pos]
}

func (c *SliceCursor) Key() interface{} {
	if e := c.current(); e != nil {
		return e.Key
	}
	return nil
}

func (c *SliceCursor) PrimaryKey() interface{} {
	if e := c.current(); e != nil {
		return e.PrimaryKey
	}
	return nil
}

func (c *SliceCursor) Value() types.Record {
	if e := c.current(); e != nil {
		return e.Value
	}
	return nil
}

func (c *SliceCursor) Err() error { return nil }

func (c *SliceCursor) Close() error {
	c.closed = true
	c.entries = nil
	return nil
}

// CompareEntries orders entries by key then primary key, the order every
// cursor in dir must produce. Ties on key always resolve by ascending
// primary key.
func CompareEntries(a, b Entry, dir types.Direction) int {
	c := CompareKeys(a.Key, b.Key)
	if dir == types.Desc {
		c = -c
	}
	if c != 0 {
		return c
	}
	return CompareKeys(a.PrimaryKey, b.PrimaryKey)
}
