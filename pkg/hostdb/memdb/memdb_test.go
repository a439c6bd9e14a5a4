package memdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/hostdb/hostdbtest"
	"github.com/arkilian/arkdb/pkg/types"
)

func TestConformance(t *testing.T) {
	hostdbtest.Run(t, func(t *testing.T) hostdb.Engine { return New() })
}

func newOpenEngine(t *testing.T) *Engine {
	t.Helper()
	e := New()
	if err := e.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	err := e.Upgrade(context.Background(), 1, func(ctx context.Context, m hostdb.Migrator, _, _ int) error {
		return m.CreateCollection(types.CollectionDescriptor{Name: "items", PrimaryKeyPath: "id"})
	})
	if err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	return e
}

func TestReadOnlyScopeSeesStableSnapshot(t *testing.T) {
	e := newOpenEngine(t)
	ctx := context.Background()

	reader, err := e.Begin(ctx, []string{"items"}, hostdb.ReadOnly)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	writer, _ := e.Begin(ctx, []string{"items"}, hostdb.ReadWrite)
	wc, _ := writer.Collection("items")
	if _, err := wc.Add(ctx, types.Record{"id": 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := writer.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rc, _ := reader.Collection("items")
	if n, _ := rc.Count(ctx, nil); n != 0 {
		t.Errorf("reader saw a write committed after it began: count=%d", n)
	}
	reader.Commit()

	later, _ := e.Begin(ctx, []string{"items"}, hostdb.ReadOnly)
	lc, _ := later.Collection("items")
	if n, _ := lc.Count(ctx, nil); n != 1 {
		t.Errorf("new reader count = %d, want 1", n)
	}
}

func TestWritersSerialize(t *testing.T) {
	e := newOpenEngine(t)
	first, err := e.Begin(context.Background(), []string{"items"}, hostdb.ReadWrite)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := e.Begin(ctx, []string{"items"}, hostdb.ReadWrite); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second writer = %v, want deadline exceeded", err)
	}

	first.Abort()
	second, err := e.Begin(context.Background(), []string{"items"}, hostdb.ReadWrite)
	if err != nil {
		t.Fatalf("writer after abort: %v", err)
	}
	second.Commit()
}

func TestManyKeysThroughFilterRebuild(t *testing.T) {
	e := newOpenEngine(t)
	ctx := context.Background()
	s, _ := e.Begin(ctx, []string{"items"}, hostdb.ReadWrite)
	c, _ := s.Collection("items")
	const n = 3000
	for i := 0; i < n; i++ {
		if _, err := c.Add(ctx, types.Record{"id": i}); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	r, _ := e.Begin(ctx, []string{"items"}, hostdb.ReadOnly)
	rc, _ := r.Collection("items")
	for i := 0; i < n; i++ {
		if _, found, err := rc.Get(ctx, i); err != nil || !found {
			t.Fatalf("Get(%d) found=%v err=%v", i, found, err)
		}
	}
	if _, found, _ := rc.Get(ctx, n+1); found {
		t.Error("Get of absent key found a record")
	}
}

func TestRecordsAreIsolatedFromCallers(t *testing.T) {
	e := newOpenEngine(t)
	ctx := context.Background()
	s, _ := e.Begin(ctx, []string{"items"}, hostdb.ReadWrite)
	c, _ := s.Collection("items")
	rec := types.Record{"id": 1, "tags": []interface{}{"a"}}
	c.Add(ctx, rec)
	rec["tags"].([]interface{})[0] = "mutated"

	got, _, _ := c.Get(ctx, 1)
	if got["tags"].([]interface{})[0] != "a" {
		t.Error("engine shares memory with the caller's record")
	}
	s.Commit()
}

func TestClosedEngine(t *testing.T) {
	e := newOpenEngine(t)
	s, _ := e.Begin(context.Background(), []string{"items"}, hostdb.ReadOnly)
	e.Close()
	c, _ := s.Collection("items")
	if _, err := c.Count(context.Background(), nil); err == nil {
		t.Error("request on closed engine should fail")
	}
	if _, err := e.Begin(context.Background(), []string{"items"}, hostdb.ReadOnly); !errors.Is(err, hostdb.ErrUnavailable) {
		t.Errorf("Begin on closed engine = %v, want ErrUnavailable", err)
	}
}
