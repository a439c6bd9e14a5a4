package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/hostdb/memdb"
	"github.com/arkilian/arkdb/pkg/schema"
	"github.com/arkilian/arkdb/pkg/types"
)

func usersTable(extra ...schema.Field) *schema.Table {
	fields := []schema.Field{
		schema.Col("id", schema.Integer().PrimaryKey().AutoIncrement()),
		schema.Col("email", schema.Email().Unique()),
		schema.Col("age", schema.Integer().Index().Optional()),
	}
	return schema.NewTable("users", append(fields, extra...)...)
}

func tagsTable() *schema.Table {
	return schema.NewTable("tags", schema.Col("slug", schema.Text().PrimaryKey()))
}

func openReady(t *testing.T, e hostdb.Engine, s *schema.Schema, opts Options) *Manager {
	t.Helper()
	m, err := Open(context.Background(), e, s, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	return m
}

func TestOpen_ProvisionsTopology(t *testing.T) {
	e := memdb.New()
	s := schema.MustNew(usersTable(), tagsTable())
	m := openReady(t, e, s, Options{Name: "app"})
	defer m.Close()

	want, _ := s.Topology()
	if !e.Topology().Equal(want) {
		t.Errorf("stored topology = %+v, want %+v", e.Topology(), want)
	}
	if m.Version() != 1 {
		t.Errorf("version = %d, want 1", m.Version())
	}
	if path, err := m.KeyPath("users"); err != nil || path != "id" {
		t.Errorf("KeyPath(users) = %q, %v", path, err)
	}
}

func TestOpen_UnchangedSchemaKeepsVersion(t *testing.T) {
	e := memdb.New()
	s := schema.MustNew(usersTable())
	openReady(t, e, s, Options{})
	openReady(t, e, s, Options{})
	if e.Version() != 1 {
		t.Errorf("version = %d after reopening with same schema, want 1", e.Version())
	}
}

func TestOpen_MigratesIndexesWithoutLosingData(t *testing.T) {
	e := memdb.New()
	openReady(t, e, schema.MustNew(usersTable()), Options{})

	ctx := context.Background()
	s, _ := e.Begin(ctx, []string{"users"}, hostdb.ReadWrite)
	c, _ := s.Collection("users")
	if _, err := c.Add(ctx, types.Record{"email": "a@x.io", "age": 3}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Second schema: age loses its index, nick gains one, tags is new.
	next := schema.MustNew(
		schema.NewTable("users",
			schema.Col("id", schema.Integer().PrimaryKey().AutoIncrement()),
			schema.Col("email", schema.Email().Unique()),
			schema.Col("age", schema.Integer().Optional()),
			schema.Col("nick", schema.Text().Index().Optional()),
		),
		tagsTable(),
	)
	openReady(t, e, next, Options{})

	want, _ := next.Topology()
	if !e.Topology().Equal(want) {
		t.Errorf("topology after migration = %+v", e.Topology())
	}
	if e.Version() != 2 {
		t.Errorf("version = %d, want 2", e.Version())
	}

	r, _ := e.Begin(ctx, []string{"users"}, hostdb.ReadOnly)
	rc, _ := r.Collection("users")
	if n, _ := rc.Count(ctx, nil); n != 1 {
		t.Errorf("index migration lost data: count = %d", n)
	}
	r.Commit()
}

func TestOpen_PrimaryKeyChangeIsSchemaError(t *testing.T) {
	e := memdb.New()
	openReady(t, e, schema.MustNew(tagsTable()), Options{})

	changed := schema.MustNew(schema.NewTable("tags",
		schema.Col("slug", schema.Text()),
		schema.Col("code", schema.Text().PrimaryKey()),
	))
	m, err := Open(context.Background(), e, changed, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Ready(context.Background()); !errors.Is(err, arkerrors.ErrSchema) {
		t.Errorf("Ready = %v, want schema error", err)
	}
}

func TestOpen_VersionOlderThanStored(t *testing.T) {
	e := memdb.New()
	openReady(t, e, schema.MustNew(tagsTable()), Options{Version: 5})
	if e.Version() != 5 {
		t.Fatalf("version = %d, want 5", e.Version())
	}

	m, _ := Open(context.Background(), e, schema.MustNew(tagsTable()), Options{Version: 3})
	if err := m.Ready(context.Background()); !errors.Is(err, arkerrors.ErrVersion) {
		t.Errorf("Ready = %v, want version error", err)
	}
}

func TestOpen_NoEngine(t *testing.T) {
	_, err := Open(context.Background(), nil, schema.MustNew(tagsTable()), Options{})
	if !errors.Is(err, arkerrors.ErrHostUnavailable) {
		t.Errorf("Open(nil) = %v, want host unavailable", err)
	}
}

type failingEngine struct {
	hostdb.Engine
}

func (failingEngine) Open(context.Context) error { return hostdb.ErrUnavailable }

func (failingEngine) Close() error { return nil }

func TestOpen_EngineFailsToOpen(t *testing.T) {
	m, err := Open(context.Background(), failingEngine{}, schema.MustNew(tagsTable()), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	err = m.Ready(context.Background())
	if !errors.Is(err, arkerrors.ErrHostUnavailable) || !errors.Is(err, hostdb.ErrUnavailable) {
		t.Errorf("Ready = %v, want host unavailable wrapping the engine error", err)
	}
}

func TestDropTable(t *testing.T) {
	e := memdb.New()
	m := openReady(t, e, schema.MustNew(usersTable(), tagsTable()), Options{})
	ctx := context.Background()

	if err := m.DropTable(ctx, "tags"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if _, ok := e.Topology().Collection("tags"); ok {
		t.Error("collection still stored after drop")
	}
	if e.Version() != 2 {
		t.Errorf("version = %d, want 2", e.Version())
	}
	if _, err := m.KeyPath("tags"); !errors.Is(err, arkerrors.ErrTableNotFound) {
		t.Errorf("KeyPath after drop = %v, want table not found", err)
	}
	if _, _, err := m.Table("users"); err != nil {
		t.Errorf("other tables must survive: %v", err)
	}
	if err := m.DropTable(ctx, "tags"); !errors.Is(err, arkerrors.ErrTableNotFound) {
		t.Errorf("second drop = %v, want table not found", err)
	}
}

func TestReconcile_UniquenessChangeRecreatesIndex(t *testing.T) {
	stored := types.Topology{{
		Name: "users", PrimaryKeyPath: "id",
		Indexes: []types.IndexDescriptor{{Name: "email", KeyPath: "email"}},
	}}
	desired := types.Topology{{
		Name: "users", PrimaryKeyPath: "id",
		Indexes: []types.IndexDescriptor{{Name: "email", KeyPath: "email", Unique: true}},
	}}
	report, err := Reconcile(stored, desired)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.DropIndexes) != 1 || len(report.CreateIndexes) != 1 || !report.CreateIndexes[0].Index.Unique {
		t.Errorf("report = %+v", report)
	}
	if len(report.CreateCollections) != 0 || len(report.DropCollections) != 0 {
		t.Errorf("index change touched collections: %+v", report)
	}
}

func TestReconcile_NoChanges(t *testing.T) {
	topo, _ := schema.MustNew(usersTable()).Topology()
	report, err := Reconcile(topo, topo)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.HasChanges() {
		t.Errorf("identical topologies reported changes: %s", report)
	}
}

func TestGate_ManyWaiters(t *testing.T) {
	g := NewGate()
	boom := errors.New("boom")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.Wait(context.Background())
		}(i)
	}
	g.Resolve(boom)
	g.Resolve(nil)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("waiter %d got %v, want the first outcome", i, err)
		}
	}
	if !g.Resolved() {
		t.Error("Resolved = false after Resolve")
	}
}

func TestGate_WaitHonorsContext(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want deadline exceeded", err)
	}
}
