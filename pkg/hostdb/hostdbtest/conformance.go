// Package hostdbtest holds a conformance suite every hostdb.Engine must
// pass. Engine packages call Run from their own tests.
package hostdbtest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

// Factory returns a fresh, unopened engine.
type Factory func(t *testing.T) hostdb.Engine

var usersDesc = types.CollectionDescriptor{
	Name:           "users",
	PrimaryKeyPath: "id",
	AutoIncrement:  true,
	Indexes: []types.IndexDescriptor{
		{Name: "email", KeyPath: "email", Unique: true},
		{Name: "age", KeyPath: "age"},
	},
}

var tagsDesc = types.CollectionDescriptor{
	Name:           "tags",
	PrimaryKeyPath: "slug",
	Indexes:        []types.IndexDescriptor{},
}

// Run executes the suite.
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, e hostdb.Engine)
	}{
		{"UpgradeCreatesTopology", testUpgradeCreatesTopology},
		{"UpgradeFailureKeepsState", testUpgradeFailureKeepsState},
		{"UpgradeRejectsOldVersion", testUpgradeRejectsOldVersion},
		{"AutoIncrement", testAutoIncrement},
		{"AddConstraint", testAddConstraint},
		{"UniqueIndexAbortsScope", testUniqueIndexAbortsScope},
		{"PutReplaces", testPutReplaces},
		{"DeleteAndClear", testDeleteAndClear},
		{"RangesAndCounts", testRangesAndCounts},
		{"IndexCursorOrder", testIndexCursorOrder},
		{"AbortRollsBack", testAbortRollsBack},
		{"InactiveAfterCommit", testInactiveAfterCommit},
		{"ReadOnlyRejectsWrites", testReadOnlyRejectsWrites},
		{"IndexLifecycle", testIndexLifecycle},
		{"DeleteCollection", testDeleteCollection},
		{"MissingKeyIsDataError", testMissingKeyIsDataError},
		{"ValueForms", testValueForms},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := factory(t)
			if err := e.Open(context.Background()); err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer e.Close()
			tt.fn(t, e)
		})
	}
}

func provision(t *testing.T, e hostdb.Engine, descs ...types.CollectionDescriptor) {
	t.Helper()
	err := e.Upgrade(context.Background(), e.Version()+1, func(ctx context.Context, m hostdb.Migrator, _, _ int) error {
		for _, d := range descs {
			if err := m.CreateCollection(d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
}

func begin(t *testing.T, e hostdb.Engine, mode hostdb.Mode, tables ...string) hostdb.Scope {
	t.Helper()
	s, err := e.Begin(context.Background(), tables, mode)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return s
}

func collection(t *testing.T, s hostdb.Scope, name string) hostdb.Collection {
	t.Helper()
	c, err := s.Collection(name)
	if err != nil {
		t.Fatalf("Collection(%s): %v", name, err)
	}
	return c
}

func seedUsers(t *testing.T, e hostdb.Engine, ages ...int) {
	t.Helper()
	s := begin(t, e, hostdb.ReadWrite, "users")
	c := collection(t, s, "users")
	for i, age := range ages {
		rec := types.Record{"email": fmt.Sprintf("u%d@x.io", i), "age": age}
		if _, err := c.Add(context.Background(), rec); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func count(t *testing.T, e hostdb.Engine, table string) int {
	t.Helper()
	s := begin(t, e, hostdb.ReadOnly, table)
	defer s.Commit()
	n, err := collection(t, s, table).Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func testUpgradeCreatesTopology(t *testing.T, e hostdb.Engine) {
	if e.Version() != 0 {
		t.Fatalf("fresh version = %d, want 0", e.Version())
	}
	provision(t, e, usersDesc, tagsDesc)
	if e.Version() != 1 {
		t.Errorf("version = %d, want 1", e.Version())
	}
	topo := e.Topology()
	if !topo.Equal(types.Topology{tagsDesc, usersDesc}) {
		t.Errorf("topology = %+v", topo)
	}
}

func testUpgradeFailureKeepsState(t *testing.T, e hostdb.Engine) {
	provision(t, e, usersDesc)
	boom := errors.New("boom")
	err := e.Upgrade(context.Background(), 2, func(ctx context.Context, m hostdb.Migrator, _, _ int) error {
		if err := m.CreateCollection(tagsDesc); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Upgrade error = %v, want boom", err)
	}
	if e.Version() != 1 {
		t.Errorf("version = %d after failed upgrade, want 1", e.Version())
	}
	if _, ok := e.Topology().Collection("tags"); ok {
		t.Error("failed upgrade leaked a collection")
	}
}

func testUpgradeRejectsOldVersion(t *testing.T, e hostdb.Engine) {
	provision(t, e, usersDesc)
	err := e.Upgrade(context.Background(), 1, nil)
	if !errors.Is(err, hostdb.ErrVersion) {
		t.Errorf("expected ErrVersion, got %v", err)
	}
}

func testAutoIncrement(t *testing.T, e hostdb.Engine) {
	provision(t, e, usersDesc)
	ctx := context.Background()
	s := begin(t, e, hostdb.ReadWrite, "users")
	c := collection(t, s, "users")

	k1, err := c.Add(ctx, types.Record{"email": "a@x.io"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := c.Add(ctx, types.Record{"id": 10, "email": "b@x.io"}); err != nil {
		t.Fatalf("Add explicit: %v", err)
	}
	k3, err := c.Add(ctx, types.Record{"email": "c@x.io"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if hostdb.CompareKeys(k1, 1) != 0 || hostdb.CompareKeys(k3, 11) != 0 {
		t.Errorf("generated keys = %v, %v; want 1, 11", k1, k3)
	}
	rec, found, err := c.Get(ctx, k3)
	if err != nil || !found {
		t.Fatalf("Get: %v %v", found, err)
	}
	if hostdb.CompareKeys(rec["id"], 11) != 0 {
		t.Errorf("stored id = %v, want 11", rec["id"])
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func testAddConstraint(t *testing.T, e hostdb.Engine) {
	provision(t, e, tagsDesc)
	ctx := context.Background()
	s := begin(t, e, hostdb.ReadWrite, "tags")
	c := collection(t, s, "tags")
	if _, err := c.Add(ctx, types.Record{"slug": "go"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err := c.Add(ctx, types.Record{"slug": "go"})
	if !errors.Is(err, hostdb.ErrConstraint) {
		t.Fatalf("duplicate Add error = %v, want ErrConstraint", err)
	}
	<-s.Done()
	if !errors.Is(s.Err(), hostdb.ErrAborted) || !errors.Is(s.Err(), hostdb.ErrConstraint) {
		t.Errorf("scope err = %v, want aborted by constraint", s.Err())
	}
	if count(t, e, "tags") != 0 {
		t.Error("aborted scope leaked writes")
	}
}

func testUniqueIndexAbortsScope(t *testing.T, e hostdb.Engine) {
	provision(t, e, usersDesc)
	ctx := context.Background()
	s := begin(t, e, hostdb.ReadWrite, "users")
	c := collection(t, s, "users")
	if _, err := c.Add(ctx, types.Record{"email": "same@x.io"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := c.Add(ctx, types.Record{"email": "same@x.io"}); !errors.Is(err, hostdb.ErrConstraint) {
		t.Fatalf("expected ErrConstraint, got %v", err)
	}
	if _, err := c.Add(ctx, types.Record{"email": "other@x.io"}); !errors.Is(err, hostdb.ErrInactive) {
		t.Errorf("request after abort = %v, want ErrInactive", err)
	}
	if count(t, e, "users") != 0 {
		t.Error("aborted scope leaked writes")
	}
}

func testPutReplaces(t *testing.T, e hostdb.Engine) {
	provision(t, e, usersDesc)
	seedUsers(t, e, 30)
	ctx := context.Background()

	s := begin(t, e, hostdb.ReadWrite, "users")
	c := collection(t, s, "users")
	if _, err := c.Put(ctx, types.Record{"id": 1, "email": "new@x.io", "age": 31}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	s = begin(t, e, hostdb.ReadOnly, "users")
	defer s.Commit()
	idx, err := collection(t, s, "users").Index("email")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if _, found, _ := idx.Get(ctx, "u0@x.io"); found {
		t.Error("old index entry survived Put")
	}
	rec, found, err := idx.Get(ctx, "new@x.io")
	if err != nil || !found {
		t.Fatalf("new index entry missing: %v", err)
	}
	if hostdb.CompareKeys(rec["age"], 31) != 0 {
		t.Errorf("age = %v, want 31", rec["age"])
	}
}

func testDeleteAndClear(t *testing.T, e hostdb.Engine) {
	provision(t, e, usersDesc)
	seedUsers(t, e, 1, 2, 3)
	ctx := context.Background()

	s := begin(t, e, hostdb.ReadWrite, "users")
	c := collection(t, s, "users")
	if err := c.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(ctx, 99); err != nil {
		t.Fatalf("Delete of missing key: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if n := count(t, e, "users"); n != 2 {
		t.Errorf("count after delete = %d, want 2", n)
	}

	s = begin(t, e, hostdb.ReadWrite, "users")
	if err := collection(t, s, "users").Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if n := count(t, e, "users"); n != 0 {
		t.Errorf("count after clear = %d, want 0", n)
	}
}

func testRangesAndCounts(t *testing.T, e hostdb.Engine) {
	provision(t, e, usersDesc)
	seedUsers(t, e, 10, 20, 30, 40, 50)
	ctx := context.Background()
	s := begin(t, e, hostdb.ReadOnly, "users")
	defer s.Commit()
	c := collection(t, s, "users")

	recs, err := c.GetAll(ctx, hostdb.Bound(2, 4, false, true), 0)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("GetAll [2,4) returned %d, want 2", len(recs))
	}
	limited, _ := c.GetAll(ctx, nil, 3)
	if len(limited) != 3 {
		t.Errorf("GetAll limit 3 returned %d", len(limited))
	}

	idx, err := c.Index("age")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	n, err := idx.Count(ctx, hostdb.LowerBound(30, false))
	if err != nil || n != 3 {
		t.Errorf("index count >= 30 = %d (%v), want 3", n, err)
	}
	n, err = c.Count(ctx, hostdb.Only(3))
	if err != nil || n != 1 {
		t.Errorf("count only(3) = %d (%v), want 1", n, err)
	}
	if _, err := c.Index("missing"); !errors.Is(err, hostdb.ErrNotFound) {
		t.Errorf("missing index error = %v", err)
	}
}

func testIndexCursorOrder(t *testing.T, e hostdb.Engine) {
	provision(t, e, usersDesc)
	seedUsers(t, e, 10, 40, 25, 40, 5)
	ctx := context.Background()
	s := begin(t, e, hostdb.ReadOnly, "users")
	defer s.Commit()
	idx, err := collection(t, s, "users").Index("age")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	cur, err := idx.OpenCursor(ctx, nil, types.Desc)
	if err != nil {
		t.Fatalf("OpenCursor: %v", err)
	}
	defer cur.Close()
	var got []string
	for cur.Next() {
		got = append(got, fmt.Sprintf("%v/%v", cur.Key(), cur.PrimaryKey()))
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("cursor: %v", err)
	}
	want := []string{"40/2", "40/4", "25/3", "10/1", "5/5"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("desc order = %v, want %v", got, want)
	}
}

func testAbortRollsBack(t *testing.T, e hostdb.Engine) {
	provision(t, e, usersDesc)
	ctx := context.Background()
	s := begin(t, e, hostdb.ReadWrite, "users")
	c := collection(t, s, "users")
	if _, err := c.Add(ctx, types.Record{"email": "a@x.io"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n, _ := c.Count(ctx, nil); n != 1 {
		t.Errorf("scope does not see its own write")
	}
	if err := s.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	<-s.Done()
	if !errors.Is(s.Err(), hostdb.ErrAborted) {
		t.Errorf("Err = %v, want ErrAborted", s.Err())
	}
	if count(t, e, "users") != 0 {
		t.Error("abort did not roll back")
	}
}

func testInactiveAfterCommit(t *testing.T, e hostdb.Engine) {
	provision(t, e, tagsDesc)
	s := begin(t, e, hostdb.ReadWrite, "tags")
	c := collection(t, s, "tags")
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if s.Err() != nil {
		t.Errorf("Err after commit = %v", s.Err())
	}
	if _, err := c.Add(context.Background(), types.Record{"slug": "x"}); !errors.Is(err, hostdb.ErrInactive) {
		t.Errorf("Add after commit = %v, want ErrInactive", err)
	}
	if err := s.Commit(); !errors.Is(err, hostdb.ErrInactive) {
		t.Errorf("second Commit = %v, want ErrInactive", err)
	}
}

func testReadOnlyRejectsWrites(t *testing.T, e hostdb.Engine) {
	provision(t, e, tagsDesc)
	s := begin(t, e, hostdb.ReadOnly, "tags")
	defer s.Commit()
	if _, err := collection(t, s, "tags").Add(context.Background(), types.Record{"slug": "x"}); !errors.Is(err, hostdb.ErrReadOnly) {
		t.Errorf("Add in readonly scope = %v, want ErrReadOnly", err)
	}
}

func testIndexLifecycle(t *testing.T, e hostdb.Engine) {
	provision(t, e, usersDesc)
	seedUsers(t, e, 10, 10)
	ctx := context.Background()

	err := e.Upgrade(ctx, e.Version()+1, func(ctx context.Context, m hostdb.Migrator, _, _ int) error {
		return m.CreateIndex("users", types.IndexDescriptor{Name: "age_u", KeyPath: "age", Unique: true})
	})
	if !errors.Is(err, hostdb.ErrConstraint) {
		t.Fatalf("unique index over duplicates = %v, want ErrConstraint", err)
	}

	err = e.Upgrade(ctx, e.Version()+1, func(ctx context.Context, m hostdb.Migrator, _, _ int) error {
		return m.DeleteIndex("users", "age")
	})
	if err != nil {
		t.Fatalf("DeleteIndex: %v", err)
	}
	desc, _ := e.Topology().Collection("users")
	if _, ok := desc.Index("age"); ok {
		t.Error("age index still present")
	}
	if count(t, e, "users") != 2 {
		t.Error("index drop lost data")
	}
}

func testDeleteCollection(t *testing.T, e hostdb.Engine) {
	provision(t, e, usersDesc, tagsDesc)
	seedUsers(t, e, 1)
	err := e.Upgrade(context.Background(), e.Version()+1, func(ctx context.Context, m hostdb.Migrator, _, _ int) error {
		return m.DeleteCollection("users")
	})
	if err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if _, err := e.Begin(context.Background(), []string{"users"}, hostdb.ReadOnly); !errors.Is(err, hostdb.ErrNotFound) {
		t.Errorf("Begin on dropped collection = %v, want ErrNotFound", err)
	}
}

func testMissingKeyIsDataError(t *testing.T, e hostdb.Engine) {
	provision(t, e, tagsDesc)
	s := begin(t, e, hostdb.ReadWrite, "tags")
	_, err := collection(t, s, "tags").Add(context.Background(), types.Record{"name": "no slug"})
	if !errors.Is(err, hostdb.ErrData) {
		t.Errorf("Add without key = %v, want ErrData", err)
	}
	s.Abort()
}

type level int

func testValueForms(t *testing.T, e hostdb.Engine) {
	provision(t, e, tagsDesc)
	ctx := context.Background()
	s := begin(t, e, hostdb.ReadWrite, "tags")
	c := collection(t, s, "tags")
	in := types.Record{
		"slug":   "go",
		"n":      7,
		"small":  int8(-3),
		"u":      uint32(9),
		"whole":  2.0,
		"half":   float32(0.5),
		"lvl":    level(4),
		"names":  []string{"a", "b"},
		"nested": map[string]interface{}{"count": 3, "ids": []int{1, 2}},
	}
	if _, err := c.Add(ctx, in); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	<-s.Done()

	r := begin(t, e, hostdb.ReadOnly, "tags")
	defer r.Abort()
	got, found, err := collection(t, r, "tags").Get(ctx, "go")
	if err != nil || !found {
		t.Fatalf("Get = %v, %v", found, err)
	}
	want := map[string]interface{}{
		"slug":   "go",
		"n":      int64(7),
		"small":  int64(-3),
		"u":      int64(9),
		"whole":  2.0,
		"half":   0.5,
		"lvl":    int64(4),
		"names":  []interface{}{"a", "b"},
		"nested": map[string]interface{}{"count": int64(3), "ids": []interface{}{int64(1), int64(2)}},
	}
	if diff := cmp.Diff(want, map[string]interface{}(got)); diff != "" {
		t.Errorf("stored value forms mismatch (-want +got):\n%s", diff)
	}
}
