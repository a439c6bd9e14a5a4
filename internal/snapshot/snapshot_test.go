package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arkilian/arkdb/internal/connection"
	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/internal/observability"
	"github.com/arkilian/arkdb/internal/query"
	"github.com/arkilian/arkdb/internal/storage"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/hostdb/memdb"
	"github.com/arkilian/arkdb/pkg/schema"
	"github.com/arkilian/arkdb/pkg/types"
)

func testSchema() *schema.Schema {
	return schema.MustNew(
		schema.NewTable("users",
			schema.Col("id", schema.Integer().PrimaryKey().AutoIncrement()),
			schema.Col("email", schema.Email().Unique()),
			schema.Col("age", schema.Integer().Optional()),
		),
		schema.NewTable("notes",
			schema.Col("id", schema.UUID().PrimaryKey()),
			schema.Col("body", schema.Text()),
		),
	)
}

type fixture struct {
	m   *connection.Manager
	env query.Env
}

func newFixture(t *testing.T, name string) fixture {
	t.Helper()
	m, err := connection.Open(context.Background(), memdb.New(), testSchema(), connection.Options{Name: name})
	if err != nil {
		t.Fatalf("connection.Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return fixture{m: m, env: query.Env{Catalog: m, Binding: query.Implicit(m), Stats: observability.NewQueryStats(time.Hour)}}
}

func (f fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := query.NewInsert(f.env, "users").Values(
		types.Record{"email": "a@x.io", "age": 30},
		types.Record{"email": "b@x.io"},
		types.Record{"email": "c@x.io", "age": 41},
	).Run(ctx)
	if err != nil {
		t.Fatalf("seed users: %v", err)
	}
	if _, err := query.NewInsert(f.env, "notes").Values(types.Record{"body": "hello"}).Run(ctx); err != nil {
		t.Fatalf("seed notes: %v", err)
	}
}

func (f fixture) export(t *testing.T, opts ExportOptions) *types.Snapshot {
	t.Helper()
	snap, err := Export(context.Background(), f.m, f.env, opts)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	return snap
}

func encoded(t *testing.T, snap *types.Snapshot) string {
	t.Helper()
	data, err := Encode(&types.Snapshot{Data: snap.Data}, FormatJSON)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return string(data)
}

func TestExportMetadata(t *testing.T) {
	f := newFixture(t, "shop")
	f.seed(t)

	snap := f.export(t, DefaultExportOptions())
	if snap.Metadata == nil {
		t.Fatal("metadata missing")
	}
	if snap.Metadata.DBName != "shop" || snap.Metadata.Version != 1 {
		t.Errorf("metadata = %+v", snap.Metadata)
	}
	if diff := cmp.Diff(f.m.Schema().TableNames(), snap.Metadata.Tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
	if _, err := time.Parse(time.RFC3339, snap.Metadata.ExportedAt); err != nil {
		t.Errorf("exportedAt %q is not ISO-8601: %v", snap.Metadata.ExportedAt, err)
	}
	if snap.RowCount() != 4 {
		t.Errorf("RowCount = %d", snap.RowCount())
	}

	bare := f.export(t, ExportOptions{Tables: []string{"users"}})
	if bare.Metadata != nil || len(bare.Data) != 1 || len(bare.Data["users"]) != 3 {
		t.Errorf("export without metadata = %+v", bare)
	}
	data, _ := Encode(bare, FormatJSON)
	if string(data[:8]) != `{"data":` {
		t.Errorf("metadata key should be omitted: %s", data)
	}

	if _, err := Export(context.Background(), f.m, f.env, ExportOptions{Tables: []string{"ghosts"}}); !errors.Is(err, arkerrors.ErrTableNotFound) {
		t.Errorf("export of undeclared table = %v", err)
	}
}

func TestExportReplaceImportRoundTrip(t *testing.T) {
	src := newFixture(t, "src")
	src.seed(t)
	snap := src.export(t, DefaultExportOptions())

	data, err := Encode(snap, FormatSnappy)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data, FormatSnappy)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	dst := newFixture(t, "dst")
	if _, err := query.NewInsert(dst.env, "users").Values(types.Record{"email": "stale@x.io"}).Run(context.Background()); err != nil {
		t.Fatalf("seed dst: %v", err)
	}
	res, err := Import(context.Background(), dst.m, dst.env, decoded, ImportOptions{Mode: types.ImportReplace})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Rows != 4 || res.Tables["users"] != 3 {
		t.Errorf("import result = %+v", res)
	}

	if diff := cmp.Diff(encoded(t, snap), encoded(t, dst.export(t, DefaultExportOptions()))); diff != "" {
		t.Errorf("round trip mismatch (-src +dst):\n%s", diff)
	}
}

func TestImportMergeCollisionAbortsEverything(t *testing.T) {
	f := newFixture(t, "merge")
	f.seed(t)
	snap := f.export(t, DefaultExportOptions())
	snap.Data["notes"] = append(snap.Data["notes"], types.Record{"id": "0b3f2a5e-6a53-4a44-9a5b-5b0b8d3f9c11", "body": "new"})

	_, err := Import(context.Background(), f.m, f.env, snap, ImportOptions{})
	if !errors.Is(err, arkerrors.ErrTransactionAborted) || !errors.Is(err, hostdb.ErrConstraint) {
		t.Fatalf("merge over existing keys = %v, want transaction abort", err)
	}
	if n, _ := query.NewSelect(f.env, "notes").Count(context.Background()); n != 1 {
		t.Errorf("notes = %d after aborted import, want 1", n)
	}
}

func TestImportUpsertIsIdempotent(t *testing.T) {
	f := newFixture(t, "upsert")
	f.seed(t)
	snap := f.export(t, DefaultExportOptions())
	before := encoded(t, snap)

	for i := 0; i < 2; i++ {
		if _, err := Import(context.Background(), f.m, f.env, snap, ImportOptions{Mode: types.ImportUpsert}); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	if diff := cmp.Diff(before, encoded(t, f.export(t, DefaultExportOptions()))); diff != "" {
		t.Errorf("upsert changed data (-before +after):\n%s", diff)
	}
}

func TestImportTableSelection(t *testing.T) {
	f := newFixture(t, "sel")
	snap := &types.Snapshot{Data: map[string][]types.Record{
		"users":  {{"id": 7, "email": "z@x.io"}},
		"legacy": {{"id": 1}},
	}}

	res, err := Import(context.Background(), f.m, f.env, snap, ImportOptions{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if _, ok := res.Tables["legacy"]; ok || res.Tables["users"] != 1 {
		t.Errorf("undeclared snapshot tables should be skipped: %+v", res)
	}

	_, err = Import(context.Background(), f.m, f.env, snap, ImportOptions{Tables: []string{"legacy"}})
	if !errors.Is(err, arkerrors.ErrSchema) {
		t.Errorf("requested undeclared table = %v, want schema error", err)
	}

	_, err = Import(context.Background(), f.m, f.env, snap, ImportOptions{Mode: "overwrite"})
	if !errors.Is(err, arkerrors.ErrInvalidQuery) {
		t.Errorf("unknown mode = %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	f := newFixture(t, "disk")
	f.seed(t)
	snap := f.export(t, DefaultExportOptions())

	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, format := range []Format{FormatJSON, FormatSnappy} {
		name := ObjectName("backups", "disk", at, format)
		if err := Save(ctx, store, name, snap, format, false); err != nil {
			t.Fatalf("Save %s: %v", format, err)
		}
		if err := Save(ctx, store, name, snap, format, false); !errors.Is(err, storage.ErrPreconditionFailed) {
			t.Errorf("second Save without overwrite = %v", err)
		}
		loaded, err := Load(ctx, store, name)
		if err != nil {
			t.Fatalf("Load %s: %v", name, err)
		}
		if diff := cmp.Diff(snap.Metadata, loaded.Metadata); diff != "" {
			t.Errorf("metadata mismatch (-want +got):\n%s", diff)
		}
		if encoded(t, snap) != encoded(t, loaded) {
			t.Errorf("%s: data changed through storage", format)
		}
	}

	if got := ObjectName("backups", "disk", at, FormatSnappy); got != "backups/disk-20260301T120000Z.json.sz" {
		t.Errorf("ObjectName = %q", got)
	}
	if _, err := Load(ctx, store, "backups/none.json"); !errors.Is(err, arkerrors.ErrObjectNotFound) {
		t.Errorf("Load missing = %v", err)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	if _, err := Decode([]byte("{not json"), FormatJSON); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := Decode([]byte("\xff\xff\xff"), FormatSnappy); err == nil {
		t.Error("expected error for invalid snappy block")
	}
}

func TestProperty_UpsertImportIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("importing the same snapshot twice with upsert leaves one copy", prop.ForAll(
		func(n, salt int) bool {
			f := newFixture(t, "prop")
			rows := make([]types.Record, n)
			for i := range rows {
				rows[i] = types.Record{"id": i + 1, "email": "u" + string(rune('a'+i)) + "@x.io", "age": (i * salt) % 90}
			}
			snap := &types.Snapshot{Data: map[string][]types.Record{"users": rows}}
			for i := 0; i < 2; i++ {
				if _, err := Import(context.Background(), f.m, f.env, snap, ImportOptions{Mode: types.ImportUpsert}); err != nil {
					return false
				}
			}
			n, err := query.NewSelect(f.env, "users").Count(context.Background())
			return err == nil && n == len(rows)
		},
		gen.IntRange(0, 20),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
