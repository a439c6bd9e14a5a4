package schema

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/pkg/types"
	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func usersTable() *Table {
	return NewTable("users",
		Col("id", Integer().PrimaryKey().AutoIncrement()),
		Col("email", Email().Unique()),
		Col("name", Text()),
		Col("age", Integer().Index()),
		Col("bio", Text().Optional()),
	)
}

func TestBuildTopology_Users(t *testing.T) {
	s, err := New(usersTable())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	topo, err := s.Topology()
	if err != nil {
		t.Fatalf("Topology: %v", err)
	}

	want := types.Topology{{
		Name:           "users",
		PrimaryKeyPath: "id",
		AutoIncrement:  true,
		Indexes: []types.IndexDescriptor{
			{Name: "email", KeyPath: "email", Unique: true},
			{Name: "age", KeyPath: "age", Unique: false},
		},
	}}
	if diff := cmp.Diff(want, topo); diff != "" {
		t.Errorf("topology mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildTopology_PrimaryKeyNeverIndexed(t *testing.T) {
	tbl := NewTable("tags", Col("slug", Text().PrimaryKey().Unique().Index()))
	topo, err := BuildTopology([]*Table{tbl})
	if err != nil {
		t.Fatalf("BuildTopology: %v", err)
	}
	if len(topo[0].Indexes) != 0 {
		t.Errorf("primary key listed as index: %+v", topo[0].Indexes)
	}
	if topo[0].AutoIncrement {
		t.Error("auto-increment set without request")
	}
}

func TestNew_PrimaryKeyCount(t *testing.T) {
	tests := []struct {
		name  string
		table *Table
		count int
	}{
		{"none", NewTable("logs", Col("msg", Text())), 0},
		{"two", NewTable("pairs", Col("a", Integer().PrimaryKey()), Col("b", Integer().PrimaryKey())), 2},
	}
	for _, tt := range tests {
		_, err := New(tt.table)
		if !errors.Is(err, arkerrors.ErrSchema) {
			t.Fatalf("%s: expected schema error, got %v", tt.name, err)
		}
		if !strings.Contains(err.Error(), tt.table.Name()) {
			t.Errorf("%s: error %q does not name the table", tt.name, err)
		}
		if !strings.Contains(err.Error(), fmt.Sprintf("found %d", tt.count)) {
			t.Errorf("%s: error %q does not report count %d", tt.name, err, tt.count)
		}
	}
}

func TestBuildTopology_PrimaryKeyCount(t *testing.T) {
	_, err := BuildTopology([]*Table{NewTable("logs", Col("msg", Text()))})
	if !errors.Is(err, arkerrors.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
	var ae *arkerrors.ArkError
	if !errors.As(err, &ae) || ae.Detail("primary_keys") != 0 {
		t.Errorf("expected primary_keys detail 0, got %+v", ae)
	}
}

func TestNew_AutoIncrementRules(t *testing.T) {
	if _, err := New(NewTable("t", Col("id", Text().PrimaryKey().AutoIncrement()))); !errors.Is(err, arkerrors.ErrSchema) {
		t.Errorf("text auto-increment: expected schema error, got %v", err)
	}
	if _, err := New(NewTable("t", Col("id", UUID().PrimaryKey()), Col("n", Integer().AutoIncrement()))); !errors.Is(err, arkerrors.ErrSchema) {
		t.Errorf("non-pk auto-increment: expected schema error, got %v", err)
	}
	if _, err := New(NewTable("t", Col("id", BigInt().PrimaryKey().AutoIncrement()))); err != nil {
		t.Errorf("bigint auto-increment: unexpected error %v", err)
	}
}

func TestColumn_ModifiersDoNotMutate(t *testing.T) {
	base := Text()
	_ = base.Unique().Optional()
	d := base.Describe()
	if d.Unique || d.Optional {
		t.Error("modifier mutated the receiver")
	}
}

func TestDescriptor_DefaultGenerator(t *testing.T) {
	n := 0
	c := Integer().Default(func() interface{} { n++; return n })
	d := c.Describe()
	if d.DefaultValue() != 1 || d.DefaultValue() != 2 {
		t.Error("generator default should be evaluated per call")
	}
	if Text().Default("x").Describe().DefaultValue() != "x" {
		t.Error("static default not returned")
	}
}

func TestSchema_Without(t *testing.T) {
	posts := NewTable("posts", Col("id", UUID().PrimaryKey()), Col("title", Text()))
	s := MustNew(usersTable(), posts)
	reduced := s.Without("posts")
	if _, ok := reduced.Table("posts"); ok {
		t.Error("posts still present after Without")
	}
	if _, ok := s.Table("posts"); !ok {
		t.Error("Without mutated the original schema")
	}
	if diff := cmp.Diff([]string{"users"}, reduced.TableNames()); diff != "" {
		t.Errorf("names mismatch: %s", diff)
	}
}

func TestParse_Definition(t *testing.T) {
	src := `
tables:
  users:
    columns:
      - {name: id, type: integer, primary_key: true, auto_increment: true}
      - {name: email, type: email, unique: true}
      - {name: code, type: char, length: 3, optional: true}
      - {name: role, type: text, default: member, index: true}
`
	s, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tbl, ok := s.Table("users")
	if !ok {
		t.Fatal("users table missing")
	}
	code, _ := tbl.Column("code")
	if code.Describe().Length != 3 || code.Tag() != TypeChar {
		t.Errorf("code column = %s", code)
	}
	role, _ := tbl.Column("role")
	if role.Describe().DefaultValue() != "member" {
		t.Errorf("role default = %v", role.Describe().DefaultValue())
	}
	topo, _ := s.Topology()
	if len(topo[0].Indexes) != 2 {
		t.Errorf("expected 2 indexes, got %+v", topo[0].Indexes)
	}
}

func TestParse_UnknownType(t *testing.T) {
	_, err := Parse([]byte("tables: {t: {columns: [{name: id, type: blob, primary_key: true}]}}"))
	if err == nil || !strings.Contains(err.Error(), "blob") {
		t.Errorf("expected unknown type error, got %v", err)
	}
}

// TestProperty_TopologyDeterministic checks that the topology does not
// depend on the order tables are passed in.
func TestProperty_TopologyDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("table order does not change topology", prop.ForAll(
		func(n int, seed int64) bool {
			tables := make([]*Table, n)
			for i := range tables {
				tables[i] = NewTable(fmt.Sprintf("t%02d", i),
					Col("id", Integer().PrimaryKey()),
					Col("a", Text().Index()),
					Col("b", Text().Unique()),
				)
			}
			first, err := BuildTopology(tables)
			if err != nil {
				return false
			}
			shuffled := append([]*Table(nil), tables...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			second, err := BuildTopology(shuffled)
			if err != nil {
				return false
			}
			return first.Equal(second)
		},
		gen.IntRange(1, 12),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
