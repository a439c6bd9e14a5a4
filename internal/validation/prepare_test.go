package validation

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/pkg/schema"
	"github.com/arkilian/arkdb/pkg/types"
)

func usersTable() *schema.Table {
	return schema.NewTable("users",
		schema.Col("id", schema.Integer().PrimaryKey().AutoIncrement()),
		schema.Col("email", schema.Email().Unique()),
		schema.Col("name", schema.Varchar(20)),
		schema.Col("role", schema.Text().Default("member")),
		schema.Col("bio", schema.Text().Optional()),
		schema.Col("token", schema.UUID()),
		schema.Col("created", schema.Timestamp()),
		schema.Col("version", schema.Integer().Default(1).OnUpdate(func(cur interface{}) interface{} {
			if n, ok := cur.(int); ok {
				return n + 1
			}
			return 1
		})),
	)
}

func TestPrepare_InsertFillsGeneratedAndDefaults(t *testing.T) {
	raw := types.Record{"email": "a@x.io", "name": "Ada"}
	out, err := Prepare(raw, usersTable(), false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if out["role"] != "member" {
		t.Errorf("role = %v, want member", out["role"])
	}
	if msg := CheckType(schema.UUID().Describe(), out["token"]); msg != "" {
		t.Errorf("generated token invalid: %s", msg)
	}
	if _, err := ParseTimestamp(out["created"].(string)); err != nil {
		t.Errorf("generated timestamp invalid: %v", err)
	}
	if _, ok := out["id"]; ok {
		t.Error("auto-increment key should stay absent")
	}
	if _, ok := out["bio"]; ok {
		t.Error("optional field should stay absent")
	}
	if len(raw) != 2 {
		t.Error("Prepare modified its input")
	}
}

func TestPrepare_UnknownField(t *testing.T) {
	_, err := Prepare(types.Record{"email": "a@x.io", "name": "A", "nickname": "x"}, usersTable(), false)
	if !errors.Is(err, arkerrors.ErrUnknownField) {
		t.Fatalf("expected unknown field error, got %v", err)
	}
	if !strings.Contains(err.Error(), "nickname") {
		t.Errorf("error %q does not name the field", err)
	}
}

func TestPrepare_RequiredFieldMissing(t *testing.T) {
	_, err := Prepare(types.Record{"name": "A"}, usersTable(), false)
	if !errors.Is(err, arkerrors.ErrRequiredFieldMissing) {
		t.Fatalf("expected required field error, got %v", err)
	}
	var ae *arkerrors.ArkError
	if errors.As(err, &ae) && ae.Detail("field") != "email" {
		t.Errorf("field detail = %v, want email", ae.Detail("field"))
	}
}

func TestPrepare_NilValues(t *testing.T) {
	out, err := Prepare(types.Record{"email": "a@x.io", "name": "A", "bio": nil, "id": nil}, usersTable(), false)
	if err != nil {
		t.Fatalf("nil on optional/pk should pass: %v", err)
	}
	if _, ok := out["id"]; ok {
		t.Error("nil primary key should be dropped so the host can generate it")
	}
	if _, err := Prepare(types.Record{"email": nil, "name": "A"}, usersTable(), false); !errors.Is(err, arkerrors.ErrRequiredFieldMissing) {
		t.Errorf("nil on required column: expected required field error, got %v", err)
	}
}

func TestPrepare_TypeValidation(t *testing.T) {
	_, err := Prepare(types.Record{"email": "not-an-email", "name": "A"}, usersTable(), false)
	if !errors.Is(err, arkerrors.ErrTypeValidation) {
		t.Fatalf("expected type validation error, got %v", err)
	}
	_, err = Prepare(types.Record{"email": "a@x.io", "name": strings.Repeat("x", 21)}, usersTable(), false)
	if !errors.Is(err, arkerrors.ErrTypeValidation) {
		t.Fatalf("varchar overflow: expected type validation error, got %v", err)
	}
}

func TestPrepare_CustomValidatorReplacesBuiltin(t *testing.T) {
	tbl := schema.NewTable("codes",
		schema.Col("id", schema.Text().PrimaryKey()),
		schema.Col("value", schema.Integer().Validate(func(v interface{}) error {
			if s, ok := v.(string); ok && s == "ok" {
				return nil
			}
			return fmt.Errorf("must be the string ok")
		})),
	)
	if _, err := Prepare(types.Record{"id": "a", "value": "ok"}, tbl, false); err != nil {
		t.Errorf("custom validator should override integer rule: %v", err)
	}
	_, err := Prepare(types.Record{"id": "a", "value": 5}, tbl, false)
	if !errors.Is(err, arkerrors.ErrTypeValidation) || !strings.Contains(err.Error(), "must be the string ok") {
		t.Errorf("expected custom message, got %v", err)
	}
}

func TestPrepare_AutoIncrementSkipsValidationOnInsertOnly(t *testing.T) {
	tbl := usersTable()
	rec := types.Record{"id": "seven", "email": "a@x.io", "name": "A"}
	if _, err := Prepare(rec, tbl, false); err != nil {
		t.Errorf("insert should skip auto-increment key validation: %v", err)
	}
	if _, err := Prepare(rec, tbl, true); !errors.Is(err, arkerrors.ErrTypeValidation) {
		t.Errorf("update should validate the key, got %v", err)
	}
}

func TestPrepareUpdate_MergesAndRunsHooks(t *testing.T) {
	existing := types.Record{
		"id": int64(1), "email": "a@x.io", "name": "Ada", "role": "member",
		"token": "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "created": "2024-01-01T00:00:00.000Z", "version": 1,
	}
	out, err := PrepareUpdate(existing, types.Record{"role": "admin"}, usersTable())
	if err != nil {
		t.Fatalf("PrepareUpdate: %v", err)
	}
	if out["role"] != "admin" || out["name"] != "Ada" {
		t.Errorf("merge wrong: %+v", out)
	}
	if out["version"] != 2 {
		t.Errorf("version hook not applied: %v", out["version"])
	}
	if existing["role"] != "member" {
		t.Error("PrepareUpdate modified the existing record")
	}
}

func TestPrepareUpdate_RejectsKeyChangeAndUnknown(t *testing.T) {
	existing := types.Record{"id": int64(1), "email": "a@x.io", "name": "A"}
	if _, err := PrepareUpdate(existing, types.Record{"id": 2}, usersTable()); !errors.Is(err, arkerrors.ErrTypeValidation) {
		t.Errorf("key change: expected type validation error, got %v", err)
	}
	if _, err := PrepareUpdate(existing, types.Record{"nope": 1}, usersTable()); !errors.Is(err, arkerrors.ErrUnknownField) {
		t.Errorf("unknown patch field: expected unknown field error, got %v", err)
	}
}

func TestCheckType_Rules(t *testing.T) {
	tests := []struct {
		col  schema.Column
		v    interface{}
		pass bool
	}{
		{schema.Integer(), 5, true},
		{schema.Integer(), 5.0, true},
		{schema.Integer(), 5.5, false},
		{schema.Integer(), "5", false},
		{schema.Float(), 5.5, true},
		{schema.Number(), int8(3), true},
		{schema.Numeric(), "12.5", true},
		{schema.Numeric(), "abc", false},
		{schema.BigInt(), big.NewInt(10), true},
		{schema.BigInt(), int64(10), true},
		{schema.BigInt(), 1.5, false},
		{schema.Text(), "x", true},
		{schema.String(), 1, false},
		{schema.Char(3), "abc", true},
		{schema.Char(3), "ab", false},
		{schema.Varchar(3), "日本語", true},
		{schema.Varchar(3), "abcd", false},
		{schema.Bool(), true, true},
		{schema.Boolean(), "true", false},
		{schema.UUID(), "6ba7b810-9dad-11d1-80b4-00c04fd430c8", true},
		{schema.UUID(), "{6ba7b810-9dad-11d1-80b4-00c04fd430c8}", false},
		{schema.Timestamp(), "2024-03-01T10:00:00Z", true},
		{schema.Timestamp(), "2024-03-01T10:00:00.123Z", true},
		{schema.Timestamp(), "yesterday", false},
		{schema.Email(), "ada@example.com", true},
		{schema.Email(), "Ada <ada@example.com>", false},
		{schema.URL(), "https://example.com/a", true},
		{schema.URL(), "/relative", false},
		{schema.Date(), time.Now(), true},
		{schema.Date(), "2024-01-01", false},
		{schema.Array(), []interface{}{1, 2}, true},
		{schema.List(), [2]int{1, 2}, true},
		{schema.Tuple(), "x", false},
		{schema.Set(), []interface{}{1, 2}, true},
		{schema.Set(), []interface{}{1, 1}, false},
		{schema.Set(), map[string]struct{}{"a": {}}, true},
		{schema.Map(), map[int]string{1: "a"}, true},
		{schema.Map(), []int{}, false},
		{schema.Object(), map[string]interface{}{"a": 1}, true},
		{schema.Object(), struct{ A int }{1}, true},
		{schema.Object(), map[int]int{}, false},
		{schema.Custom(), func() {}, true},
	}
	for _, tt := range tests {
		msg := CheckType(tt.col.Describe(), tt.v)
		if (msg == "") != tt.pass {
			t.Errorf("%s with %#v: pass=%v, want %v (%s)", tt.col, tt.v, msg == "", tt.pass, msg)
		}
	}
}
