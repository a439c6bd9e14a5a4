// Package schema declares tables and columns and derives the host engine
// topology from them.
//
// Columns are built from a type constructor followed by chained modifiers:
//
//	schema.Integer().PrimaryKey().AutoIncrement()
//	schema.Text().Unique()
//	schema.Varchar(64).Optional().Default("anonymous")
//
// Every modifier returns a new Column; a Column value is never mutated.
package schema

import "fmt"

// TypeTag names the value rule a column enforces.
type TypeTag string

const (
	TypeInteger   TypeTag = "integer"
	TypeFloat     TypeTag = "float"
	TypeNumber    TypeTag = "number"
	TypeNumeric   TypeTag = "numeric"
	TypeBigInt    TypeTag = "bigint"
	TypeText      TypeTag = "text"
	TypeString    TypeTag = "string"
	TypeChar      TypeTag = "char"
	TypeVarchar   TypeTag = "varchar"
	TypeBool      TypeTag = "bool"
	TypeBoolean   TypeTag = "boolean"
	TypeUUID      TypeTag = "uuid"
	TypeTimestamp TypeTag = "timestamp"
	TypeEmail     TypeTag = "email"
	TypeURL       TypeTag = "url"
	TypeDate      TypeTag = "date"
	TypeArray     TypeTag = "array"
	TypeList      TypeTag = "list"
	TypeTuple     TypeTag = "tuple"
	TypeSet       TypeTag = "set"
	TypeMap       TypeTag = "map"
	TypeObject    TypeTag = "object"
	TypeCustom    TypeTag = "custom"
)

var knownTags = map[TypeTag]bool{
	TypeInteger: true, TypeFloat: true, TypeNumber: true, TypeNumeric: true, TypeBigInt: true,
	TypeText: true, TypeString: true, TypeChar: true, TypeVarchar: true,
	TypeBool: true, TypeBoolean: true, TypeUUID: true, TypeTimestamp: true,
	TypeEmail: true, TypeURL: true, TypeDate: true,
	TypeArray: true, TypeList: true, TypeTuple: true, TypeSet: true,
	TypeMap: true, TypeObject: true, TypeCustom: true,
}

// IsNumeric reports whether the tag holds numbers.
func (t TypeTag) IsNumeric() bool {
	switch t {
	case TypeInteger, TypeFloat, TypeNumber, TypeNumeric, TypeBigInt:
		return true
	}
	return false
}

// ParseTypeTag resolves a tag name.
func ParseTypeTag(s string) (TypeTag, bool) {
	t := TypeTag(s)
	return t, knownTags[t]
}

// Validator replaces the built-in type check. A non-nil error rejects the
// value with the error's message.
type Validator func(value interface{}) error

// UpdateHook computes a column value on every update from the current one.
type UpdateHook func(current interface{}) interface{}

type columnMeta struct {
	primaryKey    bool
	autoIncrement bool
	unique        bool
	indexed       bool
	optional      bool
	hasDefault    bool
	defaultValue  interface{}
	validator     Validator
	onUpdate      UpdateHook
}

// Column is an immutable column declaration.
type Column struct {
	tag    TypeTag
	length int
	meta   columnMeta
}

func newColumn(tag TypeTag) Column { return Column{tag: tag} }

// Integer declares a whole number column.
func Integer() Column { return newColumn(TypeInteger) }

// Float declares a number column. NaN is rejected.
func Float() Column { return newColumn(TypeFloat) }

// Number is an alias of Float.
func Number() Column { return newColumn(TypeNumber) }

// Numeric accepts a number or a string that parses as one.
func Numeric() Column { return newColumn(TypeNumeric) }

// BigInt declares a column holding a big.Int or any integer.
func BigInt() Column { return newColumn(TypeBigInt) }

// Text declares a string column with no length limit.
func Text() Column { return newColumn(TypeText) }

// String is an alias of Text.
func String() Column { return newColumn(TypeString) }

// Bool declares a boolean column.
func Bool() Column { return newColumn(TypeBool) }

// Boolean is an alias of Bool.
func Boolean() Column { return newColumn(TypeBoolean) }

// UUID declares a UUID string column. A missing value is generated on insert.
func UUID() Column { return newColumn(TypeUUID) }

// Timestamp declares an ISO-8601 string column. A missing value is set
// to the insert time.
func Timestamp() Column { return newColumn(TypeTimestamp) }

// Email declares a string column holding an email address.
func Email() Column { return newColumn(TypeEmail) }

// URL declares an absolute URL string column.
func URL() Column { return newColumn(TypeURL) }

// Date declares a time.Time column.
func Date() Column { return newColumn(TypeDate) }

// Array declares a slice or array column.
func Array() Column { return newColumn(TypeArray) }

// List is an alias of Array.
func List() Column { return newColumn(TypeList) }

// Tuple is an alias of Array.
func Tuple() Column { return newColumn(TypeTuple) }

// Set declares a column holding distinct slice elements or a set-shaped
// map (map[K]bool or map[K]struct{}).
func Set() Column { return newColumn(TypeSet) }

// Map declares a column holding any map.
func Map() Column { return newColumn(TypeMap) }

// Object declares a string-keyed map or struct column.
func Object() Column { return newColumn(TypeObject) }

// Custom declares a column with no built-in type check.
func Custom() Column { return newColumn(TypeCustom) }

// Char declares a string of exactly n characters.
func Char(n int) Column { return Column{tag: TypeChar, length: n} }

// Varchar declares a string of at most n characters.
func Varchar(n int) Column { return Column{tag: TypeVarchar, length: n} }

// Of builds a column from a tag, for definitions loaded at runtime.
func Of(tag TypeTag, length int) (Column, error) {
	if !knownTags[tag] {
		return Column{}, fmt.Errorf("schema: unknown column type %q", tag)
	}
	if (tag == TypeChar || tag == TypeVarchar) && length <= 0 {
		return Column{}, fmt.Errorf("schema: %s requires a positive length", tag)
	}
	return Column{tag: tag, length: length}, nil
}

// PrimaryKey makes the column the table's key. A table has exactly one.
func (c Column) PrimaryKey() Column {
	c.meta.primaryKey = true
	return c
}

// AutoIncrement lets the host generate the key. Only valid together with
// PrimaryKey on a numeric column; New rejects other combinations.
func (c Column) AutoIncrement() Column {
	c.meta.autoIncrement = true
	return c
}

// Unique declares a unique secondary index on the column.
func (c Column) Unique() Column {
	c.meta.unique = true
	return c
}

// Index declares a non-unique secondary index on the column.
func (c Column) Index() Column {
	c.meta.indexed = true
	return c
}

// Optional allows the column to be absent or nil.
func (c Column) Optional() Column {
	c.meta.optional = true
	return c
}

// Default sets the value used when an inserted record omits the column.
// A func() interface{} is called once per record.
func (c Column) Default(v interface{}) Column {
	c.meta.hasDefault = true
	c.meta.defaultValue = v
	return c
}

// Validate adds a check that runs after the type check passes.
func (c Column) Validate(fn Validator) Column {
	c.meta.validator = fn
	return c
}

// OnUpdate sets a hook that computes the column's value on every update
// from its stored value.
func (c Column) OnUpdate(fn UpdateHook) Column {
	c.meta.onUpdate = fn
	return c
}

// Descriptor is a read-only view of a column declaration.
type Descriptor struct {
	Tag           TypeTag
	Length        int
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	Indexed       bool
	Optional      bool
	HasDefault    bool
	Validator     Validator
	OnUpdate      UpdateHook
	defaultValue  interface{}
}

// DefaultValue resolves the column default, calling it when it is a generator.
func (d Descriptor) DefaultValue() interface{} {
	if fn, ok := d.defaultValue.(func() interface{}); ok {
		return fn()
	}
	return d.defaultValue
}

// Describe returns the column's declaration.
func (c Column) Describe() Descriptor {
	return Descriptor{
		Tag:           c.tag,
		Length:        c.length,
		PrimaryKey:    c.meta.primaryKey,
		AutoIncrement: c.meta.autoIncrement,
		Unique:        c.meta.unique,
		Indexed:       c.meta.indexed,
		Optional:      c.meta.optional,
		HasDefault:    c.meta.hasDefault,
		Validator:     c.meta.validator,
		OnUpdate:      c.meta.onUpdate,
		defaultValue:  c.meta.defaultValue,
	}
}

// Tag returns the column's type tag.
func (c Column) Tag() TypeTag { return c.tag }

func (c Column) String() string {
	if c.length > 0 {
		return fmt.Sprintf("%s(%d)", c.tag, c.length)
	}
	return string(c.tag)
}
