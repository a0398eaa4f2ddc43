package plan

// TypeTag is the closed set of column types a Schema column may carry.
// Source-specific types are normalized into this set by the adapter that
// owns the column (internal/adapter).
type TypeTag string

const (
	TBool      TypeTag = "bool"
	TInt8      TypeTag = "int8"
	TInt16     TypeTag = "int16"
	TInt32     TypeTag = "int32"
	TInt64     TypeTag = "int64"
	TFloat32   TypeTag = "float32"
	TFloat64   TypeTag = "float64"
	TDecimal   TypeTag = "decimal"
	TUTF8      TypeTag = "utf8"
	TBinary    TypeTag = "binary"
	TTimestamp TypeTag = "timestamp"
	TDate      TypeTag = "date"
	TTime      TypeTag = "time"
	TInterval  TypeTag = "interval"
	TJSON      TypeTag = "json"
	TVector    TypeTag = "vector"
	TGeometry  TypeTag = "geometry"
	TArray     TypeTag = "array"
	TStruct    TypeTag = "struct"
	TUnknown   TypeTag = "unknown"
)

// ColumnType fully describes a column's type, including the parametrized
// forms (decimal(p,s), vector(dim), array<T>).
type ColumnType struct {
	Tag       TypeTag
	Precision int // decimal(p,s)
	Scale     int
	Dim       int         // vector(dim)
	Elem      *ColumnType // array<T>
	TZ        bool        // timestamp(tz)
}

// Column describes one schema column.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
	Tags     map[string]string
}

// Schema is an ordered list of columns. Equality is defined column-wise by
// Equal below; optimizer rewrites that change row order or add/drop rows
// must still preserve Schema per the spec's testable invariant
// schema(optimize(P)) == schema(P).
type Schema []Column

// Equal reports whether two schemas have the same columns, in order, with
// the same names and types (nullability and tags are metadata and do not
// affect plan-equivalence for this comparison).
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i].Name != o[i].Name || s[i].Type.Tag != o[i].Type.Tag {
			return false
		}
	}
	return true
}

// IndexOf returns the position of the named column, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}
