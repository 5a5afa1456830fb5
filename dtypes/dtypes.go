// Package dtypes defines the closed set of scalar datatypes that can be transferred to and from an accelerator:
// unsigned and signed 32- and 64-bit integers, and 32- and 64-bit floats.
//
// The generic constraint Supported restricts which Go types can instantiate buffers and scalar arguments, and
// DType is its runtime tag.
package dtypes

import (
	"reflect"
	"strings"
	"unsafe"
)

//go:generate go tool enumer -type=DType -output=gen_dtype_enumer.go dtypes.go

// DType is the runtime tag of one of the hardware datatypes.
type DType int

const (
	// Invalid represents an invalid (or not set) dtype.
	Invalid DType = iota

	Uint32
	Int32
	Uint64
	Int64
	Float32
	Float64
)

// Supported lists the Go types that can be transferred to/from the accelerator.
type Supported interface {
	uint32 | int32 | uint64 | int64 | float32 | float64
}

// FromGenericsType returns the DType for the given Supported type.
func FromGenericsType[T Supported]() DType {
	var t T
	switch any(t).(type) {
	case uint32:
		return Uint32
	case int32:
		return Int32
	case uint64:
		return Uint64
	case int64:
		return Int64
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return Invalid
}

// FromAny returns the DType of the value, or Invalid if it's not one of the supported types.
func FromAny(value any) DType {
	switch value.(type) {
	case uint32:
		return Uint32
	case int32:
		return Int32
	case uint64:
		return Uint64
	case int64:
		return Int64
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return Invalid
}

// SizeOf returns the size in bytes of one element of T.
func SizeOf[T Supported]() int {
	var t T
	return int(unsafe.Sizeof(t))
}

// Size returns the number of bytes of one element of the dtype, or 0 for Invalid.
func (dtype DType) Size() int {
	switch dtype {
	case Uint32, Int32, Float32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	}
	return 0
}

// Bits returns the number of bits of one element of the dtype.
func (dtype DType) Bits() int {
	return dtype.Size() * 8
}

// IsFloat returns whether dtype is a floating point type.
func (dtype DType) IsFloat() bool {
	return dtype == Float32 || dtype == Float64
}

// IsUnsigned returns whether dtype is an unsigned integer type.
func (dtype DType) IsUnsigned() bool {
	return dtype == Uint32 || dtype == Uint64
}

// GoType returns the Go reflect.Type of the dtype, or nil for Invalid.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Uint32:
		return reflect.TypeOf(uint32(0))
	case Int32:
		return reflect.TypeOf(int32(0))
	case Uint64:
		return reflect.TypeOf(uint64(0))
	case Int64:
		return reflect.TypeOf(int64(0))
	case Float32:
		return reflect.TypeOf(float32(0))
	case Float64:
		return reflect.TypeOf(float64(0))
	}
	return nil
}

// MapOfNames to their dtypes. It includes the enum names, Go type names, and the C type names used in the kernels
// build metadata (e.g.: "unsigned int").
//
// Lookups are case-sensitive for the C names, use strings.ToLower on the input for the others.
var MapOfNames = map[string]DType{
	"Invalid": Invalid,
	"invalid": Invalid,

	"Uint32":       Uint32,
	"uint32":       Uint32,
	"u32":          Uint32,
	"uint":         Uint32,
	"uint32_t":     Uint32,
	"unsigned":     Uint32,
	"unsigned int": Uint32,

	"Int32":   Int32,
	"int32":   Int32,
	"i32":     Int32,
	"int":     Int32,
	"int32_t": Int32,

	"Uint64":             Uint64,
	"uint64":             Uint64,
	"u64":                Uint64,
	"ulong":              Uint64,
	"uint64_t":           Uint64,
	"size_t":             Uint64,
	"unsigned long":      Uint64,
	"unsigned long long": Uint64,

	"Int64":     Int64,
	"int64":     Int64,
	"i64":       Int64,
	"long":      Int64,
	"int64_t":   Int64,
	"long long": Int64,

	"Float32": Float32,
	"float32": Float32,
	"f32":     Float32,
	"float":   Float32,

	"Float64": Float64,
	"float64": Float64,
	"f64":     Float64,
	"double":  Float64,
}

// FromName returns the dtype for the given name, see MapOfNames.
// Extra white space and "const" qualifiers are ignored. It returns Invalid if the name is not known.
func FromName(name string) DType {
	name = strings.Join(strings.Fields(strings.ReplaceAll(name, "const ", "")), " ")
	if dtype, found := MapOfNames[name]; found {
		return dtype
	}
	if dtype, found := MapOfNames[strings.ToLower(name)]; found {
		return dtype
	}
	return Invalid
}

// CName returns the C type name used for the dtype in kernel sources, e.g. "unsigned int" for Uint32.
func (dtype DType) CName() string {
	switch dtype {
	case Uint32:
		return "unsigned int"
	case Int32:
		return "int"
	case Uint64:
		return "unsigned long long"
	case Int64:
		return "long long"
	case Float32:
		return "float"
	case Float64:
		return "double"
	}
	return ""
}
