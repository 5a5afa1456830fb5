package xrt

import (
	"fmt"
	"math"
	"runtime"
	"slices"
	"strings"

	"github.com/gomlx/goxrt/dtypes"
	"github.com/gomlx/goxrt/xclbin"
	"github.com/gomlx/goxrt/xrterrors"
)

// ArgumentKind is the shape of a kernel argument: a scalar passed by value, or a reference to a Buffer.
type ArgumentKind int

const (
	ScalarArgument ArgumentKind = iota
	BufferArgument
)

// String implements fmt.Stringer.
func (k ArgumentKind) String() string {
	switch k {
	case ScalarArgument:
		return "Scalar"
	case BufferArgument:
		return "Buffer"
	}
	return fmt.Sprintf("ArgumentKind(%d)", int(k))
}

// Argument is a value passed to a kernel call: either a Scalar or a *Buffer.
//
// The set of implementations is closed: use Scalar to create scalar arguments.
type Argument interface {
	// ArgumentKind returns whether it is a scalar or a buffer.
	ArgumentKind() ArgumentKind

	// DType of the scalar, or of the buffer elements.
	DType() dtypes.DType

	// setArg binds the argument to the run's argument index.
	setArg(r *Run, index int) error
}

// ScalarValue is a scalar argument to a kernel, see Scalar.
type ScalarValue[T dtypes.Supported] struct {
	Value T
}

// Scalar returns an Argument for the value, passed by value to the kernel.
func Scalar[T dtypes.Supported](value T) ScalarValue[T] {
	return ScalarValue[T]{Value: value}
}

// ArgumentKind implements Argument.
func (s ScalarValue[T]) ArgumentKind() ArgumentKind { return ScalarArgument }

// DType implements Argument.
func (s ScalarValue[T]) DType() dtypes.DType { return dtypes.FromGenericsType[T]() }

// String implements fmt.Stringer.
func (s ScalarValue[T]) String() string {
	return fmt.Sprintf("Scalar[%s](%v)", s.DType(), s.Value)
}

// Bits returns the value's bits, zero-extended to 64 bits, as passed to the driver.
func (s ScalarValue[T]) Bits() uint64 {
	switch v := any(s.Value).(type) {
	case uint32:
		return uint64(v)
	case int32:
		return uint64(uint32(v))
	case uint64:
		return v
	case int64:
		return uint64(v)
	case float32:
		return uint64(math.Float32bits(v))
	case float64:
		return math.Float64bits(v)
	}
	return 0
}

func (s ScalarValue[T]) setArg(r *Run, index int) error {
	if status := r.wrapper.driver.SetRunScalarArg(r.wrapper.handle, index, s.Bits(), dtypes.SizeOf[T]()); status != 0 {
		return xrterrors.WithStatus(xrterrors.SetRunArgError, status, "argument #%d: %s", index, s)
	}
	return nil
}

// ArgumentKind implements Argument.
func (b *Buffer[T]) ArgumentKind() ArgumentKind { return BufferArgument }

func (b *Buffer[T]) setArg(r *Run, index int) error {
	if !b.IsValid() {
		return xrterrors.Errorf(xrterrors.BONotCreatedYet, "argument #%d: buffer freed or never allocated", index)
	}
	defer runtime.KeepAlive(b)
	if status := r.wrapper.driver.SetRunBufferArg(r.wrapper.handle, index, b.wrapper.handle); status != 0 {
		return xrterrors.WithStatus(xrterrors.SetRunArgError, status, "argument #%d: %s", index, b)
	}
	return nil
}

// ArgumentType is what a kernel argument position expects.
type ArgumentType struct {
	Kind ArgumentKind

	// DType expected for the scalar or for the buffer elements. If dtypes.Invalid, any supported type is accepted.
	DType dtypes.DType

	// Name of the argument, informative only.
	Name string
}

// String implements fmt.Stringer.
func (t ArgumentType) String() string {
	var dtype string
	if t.DType != dtypes.Invalid {
		dtype = "[" + t.DType.String() + "]"
	}
	if t.Name == "" {
		return t.Kind.String() + dtype
	}
	return fmt.Sprintf("%s:%s%s", t.Name, t.Kind, dtype)
}

// ArgumentMapping is the ordered list of the ArgumentType of a kernel's arguments, indexed by the argument
// position.
type ArgumentMapping []ArgumentType

// String implements fmt.Stringer.
func (m ArgumentMapping) String() string {
	parts := make([]string, 0, len(m))
	for _, t := range m {
		parts = append(parts, t.String())
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Validate the arguments against the mapping.
//
// The number of arguments is checked first (xrterrors.ArgumentNumberMismatchError), then for each position the
// kind (xrterrors.PassVecToScalarArgumentError) and the dtype (xrterrors.ArgumentDTypeMismatchError).
func (m ArgumentMapping) Validate(args ...Argument) error {
	if len(args) != len(m) {
		return xrterrors.Errorf(xrterrors.ArgumentNumberMismatchError, "%d arguments given, but kernel takes %d: %s",
			len(args), len(m), m)
	}
	for ii, arg := range args {
		if arg == nil {
			return xrterrors.Errorf(xrterrors.PassVecToScalarArgumentError, "argument #%d is nil, expected %s", ii, m[ii])
		}
		if arg.ArgumentKind() != m[ii].Kind {
			return xrterrors.Errorf(xrterrors.PassVecToScalarArgumentError, "argument #%d is a %s, expected %s",
				ii, arg.ArgumentKind(), m[ii])
		}
		if m[ii].DType != dtypes.Invalid && arg.DType() != m[ii].DType {
			return xrterrors.Errorf(xrterrors.ArgumentDTypeMismatchError, "argument #%d has dtype %s, expected %s",
				ii, arg.DType(), m[ii])
		}
	}
	return nil
}

// Clone returns a copy of the mapping.
func (m ArgumentMapping) Clone() ArgumentMapping {
	return slices.Clone(m)
}

// MappingFromMetadata converts the kernel signature read from the xclbin build metadata to an ArgumentMapping.
//
// Arguments in global or constant memory are buffers, arguments passed by value are scalars. Types not in
// dtypes.Supported are mapped to dtypes.Invalid, which accepts any type.
// Stream and local memory arguments are not set by the host, and return an xrterrors.KernelArgRtrvError.
func MappingFromMetadata(kernel xclbin.Kernel) (ArgumentMapping, error) {
	m := make(ArgumentMapping, 0, len(kernel.Arguments))
	for ii, arg := range kernel.Arguments {
		if arg.Index != ii {
			return nil, xrterrors.Errorf(xrterrors.KernelArgRtrvError, "kernel %q: argument %q has index %d, expected %d",
				kernel.Name, arg.Name, arg.Index, ii)
		}
		t := ArgumentType{DType: arg.DType, Name: arg.Name}
		switch {
		case arg.AddressQualifier == xclbin.AddressScalar && !arg.IsPointer:
			t.Kind = ScalarArgument
		case arg.AddressQualifier.IsBuffer():
			t.Kind = BufferArgument
		default:
			return nil, xrterrors.Errorf(xrterrors.KernelArgRtrvError, "kernel %q: argument %q (%s, %q) can't be set from the host",
				kernel.Name, arg.Name, arg.AddressQualifier, arg.TypeName)
		}
		m = append(m, t)
	}
	return m, nil
}
