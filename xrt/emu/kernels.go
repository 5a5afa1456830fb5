package emu

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/gomlx/goxrt/dtypes"
	"github.com/gomlx/goxrt/xclbin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// KernelFunc implements a kernel in Go. It is called in its own goroutine for each run started.
//
// If it returns an error (or panics) the run finishes with xrt.StateError.
type KernelFunc func(args *KernelArgs) error

// KernelArgs are the arguments bound to a run, as seen by the kernel: buffers point to the device memory.
type KernelArgs struct {
	kernel xclbin.Kernel
	args   []boundArg
}

// Len returns the number of arguments.
func (a *KernelArgs) Len() int { return len(a.args) }

// Kernel returns the signature of the kernel being executed.
func (a *KernelArgs) Kernel() xclbin.Kernel { return a.kernel }

// BufferArg returns the device memory of the buffer bound to argument index, as a slice of T.
// Trailing bytes that don't fill a T are not included.
func BufferArg[T dtypes.Supported](a *KernelArgs, index int) ([]T, error) {
	if index < 0 || index >= len(a.args) || a.args[index].buffer == nil {
		return nil, errors.Errorf("kernel %q: argument #%d is not a buffer", a.kernel.Name, index)
	}
	mem := a.args[index].buffer.dev
	n := len(mem) / dtypes.SizeOf[T]()
	if n == 0 {
		return []T{}, nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&mem[0])), n), nil
}

// ScalarArg returns the value of the scalar bound to argument index.
func ScalarArg[T dtypes.Supported](a *KernelArgs, index int) (T, error) {
	var zero T
	if index < 0 || index >= len(a.args) || a.args[index].buffer != nil {
		return zero, errors.Errorf("kernel %q: argument #%d is not a scalar", a.kernel.Name, index)
	}
	arg := a.args[index]
	if arg.size != dtypes.SizeOf[T]() {
		return zero, errors.Errorf("kernel %q: scalar argument #%d has %d bytes, can't read as %s",
			a.kernel.Name, index, arg.size, dtypes.FromGenericsType[T]())
	}
	bits := arg.bits
	var value any
	switch any(zero).(type) {
	case uint32:
		value = uint32(bits)
	case int32:
		value = int32(uint32(bits))
	case uint64:
		value = bits
	case int64:
		value = int64(bits)
	case float32:
		value = math.Float32frombits(uint32(bits))
	case float64:
		value = math.Float64frombits(bits)
	}
	return value.(T), nil
}

var (
	kernelsMu sync.Mutex
	kernelFns = make(map[string]KernelFunc)
)

// RegisterKernel registers the implementation of the kernel with the given name, used by all emulators.
// It replaces any previous registration with the same name.
func RegisterKernel(name string, fn KernelFunc) {
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	kernelFns[name] = fn
}

func lookupKernel(name string) KernelFunc {
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	return kernelFns[name]
}

// RegisterKernel registers the implementation of the kernel for this emulator only.
// It takes precedence over the kernels registered with the package RegisterKernel.
func (e *Emulator) RegisterKernel(name string, fn KernelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kernelFns[name] = fn
}

// sizeArg reads the element count argument and checks the buffers hold that many elements.
func sizeArg(a *KernelArgs, index int, buffers ...int) (int, error) {
	n, err := ScalarArg[uint32](a, index)
	if err != nil {
		return 0, err
	}
	for _, bufIdx := range buffers {
		if bufIdx < 0 || bufIdx >= len(a.args) || a.args[bufIdx].buffer == nil {
			return 0, errors.Errorf("kernel %q: argument #%d is not a buffer", a.kernel.Name, bufIdx)
		}
		if available := len(a.args[bufIdx].buffer.dev); int(n)*4 > available {
			return 0, errors.Errorf("kernel %q: size %d out of bounds of argument #%d (%d bytes)",
				a.kernel.Name, n, bufIdx, available)
		}
	}
	return int(n), nil
}

// Vadd is the implementation of the "vadd" kernel: out[i] = in1[i] + in2[i], for i < size, with
// signature (const unsigned int* in1, const unsigned int* in2, unsigned int* out, unsigned int size).
func Vadd(a *KernelArgs) error {
	n, err := sizeArg(a, 3, 0, 1, 2)
	if err != nil {
		return err
	}
	in1, err := BufferArg[uint32](a, 0)
	if err != nil {
		return err
	}
	in2, err := BufferArg[uint32](a, 1)
	if err != nil {
		return err
	}
	out, err := BufferArg[uint32](a, 2)
	if err != nil {
		return err
	}
	for ii := range n {
		out[ii] = in1[ii] + in2[ii]
	}
	return nil
}

func init() {
	RegisterKernel("vadd", Vadd)
	RegisterKernel("saxpy", Saxpy)
	RegisterKernel("vsqrt", Vsqrt)
}

// BuiltinKernels returns the signatures of the kernels implemented by this package: "vadd", "saxpy" and "vsqrt".
func BuiltinKernels() []xclbin.Kernel {
	buffer := func(name string, index int, dtype dtypes.DType) xclbin.Argument {
		return xclbin.Argument{Name: name, Index: index, AddressQualifier: xclbin.AddressGlobal, DType: dtype,
			IsPointer: true, Size: 8}
	}
	scalar := func(name string, index int, dtype dtypes.DType) xclbin.Argument {
		return xclbin.Argument{Name: name, Index: index, AddressQualifier: xclbin.AddressScalar, DType: dtype,
			Size: uint64(dtype.Size())}
	}
	return []xclbin.Kernel{
		{Name: "vadd", Arguments: []xclbin.Argument{
			buffer("in1", 0, dtypes.Uint32),
			buffer("in2", 1, dtypes.Uint32),
			buffer("out", 2, dtypes.Uint32),
			scalar("size", 3, dtypes.Uint32),
		}},
		{Name: "saxpy", Arguments: []xclbin.Argument{
			scalar("a", 0, dtypes.Float32),
			buffer("x", 1, dtypes.Float32),
			buffer("y", 2, dtypes.Float32),
			buffer("out", 3, dtypes.Float32),
			scalar("size", 4, dtypes.Uint32),
		}},
		{Name: "vsqrt", Arguments: []xclbin.Argument{
			buffer("in", 0, dtypes.Float32),
			buffer("out", 1, dtypes.Float32),
			scalar("size", 2, dtypes.Uint32),
		}},
	}
}

// BuiltinXclbinUUID is the UUID of the image returned by BuiltinXclbin.
var BuiltinXclbinUUID = uuid.MustParse("6f2d1c0e-5b7a-4c1e-9a3d-0e8f7b6a5c4d")

// BuiltinXclbin returns an xclbin image with the BuiltinKernels, and two 64MB DDR banks.
//
// All arguments are connected to bank 0, except "vadd" argument in2, connected to bank 1.
func BuiltinXclbin() []byte {
	b := xclbin.NewBuilder().WithUUID(BuiltinXclbinUUID)
	bank0 := b.AddMemory("DDR[0]", xclbin.MemDDR4, 64*1024)
	bank1 := b.AddMemory("DDR[1]", xclbin.MemDDR4, 64*1024)
	for _, k := range BuiltinKernels() {
		b.AddKernel(k)
		for _, arg := range k.Arguments {
			if !arg.AddressQualifier.IsBuffer() {
				continue
			}
			bank := bank0
			if k.Name == "vadd" && arg.Name == "in2" {
				bank = bank1
			}
			b.Connect(k.Name, arg.Index, bank)
		}
	}
	return b.Bytes()
}

// String implements fmt.Stringer.
func (a *KernelArgs) String() string {
	return fmt.Sprintf("KernelArgs(%s, %d args)", a.kernel.Name, len(a.args))
}
