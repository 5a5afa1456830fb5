package xrt

import (
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/gomlx/goxrt/xrterrors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Handles are opaque references returned by a Driver. The zero value is the invalid handle.
type (
	DeviceHandle uintptr
	BufferHandle uintptr
	KernelHandle uintptr
	RunHandle    uintptr
)

// Driver is the set of native calls goxrt needs from the Xilinx Runtime.
//
// Calls mirror the XRT C API (xrt_device.h, xrt_bo.h, xrt_kernel.h): they return an invalid (zero) handle or a
// non-zero status on failure, and goxrt converts those to the corresponding xrterrors.Kind.
// Sizes and offsets are in bytes.
//
// The native implementation is registered as "hw" (see NativeDriverName), and the software emulation in package
// github.com/gomlx/goxrt/xrt/emu as "sw_emu".
type Driver interface {
	// Name of the driver, as registered.
	Name() string

	OpenDevice(index int) DeviceHandle
	CloseDevice(device DeviceHandle) int
	LoadXclbin(device DeviceHandle, image []byte) int
	XclbinUUID(device DeviceHandle) (uuid.UUID, int)

	AllocBuffer(device DeviceHandle, sizeBytes int, flags BufferFlags, memoryGroup int) BufferHandle
	FreeBuffer(buffer BufferHandle) int
	SyncBuffer(buffer BufferHandle, direction SyncDirection, sizeBytes, offsetBytes int) int
	WriteBuffer(buffer BufferHandle, src []byte, seekBytes int) int
	ReadBuffer(buffer BufferHandle, dst []byte, skipBytes int) int

	OpenKernel(device DeviceHandle, xclbinUUID uuid.UUID, name string) KernelHandle
	CloseKernel(kernel KernelHandle) int

	// KernelArgGroup returns the memory group of the kernel's argument, or a negative value on failure.
	KernelArgGroup(kernel KernelHandle, argIndex int) int

	OpenRun(kernel KernelHandle) RunHandle
	CloseRun(run RunHandle) int
	SetRunBufferArg(run RunHandle, argIndex int, buffer BufferHandle) int

	// SetRunScalarArg sets a scalar argument given by its bits (floats as in math.Float32bits) and its size
	// in bytes (4 or 8).
	SetRunScalarArg(run RunHandle, argIndex int, bits uint64, sizeBytes int) int
	StartRun(run RunHandle) int

	// WaitRun waits for the run to finish, or for timeout if > 0, and returns its state.
	WaitRun(run RunHandle, timeout time.Duration) CommandState
}

// SyncDirection of a buffer synchronization, mapped to XRT's xclBOSyncDirection.
type SyncDirection int

const (
	// HostToDevice is XCL_BO_SYNC_BO_TO_DEVICE.
	HostToDevice SyncDirection = 0

	// DeviceToHost is XCL_BO_SYNC_BO_FROM_DEVICE.
	DeviceToHost SyncDirection = 1
)

// String implements fmt.Stringer.
func (d SyncDirection) String() string {
	switch d {
	case HostToDevice:
		return "HostToDevice"
	case DeviceToHost:
		return "DeviceToHost"
	}
	return fmt.Sprintf("SyncDirection(%d)", int(d))
}

// BufferFlags is a bitmask passed uninterpreted to the driver on buffer allocation.
// The constants mirror XRT's xrt_mem.h.
type BufferFlags uint64

const (
	FlagsNone      BufferFlags = 0
	FlagsCacheable BufferFlags = 1 << 24
	FlagsKernBuf   BufferFlags = 1 << 25
	FlagsSGL       BufferFlags = 1 << 26
	FlagsSVM       BufferFlags = 1 << 27

	// FlagsDeviceOnly allocates only device memory: Write/Read are rejected by the driver.
	FlagsDeviceOnly BufferFlags = 1 << 28

	// FlagsHostOnly allocates host memory directly accessed by the kernel.
	FlagsHostOnly BufferFlags = 1 << 29
	FlagsP2P      BufferFlags = 1 << 30
	FlagsExecBuf  BufferFlags = 1 << 31
)

//go:generate go tool enumer -type=CommandState -trimprefix=State -output=gen_commandstate_enumer.go driver.go

// CommandState of a Run, mapped to ERT's ert_cmd_state.
type CommandState int

const (
	StateUnknown CommandState = iota
	StateNew
	StateQueued
	StateRunning
	StateCompleted
	StateError
	StateAbort
	StateSubmitted
	StateTimeout
	StateNoResponse
	StateSKError
	StateSKCrashed
)

// IsDone returns whether the state is final.
func (s CommandState) IsDone() bool {
	switch s {
	case StateCompleted, StateError, StateAbort, StateTimeout, StateNoResponse, StateSKError, StateSKCrashed:
		return true
	}
	return false
}

const (
	// NativeDriverName is the name of the driver that loads the XRT library.
	NativeDriverName = "hw"

	// DriverEnv is the name of the environment variable with the name of the default driver.
	DriverEnv = "GOXRT_DRIVER"
)

var (
	// drivers registered, protected by muDrivers.
	drivers   = make(map[string]Driver)
	muDrivers sync.Mutex
)

// RegisterDriver makes the driver available with the given name, for GetDriver.
// Registering a name twice replaces the previous driver.
func RegisterDriver(name string, driver Driver) {
	muDrivers.Lock()
	defer muDrivers.Unlock()
	if _, found := drivers[name]; found {
		klog.V(1).Infof("xrt: driver %q replaced", name)
	}
	drivers[name] = driver
}

// GetDriver returns the driver registered with the given name.
//
// The native driver (NativeDriverName) is loaded on first use, by searching for the XRT library: see
// XRTLibraryPathsEnv. It returns an xrterrors.DriverNotFoundError if the driver is not registered or
// can't be loaded.
func GetDriver(name string) (Driver, error) {
	muDrivers.Lock()
	defer muDrivers.Unlock()
	if driver, found := drivers[name]; found {
		return driver, nil
	}
	if name == NativeDriverName {
		driver, err := loadNativeDriver()
		if err != nil {
			return nil, errors.WithMessagef(xrterrors.Errorf(xrterrors.DriverNotFoundError, "%v", err),
				"loading native driver %q", name)
		}
		drivers[name] = driver
		return driver, nil
	}
	return nil, xrterrors.Errorf(xrterrors.DriverNotFoundError, "driver %q not registered (registered: %q)",
		name, registeredDriversLocked())
}

// DefaultDriver returns the driver named by the environment variable GOXRT_DRIVER, or the native driver if not set.
func DefaultDriver() (Driver, error) {
	name := os.Getenv(DriverEnv)
	if name == "" {
		name = NativeDriverName
	}
	return GetDriver(name)
}

// RegisteredDrivers returns the sorted names of the drivers registered so far.
func RegisteredDrivers() []string {
	muDrivers.Lock()
	defer muDrivers.Unlock()
	return registeredDriversLocked()
}

func registeredDriversLocked() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
