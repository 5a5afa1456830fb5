package xrt

import (
	"fmt"
	"runtime"

	"github.com/gomlx/goxrt/dtypes"
	"github.com/gomlx/goxrt/xclbin"
	"github.com/gomlx/goxrt/xrterrors"
	"k8s.io/klog/v2"
)

// Kernel is a compiled hardware function, looked up by name in the xclbin loaded in a Device.
type Kernel struct {
	wrapper  *kernelWrapper
	device   *Device
	name     string
	metadata xclbin.Kernel
	mapping  ArgumentMapping
}

// kernelWrapper wraps the handle that requires clean up.
type kernelWrapper struct {
	driver Driver
	handle KernelHandle
}

func (wrapper *kernelWrapper) IsValid() bool {
	return wrapper != nil && wrapper.driver != nil && wrapper.handle != 0
}

func (wrapper *kernelWrapper) Destroy() error {
	if !wrapper.IsValid() {
		// Already destroyed, no-op.
		return nil
	}
	status := wrapper.driver.CloseKernel(wrapper.handle)
	wrapper.handle = 0
	if status != 0 {
		return xrterrors.WithStatus(xrterrors.KernelCreationError, status, "failed to close kernel")
	}
	return nil
}

// NewKernel looks up the kernel by name in the xclbin loaded in the device, and opens it.
//
// It returns xrterrors.UnopenedDeviceError if the device is closed, xrterrors.DeviceNotReadyError if no xclbin
// was loaded, xrterrors.NoSuchKernelError if the xclbin build metadata doesn't describe the kernel (or the errors
// parsing the build metadata), and xrterrors.KernelCreationError if the driver fails to open it.
func NewKernel(device *Device, name string) (*Kernel, error) {
	if !device.IsOpen() {
		return nil, xrterrors.Errorf(xrterrors.UnopenedDeviceError, "NewKernel(%q) on a closed device", name)
	}
	if device.xclbin == nil {
		return nil, xrterrors.Errorf(xrterrors.DeviceNotReadyError, "NewKernel(%q): no xclbin loaded in device #%d",
			name, device.index)
	}
	metadata, err := device.xclbin.Kernel(name)
	if err != nil {
		return nil, err
	}
	mapping, err := MappingFromMetadata(metadata)
	if err != nil {
		return nil, err
	}
	defer runtime.KeepAlive(device)
	driver := device.wrapper.driver
	handle := driver.OpenKernel(device.handle(), device.xclbinUUID, name)
	if handle == 0 {
		return nil, xrterrors.Errorf(xrterrors.KernelCreationError, "driver %q failed to open kernel %q", driver.Name(), name)
	}
	k := &Kernel{
		wrapper:  &kernelWrapper{driver: driver, handle: handle},
		device:   device,
		name:     name,
		metadata: metadata,
		mapping:  mapping,
	}
	runtime.AddCleanup(k, func(wrapper *kernelWrapper) {
		err := wrapper.Destroy()
		if err != nil {
			klog.Errorf("xrt.Kernel.Close failed: %v", err)
		}
	}, k.wrapper)
	klog.V(1).Infof("xrt: opened kernel %s", k)
	return k, nil
}

// IsValid returns whether the kernel is open.
func (k *Kernel) IsValid() bool {
	return k != nil && k.wrapper.IsValid()
}

// Close the kernel. It is idempotent.
// It is automatically called when the Kernel is garbage collected.
//
// If the driver fails to close it, it returns an xrterrors.KernelCreationError carrying the driver status, and the
// kernel is considered closed anyway.
func (k *Kernel) Close() error {
	if !k.IsValid() {
		return nil
	}
	defer runtime.KeepAlive(k)
	return k.wrapper.Destroy()
}

// Name of the kernel.
func (k *Kernel) Name() string {
	return k.name
}

// Device where the kernel was opened.
func (k *Kernel) Device() *Device {
	return k.device
}

// Metadata returns the kernel signature, as described by the xclbin build metadata.
func (k *Kernel) Metadata() xclbin.Kernel {
	return k.metadata
}

// ArgumentMapping returns a copy of the kernel's ArgumentMapping.
func (k *Kernel) ArgumentMapping() ArgumentMapping {
	return k.mapping.Clone()
}

// String implements fmt.Stringer.
func (k *Kernel) String() string {
	return fmt.Sprintf("%s%s", k.name, k.mapping)
}

// MemoryGroup returns the memory group required for buffers bound to the argument argIndex.
//
// It returns xrterrors.KernelNotLoadedYetError if the kernel is closed, or xrterrors.KernelArgRtrvError if the driver
// fails to retrieve it (e.g. scalar arguments).
func (k *Kernel) MemoryGroup(argIndex int) (int, error) {
	if !k.IsValid() {
		return 0, xrterrors.Errorf(xrterrors.KernelNotLoadedYetError, "Kernel.MemoryGroup(%d) on a closed kernel", argIndex)
	}
	if argIndex < 0 || argIndex >= len(k.mapping) {
		return 0, xrterrors.Errorf(xrterrors.KernelArgRtrvError, "kernel %q has no argument #%d", k.name, argIndex)
	}
	defer runtime.KeepAlive(k)
	group := k.wrapper.driver.KernelArgGroup(k.wrapper.handle, argIndex)
	if group < 0 {
		return 0, xrterrors.WithStatus(xrterrors.KernelArgRtrvError, group, "kernel %q argument #%d (%s)",
			k.name, argIndex, k.mapping[argIndex])
	}
	return group, nil
}

// NewRun creates a Run of the kernel, with no arguments set.
//
// It returns xrterrors.KernelNotLoadedYetError if the kernel is closed, or xrterrors.RunCreationError if the driver
// fails to create it.
func (k *Kernel) NewRun() (*Run, error) {
	if !k.IsValid() {
		return nil, xrterrors.Errorf(xrterrors.KernelNotLoadedYetError, "Kernel.NewRun() on a closed kernel")
	}
	defer runtime.KeepAlive(k)
	handle := k.wrapper.driver.OpenRun(k.wrapper.handle)
	if handle == 0 {
		return nil, xrterrors.Errorf(xrterrors.RunCreationError, "kernel %q", k.name)
	}
	return newRun(k, handle), nil
}

// NewKernelBuffer allocates a Buffer in the memory group required by the argument argIndex of the kernel named
// kernelName, loaded in the DeviceManager.
func NewKernelBuffer[T dtypes.Supported](m *DeviceManager, kernelName string, argIndex, size int, flags BufferFlags) (*Buffer[T], error) {
	k, err := m.Kernel(kernelName)
	if err != nil {
		return nil, err
	}
	group, err := k.MemoryGroup(argIndex)
	if err != nil {
		return nil, err
	}
	return NewBuffer[T](k.device, size, flags, group)
}
