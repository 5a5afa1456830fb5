package xrt

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/goxrt/dtypes"
	"github.com/gomlx/goxrt/xrterrors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Buffer is a buffer object (BO): a region of memory allocated for device access, holding size elements of type T.
//
// It has a host-visible backing memory (written with Write and read with Read) and a device-visible memory:
// they are synchronized explicitly with Sync.
//
// A Buffer is bound to the Device it was created in for its entire life. After Free, any other operation returns
// an xrterrors.BONotCreatedYet error. It is not safe for concurrent use: the caller must serialize its use.
type Buffer[T dtypes.Supported] struct {
	wrapper     *bufferWrapper
	device      *Device
	size        int
	flags       BufferFlags
	memoryGroup int
}

// bufferWrapper wraps the handle that requires clean up.
type bufferWrapper struct {
	driver Driver
	handle BufferHandle
}

func (wrapper *bufferWrapper) IsValid() bool {
	return wrapper != nil && wrapper.driver != nil && wrapper.handle != 0
}

func (wrapper *bufferWrapper) Destroy() error {
	if !wrapper.IsValid() {
		// Already destroyed, no-op.
		return nil
	}
	status := wrapper.driver.FreeBuffer(wrapper.handle)
	wrapper.handle = 0
	wrapper.driver = nil
	buffersAlive.Add(-1)
	if status != 0 {
		return xrterrors.WithStatus(xrterrors.BOCreationError, status, "failed to free buffer")
	}
	return nil
}

var buffersAlive atomic.Int64

// BuffersAlive returns the number of Buffers allocated and not yet freed.
func BuffersAlive() int64 {
	return buffersAlive.Load()
}

// NewBuffer allocates a Buffer in the device for size elements of type T.
//
// The flags (see FlagsNone and the other constants) are passed uninterpreted to the driver. The memoryGroup selects
// the memory bank: for buffers bound to kernel arguments, it must match the group given by Kernel.MemoryGroup
// (see NewKernelBuffer), otherwise binding fails when the kernel is run.
//
// It returns an xrterrors.UnopenedDeviceError if the device is nil or closed, or an xrterrors.BOCreationError if
// the driver fails to allocate it.
func NewBuffer[T dtypes.Supported](device *Device, size int, flags BufferFlags, memoryGroup int) (*Buffer[T], error) {
	if !device.IsOpen() {
		return nil, xrterrors.Errorf(xrterrors.UnopenedDeviceError, "can't allocate a buffer of %d %s in a closed device",
			size, dtypes.FromGenericsType[T]())
	}
	if size < 0 || memoryGroup < 0 {
		return nil, xrterrors.Errorf(xrterrors.BOCreationError, "invalid size=%d or memoryGroup=%d", size, memoryGroup)
	}
	defer runtime.KeepAlive(device)
	driver := device.wrapper.driver
	sizeBytes := size * dtypes.SizeOf[T]()
	handle := driver.AllocBuffer(device.handle(), sizeBytes, flags, memoryGroup)
	if handle == 0 {
		return nil, xrterrors.Errorf(xrterrors.BOCreationError, "driver %q failed to allocate %s (flags=0x%x, memoryGroup=%d)",
			driver.Name(), humanize.IBytes(uint64(sizeBytes)), uint64(flags), memoryGroup)
	}
	b := &Buffer[T]{
		wrapper:     &bufferWrapper{driver: driver, handle: handle},
		device:      device,
		size:        size,
		flags:       flags,
		memoryGroup: memoryGroup,
	}
	buffersAlive.Add(1)
	runtime.AddCleanup(b, func(wrapper *bufferWrapper) {
		err := wrapper.Destroy()
		if err != nil {
			klog.Errorf("xrt.Buffer.Free failed: %v", err)
		}
	}, b.wrapper)
	klog.V(2).Infof("xrt: allocated %s", b)
	return b, nil
}

// NewBufferFromSlice allocates a Buffer with the same size as data, writes data to it and synchronizes it to
// the device.
func NewBufferFromSlice[T dtypes.Supported](device *Device, data []T, flags BufferFlags, memoryGroup int) (*Buffer[T], error) {
	b, err := NewBuffer[T](device, len(data), flags, memoryGroup)
	if err != nil {
		return nil, err
	}
	if err = b.WriteAndSync(data, 0); err != nil {
		_ = b.Free()
		return nil, err
	}
	return b, nil
}

// IsValid returns whether the buffer is allocated (and not freed yet).
func (b *Buffer[T]) IsValid() bool {
	return b != nil && b.wrapper.IsValid()
}

// Free the buffer. It is idempotent: freeing an already freed buffer is a no-op.
// It is automatically called when the Buffer is garbage collected.
//
// If the driver fails to free it, it returns an xrterrors.BOCreationError carrying the driver status, and the
// buffer is considered freed anyway.
func (b *Buffer[T]) Free() error {
	if !b.IsValid() {
		return nil
	}
	defer runtime.KeepAlive(b)
	klog.V(2).Infof("xrt: freeing %s", b)
	return b.wrapper.Destroy()
}

// Size of the buffer in number of elements.
func (b *Buffer[T]) Size() int {
	return b.size
}

// SizeBytes is the size of the buffer in bytes.
func (b *Buffer[T]) SizeBytes() int {
	return b.size * dtypes.SizeOf[T]()
}

// DType of the buffer elements.
func (b *Buffer[T]) DType() dtypes.DType {
	return dtypes.FromGenericsType[T]()
}

// Flags used to allocate the buffer.
func (b *Buffer[T]) Flags() BufferFlags {
	return b.flags
}

// MemoryGroup where the buffer was allocated.
func (b *Buffer[T]) MemoryGroup() int {
	return b.memoryGroup
}

// Device where the buffer was allocated.
func (b *Buffer[T]) Device() *Device {
	return b.device
}

// String implements fmt.Stringer.
func (b *Buffer[T]) String() string {
	var freed string
	if !b.IsValid() {
		freed = ", freed"
	}
	return fmt.Sprintf("Buffer[%s](size=%d, %s, memoryGroup=%d%s)", b.DType(), b.size,
		humanize.IBytes(uint64(b.SizeBytes())), b.memoryGroup, freed)
}

// notCreatedError is returned by operations on a freed or never allocated buffer.
func (b *Buffer[T]) notCreatedError(op string) error {
	return xrterrors.Errorf(xrterrors.BONotCreatedYet, "Buffer[%s].%s() on a buffer freed or never allocated",
		dtypes.FromGenericsType[T](), op)
}

// Sync synchronizes the buffer between its host and device memories.
//
// The seek is an offset in bytes. The optional size is a number of elements: if not given, the whole buffer is
// synchronized.
//
// It returns an xrterrors.BONotCreatedYet if the buffer has been freed (or never allocated), or an
// xrterrors.BOSyncError if the driver reports a failure.
func (b *Buffer[T]) Sync(direction SyncDirection, seek int, size ...int) error {
	if !b.IsValid() {
		return b.notCreatedError("Sync")
	}
	if len(size) > 1 {
		return xrterrors.Errorf(xrterrors.BOSyncError, "Buffer.Sync() takes at most one size, %d given", len(size))
	}
	n := b.size
	if len(size) == 1 {
		n = size[0]
	}
	if n < 0 || seek < 0 {
		return xrterrors.Errorf(xrterrors.BOSyncError, "invalid size=%d or seek=%d", n, seek)
	}
	defer runtime.KeepAlive(b)
	sizeBytes := n * dtypes.SizeOf[T]()
	if status := b.wrapper.driver.SyncBuffer(b.wrapper.handle, direction, sizeBytes, seek); status != 0 {
		return xrterrors.WithStatus(xrterrors.BOSyncError, status, "sync %s of %d bytes at offset %d", direction, sizeBytes, seek)
	}
	return nil
}

// Write data to the buffer's host memory, starting at the byte offset seek.
//
// It doesn't synchronize the data to the device: Sync(HostToDevice, ...) must be called before a kernel can
// use it.
//
// It returns an xrterrors.BONotCreatedYet if the buffer has been freed (or never allocated), or an
// xrterrors.BOWriteError if the driver reports a failure.
func (b *Buffer[T]) Write(data []T, seek int) error {
	if !b.IsValid() {
		return b.notCreatedError("Write")
	}
	if seek < 0 {
		return xrterrors.Errorf(xrterrors.BOWriteError, "invalid seek=%d", seek)
	}
	defer runtime.KeepAlive(b)
	if status := b.wrapper.driver.WriteBuffer(b.wrapper.handle, sliceToBytes(data), seek); status != 0 {
		return xrterrors.WithStatus(xrterrors.BOWriteError, status, "write of %d elements at offset %d", len(data), seek)
	}
	return nil
}

// Read from the buffer's host memory into data, starting at the byte offset seek.
//
// It reads what was last synchronized from the device with Sync(DeviceToHost, ...) (or written by Write).
//
// It returns an xrterrors.BONotCreatedYet if the buffer has been freed (or never allocated), or an
// xrterrors.BOReadError if the driver reports a failure.
func (b *Buffer[T]) Read(data []T, seek int) error {
	if !b.IsValid() {
		return b.notCreatedError("Read")
	}
	if seek < 0 {
		return xrterrors.Errorf(xrterrors.BOReadError, "invalid seek=%d", seek)
	}
	defer runtime.KeepAlive(b)
	if status := b.wrapper.driver.ReadBuffer(b.wrapper.handle, sliceToBytes(data), seek); status != 0 {
		return xrterrors.WithStatus(xrterrors.BOReadError, status, "read of %d elements at offset %d", len(data), seek)
	}
	return nil
}

// WriteAndSync writes data at the byte offset seek, and synchronizes the written region to the device.
func (b *Buffer[T]) WriteAndSync(data []T, seek int) error {
	if err := b.Write(data, seek); err != nil {
		return err
	}
	return b.Sync(HostToDevice, seek, len(data))
}

// SyncAndRead synchronizes the region to be read from the device, and reads it into data.
func (b *Buffer[T]) SyncAndRead(data []T, seek int) error {
	if err := b.Sync(DeviceToHost, seek, len(data)); err != nil {
		return err
	}
	return b.Read(data, seek)
}

// ToSlice synchronizes the whole buffer from the device and returns its contents.
func (b *Buffer[T]) ToSlice() ([]T, error) {
	if !b.IsValid() {
		return nil, b.notCreatedError("ToSlice")
	}
	data := make([]T, b.size)
	if err := b.SyncAndRead(data, 0); err != nil {
		return nil, errors.WithMessage(err, "Buffer.ToSlice()")
	}
	return data, nil
}

// sliceToBytes returns the bytes of data, sharing its storage.
func sliceToBytes[T dtypes.Supported](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*dtypes.SizeOf[T]())
}
