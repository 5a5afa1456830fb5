package xrt

import (
	"fmt"
	"runtime"

	"github.com/gomlx/goxrt/xclbin"
	"github.com/gomlx/goxrt/xrterrors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Device is an open session with an accelerator card.
//
// It is required to allocate Buffers and, once an xclbin is loaded, to create Kernels.
// It is not safe for concurrent use: the caller must serialize its use.
type Device struct {
	wrapper *deviceWrapper
	index   int

	xclbin     *xclbin.Xclbin
	xclbinUUID uuid.UUID
}

// deviceWrapper wraps the handle that requires clean up.
type deviceWrapper struct {
	driver Driver
	handle DeviceHandle
}

func (wrapper *deviceWrapper) IsValid() bool {
	return wrapper != nil && wrapper.driver != nil && wrapper.handle != 0
}

func (wrapper *deviceWrapper) Destroy() error {
	if !wrapper.IsValid() {
		// Already destroyed, no-op.
		return nil
	}
	status := wrapper.driver.CloseDevice(wrapper.handle)
	wrapper.handle = 0
	if status != 0 {
		return xrterrors.WithStatus(xrterrors.DeviceOpenError, status, "failed to close device")
	}
	return nil
}

// OpenDevice opens the device with the given index, enumerated by the driver.
//
// It returns an xrterrors.DeviceOpenError if the index is negative or the driver fails to open it.
func OpenDevice(driver Driver, index int) (*Device, error) {
	if driver == nil {
		return nil, xrterrors.Errorf(xrterrors.DeviceOpenError, "OpenDevice(nil, %d): nil driver", index)
	}
	if index < 0 {
		return nil, xrterrors.Errorf(xrterrors.DeviceOpenError, "invalid device index %d", index)
	}
	handle := driver.OpenDevice(index)
	if handle == 0 {
		return nil, xrterrors.Errorf(xrterrors.DeviceOpenError, "driver %q failed to open device #%d", driver.Name(), index)
	}
	d := &Device{
		wrapper: &deviceWrapper{driver: driver, handle: handle},
		index:   index,
	}
	runtime.AddCleanup(d, func(wrapper *deviceWrapper) {
		err := wrapper.Destroy()
		if err != nil {
			klog.Errorf("xrt.Device.Close failed: %v", err)
		}
	}, d.wrapper)
	klog.V(1).Infof("xrt: opened device #%d with driver %q", index, driver.Name())
	return d, nil
}

// IsOpen returns whether the device has an open session.
func (d *Device) IsOpen() bool {
	return d != nil && d.wrapper.IsValid()
}

// Close the device session. It is idempotent: closing an already closed device is a no-op.
// It is automatically called when the Device is garbage collected.
//
// Buffers and Kernels created in the device must be released before.
//
// If the driver fails to close it, it returns an xrterrors.DeviceOpenError carrying the driver status, and the
// device is considered closed anyway.
func (d *Device) Close() error {
	if !d.IsOpen() {
		return nil
	}
	defer runtime.KeepAlive(d)
	klog.V(1).Infof("xrt: closing device #%d", d.index)
	return d.wrapper.Destroy()
}

// Index of the device, as given to OpenDevice.
func (d *Device) Index() int {
	return d.index
}

// Driver used by the device.
func (d *Device) Driver() Driver {
	if d == nil || d.wrapper == nil {
		return nil
	}
	return d.wrapper.driver
}

// handle returns the native handle, or 0 if the device is closed.
func (d *Device) handle() DeviceHandle {
	if !d.IsOpen() {
		return 0
	}
	return d.wrapper.handle
}

// LoadXclbin reads the xclbin file and loads it into the device.
//
// Errors reading or parsing the file are returned verbatim from package xclbin (xrterrors.XclbinFileAllocError,
// xrterrors.XclbinInvalidMagicString, xrterrors.XclbinByteReadingError). The BUILD_METADATA is parsed
// later, when kernels are created.
func (d *Device) LoadXclbin(path string) error {
	if !d.IsOpen() {
		return xrterrors.Errorf(xrterrors.UnopenedDeviceError, "LoadXclbin(%q) on a closed device", path)
	}
	x, err := xclbin.ReadFile(path)
	if err != nil {
		return err
	}
	return errors.WithMessagef(d.loadXclbin(x), "loading %q", path)
}

// LoadXclbinImage parses and loads the xclbin image into the device. See LoadXclbin.
func (d *Device) LoadXclbinImage(image []byte) error {
	if !d.IsOpen() {
		return xrterrors.New(xrterrors.UnopenedDeviceError)
	}
	x, err := xclbin.Parse(image)
	if err != nil {
		return err
	}
	return d.loadXclbin(x)
}

func (d *Device) loadXclbin(x *xclbin.Xclbin) error {
	defer runtime.KeepAlive(d)
	driver, handle := d.wrapper.driver, d.handle()
	if status := driver.LoadXclbin(handle, x.Image()); status != 0 {
		return xrterrors.WithStatus(xrterrors.XclbinLoadError, status, "device #%d rejected %s", d.index, x)
	}
	id, status := driver.XclbinUUID(handle)
	if status != 0 {
		return xrterrors.WithStatus(xrterrors.XclbinUUIDRetrievalError, status, "device #%d", d.index)
	}
	d.xclbin = x
	d.xclbinUUID = id
	klog.V(1).Infof("xrt: device #%d loaded %s", d.index, x)
	return nil
}

// Xclbin returns the last xclbin loaded, or nil if none was loaded yet.
func (d *Device) Xclbin() *xclbin.Xclbin {
	return d.xclbin
}

// XclbinUUID returns the UUID of the loaded xclbin, as reported by the driver, or uuid.Nil if none was loaded yet.
func (d *Device) XclbinUUID() uuid.UUID {
	return d.xclbinUUID
}

// String implements fmt.Stringer.
func (d *Device) String() string {
	if !d.IsOpen() {
		return fmt.Sprintf("Device #%d (closed)", d.index)
	}
	if d.xclbin == nil {
		return fmt.Sprintf("Device #%d [%s]", d.index, d.wrapper.driver.Name())
	}
	return fmt.Sprintf("Device #%d [%s, xclbin %s]", d.index, d.wrapper.driver.Name(), d.xclbinUUID)
}
