package xrt

import (
	"maps"
	"slices"

	"github.com/gomlx/goxrt/xrterrors"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

// ManagerState is the stage of construction of a DeviceManager.
type ManagerState int

const (
	ManagerUnopened ManagerState = iota
	ManagerOpened
	ManagerBitstreamLoaded
	ManagerKernelLoaded

	// ManagerFailed is the state of a DeviceManager after a failed transition or after Close: it can't be used anymore.
	ManagerFailed
)

var managerStateNames = []string{"Unopened", "Opened", "BitstreamLoaded", "KernelLoaded", "Failed"}

// String implements fmt.Stringer.
func (s ManagerState) String() string {
	if s < 0 || int(s) >= len(managerStateNames) {
		return "ManagerState(?)"
	}
	return managerStateNames[s]
}

// DeviceManager owns a Device, the Kernels loaded in it and their ArgumentMapping.
//
// It is built in stages, which must be called in order:
//
//	m, err := xrt.NewDeviceManager(driver, 0)
//	m, err = m.WithXclbin("vadd.xclbin")
//	m, err = m.WithKernel("vadd")
//	defer m.Close()
//
// If a stage fails, the manager releases everything it holds and can't be used anymore: any further call
// returns an xrterrors.InvalidStageError, and a new manager must be created. Calling a stage out of order also
// returns an xrterrors.InvalidStageError (and fails the manager).
//
// It is not safe for concurrent use.
type DeviceManager struct {
	state    ManagerState
	device   *Device
	kernels  map[string]*Kernel
	mappings map[string]ArgumentMapping
	runs     []*Run
}

// NewDeviceManager opens the device with the given index using the driver. See OpenDevice.
func NewDeviceManager(driver Driver, index int) (*DeviceManager, error) {
	device, err := OpenDevice(driver, index)
	if err != nil {
		return nil, err
	}
	return &DeviceManager{
		state:    ManagerOpened,
		device:   device,
		kernels:  make(map[string]*Kernel),
		mappings: make(map[string]ArgumentMapping),
	}, nil
}

// fail releases all resources, and marks the manager as failed. It returns err.
func (m *DeviceManager) fail(err error) error {
	if closeErr := m.Close(); closeErr != nil {
		klog.Warningf("xrt.DeviceManager: failed to release resources after error %v: %v", err, closeErr)
	}
	return err
}

// checkState returns an xrterrors.InvalidStageError, and fails the manager, if it's not in one of the given states.
func (m *DeviceManager) checkState(op string, states ...ManagerState) error {
	if m == nil {
		return xrterrors.Errorf(xrterrors.InvalidStageError, "DeviceManager.%s() on a nil manager", op)
	}
	if slices.Contains(states, m.state) {
		return nil
	}
	if m.state == ManagerFailed {
		return xrterrors.Errorf(xrterrors.InvalidStageError, "DeviceManager.%s() on a failed or closed manager", op)
	}
	return m.fail(xrterrors.Errorf(xrterrors.InvalidStageError, "DeviceManager.%s() called in state %s, expected one of %v",
		op, m.state, states))
}

// WithXclbin loads the xclbin file into the device. See Device.LoadXclbin.
//
// It must be called once, right after NewDeviceManager.
func (m *DeviceManager) WithXclbin(path string) (*DeviceManager, error) {
	if err := m.checkState("WithXclbin", ManagerOpened); err != nil {
		return nil, err
	}
	if err := m.device.LoadXclbin(path); err != nil {
		return nil, m.fail(err)
	}
	m.state = ManagerBitstreamLoaded
	return m, nil
}

// WithXclbinImage loads the xclbin image into the device. See WithXclbin.
func (m *DeviceManager) WithXclbinImage(image []byte) (*DeviceManager, error) {
	if err := m.checkState("WithXclbinImage", ManagerOpened); err != nil {
		return nil, err
	}
	if err := m.device.LoadXclbinImage(image); err != nil {
		return nil, m.fail(err)
	}
	m.state = ManagerBitstreamLoaded
	return m, nil
}

// WithKernel opens the kernel with the given name, and stores it along with its ArgumentMapping.
// It can be called multiple times to load several kernels. Loading a kernel with the same name again replaces
// (and closes) the previous one.
//
// It returns xrterrors.NoSuchKernelError if the kernel is not described in the xclbin, or
// xrterrors.KernelCreationError if the driver fails to open it. See NewKernel.
func (m *DeviceManager) WithKernel(name string) (*DeviceManager, error) {
	if err := m.checkState("WithKernel", ManagerBitstreamLoaded, ManagerKernelLoaded); err != nil {
		return nil, err
	}
	k, err := NewKernel(m.device, name)
	if err != nil {
		return nil, m.fail(err)
	}
	if previous, found := m.kernels[name]; found {
		if err := previous.Close(); err != nil {
			klog.Warningf("xrt.DeviceManager: failed to close replaced kernel %q: %v", name, err)
		}
	}
	m.kernels[name] = k
	m.mappings[name] = k.mapping
	m.state = ManagerKernelLoaded
	return m, nil
}

// State of the manager.
func (m *DeviceManager) State() ManagerState {
	return m.state
}

// Device owned by the manager. It's nil after the manager fails or is closed.
func (m *DeviceManager) Device() *Device {
	return m.device
}

// Kernel returns the kernel loaded with the given name, or an xrterrors.NoSuchKernelError.
func (m *DeviceManager) Kernel(name string) (*Kernel, error) {
	if m == nil || m.state == ManagerFailed {
		return nil, xrterrors.Errorf(xrterrors.InvalidStageError, "DeviceManager.Kernel(%q) on a failed or closed manager", name)
	}
	k, found := m.kernels[name]
	if !found {
		return nil, xrterrors.Errorf(xrterrors.NoSuchKernelError, "kernel %q not loaded (loaded: %q)", name, m.KernelNames())
	}
	return k, nil
}

// ArgumentMapping returns a copy of the ArgumentMapping of the kernel loaded with the given name.
func (m *DeviceManager) ArgumentMapping(name string) (ArgumentMapping, error) {
	if _, err := m.Kernel(name); err != nil {
		return nil, err
	}
	return m.mappings[name].Clone(), nil
}

// KernelNames returns the sorted names of the loaded kernels.
func (m *DeviceManager) KernelNames() []string {
	return slices.Sorted(maps.Keys(m.kernels))
}

// Call validates the arguments against the kernel's ArgumentMapping, and starts a Run of the kernel with them.
//
// The run is tracked by the manager: use WaitAll to wait for all started runs, or Run.Wait to wait for this one.
// Buffers must be synchronized to the device before (see Buffer.WriteAndSync).
func (m *DeviceManager) Call(name string, args ...Argument) (*Run, error) {
	k, err := m.Kernel(name)
	if err != nil {
		return nil, err
	}
	if err = m.mappings[name].Validate(args...); err != nil {
		return nil, errors.WithMessagef(err, "calling kernel %q", name)
	}
	r, err := k.NewRun()
	if err != nil {
		return nil, err
	}
	if err = r.SetArgs(args...); err == nil {
		err = r.Start()
	}
	if err != nil {
		if closeErr := r.Close(); closeErr != nil {
			klog.Warningf("xrt.DeviceManager: failed to close run of %q: %v", name, closeErr)
		}
		return nil, err
	}
	m.runs = append(m.runs, r)
	return r, nil
}

// WaitAll waits for all runs started with Call, and closes them.
//
// It returns xrterrors.NoOpenRunsError if there are no runs, or the combined errors of the runs that failed.
func (m *DeviceManager) WaitAll() error {
	if m == nil || m.state == ManagerFailed {
		return xrterrors.Errorf(xrterrors.InvalidStageError, "DeviceManager.WaitAll() on a failed or closed manager")
	}
	if len(m.runs) == 0 {
		return xrterrors.New(xrterrors.NoOpenRunsError)
	}
	var err error
	for _, r := range m.runs {
		if r.State().IsDone() {
			if r.State() != StateCompleted {
				err = multierr.Append(err, xrterrors.Errorf(xrterrors.RunWaitError, "kernel %q finished with state %s",
					r.kernel.name, r.State()))
			}
		} else {
			_, waitErr := r.Wait()
			err = multierr.Append(err, waitErr)
		}
		err = multierr.Append(err, r.Close())
	}
	m.runs = nil
	return err
}

// Close releases the runs, kernels and device owned by the manager. It is idempotent.
// The manager can't be used afterward.
func (m *DeviceManager) Close() error {
	if m == nil || m.state == ManagerFailed {
		return nil
	}
	m.state = ManagerFailed
	var err error
	for _, r := range m.runs {
		err = multierr.Append(err, r.Close())
	}
	m.runs = nil
	for _, name := range m.KernelNames() {
		err = multierr.Append(err, m.kernels[name].Close())
	}
	clear(m.kernels)
	clear(m.mappings)
	if m.device != nil {
		err = multierr.Append(err, m.device.Close())
		m.device = nil
	}
	return err
}
