package xrt

import (
	"runtime"
	"time"

	"github.com/gomlx/goxrt/xrterrors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Run is one invocation of a Kernel. Arguments are bound with SetArg (or SetArgs), then it's executed
// asynchronously with Start, and awaited with Wait or WaitFor.
//
// The Run doesn't own the buffers bound to it, but it keeps a reference to them until it is closed, so they are
// not garbage collected while in use by the device.
type Run struct {
	wrapper *runWrapper
	kernel  *Kernel
	args    map[int]Argument
	started bool
	state   CommandState
}

// runWrapper wraps the handle that requires clean up.
type runWrapper struct {
	driver Driver
	handle RunHandle
}

func (wrapper *runWrapper) IsValid() bool {
	return wrapper != nil && wrapper.driver != nil && wrapper.handle != 0
}

func (wrapper *runWrapper) Destroy() error {
	if !wrapper.IsValid() {
		// Already destroyed, no-op.
		return nil
	}
	status := wrapper.driver.CloseRun(wrapper.handle)
	wrapper.handle = 0
	if status != 0 {
		return xrterrors.WithStatus(xrterrors.RunCreationError, status, "failed to close run")
	}
	return nil
}

func newRun(kernel *Kernel, handle RunHandle) *Run {
	r := &Run{
		wrapper: &runWrapper{driver: kernel.wrapper.driver, handle: handle},
		kernel:  kernel,
		args:    make(map[int]Argument),
		state:   StateNew,
	}
	runtime.AddCleanup(r, func(wrapper *runWrapper) {
		err := wrapper.Destroy()
		if err != nil {
			klog.Errorf("xrt.Run.Close failed: %v", err)
		}
	}, r.wrapper)
	return r
}

// IsValid returns whether the run is open.
func (r *Run) IsValid() bool {
	return r != nil && r.wrapper.IsValid()
}

// Kernel of the run.
func (r *Run) Kernel() *Kernel {
	return r.kernel
}

// State returns the last known state of the run: it is updated by Start, Wait and WaitFor.
func (r *Run) State() CommandState {
	return r.state
}

// SetArg binds the argument index of the run.
// It returns xrterrors.RunNotCreatedYetError if the run is closed, xrterrors.BONotCreatedYet if a buffer was
// freed, or xrterrors.SetRunArgError if the driver rejects it (e.g. a buffer in the wrong memory group).
func (r *Run) SetArg(index int, arg Argument) error {
	if !r.IsValid() {
		return xrterrors.Errorf(xrterrors.RunNotCreatedYetError, "Run.SetArg(%d) on a closed run", index)
	}
	if arg == nil {
		return xrterrors.Errorf(xrterrors.SetRunArgError, "Run.SetArg(%d): nil argument", index)
	}
	defer runtime.KeepAlive(r)
	if err := arg.setArg(r, index); err != nil {
		return errors.WithMessagef(err, "kernel %q", r.kernel.name)
	}
	r.args[index] = arg
	return nil
}

// SetArgs binds all arguments of the run, in order.
// It doesn't validate them against the kernel's ArgumentMapping, see ArgumentMapping.Validate.
func (r *Run) SetArgs(args ...Argument) error {
	for ii, arg := range args {
		if err := r.SetArg(ii, arg); err != nil {
			return err
		}
	}
	return nil
}

// Start the execution of the run on the device. It returns immediately, use Wait or WaitFor to wait for its end.
func (r *Run) Start() error {
	if !r.IsValid() {
		return xrterrors.Errorf(xrterrors.RunNotCreatedYetError, "Run.Start() on a closed run")
	}
	defer runtime.KeepAlive(r)
	if status := r.wrapper.driver.StartRun(r.wrapper.handle); status != 0 {
		r.state = StateError
		return xrterrors.WithStatus(xrterrors.RunStartError, status, "kernel %q", r.kernel.name)
	}
	r.started = true
	r.state = StateSubmitted
	return nil
}

// Wait for the run to finish, and returns its final state.
// It returns xrterrors.RunWaitError if the state is not StateCompleted.
func (r *Run) Wait() (CommandState, error) {
	return r.WaitFor(0)
}

// WaitFor waits at most timeout for the run to finish (if timeout <= 0 it waits indefinitely), and returns its state.
// It returns xrterrors.RunWaitError if the state is not StateCompleted, including StateTimeout.
func (r *Run) WaitFor(timeout time.Duration) (CommandState, error) {
	if !r.IsValid() {
		return StateUnknown, xrterrors.Errorf(xrterrors.RunNotCreatedYetError, "Run.Wait() on a closed run")
	}
	if !r.started {
		return r.state, xrterrors.Errorf(xrterrors.RunWaitError, "kernel %q: run not started", r.kernel.name)
	}
	defer runtime.KeepAlive(r)
	r.state = r.wrapper.driver.WaitRun(r.wrapper.handle, timeout)
	if r.state != StateCompleted {
		return r.state, xrterrors.Errorf(xrterrors.RunWaitError, "kernel %q finished with state %s", r.kernel.name, r.state)
	}
	return r.state, nil
}

// Close the run, and releases the references to its arguments. It is idempotent.
// It is automatically called when the Run is garbage collected.
//
// If the driver fails to close it, it returns an xrterrors.RunCreationError carrying the driver status, and the
// run is considered closed anyway.
func (r *Run) Close() error {
	if !r.IsValid() {
		return nil
	}
	defer runtime.KeepAlive(r)
	clear(r.args)
	return r.wrapper.Destroy()
}
