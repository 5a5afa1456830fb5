package emu

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomlx/goxrt/xrt"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type boundArg struct {
	set    bool
	buffer *buffer
	bits   uint64
	size   int
}

type run struct {
	kernel *kernel
	args   []boundArg

	state atomic.Int32

	// done is closed when the current execution finishes. It is protected by mu.
	mu   sync.Mutex
	done chan struct{}
}

func newRun(k *kernel) *run {
	r := &run{kernel: k, args: make([]boundArg, len(k.metadata.Arguments))}
	r.state.Store(int32(xrt.StateNew))
	return r
}

func (r *run) State() xrt.CommandState {
	return xrt.CommandState(r.state.Load())
}

func (r *run) isRunning() bool {
	s := r.State()
	return s == xrt.StateSubmitted || s == xrt.StateQueued || s == xrt.StateRunning
}

// start is called with the emulator lock held.
func (r *run) start() int {
	if r.isRunning() {
		return statusBusy
	}
	for ii, arg := range r.args {
		if !arg.set {
			klog.V(1).Infof("emu: kernel %q argument #%d not set", r.kernel.metadata.Name, ii)
			return statusInvalid
		}
	}
	args := &KernelArgs{kernel: r.kernel.metadata, args: slices.Clone(r.args)}
	done := make(chan struct{})
	r.mu.Lock()
	r.done = done
	r.mu.Unlock()
	r.state.Store(int32(xrt.StateSubmitted))
	go func() {
		defer close(done)
		r.state.Store(int32(xrt.StateRunning))
		err := callKernel(r.kernel.fn, args)
		if err != nil {
			klog.Errorf("emu: kernel %q failed: %+v", r.kernel.metadata.Name, err)
			r.state.Store(int32(xrt.StateError))
			return
		}
		r.state.Store(int32(xrt.StateCompleted))
	}()
	return statusOK
}

// callKernel converts panics in the kernel to errors.
func callKernel(fn KernelFunc, args *KernelArgs) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("kernel panicked: %v", p)
		}
	}()
	return fn(args)
}

// wait for the current execution to finish, or for timeout if > 0.
func (r *run) wait(timeout time.Duration) xrt.CommandState {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return r.State()
	}
	if timeout <= 0 {
		<-done
		return r.State()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return r.State()
	case <-timer.C:
		return xrt.StateTimeout
	}
}
