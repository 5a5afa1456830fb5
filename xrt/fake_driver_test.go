package xrt

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeDriver records every call and its arguments, and returns the configured failures.
// Buffers have a single memory, there is no kernel execution: runs complete immediately.
type fakeDriver struct {
	mu    sync.Mutex
	calls []string
	next  uintptr

	// fail lists the methods that should fail.
	fail map[string]bool

	// argGroups returned by KernelArgGroup, indexed by argument.
	argGroups []int
	xclbinID  uuid.UUID
	memory    map[BufferHandle][]byte
	waitState CommandState
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		next:      1,
		fail:      make(map[string]bool),
		memory:    make(map[BufferHandle][]byte),
		waitState: StateCompleted,
	}
}

func (f *fakeDriver) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeDriver) failed(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[method]
}

func (f *fakeDriver) newHandle() uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.next
	f.next++
	return h
}

// Calls returns the recorded calls and resets them.
func (f *fakeDriver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls
	f.calls = nil
	return calls
}

func (f *fakeDriver) status(method string) int {
	if f.failed(method) {
		return -22
	}
	return 0
}

func (f *fakeDriver) Name() string { return "fake" }

func (f *fakeDriver) OpenDevice(index int) DeviceHandle {
	f.record("OpenDevice(%d)", index)
	if f.failed("OpenDevice") {
		return 0
	}
	return DeviceHandle(f.newHandle())
}

func (f *fakeDriver) CloseDevice(device DeviceHandle) int {
	f.record("CloseDevice")
	return f.status("CloseDevice")
}

func (f *fakeDriver) LoadXclbin(device DeviceHandle, image []byte) int {
	f.record("LoadXclbin(%d bytes)", len(image))
	return f.status("LoadXclbin")
}

func (f *fakeDriver) XclbinUUID(device DeviceHandle) (uuid.UUID, int) {
	f.record("XclbinUUID")
	return f.xclbinID, f.status("XclbinUUID")
}

func (f *fakeDriver) AllocBuffer(device DeviceHandle, sizeBytes int, flags BufferFlags, memoryGroup int) BufferHandle {
	f.record("AllocBuffer(%d, 0x%x, %d)", sizeBytes, uint64(flags), memoryGroup)
	if f.failed("AllocBuffer") {
		return 0
	}
	h := BufferHandle(f.newHandle())
	f.mu.Lock()
	f.memory[h] = make([]byte, sizeBytes)
	f.mu.Unlock()
	return h
}

func (f *fakeDriver) FreeBuffer(buffer BufferHandle) int {
	f.record("FreeBuffer")
	f.mu.Lock()
	delete(f.memory, buffer)
	f.mu.Unlock()
	return f.status("FreeBuffer")
}

func (f *fakeDriver) SyncBuffer(buffer BufferHandle, direction SyncDirection, sizeBytes, offsetBytes int) int {
	f.record("SyncBuffer(%s, %d, %d)", direction, sizeBytes, offsetBytes)
	return f.status("SyncBuffer")
}

func (f *fakeDriver) WriteBuffer(buffer BufferHandle, src []byte, seekBytes int) int {
	f.record("WriteBuffer(%d, %d)", len(src), seekBytes)
	if f.failed("WriteBuffer") {
		return -5
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.memory[buffer][seekBytes:], src)
	return 0
}

func (f *fakeDriver) ReadBuffer(buffer BufferHandle, dst []byte, skipBytes int) int {
	f.record("ReadBuffer(%d, %d)", len(dst), skipBytes)
	if f.failed("ReadBuffer") {
		return -5
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(dst, f.memory[buffer][skipBytes:])
	return 0
}

func (f *fakeDriver) OpenKernel(device DeviceHandle, xclbinUUID uuid.UUID, name string) KernelHandle {
	f.record("OpenKernel(%s)", name)
	if f.failed("OpenKernel") {
		return 0
	}
	return KernelHandle(f.newHandle())
}

func (f *fakeDriver) CloseKernel(kernel KernelHandle) int {
	f.record("CloseKernel")
	return f.status("CloseKernel")
}

func (f *fakeDriver) KernelArgGroup(kernel KernelHandle, argIndex int) int {
	f.record("KernelArgGroup(%d)", argIndex)
	if argIndex >= len(f.argGroups) {
		return -22
	}
	return f.argGroups[argIndex]
}

func (f *fakeDriver) OpenRun(kernel KernelHandle) RunHandle {
	f.record("OpenRun")
	if f.failed("OpenRun") {
		return 0
	}
	return RunHandle(f.newHandle())
}

func (f *fakeDriver) CloseRun(run RunHandle) int {
	f.record("CloseRun")
	return f.status("CloseRun")
}

func (f *fakeDriver) SetRunBufferArg(run RunHandle, argIndex int, buffer BufferHandle) int {
	f.record("SetRunBufferArg(%d)", argIndex)
	return f.status("SetRunBufferArg")
}

func (f *fakeDriver) SetRunScalarArg(run RunHandle, argIndex int, bits uint64, sizeBytes int) int {
	f.record("SetRunScalarArg(%d, 0x%x, %d)", argIndex, bits, sizeBytes)
	return f.status("SetRunScalarArg")
}

func (f *fakeDriver) StartRun(run RunHandle) int {
	f.record("StartRun")
	return f.status("StartRun")
}

func (f *fakeDriver) WaitRun(run RunHandle, timeout time.Duration) CommandState {
	f.record("WaitRun(%s)", timeout)
	return f.waitState
}
