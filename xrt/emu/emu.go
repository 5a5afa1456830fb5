// Package emu implements a software emulation of an XRT device, registered as the xrt driver "sw_emu".
//
// Each buffer has separate host and device memories, so data written by the host is only seen by kernels after
// a sync to the device, and results only read after a sync from the device. Memory groups are checked against
// the MEM_TOPOLOGY of the loaded xclbin, and binding a buffer to a kernel argument connected (CONNECTIVITY section)
// to a different memory bank is rejected, as the hardware would.
//
// Kernels are implemented in Go (see RegisterKernel), and runs are executed asynchronously in goroutines.
//
// To use it, import it and select the driver:
//
//	import _ "github.com/gomlx/goxrt/xrt/emu"
//
//	driver, err := xrt.GetDriver("sw_emu")
package emu

import (
	"sync"
	"time"
	"unsafe"

	"github.com/gomlx/goxrt/xclbin"
	"github.com/gomlx/goxrt/xrt"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// DriverName is the name the emulator is registered with.
const DriverName = "sw_emu"

// Status codes returned by the emulator, like the negated errno values returned by XRT.
const (
	statusOK      = 0
	statusIO      = -5
	statusNoMem   = -12
	statusBusy    = -16
	statusInvalid = -22
)

func init() {
	xrt.RegisterDriver(DriverName, New(Options{}))
}

// Options of the emulator. The Fail* options inject failures in the corresponding driver calls.
type Options struct {
	// NumDevices is the number of devices emulated. Defaults to 1.
	NumDevices int

	FailAllocs, FailSyncs, FailWrites, FailReads bool
	FailXclbinLoads, FailKernelOpens, FailStarts bool
}

// Emulator implements xrt.Driver.
//
// Its tables are protected by a mutex: it can be used concurrently by different devices.
type Emulator struct {
	Options Options

	mu         sync.Mutex
	nextHandle uintptr
	devices    map[xrt.DeviceHandle]*device
	buffers    map[xrt.BufferHandle]*buffer
	kernels    map[xrt.KernelHandle]*kernel
	runs       map[xrt.RunHandle]*run

	// Kernels registered in this emulator only, they take precedence over the global ones.
	kernelFns map[string]KernelFunc

	// calls counts the calls per method name, for tests.
	calls map[string]int
}

var _ xrt.Driver = (*Emulator)(nil)

type device struct {
	index      int
	xclbin     *xclbin.Xclbin
	banks      []xclbin.MemoryBank
	bankUsage  []uint64
	numBuffers int
}

type buffer struct {
	device    *device
	host, dev []byte
	flags     xrt.BufferFlags
	group     int
}

type kernel struct {
	device   *device
	fn       KernelFunc
	metadata xclbin.Kernel

	// groups required for each argument, -1 if any group is accepted.
	groups []int
}

// New creates an emulator with the given options. Use it with xrt.NewDeviceManager or xrt.OpenDevice directly,
// or register it with xrt.RegisterDriver.
func New(options Options) *Emulator {
	if options.NumDevices <= 0 {
		options.NumDevices = 1
	}
	return &Emulator{
		Options:    options,
		nextHandle: 1,
		devices:    make(map[xrt.DeviceHandle]*device),
		buffers:    make(map[xrt.BufferHandle]*buffer),
		kernels:    make(map[xrt.KernelHandle]*kernel),
		runs:       make(map[xrt.RunHandle]*run),
		kernelFns:  make(map[string]KernelFunc),
		calls:      make(map[string]int),
	}
}

// newHandleLocked returns a new unique handle value.
func (e *Emulator) newHandleLocked() uintptr {
	h := e.nextHandle
	e.nextHandle++
	return h
}

func (e *Emulator) countLocked(method string) {
	e.calls[method]++
}

// Calls returns how many times the driver method was called.
func (e *Emulator) Calls(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[method]
}

// TotalCalls returns the total number of driver calls.
func (e *Emulator) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	var total int
	for _, n := range e.calls {
		total += n
	}
	return total
}

// LiveHandles returns the number of open devices, buffers, kernels and runs.
func (e *Emulator) LiveHandles() (devices, buffers, kernels, runs int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.devices), len(e.buffers), len(e.kernels), len(e.runs)
}

// Name implements xrt.Driver.
func (e *Emulator) Name() string { return DriverName }

func (e *Emulator) OpenDevice(index int) xrt.DeviceHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("OpenDevice")
	if index < 0 || index >= e.Options.NumDevices {
		return 0
	}
	h := xrt.DeviceHandle(e.newHandleLocked())
	e.devices[h] = &device{index: index}
	return h
}

func (e *Emulator) CloseDevice(h xrt.DeviceHandle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("CloseDevice")
	d, found := e.devices[h]
	if !found {
		return statusInvalid
	}
	if d.numBuffers > 0 {
		klog.Warningf("emu: device #%d closed with %d buffers still allocated", d.index, d.numBuffers)
	}
	delete(e.devices, h)
	return statusOK
}

func (e *Emulator) LoadXclbin(h xrt.DeviceHandle, image []byte) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("LoadXclbin")
	d, found := e.devices[h]
	if !found {
		return statusInvalid
	}
	if e.Options.FailXclbinLoads {
		return statusIO
	}
	x, err := xclbin.Parse(image)
	if err != nil {
		klog.V(1).Infof("emu: invalid xclbin: %v", err)
		return statusInvalid
	}
	banks, err := x.MemoryBanks()
	if err != nil {
		klog.V(1).Infof("emu: invalid memory topology: %v", err)
		return statusInvalid
	}
	if d.numBuffers > 0 && len(banks) > 0 {
		// Memory topology changes: existing buffers would be in undefined banks.
		return statusBusy
	}
	d.xclbin = x
	d.banks = banks
	d.bankUsage = make([]uint64, len(banks))
	return statusOK
}

func (e *Emulator) XclbinUUID(h xrt.DeviceHandle) (uuid.UUID, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("XclbinUUID")
	d, found := e.devices[h]
	if !found || d.xclbin == nil {
		return uuid.Nil, statusInvalid
	}
	return d.xclbin.UUID(), statusOK
}

// alignedBytes allocates n bytes aligned to 8 bytes, so they can be viewed as slices of any supported dtype.
func alignedBytes(n int) []byte {
	if n == 0 {
		return []byte{}
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}

func (e *Emulator) AllocBuffer(h xrt.DeviceHandle, sizeBytes int, flags xrt.BufferFlags, memoryGroup int) xrt.BufferHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("AllocBuffer")
	d, found := e.devices[h]
	if !found || sizeBytes < 0 || memoryGroup < 0 || e.Options.FailAllocs {
		return 0
	}
	if len(d.banks) > 0 {
		if memoryGroup >= len(d.banks) || !d.banks[memoryGroup].Used {
			klog.V(1).Infof("emu: memory group %d not available in device #%d", memoryGroup, d.index)
			return 0
		}
		bank := d.banks[memoryGroup]
		if d.bankUsage[memoryGroup]+uint64(sizeBytes) > bank.SizeKB*1024 {
			klog.V(1).Infof("emu: memory bank %q out of memory", bank.Tag)
			return 0
		}
		d.bankUsage[memoryGroup] += uint64(sizeBytes)
	}
	b := &buffer{device: d, flags: flags, group: memoryGroup}
	switch {
	case flags&xrt.FlagsDeviceOnly != 0:
		b.dev = alignedBytes(sizeBytes)
	case flags&xrt.FlagsHostOnly != 0:
		// Kernel accesses host memory directly.
		b.host = alignedBytes(sizeBytes)
		b.dev = b.host
	default:
		b.host = alignedBytes(sizeBytes)
		b.dev = alignedBytes(sizeBytes)
	}
	d.numBuffers++
	bh := xrt.BufferHandle(e.newHandleLocked())
	e.buffers[bh] = b
	return bh
}

func (e *Emulator) FreeBuffer(h xrt.BufferHandle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("FreeBuffer")
	b, found := e.buffers[h]
	if !found {
		return statusInvalid
	}
	if len(b.device.bankUsage) > b.group {
		b.device.bankUsage[b.group] -= uint64(len(b.dev))
	}
	b.device.numBuffers--
	delete(e.buffers, h)
	return statusOK
}

// validRange checks that [offset, offset+size) is within n bytes.
func validRange(n, size, offset int) bool {
	return size >= 0 && offset >= 0 && offset <= n && size <= n-offset
}

func (e *Emulator) SyncBuffer(h xrt.BufferHandle, direction xrt.SyncDirection, sizeBytes, offsetBytes int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("SyncBuffer")
	b, found := e.buffers[h]
	if !found || b.host == nil || !validRange(len(b.dev), sizeBytes, offsetBytes) {
		return statusInvalid
	}
	if e.Options.FailSyncs {
		return statusIO
	}
	if b.flags&xrt.FlagsHostOnly != 0 {
		return statusOK
	}
	region := func(m []byte) []byte { return m[offsetBytes : offsetBytes+sizeBytes] }
	switch direction {
	case xrt.HostToDevice:
		copy(region(b.dev), region(b.host))
	case xrt.DeviceToHost:
		copy(region(b.host), region(b.dev))
	default:
		return statusInvalid
	}
	return statusOK
}

func (e *Emulator) WriteBuffer(h xrt.BufferHandle, src []byte, seekBytes int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("WriteBuffer")
	b, found := e.buffers[h]
	if !found || b.host == nil || !validRange(len(b.host), len(src), seekBytes) {
		return statusInvalid
	}
	if e.Options.FailWrites {
		return statusIO
	}
	copy(b.host[seekBytes:], src)
	return statusOK
}

func (e *Emulator) ReadBuffer(h xrt.BufferHandle, dst []byte, skipBytes int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("ReadBuffer")
	b, found := e.buffers[h]
	if !found || b.host == nil || !validRange(len(b.host), len(dst), skipBytes) {
		return statusInvalid
	}
	if e.Options.FailReads {
		return statusIO
	}
	copy(dst, b.host[skipBytes:])
	return statusOK
}

func (e *Emulator) OpenKernel(h xrt.DeviceHandle, xclbinUUID uuid.UUID, name string) xrt.KernelHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("OpenKernel")
	d, found := e.devices[h]
	if !found || d.xclbin == nil || d.xclbin.UUID() != xclbinUUID || e.Options.FailKernelOpens {
		return 0
	}
	metadata, err := d.xclbin.Kernel(name)
	if err != nil {
		return 0
	}
	fn := e.kernelFns[name]
	if fn == nil {
		fn = lookupKernel(name)
	}
	if fn == nil {
		klog.V(1).Infof("emu: no implementation registered for kernel %q", name)
		return 0
	}
	k := &kernel{device: d, fn: fn, metadata: metadata, groups: make([]int, len(metadata.Arguments))}
	for ii := range k.groups {
		group, found, err := d.xclbin.ArgumentMemoryGroup(name, ii)
		if err != nil {
			return 0
		}
		if !found {
			group = -1
		}
		k.groups[ii] = group
	}
	kh := xrt.KernelHandle(e.newHandleLocked())
	e.kernels[kh] = k
	return kh
}

func (e *Emulator) CloseKernel(h xrt.KernelHandle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("CloseKernel")
	if _, found := e.kernels[h]; !found {
		return statusInvalid
	}
	delete(e.kernels, h)
	return statusOK
}

func (e *Emulator) KernelArgGroup(h xrt.KernelHandle, argIndex int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("KernelArgGroup")
	k, found := e.kernels[h]
	if !found || argIndex < 0 || argIndex >= len(k.groups) || !k.metadata.Arguments[argIndex].AddressQualifier.IsBuffer() {
		return statusInvalid
	}
	if k.groups[argIndex] < 0 {
		// Default bank.
		return 0
	}
	return k.groups[argIndex]
}

func (e *Emulator) OpenRun(h xrt.KernelHandle) xrt.RunHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("OpenRun")
	k, found := e.kernels[h]
	if !found {
		return 0
	}
	rh := xrt.RunHandle(e.newHandleLocked())
	e.runs[rh] = newRun(k)
	return rh
}

func (e *Emulator) CloseRun(h xrt.RunHandle) int {
	e.mu.Lock()
	r, found := e.runs[h]
	if found {
		delete(e.runs, h)
	}
	e.countLocked("CloseRun")
	e.mu.Unlock()
	if !found {
		return statusInvalid
	}
	// Memory used by the kernel must not be released while it runs.
	r.wait(0)
	return statusOK
}

func (e *Emulator) SetRunBufferArg(h xrt.RunHandle, argIndex int, bh xrt.BufferHandle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("SetRunBufferArg")
	r, found := e.runs[h]
	if !found || r.isRunning() {
		return statusInvalid
	}
	b, found := e.buffers[bh]
	if !found || argIndex < 0 || argIndex >= len(r.args) {
		return statusInvalid
	}
	k := r.kernel
	if !k.metadata.Arguments[argIndex].AddressQualifier.IsBuffer() || b.device != k.device {
		return statusInvalid
	}
	if want := k.groups[argIndex]; want >= 0 && b.group != want {
		klog.V(1).Infof("emu: kernel %q argument #%d requires memory group %d, buffer allocated in %d",
			k.metadata.Name, argIndex, want, b.group)
		return statusInvalid
	}
	r.args[argIndex] = boundArg{buffer: b, set: true}
	return statusOK
}

func (e *Emulator) SetRunScalarArg(h xrt.RunHandle, argIndex int, bits uint64, sizeBytes int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("SetRunScalarArg")
	r, found := e.runs[h]
	if !found || r.isRunning() || argIndex < 0 || argIndex >= len(r.args) {
		return statusInvalid
	}
	arg := r.kernel.metadata.Arguments[argIndex]
	if arg.AddressQualifier != xclbin.AddressScalar {
		return statusInvalid
	}
	if size := arg.DType.Size(); size > 0 && size != sizeBytes {
		return statusInvalid
	}
	r.args[argIndex] = boundArg{bits: bits, size: sizeBytes, set: true}
	return statusOK
}

func (e *Emulator) StartRun(h xrt.RunHandle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.countLocked("StartRun")
	r, found := e.runs[h]
	if !found {
		return statusInvalid
	}
	if e.Options.FailStarts {
		return statusIO
	}
	return r.start()
}

func (e *Emulator) WaitRun(h xrt.RunHandle, timeout time.Duration) xrt.CommandState {
	e.mu.Lock()
	r, found := e.runs[h]
	e.countLocked("WaitRun")
	e.mu.Unlock()
	if !found {
		return xrt.StateError
	}
	return r.wait(timeout)
}
