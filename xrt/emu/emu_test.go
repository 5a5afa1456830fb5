package emu

import (
	"fmt"
	"testing"
	"time"
	"unsafe"

	"github.com/gomlx/goxrt/dtypes"
	"github.com/gomlx/goxrt/xclbin"
	"github.com/gomlx/goxrt/xrt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func uint32Bytes(values ...uint32) []byte {
	if len(values) == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), len(values)*4)
}

func bytesUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// openBuiltin opens device 0 and loads the BuiltinXclbin.
func openBuiltin(t *testing.T, e *Emulator) xrt.DeviceHandle {
	dev := e.OpenDevice(0)
	require.NotZero(t, dev)
	require.Zero(t, e.LoadXclbin(dev, BuiltinXclbin()))
	id, status := e.XclbinUUID(dev)
	require.Zero(t, status)
	require.Equal(t, BuiltinXclbinUUID, id)
	return dev
}

func TestRegistered(t *testing.T) {
	driver, err := xrt.GetDriver(DriverName)
	require.NoError(t, err)
	require.Equal(t, DriverName, driver.Name())
	require.Contains(t, xrt.RegisteredDrivers(), DriverName)
}

func TestDevices(t *testing.T) {
	e := New(Options{NumDevices: 2})
	d0 := e.OpenDevice(0)
	d1 := e.OpenDevice(1)
	require.NotZero(t, d0)
	require.NotZero(t, d1)
	require.NotEqual(t, d0, d1)
	require.Zero(t, e.OpenDevice(2))
	require.Zero(t, e.OpenDevice(-1))

	_, status := e.XclbinUUID(d0)
	require.NotZero(t, status, "no xclbin loaded yet")
	require.NotZero(t, e.LoadXclbin(d0, []byte("not an xclbin")))

	require.Zero(t, e.CloseDevice(d0))
	require.NotZero(t, e.CloseDevice(d0), "closing twice should fail")
	require.Zero(t, e.CloseDevice(d1))
	devices, _, _, _ := e.LiveHandles()
	require.Zero(t, devices)
}

func TestBufferHostDeviceSeparation(t *testing.T) {
	e := New(Options{})
	dev := e.OpenDevice(0)
	require.NotZero(t, dev)

	// No memory topology loaded: any memory group is accepted.
	buf := e.AllocBuffer(dev, 16, xrt.FlagsNone, 0)
	require.NotZero(t, buf)

	require.Zero(t, e.WriteBuffer(buf, uint32Bytes(1, 2, 3, 4), 0))
	b := e.buffers[buf]
	require.Equal(t, []uint32{0, 0, 0, 0}, bytesUint32(b.dev), "device memory only updated after sync")

	// Sync only the middle 2 values.
	require.Zero(t, e.SyncBuffer(buf, xrt.HostToDevice, 8, 4))
	require.Equal(t, []uint32{0, 2, 3, 0}, bytesUint32(b.dev))
	require.Zero(t, e.SyncBuffer(buf, xrt.HostToDevice, 16, 0))
	require.Equal(t, []uint32{1, 2, 3, 4}, bytesUint32(b.dev))

	// Changes in the device only seen after syncing back.
	bytesUint32(b.dev)[0] = 100
	got := make([]byte, 16)
	require.Zero(t, e.ReadBuffer(buf, got, 0))
	require.Equal(t, []uint32{1, 2, 3, 4}, bytesUint32(got))
	require.Zero(t, e.SyncBuffer(buf, xrt.DeviceToHost, 16, 0))
	require.Zero(t, e.ReadBuffer(buf, got[:8], 8))
	require.Equal(t, []uint32{3, 4}, bytesUint32(got[:8]))

	// Out of range.
	require.NotZero(t, e.SyncBuffer(buf, xrt.HostToDevice, 16, 4))
	require.NotZero(t, e.WriteBuffer(buf, uint32Bytes(1, 2), 12))
	require.NotZero(t, e.ReadBuffer(buf, got, 4))

	require.Zero(t, e.FreeBuffer(buf))
	require.NotZero(t, e.FreeBuffer(buf))
	require.NotZero(t, e.WriteBuffer(buf, uint32Bytes(1), 0))
	require.Zero(t, e.CloseDevice(dev))
}

func TestBufferFlags(t *testing.T) {
	e := New(Options{})
	dev := e.OpenDevice(0)

	deviceOnly := e.AllocBuffer(dev, 8, xrt.FlagsDeviceOnly, 0)
	require.NotZero(t, deviceOnly)
	require.NotZero(t, e.WriteBuffer(deviceOnly, uint32Bytes(1, 2), 0), "device only buffers have no host memory")
	require.NotZero(t, e.SyncBuffer(deviceOnly, xrt.HostToDevice, 8, 0))

	hostOnly := e.AllocBuffer(dev, 8, xrt.FlagsHostOnly, 0)
	require.NotZero(t, hostOnly)
	require.Zero(t, e.WriteBuffer(hostOnly, uint32Bytes(7, 8), 0))
	require.Equal(t, []uint32{7, 8}, bytesUint32(e.buffers[hostOnly].dev), "host only memory is shared")
	require.Zero(t, e.SyncBuffer(hostOnly, xrt.HostToDevice, 8, 0))
}

func TestMemoryTopology(t *testing.T) {
	e := New(Options{})
	image := xclbin.NewBuilder().
		AddKernel(BuiltinKernels()[0])
	small := image.AddMemory("bank0", xclbin.MemDDR4, 1)
	image.Connect("vadd", 0, small)
	dev := e.OpenDevice(0)
	require.Zero(t, e.LoadXclbin(dev, image.Bytes()))

	require.Zero(t, e.AllocBuffer(dev, 16, xrt.FlagsNone, 1), "memory group 1 doesn't exist")
	b0 := e.AllocBuffer(dev, 1000, xrt.FlagsNone, 0)
	require.NotZero(t, b0)
	require.Zero(t, e.AllocBuffer(dev, 100, xrt.FlagsNone, 0), "bank of 1KB is full")
	require.Zero(t, e.FreeBuffer(b0))
	require.NotZero(t, e.AllocBuffer(dev, 100, xrt.FlagsNone, 0))
	require.NotZero(t, e.LoadXclbin(dev, image.Bytes()), "can't change topology with allocated buffers")
}

func TestFaultInjection(t *testing.T) {
	e := New(Options{FailAllocs: true})
	dev := e.OpenDevice(0)
	require.Zero(t, e.AllocBuffer(dev, 4, xrt.FlagsNone, 0))
	e.Options.FailAllocs = false
	buf := e.AllocBuffer(dev, 4, xrt.FlagsNone, 0)
	require.NotZero(t, buf)

	e.Options.FailWrites = true
	require.Equal(t, statusIO, e.WriteBuffer(buf, uint32Bytes(1), 0))
	e.Options.FailReads = true
	require.Equal(t, statusIO, e.ReadBuffer(buf, make([]byte, 4), 0))
	e.Options.FailSyncs = true
	require.Equal(t, statusIO, e.SyncBuffer(buf, xrt.DeviceToHost, 4, 0))
	e.Options.FailXclbinLoads = true
	require.Equal(t, statusIO, e.LoadXclbin(dev, BuiltinXclbin()))
	require.Equal(t, 1, e.Calls("WriteBuffer"))
	require.Equal(t, 2, e.Calls("AllocBuffer"))
}

func TestKernelArgGroups(t *testing.T) {
	e := New(Options{})
	dev := openBuiltin(t, e)
	require.Zero(t, e.OpenKernel(dev, uuid.New(), "vadd"), "wrong xclbin uuid")
	require.Zero(t, e.OpenKernel(dev, BuiltinXclbinUUID, "vmul"), "kernel not in xclbin")
	k := e.OpenKernel(dev, BuiltinXclbinUUID, "vadd")
	require.NotZero(t, k)

	require.Equal(t, 0, e.KernelArgGroup(k, 0))
	require.Equal(t, 1, e.KernelArgGroup(k, 1))
	require.Equal(t, 0, e.KernelArgGroup(k, 2))
	require.Less(t, e.KernelArgGroup(k, 3), 0, "scalar argument has no memory group")
	require.Less(t, e.KernelArgGroup(k, 4), 0)
	require.Zero(t, e.CloseKernel(k))
	require.NotZero(t, e.CloseKernel(k))
}

func TestKernelWithoutImplementation(t *testing.T) {
	e := New(Options{})
	dev := e.OpenDevice(0)
	image := xclbin.NewBuilder().AddKernel(xclbin.Kernel{Name: "not_implemented"}).Bytes()
	require.Zero(t, e.LoadXclbin(dev, image))
	x, err := xclbin.Parse(image)
	require.NoError(t, err)
	require.Zero(t, e.OpenKernel(dev, x.UUID(), "not_implemented"))

	e.RegisterKernel("not_implemented", func(*KernelArgs) error { return nil })
	require.NotZero(t, e.OpenKernel(dev, x.UUID(), "not_implemented"))
}

func TestVaddRun(t *testing.T) {
	e := New(Options{})
	dev := openBuiltin(t, e)
	k := e.OpenKernel(dev, BuiltinXclbinUUID, "vadd")
	require.NotZero(t, k)

	const n = 8
	in1 := e.AllocBuffer(dev, n*4, xrt.FlagsNone, 0)
	in2 := e.AllocBuffer(dev, n*4, xrt.FlagsNone, 1)
	out := e.AllocBuffer(dev, n*4, xrt.FlagsNone, 0)
	require.Zero(t, e.WriteBuffer(in1, uint32Bytes(0, 1, 2, 3, 4, 5, 6, 7), 0))
	require.Zero(t, e.WriteBuffer(in2, uint32Bytes(10, 10, 10, 10, 10, 10, 10, 10), 0))
	require.Zero(t, e.SyncBuffer(in1, xrt.HostToDevice, n*4, 0))
	require.Zero(t, e.SyncBuffer(in2, xrt.HostToDevice, n*4, 0))

	r := e.OpenRun(k)
	require.NotZero(t, r)
	require.Equal(t, xrt.StateNew, e.WaitRun(r, 0), "not started")
	require.NotZero(t, e.StartRun(r), "arguments not set")

	// in1 in the wrong memory group.
	require.NotZero(t, e.SetRunBufferArg(r, 1, in1))
	require.NotZero(t, e.SetRunScalarArg(r, 0, 1, 4), "argument 0 is not a scalar")
	require.NotZero(t, e.SetRunBufferArg(r, 3, out), "argument 3 is not a buffer")
	require.NotZero(t, e.SetRunScalarArg(r, 3, n, 8), "argument 3 has 4 bytes")

	require.Zero(t, e.SetRunBufferArg(r, 0, in1))
	require.Zero(t, e.SetRunBufferArg(r, 1, in2))
	require.Zero(t, e.SetRunBufferArg(r, 2, out))
	require.Zero(t, e.SetRunScalarArg(r, 3, n, 4))
	require.Zero(t, e.StartRun(r))
	require.Equal(t, xrt.StateCompleted, e.WaitRun(r, 0))

	got := make([]byte, n*4)
	require.Zero(t, e.ReadBuffer(out, got, 0))
	require.Equal(t, make([]uint32, n), bytesUint32(got), "output not synced from device yet")
	require.Zero(t, e.SyncBuffer(out, xrt.DeviceToHost, n*4, 0))
	require.Zero(t, e.ReadBuffer(out, got, 0))
	fmt.Printf("\tvadd output: %v\n", bytesUint32(got))
	require.Equal(t, []uint32{10, 11, 12, 13, 14, 15, 16, 17}, bytesUint32(got))

	// Runs can be restarted, here with a size larger than the buffers.
	require.Zero(t, e.SetRunScalarArg(r, 3, 2*n, 4))
	require.Zero(t, e.StartRun(r))
	require.Equal(t, xrt.StateError, e.WaitRun(r, 0))
	require.Zero(t, e.CloseRun(r))
	require.Equal(t, xrt.StateError, e.WaitRun(r, 0), "closed run")
}

func TestWaitTimeout(t *testing.T) {
	e := New(Options{})
	dev := e.OpenDevice(0)
	release := make(chan struct{})
	image := xclbin.NewBuilder().AddKernel(xclbin.Kernel{Name: "blocking"}).Bytes()
	require.Zero(t, e.LoadXclbin(dev, image))
	e.RegisterKernel("blocking", func(*KernelArgs) error {
		<-release
		return nil
	})
	x, err := xclbin.Parse(image)
	require.NoError(t, err)
	k := e.OpenKernel(dev, x.UUID(), "blocking")
	r := e.OpenRun(k)
	require.Zero(t, e.StartRun(r))
	require.Equal(t, xrt.StateTimeout, e.WaitRun(r, 10*time.Millisecond))
	require.Equal(t, statusBusy, e.StartRun(r), "already running")
	close(release)
	require.Equal(t, xrt.StateCompleted, e.WaitRun(r, time.Second))
}

func TestKernelPanics(t *testing.T) {
	e := New(Options{})
	dev := e.OpenDevice(0)
	image := xclbin.NewBuilder().AddKernel(xclbin.Kernel{Name: "panics"}).Bytes()
	require.Zero(t, e.LoadXclbin(dev, image))
	e.RegisterKernel("panics", func(*KernelArgs) error { panic("bug in kernel") })
	x, err := xclbin.Parse(image)
	require.NoError(t, err)
	r := e.OpenRun(e.OpenKernel(dev, x.UUID(), "panics"))
	require.Zero(t, e.StartRun(r))
	require.Equal(t, xrt.StateError, e.WaitRun(r, 0))
}

func TestScalarArg(t *testing.T) {
	args := &KernelArgs{
		kernel: xclbin.Kernel{Name: "test"},
		args: []boundArg{
			{set: true, bits: uint64(uint32(0xFFFFFFFE)), size: 4},
			{set: true, bits: 0x40490FDB, size: 4}, // float32(pi)
			{set: true, bits: 0x400921FB54442D18, size: 8},
			{set: true, buffer: &buffer{dev: alignedBytes(8)}},
		},
	}
	i32, err := ScalarArg[int32](args, 0)
	require.NoError(t, err)
	require.Equal(t, int32(-2), i32)
	f32, err := ScalarArg[float32](args, 1)
	require.NoError(t, err)
	require.InDelta(t, 3.14159, f32, 1e-5)
	f64, err := ScalarArg[float64](args, 2)
	require.NoError(t, err)
	require.InDelta(t, 3.14159265, f64, 1e-8)

	_, err = ScalarArg[int64](args, 0)
	require.Error(t, err, "size mismatch")
	_, err = ScalarArg[uint32](args, 3)
	require.Error(t, err, "argument is a buffer")
	_, err = BufferArg[uint32](args, 0)
	require.Error(t, err, "argument is a scalar")
	values, err := BufferArg[uint64](args, 3)
	require.NoError(t, err)
	require.Len(t, values, 1)
	require.Equal(t, 4, args.Len())
}

func TestBuiltinXclbin(t *testing.T) {
	x, err := xclbin.Parse(BuiltinXclbin())
	require.NoError(t, err)
	names, err := x.KernelNames()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"vadd", "saxpy", "vsqrt"}, names)
	saxpy, err := x.Kernel("saxpy")
	require.NoError(t, err)
	require.Equal(t, dtypes.Float32, saxpy.Arguments[0].DType)
	require.False(t, saxpy.Arguments[0].IsPointer)
	require.True(t, saxpy.Arguments[1].IsPointer)
}
