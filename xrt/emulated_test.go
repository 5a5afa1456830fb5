package xrt_test

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/gomlx/goxrt/xrt"
	"github.com/gomlx/goxrt/xrt/emu"
	"github.com/gomlx/goxrt/xrterrors"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flagDriver = flag.String("driver", emu.DriverName, "xrt driver used by the tests: \"sw_emu\" or \"hw\" to use the XRT library.")

// getDriver returns the driver selected with -driver. It skips the test if it's not available.
func getDriver(t *testing.T) xrt.Driver {
	driver, err := xrt.GetDriver(*flagDriver)
	if err != nil {
		t.Skipf("driver %q not available: %v", *flagDriver, err)
	}
	return driver
}

// writeBuiltinXclbin writes the emulator's builtin image to a temporary file.
func writeBuiltinXclbin(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "builtin.xclbin")
	require.NoError(t, os.WriteFile(path, emu.BuiltinXclbin(), 0o644))
	return path
}

func newBuiltinManager(t *testing.T, driver xrt.Driver, kernels ...string) *xrt.DeviceManager {
	m, err := xrt.NewDeviceManager(driver, 0)
	require.NoError(t, err)
	m, err = m.WithXclbin(writeBuiltinXclbin(t))
	require.NoError(t, err)
	for _, name := range kernels {
		m, err = m.WithKernel(name)
		require.NoErrorf(t, err, "loading kernel %q", name)
	}
	return m
}

// freeAll frees the buffers. Buffers must be freed before the device they belong to is closed.
func freeAll(t *testing.T, buffers ...interface{ Free() error }) {
	for _, buf := range buffers {
		require.NoError(t, buf.Free())
	}
}

// closeManager closes the manager, after checking that no buffer is left allocated in an emulated device.
func closeManager(t *testing.T, m *xrt.DeviceManager) {
	if device := m.Device(); device != nil {
		if e, ok := device.Driver().(*emu.Emulator); ok {
			_, buffers, _, _ := e.LiveHandles()
			require.Zero(t, buffers, "buffers still allocated when closing the device")
		}
	}
	require.NoError(t, m.Close())
}

func TestAllocateBuffer(t *testing.T) {
	driver := getDriver(t)
	device, err := xrt.OpenDevice(driver, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, device.Close()) }()

	buf, err := xrt.NewBuffer[uint32](device, 16, xrt.FlagsNone, 0)
	require.NoError(t, err)
	fmt.Printf("\t%s\n", buf)
	require.True(t, buf.IsValid())
	require.Equal(t, 16, buf.Size())
	require.NoError(t, buf.Free())
}

func TestReadNeverAllocatedBuffer(t *testing.T) {
	driver := emu.New(emu.Options{FailAllocs: true})
	device, err := xrt.OpenDevice(driver, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, device.Close()) }()

	buf, err := xrt.NewBuffer[uint32](device, 16, xrt.FlagsNone, 0)
	require.Error(t, err)
	require.Nil(t, buf)
	calls := driver.TotalCalls()
	err = buf.Read(make([]uint32, 16), 0)
	require.True(t, errors.Is(err, xrterrors.BONotCreatedYet), "got %v", err)
	require.Equal(t, calls, driver.TotalCalls(), "no driver call on a buffer never allocated")
}

func TestLoadInvalidMagic(t *testing.T) {
	device, err := xrt.OpenDevice(getDriver(t), 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, device.Close()) }()

	path := filepath.Join(t.TempDir(), "missing.xclbin")
	require.NoError(t, os.WriteFile(path, []byte("bitfile1 not an xclbin at all"), 0o644))
	err = device.LoadXclbin(path)
	require.Equal(t, xrterrors.XclbinInvalidMagicString, xrterrors.KindOf(err))
	xrtErr, ok := xrterrors.AsError(err)
	require.True(t, ok)
	require.Equal(t, "bitfile1", xrtErr.Found)
}

func TestNoSuchKernel(t *testing.T) {
	m := newBuiltinManager(t, getDriver(t))
	defer closeManager(t, m)
	_, err := m.WithKernel("add")
	require.Equal(t, xrterrors.NoSuchKernelError, xrterrors.KindOf(err))
	require.Equal(t, xrt.ManagerFailed, m.State())
}

func TestVadd(t *testing.T) {
	m := newBuiltinManager(t, getDriver(t), "vadd")
	defer closeManager(t, m)

	const n = 1000
	a, b := make([]uint32, n), make([]uint32, n)
	for ii := range n {
		a[ii] = uint32(ii)
		b[ii] = uint32(2 * ii)
	}
	in1 := must.M1(xrt.NewKernelBuffer[uint32](m, "vadd", 0, n, xrt.FlagsNone))
	in2 := must.M1(xrt.NewKernelBuffer[uint32](m, "vadd", 1, n, xrt.FlagsNone))
	out := must.M1(xrt.NewKernelBuffer[uint32](m, "vadd", 2, n, xrt.FlagsNone))
	defer freeAll(t, in1, in2, out)
	assert.Equal(t, 1, in2.MemoryGroup())
	require.NoError(t, in1.WriteAndSync(a, 0))
	require.NoError(t, in2.WriteAndSync(b, 0))

	r, err := m.Call("vadd", in1, in2, out, xrt.Scalar(uint32(n)))
	require.NoError(t, err)
	state, err := r.Wait()
	require.NoError(t, err)
	require.Equal(t, xrt.StateCompleted, state)

	got, err := out.ToSlice()
	require.NoError(t, err)
	for ii := range n {
		require.Equalf(t, a[ii]+b[ii], got[ii], "out[%d]", ii)
	}
	require.NoError(t, m.WaitAll())
}

func TestHostDeviceVisibility(t *testing.T) {
	m := newBuiltinManager(t, getDriver(t), "vadd")
	defer closeManager(t, m)
	device := m.Device()

	in1 := must.M1(xrt.NewBufferFromSlice(device, []uint32{1, 2, 3, 4}, xrt.FlagsNone, 0))
	in2 := must.M1(xrt.NewBuffer[uint32](device, 4, xrt.FlagsNone, 1))
	out := must.M1(xrt.NewBuffer[uint32](device, 4, xrt.FlagsNone, 0))
	defer freeAll(t, in1, in2, out)

	// Written but not synced: the kernel sees zeros.
	require.NoError(t, in2.Write([]uint32{10, 20, 30, 40}, 0))
	_, err := m.Call("vadd", in1, in2, out, xrt.Scalar(uint32(4)))
	require.NoError(t, err)
	require.NoError(t, m.WaitAll())
	got := make([]uint32, 4)
	require.NoError(t, out.Read(got, 0))
	assert.Equal(t, []uint32{0, 0, 0, 0}, got, "results not synced from device yet")
	require.NoError(t, out.SyncAndRead(got, 0))
	assert.Equal(t, []uint32{1, 2, 3, 4}, got)

	// Partial sync: only the last 2 elements (byte offset 8).
	require.NoError(t, in2.Sync(xrt.HostToDevice, 8, 2))
	_, err = m.Call("vadd", in1, in2, out, xrt.Scalar(uint32(4)))
	require.NoError(t, err)
	require.NoError(t, m.WaitAll())
	got, err = out.ToSlice()
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 33, 44}, got)
}

func TestMemoryGroupMismatch(t *testing.T) {
	m := newBuiltinManager(t, getDriver(t), "vadd")
	defer closeManager(t, m)
	wrongGroup := must.M1(xrt.NewBuffer[uint32](m.Device(), 4, xrt.FlagsNone, 0))
	defer freeAll(t, wrongGroup)
	_, err := m.Call("vadd", wrongGroup, wrongGroup, wrongGroup, xrt.Scalar(uint32(4)))
	require.Equal(t, xrterrors.SetRunArgError, xrterrors.KindOf(err))

	_, err = xrt.NewBuffer[uint32](m.Device(), 4, xrt.FlagsNone, 7)
	require.Equal(t, xrterrors.BOCreationError, xrterrors.KindOf(err), "memory group 7 doesn't exist")
}

func TestArgumentContract(t *testing.T) {
	m := newBuiltinManager(t, getDriver(t), "vadd", "saxpy")
	defer closeManager(t, m)
	device := m.Device()
	x := must.M1(xrt.NewBuffer[float32](device, 4, xrt.FlagsNone, 0))
	u := must.M1(xrt.NewBuffer[uint32](device, 4, xrt.FlagsNone, 0))
	defer freeAll(t, x, u)

	mapping, err := m.ArgumentMapping("saxpy")
	require.NoError(t, err)
	fmt.Printf("\tsaxpy%s\n", mapping)
	require.Len(t, mapping, 5)

	_, err = m.Call("saxpy", xrt.Scalar(float32(2)), x, x, x)
	assert.Equal(t, xrterrors.ArgumentNumberMismatchError, xrterrors.KindOf(err))
	_, err = m.Call("saxpy", x, x, x, x, xrt.Scalar(uint32(4)))
	assert.Equal(t, xrterrors.PassVecToScalarArgumentError, xrterrors.KindOf(err))
	_, err = m.Call("saxpy", xrt.Scalar(float32(2)), x, u, x, xrt.Scalar(uint32(4)))
	assert.Equal(t, xrterrors.ArgumentDTypeMismatchError, xrterrors.KindOf(err))
	_, err = m.Call("saxpy", xrt.Scalar(2.0), x, x, x, xrt.Scalar(uint32(4)))
	assert.Equal(t, xrterrors.ArgumentDTypeMismatchError, xrterrors.KindOf(err))
	_, err = m.Call("vmul", x)
	assert.Equal(t, xrterrors.NoSuchKernelError, xrterrors.KindOf(err))
	assert.Equal(t, xrterrors.NoOpenRunsError, xrterrors.KindOf(m.WaitAll()))
}

func TestSaxpyAndVsqrt(t *testing.T) {
	m := newBuiltinManager(t, getDriver(t), "saxpy", "vsqrt")
	defer closeManager(t, m)
	device := m.Device()

	x := []float32{1, 4, 9, 16}
	y := []float32{0, 0.5, 1, 1.5}
	xBuf := must.M1(xrt.NewBufferFromSlice(device, x, xrt.FlagsNone, 0))
	yBuf := must.M1(xrt.NewBufferFromSlice(device, y, xrt.FlagsNone, 0))
	outBuf := must.M1(xrt.NewBuffer[float32](device, 4, xrt.FlagsNone, 0))
	sqrtBuf := must.M1(xrt.NewBuffer[float32](device, 4, xrt.FlagsNone, 0))
	defer freeAll(t, xBuf, yBuf, outBuf, sqrtBuf)

	_, err := m.Call("saxpy", xrt.Scalar(float32(2)), xBuf, yBuf, outBuf, xrt.Scalar(uint32(4)))
	require.NoError(t, err)
	_, err = m.Call("vsqrt", xBuf, sqrtBuf, xrt.Scalar(uint32(4)))
	require.NoError(t, err)
	require.NoError(t, m.WaitAll())

	out := must.M1(outBuf.ToSlice())
	sqrt := must.M1(sqrtBuf.ToSlice())
	for ii := range x {
		assert.InDelta(t, 2*x[ii]+y[ii], out[ii], 1e-6)
		assert.InDelta(t, math32.Sqrt(x[ii]), sqrt[ii], 1e-6)
	}

	// Failing run: vsqrt of negative values.
	require.NoError(t, yBuf.WriteAndSync([]float32{-1}, 0))
	r, err := m.Call("vsqrt", yBuf, sqrtBuf, xrt.Scalar(uint32(4)))
	require.NoError(t, err)
	state, err := r.WaitFor(time.Minute)
	require.Equal(t, xrterrors.RunWaitError, xrterrors.KindOf(err))
	require.Equal(t, xrt.StateError, state)
	err = m.WaitAll()
	require.Equal(t, xrterrors.RunWaitError, xrterrors.KindOf(err))
}

func TestFaultInjection(t *testing.T) {
	driver := emu.New(emu.Options{})
	m := newBuiltinManager(t, driver, "vadd")
	defer closeManager(t, m)
	buf := must.M1(xrt.NewBuffer[uint32](m.Device(), 4, xrt.FlagsNone, 0))
	defer freeAll(t, buf)

	driver.Options.FailSyncs = true
	assert.Equal(t, xrterrors.BOSyncError, xrterrors.KindOf(buf.Sync(xrt.HostToDevice, 0)))
	driver.Options.FailWrites = true
	assert.Equal(t, xrterrors.BOWriteError, xrterrors.KindOf(buf.Write([]uint32{1}, 0)))
	driver.Options.FailReads = true
	assert.Equal(t, xrterrors.BOReadError, xrterrors.KindOf(buf.Read([]uint32{1}, 0)))
	driver.Options.FailStarts = true
	buf2 := must.M1(xrt.NewKernelBuffer[uint32](m, "vadd", 1, 4, xrt.FlagsNone))
	defer freeAll(t, buf2)
	_, err := m.Call("vadd", buf, buf2, buf, xrt.Scalar(uint32(4)))
	assert.Equal(t, xrterrors.RunStartError, xrterrors.KindOf(err))

	driver.Options.FailAllocs = true
	_, err = xrt.NewBuffer[uint32](m.Device(), 4, xrt.FlagsNone, 0)
	assert.Equal(t, xrterrors.BOCreationError, xrterrors.KindOf(err))

	other := emu.New(emu.Options{FailXclbinLoads: true})
	m2, err := xrt.NewDeviceManager(other, 0)
	require.NoError(t, err)
	_, err = m2.WithXclbinImage(emu.BuiltinXclbin())
	assert.Equal(t, xrterrors.XclbinLoadError, xrterrors.KindOf(err))
	devices, _, _, _ := other.LiveHandles()
	assert.Zero(t, devices, "failed manager releases the device")

	other = emu.New(emu.Options{FailKernelOpens: true})
	m2 = must.M1(must.M1(xrt.NewDeviceManager(other, 0)).WithXclbinImage(emu.BuiltinXclbin()))
	_, err = m2.WithKernel("vadd")
	assert.Equal(t, xrterrors.KernelCreationError, xrterrors.KindOf(err))
}

func TestManagerReleasesEverything(t *testing.T) {
	driver := emu.New(emu.Options{})
	m := newBuiltinManager(t, driver, "vadd", "saxpy", "vsqrt")
	in := must.M1(xrt.NewKernelBuffer[float32](m, "vsqrt", 0, 1024, xrt.FlagsNone))
	outs := make([]*xrt.Buffer[float32], 4)
	for ii := range outs {
		outs[ii] = must.M1(xrt.NewKernelBuffer[float32](m, "vsqrt", 1, 1024, xrt.FlagsNone))
	}

	// Runs share the input but each writes to its own output buffer.
	started := make([]*xrt.Run, len(outs))
	for ii, out := range outs {
		r, err := m.Call("vsqrt", in, out, xrt.Scalar(uint32(1024)))
		require.NoError(t, err)
		started[ii] = r
	}
	require.NoError(t, m.WaitAll())
	for _, r := range started {
		require.Equal(t, xrt.StateCompleted, r.State())
	}
	_, buffers, _, _ := driver.LiveHandles()
	require.Equal(t, 1+len(outs), buffers)
	require.NoError(t, in.Free())
	for _, out := range outs {
		require.NoError(t, out.Free())
	}
	require.NoError(t, m.Close())
	devices, buffers, kernels, runs := driver.LiveHandles()
	require.Zero(t, devices)
	require.Zero(t, buffers)
	require.Zero(t, kernels)
	require.Zero(t, runs)
	_, err := m.Kernel("vadd")
	require.Equal(t, xrterrors.InvalidStageError, xrterrors.KindOf(err))
}

func BenchmarkVadd(b *testing.B) {
	driver, err := xrt.GetDriver(*flagDriver)
	if err != nil {
		b.Skipf("driver %q not available: %v", *flagDriver, err)
	}
	m := must.M1(must.M1(must.M1(xrt.NewDeviceManager(driver, 0)).WithXclbinImage(emu.BuiltinXclbin())).WithKernel("vadd"))
	defer func() { must.M(m.Close()) }()
	const n = 1 << 16
	in1 := must.M1(xrt.NewKernelBuffer[uint32](m, "vadd", 0, n, xrt.FlagsNone))
	in2 := must.M1(xrt.NewKernelBuffer[uint32](m, "vadd", 1, n, xrt.FlagsNone))
	out := must.M1(xrt.NewKernelBuffer[uint32](m, "vadd", 2, n, xrt.FlagsNone))
	defer func() { must.M(in1.Free()); must.M(in2.Free()); must.M(out.Free()) }()
	data := make([]uint32, n)
	for ii := range data {
		data[ii] = uint32(ii)
	}
	for b.Loop() {
		must.M(in1.WriteAndSync(data, 0))
		must.M(in2.WriteAndSync(data, 0))
		must.M1(m.Call("vadd", in1, in2, out, xrt.Scalar(uint32(n))))
		must.M(m.WaitAll())
		must.M(out.SyncAndRead(data, 0))
	}
}
