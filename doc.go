// Package goxrt is the root of the Go bindings to the Xilinx Runtime (XRT), used to drive FPGA accelerator cards.
//
// The packages are:
//
//   - xrt: devices, typed buffers, kernels, runs and the DeviceManager that ties them together.
//   - xrt/emu: a software emulation of a device, to develop and test without hardware.
//   - xclbin: reader (and writer) of the xclbin bitstream container, with the kernels' signatures.
//   - dtypes: the closed set of element types that can be exchanged with kernels.
//   - xrterrors: the kinds of errors returned by all packages.
//
// A minimal example, adding two vectors with a "vadd" kernel:
//
//	driver := must.M1(xrt.DefaultDriver())
//	m := must.M1(xrt.NewDeviceManager(driver, 0))
//	m = must.M1(m.WithXclbin("vadd.xclbin"))
//	m = must.M1(m.WithKernel("vadd"))
//	defer m.Close()
//
//	in1 := must.M1(xrt.NewKernelBuffer[uint32](m, "vadd", 0, n, xrt.FlagsNone))
//	...
//	must.M(in1.WriteAndSync(a, 0))
//	must.M1(m.Call("vadd", in1, in2, out, xrt.Scalar(uint32(n))))
//	must.M(m.WaitAll())
//	result := must.M1(out.ToSlice())
//
// The driver is selected with the environment variable GOXRT_DRIVER ("hw" by default, or "sw_emu").
// See xrt.XRTLibraryPathsEnv for how the XRT library is found.
package goxrt
