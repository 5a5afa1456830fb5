// xrt_vadd runs a vector addition kernel end to end: it loads the xclbin, allocates the buffers in the memory
// groups required by the kernel, runs it and checks the results.
//
// By default it uses the software emulation ("sw_emu") with its builtin xclbin. To run on the hardware:
//
//	$ xrt_vadd -driver=hw -xclbin=vadd.xclbin
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chewxy/math32"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/goxrt/xrt"
	"github.com/gomlx/goxrt/xrt/emu"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagDriver = flag.String("driver", emu.DriverName, "Driver to use: \"hw\" for the XRT library, or \"sw_emu\".")
	flagDevice = flag.Int("device", 0, "Index of the device to open.")
	flagXclbin = flag.String("xclbin", "", "Path to the xclbin with the kernel. "+
		"If empty, the builtin xclbin of the software emulation is used.")
	flagKernel = flag.String("kernel", "vadd", "Name of the kernel: it must take (in1, in2, out, size) unsigned int arguments.")
	flagSize   = flag.Int("size", 1<<20, "Number of elements of the vectors.")
	flagRuns   = flag.Int("runs", 1, "Number of times to run the kernel.")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "xrt_vadd runs a vector addition kernel and checks its results.\n\nUsage:\n")
		flag.PrintDefaults()
	}
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	driver := must.M1(xrt.GetDriver(*flagDriver))
	m := must.M1(xrt.NewDeviceManager(driver, *flagDevice))
	if *flagXclbin == "" {
		m = must.M1(m.WithXclbinImage(emu.BuiltinXclbin()))
	} else {
		m = must.M1(m.WithXclbin(*flagXclbin))
	}
	m = must.M1(m.WithKernel(*flagKernel))
	defer func() { must.M(m.Close()) }()
	fmt.Printf("%s\n", m.Device())
	k := must.M1(m.Kernel(*flagKernel))
	fmt.Printf("\tkernel %s\n", k)

	n := *flagSize
	in1 := must.M1(xrt.NewKernelBuffer[uint32](m, *flagKernel, 0, n, xrt.FlagsNone))
	in2 := must.M1(xrt.NewKernelBuffer[uint32](m, *flagKernel, 1, n, xrt.FlagsNone))
	out := must.M1(xrt.NewKernelBuffer[uint32](m, *flagKernel, 2, n, xrt.FlagsNone))
	defer func() {
		must.M(in1.Free())
		must.M(in2.Free())
		must.M(out.Free())
	}()
	fmt.Printf("\tbuffers: %s, %s, %s\n", in1, in2, out)

	a, b := make([]uint32, n), make([]uint32, n)
	for ii := range n {
		a[ii] = uint32(ii)
		b[ii] = uint32(3 * ii)
	}
	start := time.Now()
	must.M(in1.WriteAndSync(a, 0))
	must.M(in2.WriteAndSync(b, 0))
	transferTime := time.Since(start)

	start = time.Now()
	for range *flagRuns {
		must.M1(m.Call(*flagKernel, in1, in2, out, xrt.Scalar(uint32(n))))
		must.M(m.WaitAll())
	}
	runTime := time.Since(start) / time.Duration(max(*flagRuns, 1))

	got := must.M1(out.ToSlice())
	var mismatches int
	for ii := range n {
		if got[ii] != a[ii]+b[ii] {
			if mismatches < 10 {
				fmt.Printf("\tout[%d]=%d, expected %d\n", ii, got[ii], a[ii]+b[ii])
			}
			mismatches++
		}
	}
	inputBytes := uint64(2 * n * 4)
	bandwidth := float32(inputBytes) / math32.Max(float32(transferTime.Seconds()), 1e-9)
	fmt.Printf("\thost->device: %s in %s (%s/s)\n", humanize.IBytes(inputBytes), transferTime,
		humanize.IBytes(uint64(bandwidth)))
	fmt.Printf("\tkernel run:   %s (average of %d runs)\n", runTime, *flagRuns)
	if mismatches > 0 {
		klog.Fatalf("%d mismatches out of %s elements", mismatches, humanize.Comma(int64(n)))
	}
	fmt.Printf("\tOK: %s elements checked\n", humanize.Comma(int64(n)))
}
