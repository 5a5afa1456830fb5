// xclbin_info prints the contents of xclbin files: header, sections, memory topology, compute units and the
// kernels' signatures, as seen by goxrt.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/goxrt/xclbin"
	"github.com/gomlx/goxrt/xrt"
	"github.com/gomlx/goxrt/xrt/emu"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagSections = flag.Bool("sections", true, "List the sections of the xclbin.")
	flagBuiltin  = flag.String("write_builtin", "",
		"Write the xclbin with the kernels implemented by the software emulation (\"sw_emu\" driver) to the given path, and exit.")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `xclbin_info prints the contents of xclbin files.

$ xclbin_info <file.xclbin> [<file.xclbin> ...]

Usage:
`)
		flag.PrintDefaults()
	}
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	if *flagBuiltin != "" {
		must.M(os.WriteFile(*flagBuiltin, emu.BuiltinXclbin(), 0o644))
		fmt.Printf("Wrote %s\n", *flagBuiltin)
		return
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "No xclbin file given.")
		fmt.Fprintln(os.Stderr)
		flag.Usage()
		os.Exit(1)
	}
	for _, path := range flag.Args() {
		x, err := xclbin.ReadFile(path)
		if err != nil {
			klog.Fatalf("Failed to read %q: %+v", path, err)
		}
		printXclbin(path, x)
	}
}

func printXclbin(path string, x *xclbin.Xclbin) {
	h := x.Header
	fmt.Printf("%s: %s\n", path, humanize.IBytes(uint64(len(x.Image()))))
	fmt.Printf("\tUUID:      %s\n", x.UUID())
	fmt.Printf("\tPlatform:  %s\n", h.PlatformVBNV)
	fmt.Printf("\tVersion:   %s\n", h.Version())
	fmt.Printf("\tSections:  %d\n", len(x.Sections))
	if *flagSections {
		for _, s := range x.Sections {
			fmt.Printf("\t\t%-22s %-24q %10s at offset 0x%x\n", s.Kind, s.Name, humanize.IBytes(s.Size), s.Offset)
		}
	}

	banks := must.M1(x.MemoryBanks())
	if len(banks) > 0 {
		fmt.Printf("\tMemory banks:\n")
		for group, bank := range banks {
			used := ""
			if !bank.Used {
				used = " (unused)"
			}
			fmt.Printf("\t\t#%d %-10s %-6s %10s at 0x%x%s\n", group, bank.Tag, bank.Type,
				humanize.IBytes(bank.SizeKB*1024), bank.BaseAddress, used)
		}
	}
	ips := must.M1(x.IPLayout())
	if len(ips) > 0 {
		fmt.Printf("\tCompute units:\n")
		for _, ip := range ips {
			fmt.Printf("\t\t%s at 0x%x\n", ip.Name, ip.BaseAddress)
		}
	}

	kernels, err := x.Kernels()
	if err != nil {
		fmt.Printf("\tKernels: %v\n", err)
		return
	}
	fmt.Printf("\tKernels:\n")
	for _, k := range kernels {
		mapping, err := xrt.MappingFromMetadata(k)
		if err != nil {
			fmt.Printf("\t\t%s: %v\n", k.Name, err)
			continue
		}
		fmt.Printf("\t\t%s%s\n", k.Name, mapping)
		for _, arg := range k.Arguments {
			group, found := "any", false
			if arg.AddressQualifier.IsBuffer() {
				var idx int
				idx, found = must.M2(x.ArgumentMemoryGroup(k.Name, arg.Index))
				if found {
					group = fmt.Sprintf("%d", idx)
				}
			} else {
				group = "-"
			}
			fmt.Printf("\t\t\t#%d %-12s %-8s %-20q memory group %s\n", arg.Index, arg.Name, arg.AddressQualifier,
				arg.TypeName, group)
		}
	}
}
