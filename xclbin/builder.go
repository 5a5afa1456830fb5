package xclbin

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
)

// Builder writes xclbin images with the sections goxrt reads: BUILD_METADATA, MEM_TOPOLOGY, IP_LAYOUT,
// CONNECTIVITY, and any raw section added with AddSection.
//
// It doesn't generate bitstreams: it's used to describe the kernels of emulated devices, and in tests.
//
// Misuse (e.g. connecting an unknown kernel) panics with an error.
type Builder struct {
	uuid        uuid.UUID
	platform    string
	kernels     []Kernel
	banks       []MemoryBank
	connections []builderConnection
	raw         []rawSection
}

type builderConnection struct {
	kernel             string
	argIndex, memIndex int
}

type rawSection struct {
	kind SectionKind
	name string
	data []byte
}

// NewBuilder creates a Builder for an xclbin with a random UUID.
func NewBuilder() *Builder {
	return &Builder{uuid: uuid.New(), platform: "xilinx_sw_emu"}
}

// WithUUID sets the xclbin UUID. It returns itself, so calls can be cascaded.
func (b *Builder) WithUUID(id uuid.UUID) *Builder {
	b.uuid = id
	return b
}

// WithPlatform sets the platform VBNV string ("vendor:board:name:version"), limited to 63 bytes.
func (b *Builder) WithPlatform(vbnv string) *Builder {
	if len(vbnv) >= platformVBNVSize {
		exceptions.Panicf("xclbin.Builder.WithPlatform(%q): platform name limited to %d bytes", vbnv, platformVBNVSize-1)
	}
	b.platform = vbnv
	return b
}

// AddKernel adds the kernel signature to the build metadata, and one compute unit for it to the IP layout.
// Arguments' Index are taken as given; if an argument's TypeName is empty it is derived from DType and IsPointer.
func (b *Builder) AddKernel(kernel Kernel) *Builder {
	if kernel.Name == "" || 2*len(kernel.Name)+3 >= ipNameSize {
		exceptions.Panicf("xclbin.Builder.AddKernel(): invalid kernel name %q", kernel.Name)
	}
	if slices.ContainsFunc(b.kernels, func(k Kernel) bool { return k.Name == kernel.Name }) {
		exceptions.Panicf("xclbin.Builder.AddKernel(): kernel %q added more than once", kernel.Name)
	}
	kernel.Arguments = slices.Clone(kernel.Arguments)
	for ii := range kernel.Arguments {
		arg := &kernel.Arguments[ii]
		if arg.TypeName == "" {
			arg.TypeName = arg.DType.CName()
			if arg.IsPointer {
				arg.TypeName += "*"
			}
		}
	}
	b.kernels = append(b.kernels, kernel)
	return b
}

// AddMemory adds a memory bank to the memory topology, and returns its index (the memory group).
func (b *Builder) AddMemory(tag string, memType MemType, sizeKB uint64) int {
	if len(tag) >= memDataTagSize {
		exceptions.Panicf("xclbin.Builder.AddMemory(%q): tag limited to %d bytes", tag, memDataTagSize-1)
	}
	var base uint64
	if n := len(b.banks); n > 0 {
		base = b.banks[n-1].BaseAddress + b.banks[n-1].SizeKB*1024
	}
	b.banks = append(b.banks, MemoryBank{Type: memType, Used: true, SizeKB: sizeKB, BaseAddress: base, Tag: tag})
	return len(b.banks) - 1
}

// Connect the argument argIndex of the kernel to the memory bank memIndex.
// The kernel and the memory bank must have been previously added.
func (b *Builder) Connect(kernel string, argIndex, memIndex int) *Builder {
	if !slices.ContainsFunc(b.kernels, func(k Kernel) bool { return k.Name == kernel }) {
		exceptions.Panicf("xclbin.Builder.Connect(%q, %d, %d): kernel not added", kernel, argIndex, memIndex)
	}
	if memIndex < 0 || memIndex >= len(b.banks) {
		exceptions.Panicf("xclbin.Builder.Connect(%q, %d, %d): memory bank not added (%d banks)",
			kernel, argIndex, memIndex, len(b.banks))
	}
	b.connections = append(b.connections, builderConnection{kernel: kernel, argIndex: argIndex, memIndex: memIndex})
	return b
}

// AddSection adds a raw section. If a section of one of the kinds generated by the Builder is given, it replaces the
// generated one.
func (b *Builder) AddSection(kind SectionKind, name string, data []byte) *Builder {
	if len(name) >= sectionNameSize {
		exceptions.Panicf("xclbin.Builder.AddSection(%s, %q): name limited to %d bytes", kind, name, sectionNameSize-1)
	}
	b.raw = append(b.raw, rawSection{kind: kind, name: name, data: data})
	return b
}

func (b *Builder) hasRaw(kind SectionKind) bool {
	return slices.ContainsFunc(b.raw, func(s rawSection) bool { return s.kind == kind })
}

// Bytes returns the xclbin image.
func (b *Builder) Bytes() []byte {
	var sections []rawSection
	if !b.hasRaw(BuildMetadata) {
		sections = append(sections, rawSection{kind: BuildMetadata, name: "build_metadata", data: b.buildMetadata()})
	}
	if len(b.banks) > 0 && !b.hasRaw(MemTopology) {
		sections = append(sections, rawSection{kind: MemTopology, name: "mem_topology", data: b.memTopology()})
	}
	if len(b.kernels) > 0 && !b.hasRaw(IPLayout) {
		sections = append(sections, rawSection{kind: IPLayout, name: "ip_layout", data: b.ipLayout()})
	}
	if len(b.connections) > 0 && !b.hasRaw(Connectivity) {
		sections = append(sections, rawSection{kind: Connectivity, name: "connectivity", data: b.connectivity()})
	}
	sections = append(sections, b.raw...)

	le := binary.LittleEndian
	offset := align8(sectionHeadersOffset + len(sections)*SectionHeaderSize)
	total := offset
	for _, s := range sections {
		total = align8(total + len(s.data))
	}
	image := make([]byte, total)
	copy(image, Magic)
	le.PutUint32(image[signatureLengthOffset:], 0xFFFFFFFF) // -1: not signed.
	le.PutUint64(image[uniqueIDOffset:], uint64(b.uuid.ID()))
	le.PutUint64(image[lengthOffset:], uint64(total))
	image[versionMajorOffset] = 2
	image[versionMinorOffset] = 1
	copy(image[platformVBNVOffset:], b.platform)
	copy(image[uuidOffset:], b.uuid[:])
	le.PutUint32(image[numSectionsOffset:], uint32(len(sections)))
	for ii, s := range sections {
		header := image[sectionHeadersOffset+ii*SectionHeaderSize:]
		le.PutUint32(header[0:], uint32(s.kind))
		copy(header[4:4+sectionNameSize], s.name)
		le.PutUint64(header[24:], uint64(offset))
		le.PutUint64(header[32:], uint64(len(s.data)))
		copy(image[offset:], s.data)
		offset = align8(offset + len(s.data))
	}
	return image
}

func align8(n int) int {
	return (n + 7) &^ 7
}

func (b *Builder) buildMetadata() []byte {
	var metadata buildMetadataJSON
	region := userRegionJSON{Name: "OCL_REGION_0", Type: "clc_region"}
	for _, k := range b.kernels {
		kj := kernelJSON{Name: k.Name, Arguments: make([]argumentJSON, 0, len(k.Arguments))}
		for _, arg := range k.Arguments {
			aj := argumentJSON{
				Name:             arg.Name,
				AddressQualifier: strconv.Itoa(int(arg.AddressQualifier)),
				ID:               strconv.Itoa(arg.Index),
				Port:             arg.Port,
				Type:             arg.TypeName,
				Offset:           fmt.Sprintf("0x%x", arg.Offset),
				Size:             fmt.Sprintf("0x%x", arg.Size),
			}
			kj.Arguments = append(kj.Arguments, aj)
		}
		region.Kernels = append(region.Kernels, kj)
	}
	metadata.BuildMetadata.Xclbin.UserRegions = []userRegionJSON{region}
	data, err := json.MarshalIndent(&metadata, "", "    ")
	if err != nil {
		exceptions.Panicf("xclbin.Builder: failed to encode build metadata: %v", err)
	}
	return data
}

func (b *Builder) memTopology() []byte {
	le := binary.LittleEndian
	data := make([]byte, memTopologyArrayOffset+len(b.banks)*memDataSize)
	le.PutUint32(data, uint32(len(b.banks)))
	for ii, bank := range b.banks {
		raw := data[memTopologyArrayOffset+ii*memDataSize:]
		raw[0] = byte(bank.Type)
		if bank.Used {
			raw[1] = 1
		}
		le.PutUint64(raw[8:], bank.SizeKB)
		le.PutUint64(raw[16:], bank.BaseAddress)
		copy(raw[24:24+memDataTagSize], bank.Tag)
	}
	return data
}

func (b *Builder) ipLayout() []byte {
	le := binary.LittleEndian
	data := make([]byte, ipLayoutArrayOffset+len(b.kernels)*ipDataSize)
	le.PutUint32(data, uint32(len(b.kernels)))
	for ii, k := range b.kernels {
		raw := data[ipLayoutArrayOffset+ii*ipDataSize:]
		le.PutUint32(raw[0:], uint32(IPKernel))
		le.PutUint64(raw[8:], uint64(ii+1)<<16)
		copy(raw[16:16+ipNameSize], k.Name+":"+k.Name+"_1")
	}
	return data
}

func (b *Builder) connectivity() []byte {
	le := binary.LittleEndian
	data := make([]byte, connectivityArrayOffset+len(b.connections)*connectionSize)
	le.PutUint32(data, uint32(len(b.connections)))
	for ii, conn := range b.connections {
		// IP layout has one compute unit per kernel, in the order they were added.
		ipIndex := slices.IndexFunc(b.kernels, func(k Kernel) bool { return k.Name == conn.kernel })
		raw := data[connectivityArrayOffset+ii*connectionSize:]
		le.PutUint32(raw[0:], uint32(conn.argIndex))
		le.PutUint32(raw[4:], uint32(ipIndex))
		le.PutUint32(raw[8:], uint32(conn.memIndex))
	}
	return data
}
