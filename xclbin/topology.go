package xclbin

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gomlx/goxrt/xrterrors"
)

// MemType is the type of memory of a memory bank (MEM_TYPE in xclbin.h).
type MemType uint8

const (
	MemDDR3 MemType = iota
	MemDDR4
	MemDRAM
	MemStreaming
	MemPreallocatedGlobal
	MemARE
	MemHBM
	MemBRAM
	MemURAM
	MemStreamingConnection
	MemHost
	MemPSKernel
)

var memTypeNames = []string{"DDR3", "DDR4", "DRAM", "STREAMING", "PREALLOCATED_GLOB", "ARE", "HBM", "BRAM",
	"URAM", "STREAMING_CONNECTION", "HOST", "PS_KERNEL"}

func (t MemType) String() string {
	if int(t) < len(memTypeNames) {
		return memTypeNames[t]
	}
	return fmt.Sprintf("MemType(%d)", t)
}

// MemoryBank is one entry of the MEM_TOPOLOGY section.
// Its index in the section is the "memory group" used when allocating buffers.
type MemoryBank struct {
	Type MemType
	Used bool

	// SizeKB is the size of the bank in kilobytes.
	SizeKB      uint64
	BaseAddress uint64
	Tag         string
}

// IPType is the type of an entry of the IP_LAYOUT section.
type IPType uint32

const (
	IPMicroBlaze IPType = 0
	IPKernel     IPType = 1
)

// IP is one entry of the IP_LAYOUT section: for IPKernel entries, a compute unit named "<kernel>:<instance>".
type IP struct {
	Type        IPType
	Properties  uint32
	BaseAddress uint64
	Name        string
}

// KernelName returns the kernel part of a compute unit name.
func (ip IP) KernelName() string {
	name, _, _ := strings.Cut(ip.Name, ":")
	return name
}

// Connection is one entry of the CONNECTIVITY section: it binds the argument of a compute unit to a memory bank.
type Connection struct {
	ArgIndex      int
	IPLayoutIndex int
	MemDataIndex  int
}

const (
	memDataSize    = 40
	memDataTagSize = 16
	ipDataSize     = 80
	ipNameSize     = 64
	connectionSize = 12

	// The arrays of mem_topology and ip_layout are 8-bytes aligned after the int32 count.
	memTopologyArrayOffset  = 8
	ipLayoutArrayOffset     = 8
	connectivityArrayOffset = 4
)

// sectionArray returns the raw entries of a section holding an int32 count followed by an array.
// The byte ranges reported on error are relative to the image.
func (x *Xclbin) sectionArray(kind SectionKind, arrayOffset, entrySize int) (entries [][]byte, found bool, err error) {
	section, found := x.FindSection(kind)
	if !found {
		return nil, false, nil
	}
	data := x.SectionData(kind)
	base := int(section.Offset)
	if len(data) < 4 {
		return nil, true, xrterrors.ByteReading(base, base+4)
	}
	count := int(int32(binary.LittleEndian.Uint32(data)))
	if count < 0 {
		return nil, true, xrterrors.ByteReading(base, base+4)
	}
	if count == 0 {
		return nil, true, nil
	}
	end := arrayOffset + count*entrySize
	if count > len(data)/entrySize || end > len(data) {
		return nil, true, xrterrors.ByteReading(base+arrayOffset, base+end)
	}
	entries = make([][]byte, count)
	for ii := range entries {
		start := arrayOffset + ii*entrySize
		entries[ii] = data[start : start+entrySize]
	}
	return entries, true, nil
}

// MemoryBanks returns the contents of the MEM_TOPOLOGY section, or nil if there is none.
func (x *Xclbin) MemoryBanks() ([]MemoryBank, error) {
	entries, _, err := x.sectionArray(MemTopology, memTopologyArrayOffset, memDataSize)
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	banks := make([]MemoryBank, 0, len(entries))
	for _, raw := range entries {
		banks = append(banks, MemoryBank{
			Type:        MemType(raw[0]),
			Used:        raw[1] != 0,
			SizeKB:      le.Uint64(raw[8:]),
			BaseAddress: le.Uint64(raw[16:]),
			Tag:         cString(raw[24 : 24+memDataTagSize]),
		})
	}
	return banks, nil
}

// IPLayout returns the contents of the IP_LAYOUT section, or nil if there is none.
func (x *Xclbin) IPLayout() ([]IP, error) {
	entries, _, err := x.sectionArray(IPLayout, ipLayoutArrayOffset, ipDataSize)
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	ips := make([]IP, 0, len(entries))
	for _, raw := range entries {
		ips = append(ips, IP{
			Type:        IPType(le.Uint32(raw[0:])),
			Properties:  le.Uint32(raw[4:]),
			BaseAddress: le.Uint64(raw[8:]),
			Name:        cString(raw[16 : 16+ipNameSize]),
		})
	}
	return ips, nil
}

// Connectivity returns the contents of the CONNECTIVITY section, or nil if there is none.
func (x *Xclbin) Connectivity() ([]Connection, error) {
	entries, _, err := x.sectionArray(Connectivity, connectivityArrayOffset, connectionSize)
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	connections := make([]Connection, 0, len(entries))
	for _, raw := range entries {
		connections = append(connections, Connection{
			ArgIndex:      int(int32(le.Uint32(raw[0:]))),
			IPLayoutIndex: int(int32(le.Uint32(raw[4:]))),
			MemDataIndex:  int(int32(le.Uint32(raw[8:]))),
		})
	}
	return connections, nil
}

// ArgumentMemoryGroup returns the index of the memory bank (the memory group) the argument argIndex of the
// first compute unit of the kernel is connected to.
//
// It returns found=false if the image doesn't have connectivity information for the argument: in that case any
// memory group is accepted.
func (x *Xclbin) ArgumentMemoryGroup(kernel string, argIndex int) (group int, found bool, err error) {
	ips, err := x.IPLayout()
	if err != nil {
		return 0, false, err
	}
	connections, err := x.Connectivity()
	if err != nil {
		return 0, false, err
	}
	for ipIdx, ip := range ips {
		if ip.Type != IPKernel || ip.KernelName() != kernel {
			continue
		}
		for _, conn := range connections {
			if conn.IPLayoutIndex == ipIdx && conn.ArgIndex == argIndex {
				return conn.MemDataIndex, true, nil
			}
		}
		// Only the first compute unit is considered.
		break
	}
	return 0, false, nil
}
