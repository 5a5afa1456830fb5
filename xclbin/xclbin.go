// Package xclbin reads and writes xclbin ("axlf") files: the container of the bitstream loaded into a Xilinx
// accelerator, along with the metadata sections that describe its kernels and memories.
//
// The layout is: an 8-bytes magic string ("xclbin2\x00"), the inline axlf header, an array of section headers,
// and then the sections contents. All integers are little-endian.
//
// The kernels' argument signatures are read from the BUILD_METADATA section, a JSON document generated by
// the Vitis compiler (v++).
package xclbin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/gomlx/goxrt/xrterrors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Magic is the string every xclbin file starts with.
const Magic = "xclbin2\x00"

// Offsets and sizes of the fixed parts of the axlf structure.
const (
	magicSize = 8

	signatureLengthOffset = 8
	uniqueIDOffset        = 296
	headerOffset          = 304

	lengthOffset         = headerOffset
	timeStampOffset      = headerOffset + 8
	featureRomTSOffset   = headerOffset + 16
	versionPatchOffset   = headerOffset + 24
	versionMajorOffset   = headerOffset + 26
	versionMinorOffset   = headerOffset + 27
	modeOffset           = headerOffset + 28
	actionMaskOffset     = headerOffset + 30
	interfaceUUIDOffset  = headerOffset + 32
	platformVBNVOffset   = headerOffset + 48
	uuidOffset           = headerOffset + 112
	debugBinOffset       = headerOffset + 128
	numSectionsOffset    = headerOffset + 144
	platformVBNVSize     = 64
	debugBinSize         = 16
	sectionHeadersOffset = headerOffset + 152

	// SectionHeaderSize is the size in bytes of each section header.
	SectionHeaderSize = 40
	sectionNameSize   = 16
)

// SectionKind enumerates the kinds of sections (axlf_section_kind).
type SectionKind uint32

const (
	Bitstream            SectionKind = 0
	ClearingBitstream    SectionKind = 1
	EmbeddedMetadata     SectionKind = 2
	Firmware             SectionKind = 3
	DebugData            SectionKind = 4
	SchedFirmware        SectionKind = 5
	MemTopology          SectionKind = 6
	Connectivity         SectionKind = 7
	IPLayout             SectionKind = 8
	DebugIPLayout        SectionKind = 9
	DesignCheckPoint     SectionKind = 10
	ClockFreqTopology    SectionKind = 11
	MCS                  SectionKind = 12
	BMC                  SectionKind = 13
	BuildMetadata        SectionKind = 14
	KeyValueMetadata     SectionKind = 15
	UserMetadata         SectionKind = 16
	DNACertificate       SectionKind = 17
	PDI                  SectionKind = 18
	BitstreamPartialPDI  SectionKind = 19
	PartitionMetadata    SectionKind = 20
	EmulationData        SectionKind = 21
	SystemMetadata       SectionKind = 22
	SoftKernel           SectionKind = 23
	AskFlash             SectionKind = 24
	AIEMetadata          SectionKind = 25
	AskGroupTopology     SectionKind = 26
	AskGroupConnectivity SectionKind = 27
	SmartNIC             SectionKind = 28
	AIEResources         SectionKind = 29
	Overlay              SectionKind = 30
	VenderMetadata       SectionKind = 31
	AIEPartition         SectionKind = 32
	IPMetadata           SectionKind = 33
	AIEResourcesBin      SectionKind = 34
	AIETraceMetadata     SectionKind = 35
	numKnownSectionKinds             = 36
)

var sectionKindNames = [numKnownSectionKinds]string{
	"BITSTREAM", "CLEARING_BITSTREAM", "EMBEDDED_METADATA", "FIRMWARE", "DEBUG_DATA", "SCHED_FIRMWARE",
	"MEM_TOPOLOGY", "CONNECTIVITY", "IP_LAYOUT", "DEBUG_IP_LAYOUT", "DESIGN_CHECK_POINT",
	"CLOCK_FREQ_TOPOLOGY", "MCS", "BMC", "BUILD_METADATA", "KEYVALUE_METADATA", "USER_METADATA",
	"DNA_CERTIFICATE", "PDI", "BITSTREAM_PARTIAL_PDI", "PARTITION_METADATA", "EMULATION_DATA",
	"SYSTEM_METADATA", "SOFT_KERNEL", "ASK_FLASH", "AIE_METADATA", "ASK_GROUP_TOPOLOGY",
	"ASK_GROUP_CONNECTIVITY", "SMARTNIC", "AIE_RESOURCES", "OVERLAY", "VENDER_METADATA", "AIE_PARTITION",
	"IP_METADATA", "AIE_RESOURCES_BIN", "AIE_TRACE_METADATA",
}

// String implements fmt.Stringer, using the names of xclbin.h.
func (k SectionKind) String() string {
	if k < numKnownSectionKinds {
		return sectionKindNames[k]
	}
	return fmt.Sprintf("SectionKind(%d)", uint32(k))
}

// Header holds the fields of the inline axlf header.
type Header struct {
	SignatureLength     int32
	UniqueID            uint64
	Length              uint64
	TimeStamp           uint64
	FeatureRomTimeStamp uint64
	VersionMajor        uint8
	VersionMinor        uint8
	VersionPatch        uint16
	Mode                uint16
	ActionMask          uint16
	InterfaceUUID       uuid.UUID
	PlatformVBNV        string
	UUID                uuid.UUID
	DebugBin            string
	NumSections         uint32
}

// Version returns the version formatted as "major.minor.patch".
func (h *Header) Version() string {
	return fmt.Sprintf("%d.%d.%d", h.VersionMajor, h.VersionMinor, h.VersionPatch)
}

// SectionHeader describes one section of the xclbin.
type SectionHeader struct {
	Kind   SectionKind
	Name   string
	Offset uint64
	Size   uint64
}

// Xclbin is a parsed xclbin image.
//
// The sections contents point to the original image, which must not be changed.
type Xclbin struct {
	Header   Header
	Sections []SectionHeader

	image []byte

	// Cached parsed build metadata.
	kernels    []Kernel
	kernelsErr error
	kernelsSet bool
}

// ReadFile reads and parses the xclbin file at path.
//
// Errors reading the file are reported as xrterrors.XclbinFileAllocError, errors parsing it with the
// corresponding xrterrors.Kind (see Parse).
func ReadFile(path string) (*Xclbin, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessagef(xrterrors.Errorf(xrterrors.XclbinFileAllocError, "%v", err),
			"reading xclbin file %q", path)
	}
	return Parse(image)
}

// Parse the xclbin image.
//
// It validates the magic string (xrterrors.XclbinInvalidMagicString) and that the header and all sections are
// within the image (xrterrors.XclbinByteReadingError). The metadata sections are only parsed when requested.
func Parse(image []byte) (*Xclbin, error) {
	if len(image) < magicSize {
		return nil, xrterrors.ByteReading(0, magicSize)
	}
	if magic := string(image[:magicSize]); magic != Magic {
		return nil, xrterrors.InvalidMagicString(strings.TrimRight(magic, "\x00"))
	}
	if len(image) < sectionHeadersOffset {
		return nil, xrterrors.ByteReading(magicSize, sectionHeadersOffset)
	}

	x := &Xclbin{image: image}
	h := &x.Header
	le := binary.LittleEndian
	h.SignatureLength = int32(le.Uint32(image[signatureLengthOffset:]))
	h.UniqueID = le.Uint64(image[uniqueIDOffset:])
	h.Length = le.Uint64(image[lengthOffset:])
	h.TimeStamp = le.Uint64(image[timeStampOffset:])
	h.FeatureRomTimeStamp = le.Uint64(image[featureRomTSOffset:])
	h.VersionPatch = le.Uint16(image[versionPatchOffset:])
	h.VersionMajor = image[versionMajorOffset]
	h.VersionMinor = image[versionMinorOffset]
	h.Mode = le.Uint16(image[modeOffset:])
	h.ActionMask = le.Uint16(image[actionMaskOffset:])
	copy(h.InterfaceUUID[:], image[interfaceUUIDOffset:interfaceUUIDOffset+16])
	h.PlatformVBNV = cString(image[platformVBNVOffset : platformVBNVOffset+platformVBNVSize])
	copy(h.UUID[:], image[uuidOffset:uuidOffset+16])
	h.DebugBin = cString(image[debugBinOffset : debugBinOffset+debugBinSize])
	h.NumSections = le.Uint32(image[numSectionsOffset:])

	x.Sections = make([]SectionHeader, 0, min(int(h.NumSections), (len(image)-sectionHeadersOffset)/SectionHeaderSize))
	for ii := range int(h.NumSections) {
		start := sectionHeadersOffset + ii*SectionHeaderSize
		end := start + SectionHeaderSize
		if end > len(image) {
			return nil, xrterrors.ByteReading(start, end)
		}
		raw := image[start:end]
		section := SectionHeader{
			Kind:   SectionKind(le.Uint32(raw[0:])),
			Name:   cString(raw[4 : 4+sectionNameSize]),
			Offset: le.Uint64(raw[24:]),
			Size:   le.Uint64(raw[32:]),
		}
		if section.Offset > uint64(len(image)) || section.Size > uint64(len(image))-section.Offset {
			return nil, xrterrors.ByteReading(int(section.Offset), int(section.Offset+section.Size))
		}
		x.Sections = append(x.Sections, section)
	}
	return x, nil
}

// cString converts a NUL-terminated fixed size C char array to a Go string.
func cString(b []byte) string {
	if idx := bytes.IndexByte(b, 0); idx >= 0 {
		b = b[:idx]
	}
	return string(b)
}

// UUID of the xclbin, used by the driver to identify the loaded image.
func (x *Xclbin) UUID() uuid.UUID {
	return x.Header.UUID
}

// Image returns the raw image the Xclbin was parsed from. Don't change it.
func (x *Xclbin) Image() []byte {
	return x.image
}

// FindSection returns the header of the first section of the given kind.
func (x *Xclbin) FindSection(kind SectionKind) (SectionHeader, bool) {
	for _, s := range x.Sections {
		if s.Kind == kind {
			return s, true
		}
	}
	return SectionHeader{}, false
}

// SectionData returns the contents of the first section of the given kind, or nil if there is none.
// The returned slice points to the image, don't change it.
func (x *Xclbin) SectionData(kind SectionKind) []byte {
	s, found := x.FindSection(kind)
	if !found {
		return nil
	}
	return x.image[s.Offset : s.Offset+s.Size]
}

// String implements fmt.Stringer.
func (x *Xclbin) String() string {
	return fmt.Sprintf("xclbin v%s [uuid=%s, platform=%q, %d sections]",
		x.Header.Version(), x.Header.UUID, x.Header.PlatformVBNV, len(x.Sections))
}
