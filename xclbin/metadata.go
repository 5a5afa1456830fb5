package xclbin

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/goxrt/dtypes"
	"github.com/gomlx/goxrt/xrterrors"
)

// AddressQualifier of a kernel argument, as reported by the build metadata.
type AddressQualifier int

const (
	// AddressScalar is an argument passed by value.
	AddressScalar AddressQualifier = 0
	// AddressGlobal is a pointer to global memory: a buffer.
	AddressGlobal   AddressQualifier = 1
	AddressConstant AddressQualifier = 2
	AddressLocal    AddressQualifier = 3
	// AddressStream is an AXI stream argument, not bound by the host.
	AddressStream AddressQualifier = 4
)

// String implements fmt.Stringer.
func (q AddressQualifier) String() string {
	switch q {
	case AddressScalar:
		return "scalar"
	case AddressGlobal:
		return "global"
	case AddressConstant:
		return "constant"
	case AddressLocal:
		return "local"
	case AddressStream:
		return "stream"
	}
	return "AddressQualifier(" + strconv.Itoa(int(q)) + ")"
}

// IsBuffer returns whether arguments with this qualifier are bound to a buffer.
func (q AddressQualifier) IsBuffer() bool {
	return q == AddressGlobal || q == AddressConstant
}

// Argument describes one argument of a kernel, as described in the build metadata.
type Argument struct {
	Name             string
	Index            int
	AddressQualifier AddressQualifier
	Port             string

	// TypeName is the C type name as given in the metadata, e.g. "unsigned int*".
	TypeName string

	// DType of the scalar or of the elements pointed to, or dtypes.Invalid if TypeName is not a supported type.
	DType     dtypes.DType
	IsPointer bool

	// Offset and Size of the argument in the kernel's register map.
	Offset, Size uint64
}

// Kernel describes a kernel's signature, as described in the build metadata.
type Kernel struct {
	Name   string
	Region string

	// Arguments sorted by their index.
	Arguments []Argument
}

// JSON schema of the BUILD_METADATA section: only the parts used are declared.
type buildMetadataJSON struct {
	BuildMetadata struct {
		Xclbin struct {
			UserRegions []userRegionJSON `json:"user_regions"`
		} `json:"xclbin"`
	} `json:"build_metadata"`
}

type userRegionJSON struct {
	Name    string       `json:"name"`
	Type    string       `json:"type,omitempty"`
	Kernels []kernelJSON `json:"kernels"`
}

type kernelJSON struct {
	Name      string         `json:"name"`
	Arguments []argumentJSON `json:"arguments"`
}

type argumentJSON struct {
	Name             string `json:"name"`
	AddressQualifier string `json:"address_qualifier"`
	ID               string `json:"id"`
	Port             string `json:"port,omitempty"`
	Size             string `json:"size,omitempty"`
	Offset           string `json:"offset,omitempty"`
	Type             string `json:"type"`
}

// Kernels returns the signatures of all kernels described in the BUILD_METADATA section.
//
// It returns xrterrors.XclbinNoBuildMetadataSection if there is no such section, or xrterrors.XclbinJSONParseError
// if it can't be parsed. The result is cached and shared: don't change it.
func (x *Xclbin) Kernels() ([]Kernel, error) {
	if !x.kernelsSet {
		x.kernels, x.kernelsErr = x.parseBuildMetadata()
		x.kernelsSet = true
	}
	return x.kernels, x.kernelsErr
}

// Kernel returns the signature of the kernel with the given name.
//
// It returns xrterrors.NoSuchKernelError if the metadata doesn't describe it, or the errors of Kernels.
func (x *Xclbin) Kernel(name string) (Kernel, error) {
	kernels, err := x.Kernels()
	if err != nil {
		return Kernel{}, err
	}
	for _, k := range kernels {
		if k.Name == name {
			return k, nil
		}
	}
	return Kernel{}, xrterrors.Errorf(xrterrors.NoSuchKernelError, "kernel %q not found in xclbin %s", name, x.UUID())
}

// KernelNames returns the names of the kernels described in the build metadata, in the order they appear.
func (x *Xclbin) KernelNames() ([]string, error) {
	kernels, err := x.Kernels()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(kernels))
	for _, k := range kernels {
		names = append(names, k.Name)
	}
	return names, nil
}

func (x *Xclbin) parseBuildMetadata() ([]Kernel, error) {
	if _, found := x.FindSection(BuildMetadata); !found {
		return nil, xrterrors.New(xrterrors.XclbinNoBuildMetadataSection)
	}
	data := x.SectionData(BuildMetadata)
	// Sections are often padded with NULs.
	data = []byte(strings.TrimRight(string(data), "\x00"))

	var metadata buildMetadataJSON
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, xrterrors.JSONParse(err.Error())
	}
	var kernels []Kernel
	for _, region := range metadata.BuildMetadata.Xclbin.UserRegions {
		for _, kj := range region.Kernels {
			k := Kernel{Name: kj.Name, Region: region.Name}
			for _, aj := range kj.Arguments {
				arg, err := parseArgument(kj.Name, aj)
				if err != nil {
					return nil, err
				}
				k.Arguments = append(k.Arguments, arg)
			}
			slices.SortStableFunc(k.Arguments, func(a, b Argument) int { return a.Index - b.Index })
			kernels = append(kernels, k)
		}
	}
	return kernels, nil
}

func parseArgument(kernelName string, aj argumentJSON) (arg Argument, err error) {
	arg = Argument{Name: aj.Name, Port: aj.Port, TypeName: aj.Type}
	index, err := strconv.Atoi(strings.TrimSpace(aj.ID))
	if err != nil {
		return arg, xrterrors.JSONParse("kernel " + kernelName + ", argument " + aj.Name + ": invalid id " + strconv.Quote(aj.ID))
	}
	arg.Index = index
	qualifier, err := strconv.Atoi(strings.TrimSpace(aj.AddressQualifier))
	if err != nil {
		return arg, xrterrors.JSONParse("kernel " + kernelName + ", argument " + aj.Name + ": invalid address_qualifier " + strconv.Quote(aj.AddressQualifier))
	}
	arg.AddressQualifier = AddressQualifier(qualifier)
	if aj.Offset != "" {
		if arg.Offset, err = strconv.ParseUint(aj.Offset, 0, 64); err != nil {
			return arg, xrterrors.JSONParse("kernel " + kernelName + ", argument " + aj.Name + ": invalid offset " + strconv.Quote(aj.Offset))
		}
	}
	if aj.Size != "" {
		if arg.Size, err = strconv.ParseUint(aj.Size, 0, 64); err != nil {
			return arg, xrterrors.JSONParse("kernel " + kernelName + ", argument " + aj.Name + ": invalid size " + strconv.Quote(aj.Size))
		}
	}
	arg.DType, arg.IsPointer = ParseTypeName(aj.Type)
	return arg, nil
}

// ParseTypeName parses a C type name as found in the build metadata ("unsigned int*", "const float *", "int", ...).
// It returns dtypes.Invalid if the base type is not one of the supported dtypes.
func ParseTypeName(typeName string) (dtype dtypes.DType, isPointer bool) {
	name := strings.TrimSpace(typeName)
	if strings.HasSuffix(name, "*") {
		isPointer = true
		name = strings.TrimSpace(strings.TrimSuffix(name, "*"))
	}
	return dtypes.FromName(name), isPointer
}
