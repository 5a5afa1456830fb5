//go:build !linux || !cgo

package xrt

import "github.com/pkg/errors"

// loadNativeDriver is only supported in linux with cgo, the platforms where XRT is available.
func loadNativeDriver() (Driver, error) {
	if libPath, found := searchXRTLibrary(); found {
		return nil, errors.Errorf("XRT library found in %q, but goxrt was built without cgo support for it", libPath)
	}
	return nil, errors.Errorf("native XRT driver only supported in linux with cgo enabled")
}
