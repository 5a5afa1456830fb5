//go:build linux && cgo

/*
 *	Copyright 2024 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package xrt

// This file implements the native driver by loading XRT's libxrt_coreutil with dlopen.
//
// Modified version of https://github.com/coreos/pkg/blob/main/dlopen/dlopen.go, licenced with Apache 2.0 license
// https://github.com/coreos/pkg/blob/main/LICENSE

// #cgo LDFLAGS: -ldl
/*
#include <stdlib.h>
#include <dlfcn.h>
#include "xrt_api.h"
*/
import "C"
import (
	"time"
	"unsafe"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// nativeDriver calls the XRT C API through the function table loaded from the library.
type nativeDriver struct {
	api       *C.xrt_api
	dllHandle *linuxDLLHandle
}

var _ Driver = (*nativeDriver)(nil)

// loadNativeDriver searches the XRT library, loads it and resolves all the symbols used.
func loadNativeDriver() (*nativeDriver, error) {
	libPath, found := searchXRTLibrary()
	if !found {
		return nil, errors.Errorf("XRT library (%q) not found in paths %v: set %s to the directory with the library, "+
			"or source XRT's setup.sh to set %s", XRTLibraryNames, librarySearchPaths(), XRTLibraryPathsEnv, XilinxXRTEnv)
	}
	h, err := loadLibrary(libPath)
	if err != nil {
		return nil, err
	}
	api := (*C.xrt_api)(C.calloc(1, C.size_t(unsafe.Sizeof(C.xrt_api{}))))
	symbols := []struct {
		name string
		ptr  *unsafe.Pointer
	}{
		{"xrtDeviceOpen", (*unsafe.Pointer)(unsafe.Pointer(&api.DeviceOpen))},
		{"xrtDeviceClose", (*unsafe.Pointer)(unsafe.Pointer(&api.DeviceClose))},
		{"xrtDeviceLoadXclbin", (*unsafe.Pointer)(unsafe.Pointer(&api.DeviceLoadXclbin))},
		{"xrtDeviceGetXclbinUUID", (*unsafe.Pointer)(unsafe.Pointer(&api.DeviceGetXclbinUUID))},
		{"xrtBOAlloc", (*unsafe.Pointer)(unsafe.Pointer(&api.BOAlloc))},
		{"xrtBOFree", (*unsafe.Pointer)(unsafe.Pointer(&api.BOFree))},
		{"xrtBOSync", (*unsafe.Pointer)(unsafe.Pointer(&api.BOSync))},
		{"xrtBOWrite", (*unsafe.Pointer)(unsafe.Pointer(&api.BOWrite))},
		{"xrtBORead", (*unsafe.Pointer)(unsafe.Pointer(&api.BORead))},
		{"xrtPLKernelOpen", (*unsafe.Pointer)(unsafe.Pointer(&api.PLKernelOpen))},
		{"xrtKernelClose", (*unsafe.Pointer)(unsafe.Pointer(&api.KernelClose))},
		{"xrtKernelArgGroupId", (*unsafe.Pointer)(unsafe.Pointer(&api.KernelArgGroupId))},
		{"xrtRunOpen", (*unsafe.Pointer)(unsafe.Pointer(&api.RunOpen))},
		{"xrtRunClose", (*unsafe.Pointer)(unsafe.Pointer(&api.RunClose))},
		{"xrtRunSetArg", (*unsafe.Pointer)(unsafe.Pointer(&api.RunSetArg))},
		{"xrtRunStart", (*unsafe.Pointer)(unsafe.Pointer(&api.RunStart))},
		{"xrtRunWait", (*unsafe.Pointer)(unsafe.Pointer(&api.RunWait))},
		{"xrtRunWaitFor", (*unsafe.Pointer)(unsafe.Pointer(&api.RunWaitFor))},
	}
	for _, symbol := range symbols {
		ptr, err := h.GetSymbolPointer(symbol.name)
		if err != nil {
			C.free(unsafe.Pointer(api))
			if err2 := h.Close(); err2 != nil {
				klog.Warningf("Failed to close dynamic library %q: %v", libPath, err2)
			}
			return nil, errors.WithMessagef(err, "library %q is not a compatible XRT library", libPath)
		}
		*symbol.ptr = ptr
	}
	return &nativeDriver{api: api, dllHandle: h}, nil
}

// loadLibrary dlopen's the library at libPath.
func loadLibrary(libPath string) (*linuxDLLHandle, error) {
	nameC := C.CString(libPath)
	defer C.free(unsafe.Pointer(nameC))
	klog.V(2).Infof("trying to load library %s", libPath)
	handle := C.dlopen(nameC, C.RTLD_LAZY|C.RTLD_LOCAL)
	if handle == nil {
		msg := C.GoString(C.dlerror())
		err := errors.Errorf("failed to dynamically load XRT library from %q: %q -- check with `ldd %s` in case there are missing required libraries", libPath, msg, libPath)
		return nil, err
	}
	klog.V(1).Infof("loaded library %s", libPath)
	return &linuxDLLHandle{Handle: handle, Name: libPath}, nil
}

// linuxDLLHandle represents an open handle to a library (.so)
type linuxDLLHandle struct {
	Handle unsafe.Pointer
	Name   string
}

// GetSymbolPointer takes a symbol name and returns a pointer to the symbol.
func (l *linuxDLLHandle) GetSymbolPointer(symbol string) (unsafe.Pointer, error) {
	sym := C.CString(symbol)
	defer C.free(unsafe.Pointer(sym))

	C.dlerror()
	p := C.dlsym(l.Handle, sym)
	e := C.dlerror()
	if e != nil {
		return nil, errors.Errorf("error resolving symbol %q: %v", symbol, errors.New(C.GoString(e)))
	}
	return p, nil
}

// Close closes a LibHandle.
func (l *linuxDLLHandle) Close() error {
	C.dlerror()
	C.dlclose(l.Handle)
	e := C.dlerror()
	if e != nil {
		return errors.Errorf("error closing %v: %v", l.Name, errors.New(C.GoString(e)))
	}
	return nil
}

// Name implements Driver.
func (d *nativeDriver) Name() string { return NativeDriverName }

func (d *nativeDriver) OpenDevice(index int) DeviceHandle {
	return DeviceHandle(C.call_xrtDeviceOpen(d.api, C.uint(index)))
}

func (d *nativeDriver) CloseDevice(device DeviceHandle) int {
	return int(C.call_xrtDeviceClose(d.api, C.uintptr_t(device)))
}

func (d *nativeDriver) LoadXclbin(device DeviceHandle, image []byte) int {
	if len(image) == 0 {
		return -1
	}
	// XRT keeps no reference to the image after loading it.
	cImage := C.CBytes(image)
	defer C.free(cImage)
	return int(C.call_xrtDeviceLoadXclbin(d.api, C.uintptr_t(device), cImage))
}

func (d *nativeDriver) XclbinUUID(device DeviceHandle) (id uuid.UUID, status int) {
	var out [16]C.uchar
	status = int(C.call_xrtDeviceGetXclbinUUID(d.api, C.uintptr_t(device), &out[0]))
	for ii := range out {
		id[ii] = byte(out[ii])
	}
	return
}

func (d *nativeDriver) AllocBuffer(device DeviceHandle, sizeBytes int, flags BufferFlags, memoryGroup int) BufferHandle {
	return BufferHandle(C.call_xrtBOAlloc(d.api, C.uintptr_t(device), C.size_t(sizeBytes), C.uint64_t(flags), C.uint32_t(memoryGroup)))
}

func (d *nativeDriver) FreeBuffer(buffer BufferHandle) int {
	return int(C.call_xrtBOFree(d.api, C.uintptr_t(buffer)))
}

func (d *nativeDriver) SyncBuffer(buffer BufferHandle, direction SyncDirection, sizeBytes, offsetBytes int) int {
	return int(C.call_xrtBOSync(d.api, C.uintptr_t(buffer), C.int(direction), C.size_t(sizeBytes), C.size_t(offsetBytes)))
}

func (d *nativeDriver) WriteBuffer(buffer BufferHandle, src []byte, seekBytes int) int {
	var ptr unsafe.Pointer
	if len(src) > 0 {
		ptr = unsafe.Pointer(&src[0])
	}
	return int(C.call_xrtBOWrite(d.api, C.uintptr_t(buffer), ptr, C.size_t(len(src)), C.size_t(seekBytes)))
}

func (d *nativeDriver) ReadBuffer(buffer BufferHandle, dst []byte, skipBytes int) int {
	var ptr unsafe.Pointer
	if len(dst) > 0 {
		ptr = unsafe.Pointer(&dst[0])
	}
	return int(C.call_xrtBORead(d.api, C.uintptr_t(buffer), ptr, C.size_t(len(dst)), C.size_t(skipBytes)))
}

func (d *nativeDriver) OpenKernel(device DeviceHandle, xclbinUUID uuid.UUID, name string) KernelHandle {
	nameC := C.CString(name)
	defer C.free(unsafe.Pointer(nameC))
	idC := (*C.uchar)(C.CBytes(xclbinUUID[:]))
	defer C.free(unsafe.Pointer(idC))
	return KernelHandle(C.call_xrtPLKernelOpen(d.api, C.uintptr_t(device), idC, nameC))
}

func (d *nativeDriver) CloseKernel(kernel KernelHandle) int {
	return int(C.call_xrtKernelClose(d.api, C.uintptr_t(kernel)))
}

func (d *nativeDriver) KernelArgGroup(kernel KernelHandle, argIndex int) int {
	return int(C.call_xrtKernelArgGroupId(d.api, C.uintptr_t(kernel), C.int(argIndex)))
}

func (d *nativeDriver) OpenRun(kernel KernelHandle) RunHandle {
	return RunHandle(C.call_xrtRunOpen(d.api, C.uintptr_t(kernel)))
}

func (d *nativeDriver) CloseRun(run RunHandle) int {
	return int(C.call_xrtRunClose(d.api, C.uintptr_t(run)))
}

func (d *nativeDriver) SetRunBufferArg(run RunHandle, argIndex int, buffer BufferHandle) int {
	return int(C.call_xrtRunSetArgBO(d.api, C.uintptr_t(run), C.int(argIndex), C.uintptr_t(buffer)))
}

func (d *nativeDriver) SetRunScalarArg(run RunHandle, argIndex int, bits uint64, sizeBytes int) int {
	switch sizeBytes {
	case 4:
		return int(C.call_xrtRunSetArgU32(d.api, C.uintptr_t(run), C.int(argIndex), C.uint32_t(bits)))
	case 8:
		return int(C.call_xrtRunSetArgU64(d.api, C.uintptr_t(run), C.int(argIndex), C.uint64_t(bits)))
	}
	return -1
}

func (d *nativeDriver) StartRun(run RunHandle) int {
	return int(C.call_xrtRunStart(d.api, C.uintptr_t(run)))
}

func (d *nativeDriver) WaitRun(run RunHandle, timeout time.Duration) CommandState {
	if timeout <= 0 {
		return CommandState(C.call_xrtRunWait(d.api, C.uintptr_t(run)))
	}
	ms := max(timeout.Milliseconds(), 1)
	return CommandState(C.call_xrtRunWaitFor(d.api, C.uintptr_t(run), C.uint(ms)))
}
