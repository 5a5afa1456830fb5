// Package xrterrors defines the closed set of error kinds returned by goxrt.
//
// Every fallible operation in goxrt returns either nil or an error whose Kind can be recovered with KindOf.
// Kinds are themselves errors, so they can be used as sentinels:
//
//	if errors.Is(err, xrterrors.BONotCreatedYet) {
//		// Buffer was already freed.
//	}
//
// Errors carry a stack trace (see github.com/pkg/errors), print it with "%+v".
package xrterrors

import (
	"fmt"

	"github.com/pkg/errors"
)

//go:generate go tool enumer -type=Kind -output=gen_kind_enumer.go xrterrors.go

// Kind enumerates the kinds of errors returned by goxrt.
type Kind int

const (
	// Unknown is the Kind reported by KindOf for errors that didn't originate in goxrt.
	Unknown Kind = iota

	// Resource not ready: the handle used is absent (never created or already released).

	UnopenedDeviceError
	BONotCreatedYet
	KernelNotLoadedYetError
	RunNotCreatedYetError
	DeviceNotReadyError

	// Native call rejected: the driver returned a failure status.

	CStringCreationError
	DeviceOpenError
	XclbinFileAllocError
	XclbinLoadError
	XclbinUUIDRetrievalError
	KernelCreationError
	KernelArgRtrvError
	BOCreationError
	BOWriteError
	BOReadError
	BOSyncError
	RunCreationError
	SetRunArgError
	RunStartError
	RunWaitError

	// Argument contract: the call can't be type-checked against the kernel's ArgumentMapping,
	// or the DeviceManager stages were used out of order.

	NoSuchKernelError
	ArgumentNumberMismatchError
	PassVecToScalarArgumentError
	ArgumentDTypeMismatchError
	NoOpenRunsError
	InvalidStageError

	// Bitstream (xclbin) parsing.

	XclbinInvalidMagicString
	XclbinByteReadingError
	XclbinNoBuildMetadataSection
	XclbinJSONParseError

	// DriverNotFoundError is returned when a named driver isn't registered and can't be loaded.
	DriverNotFoundError
)

// Error implements the error interface, so a Kind can be used as a sentinel with errors.Is.
func (k Kind) Error() string {
	return k.String()
}

// Error is the concrete error returned by goxrt.
// Only the fields relevant to its Kind are set.
type Error struct {
	Kind Kind
	Msg  string

	// Found holds the magic string found, for XclbinInvalidMagicString.
	Found string

	// Start and End are the byte offsets of the range that couldn't be read, for XclbinByteReadingError.
	Start, End int

	// Diagnostic holds the parser message, for XclbinJSONParseError.
	Diagnostic string

	// Status is the raw status returned by the driver, if any.
	Status int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var detail string
	switch e.Kind {
	case XclbinInvalidMagicString:
		detail = fmt.Sprintf("(found %q)", e.Found)
	case XclbinByteReadingError:
		detail = fmt.Sprintf("(bytes [%d, %d))", e.Start, e.End)
	case XclbinJSONParseError:
		detail = fmt.Sprintf("(%s)", e.Diagnostic)
	}
	switch {
	case e.Msg != "" && detail != "":
		return fmt.Sprintf("%s %s: %s", e.Kind, detail, e.Msg)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case detail != "":
		return fmt.Sprintf("%s %s", e.Kind, detail)
	}
	return e.Kind.String()
}

// Is reports whether target is the same Kind, or an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind, with a stack trace.
func New(kind Kind) error {
	return errors.WithStack(&Error{Kind: kind})
}

// Errorf creates an error of the given kind with a formatted message, with a stack trace.
func Errorf(kind Kind, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

// WithStatus creates an error of the given kind for a native call that returned status, with a formatted message.
func WithStatus(kind Kind, status int, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Status: status, Msg: fmt.Sprintf(format, args...)})
}

// InvalidMagicString returns an XclbinInvalidMagicString error carrying the string found.
func InvalidMagicString(found string) error {
	return errors.WithStack(&Error{Kind: XclbinInvalidMagicString, Found: found})
}

// ByteReading returns an XclbinByteReadingError error for the byte range [start, end).
func ByteReading(start, end int) error {
	return errors.WithStack(&Error{Kind: XclbinByteReadingError, Start: start, End: end})
}

// JSONParse returns an XclbinJSONParseError carrying the parser's diagnostic.
func JSONParse(diagnostic string) error {
	return errors.WithStack(&Error{Kind: XclbinJSONParseError, Diagnostic: diagnostic})
}

// KindOf returns the Kind of err, or Unknown if err is nil or was not created by goxrt.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}

// AsError returns the *Error within err, if there is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
