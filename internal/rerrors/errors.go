// Package rerrors holds the typed error values raised along the retrace
// pipeline and the stack-trace wrapping helpers used to construct them.
package rerrors

import (
	"fmt"

	"github.com/gruntwork-io/go-commons/errors"
)

// WithStackTrace wraps err with a stack trace captured at the call site,
// or returns nil if err is nil.
func WithStackTrace(err error) error {
	return errors.WithStackTrace(err)
}

// Errorf formats a new error carrying a stack trace.
func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Code is the integer error code a WorkerError carries out of the fail
// path (spec §4.8).
type Code int

const (
	CodeInputInvalid Code = iota + 1
	CodeResourceMissing
	CodeEnvironmentBuild
	CodeDebuggerFailure
	CodeInternal
)

// WorkerError is the error a task's fail path raises once cleanup,
// notification and stats persistence have all run.
type WorkerError struct {
	TaskID int
	Code   Code
	Cause  error
}

func (err *WorkerError) Error() string {
	return fmt.Sprintf("task #%d failed (code %d): %v", err.TaskID, err.Code, err.Cause)
}

func (err *WorkerError) Unwrap() error {
	return err.Cause
}

// MissingRequiredFileError is raised by the crash input reader when a
// required file is absent from the crash directory.
type MissingRequiredFileError struct {
	File string
	Dir  string
}

func (err *MissingRequiredFileError) Error() string {
	return fmt.Sprintf("required file %q is missing from %q", err.File, err.Dir)
}

// OversizeFileError is raised when a capped file exceeds its configured
// byte limit.
type OversizeFileError struct {
	File string
	Cap  int64
}

func (err *OversizeFileError) Error() string {
	return fmt.Sprintf("file %q exceeds the %d byte cap", err.File, err.Cap)
}

// InvalidPackageNameError is raised when the raw `package` file fails the
// RPM name grammar.
type InvalidPackageNameError struct {
	Raw string
}

func (err *InvalidPackageNameError) Error() string {
	return fmt.Sprintf("%q is not a valid RPM package name", err.Raw)
}

// UnknownReleaseError is raised when no distribution plugin recognises
// the crash's release information.
type UnknownReleaseError struct {
	Source string
}

func (err *UnknownReleaseError) Error() string {
	return fmt.Sprintf("could not identify a release from %s", err.Source)
}

// UnsupportedReleaseError is raised when debuginfod is disabled and the
// resolved release has no matching package repository.
type UnsupportedReleaseError struct {
	Release string
}

func (err *UnsupportedReleaseError) Error() string {
	return fmt.Sprintf("release %q is not supported for package resolution", err.Release)
}

// EnvironmentBuildError wraps a non-zero podman build / mock init.
type EnvironmentBuildError struct {
	Backend string
	Stderr  string
}

func (err *EnvironmentBuildError) Error() string {
	return fmt.Sprintf("%s environment build failed: %s", err.Backend, err.Stderr)
}

// DebuggerFailureError wraps a GDB or crash utility failure.
type DebuggerFailureError struct {
	Tool   string
	Detail string
}

func (err *DebuggerFailureError) Error() string {
	return fmt.Sprintf("%s failed: %s", err.Tool, err.Detail)
}

// SmallKernelLogError is raised when the minimal crash invocation
// produced a suspiciously small kernel log and the full sys dump also
// failed (spec §4.6 step 6).
type SmallKernelLogError struct {
	Size int
}

func (err *SmallKernelLogError) Error() string {
	return fmt.Sprintf("small kernellog size = %d bytes", err.Size)
}
