// Package smberr provides the error type shared by every smbc layer.
// This is a leaf package with no internal dependencies so that the credential,
// invoker and session packages can all produce the same error shape.
//
// Three families of failures exist:
//   - protocol failures (*Error), produced while talking to a server and
//     carrying a POSIX errno;
//   - validation failures (wrapping ErrValidation), detected before anything
//     is dispatched and always returned synchronously;
//   - bridge failures (wrapping ErrTerminated), reported for async jobs that
//     can no longer run.
package smberr

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrValidation is wrapped by every error raised while checking caller input.
	ErrValidation = errors.New("validation failed")

	// ErrTerminated is wrapped by every failure caused by the async worker
	// being gone: jobs queued or running when it stopped, and jobs submitted
	// afterwards.
	ErrTerminated = errors.New("async bridge terminated")
)

// Error is a failed operation with a POSIX error code.
//
// errors.Is matches both the errno (syscall.ENOENT) and the portable io/fs
// sentinels (fs.ErrNotExist), because Errno implements Is for those.
type Error struct {
	Op      string        // operation name: open, mkdir, read, ...
	Path    string        // URL or descriptor description, credentials removed
	Code    syscall.Errno // POSIX error code
	Message string        // optional detail, defaults to the errno text
	Err     error         // underlying transport error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.Error()
	}
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap exposes both the errno and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Code}
	}
	return []error{e.Code, e.Err}
}

// Errno returns the error code as a plain int, the way C callers see it.
func (e *Error) Errno() int {
	return int(e.Code)
}

// New creates an Error for op on path.
func New(op, path string, code syscall.Errno) *Error {
	return &Error{Op: op, Path: path, Code: code}
}

// Newf creates an Error with a formatted message.
func Newf(op, path string, code syscall.Errno, format string, args ...any) *Error {
	return &Error{Op: op, Path: path, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that keeps cause reachable through errors.Is/As.
func Wrap(op, path string, code syscall.Errno, cause error) *Error {
	e := &Error{Op: op, Path: path, Code: code, Err: cause}
	if cause != nil {
		e.Message = fmt.Sprintf("%s (%v)", code.Error(), cause)
	}
	return e
}

// Code extracts the errno carried by err, or 0 when err is not an *Error.
func Code(err error) syscall.Errno {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// IsValidation reports whether err was raised by input validation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// Invalid builds a validation error with a formatted message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsNotExist reports whether err means the target does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, syscall.ENOENT)
}

// IsExist reports whether err means the target already exists.
func IsExist(err error) bool {
	return errors.Is(err, syscall.EEXIST)
}

// IsPermission reports whether err is an access or authentication failure.
func IsPermission(err error) bool {
	return errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM)
}
