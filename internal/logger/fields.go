package logger

import (
	"fmt"
	"log/slog"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently so client logs can be aggregated and queried.
const (
	// Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Session & dispatch
	KeySessionID = "session_id" // smbc Context identifier
	KeyOperation = "operation"  // open, read, mkdir, ...
	KeyDispatch  = "dispatch"   // sync or async
	KeyBackend   = "backend"    // invoker backend: smb2, memory
	KeyQueueLen  = "queue_len"  // async bridge queue depth
	KeyJobID     = "job_id"     // async bridge job sequence number

	// Target
	KeyServer     = "server"
	KeyShare      = "share"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyOldPath    = "old_path"
	KeyNewPath    = "new_path"
	KeyDescriptor = "fd"

	// Credentials. Never log passwords.
	KeyWorkgroup = "workgroup"
	KeyUsername  = "username"
	KeyResolver  = "resolver" // table, callback, none

	// I/O
	KeyOffset       = "offset"
	KeyCount        = "count"
	KeyBytesRead    = "bytes_read"
	KeyBytesWritten = "bytes_written"
	KeySize         = "size"
	KeyFileMode     = "file_mode"
	KeyEntries      = "entries"

	// Outcome
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrno      = "errno"
	KeyStatus     = "status" // NT status as hex
)

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// SessionID returns a slog.Attr for the smbc Context identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// Operation returns a slog.Attr for the client operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

func Dispatch(mode string) slog.Attr {
	return slog.String(KeyDispatch, mode)
}

func Backend(name string) slog.Attr {
	return slog.String(KeyBackend, name)
}

func QueueLen(n int) slog.Attr {
	return slog.Int(KeyQueueLen, n)
}

func JobID(id uint64) slog.Attr {
	return slog.Uint64(KeyJobID, id)
}

// Server returns a slog.Attr for the target server name
func Server(name string) slog.Attr {
	return slog.String(KeyServer, name)
}

// Share returns a slog.Attr for the target share name
func Share(name string) slog.Attr {
	return slog.String(KeyShare, name)
}

func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// URL returns a slog.Attr for an smb:// URL. Callers must pass a redacted URL.
func URL(u string) slog.Attr {
	return slog.String(KeyURL, u)
}

func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

// Descriptor returns a slog.Attr for an invoker descriptor number
func Descriptor(fd uint64) slog.Attr {
	return slog.Uint64(KeyDescriptor, fd)
}

func Workgroup(wg string) slog.Attr {
	return slog.String(KeyWorkgroup, wg)
}

func Username(u string) slog.Attr {
	return slog.String(KeyUsername, u)
}

func Resolver(kind string) slog.Attr {
	return slog.String(KeyResolver, kind)
}

func Offset(off int64) slog.Attr {
	return slog.Int64(KeyOffset, off)
}

func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

// FileMode returns a slog.Attr for permission bits, formatted in octal
func FileMode(m uint32) slog.Attr {
	return slog.String(KeyFileMode, fmt.Sprintf("%04o", m))
}

func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

// DurationMs returns a slog.Attr with the elapsed time since start
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}

// Err returns a slog.Attr for an error; nil errors produce an empty attr
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

func Errno(code int) slog.Attr {
	return slog.Int(KeyErrno, code)
}

// Status returns a slog.Attr for an NT status code in hex
func Status(code uint32) slog.Attr {
	return slog.String(KeyStatus, fmt.Sprintf("0x%08X", code))
}
