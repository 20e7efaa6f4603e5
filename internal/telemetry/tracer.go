package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for client operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Session attributes
	// ========================================================================
	AttrSessionID = "smbc.session_id"
	AttrDispatch  = "smbc.dispatch" // sync or async
	AttrBackend   = "smbc.backend"  // smb2, memory
	AttrQueueLen  = "smbc.queue_len"

	// ========================================================================
	// Target attributes
	// ========================================================================
	AttrServerAddress = "server.address"
	AttrShare         = "smb.share"
	AttrURL           = "url.full" // always redacted
	AttrDescriptor    = "smb.fd"

	// ========================================================================
	// Filesystem attributes (protocol-agnostic)
	// ========================================================================
	AttrOperation  = "fs.operation"
	AttrOffset     = "fs.offset"
	AttrCount      = "fs.count"
	AttrSize       = "fs.size"
	AttrMode       = "fs.mode"
	AttrErrno      = "fs.errno"
	AttrBytesRead  = "fs.bytes_read"
	AttrBytesWrite = "fs.bytes_written"
	AttrEntries    = "fs.entries"

	// ========================================================================
	// User/Auth attributes
	// ========================================================================
	AttrUsername = "user.name"
	AttrDomain   = "user.domain"
	AttrResolver = "auth.resolver"
)

// Span names. Operations on a session are "smbc.<op>", background work of
// the async bridge is "bridge.<stage>".
const (
	SpanOpen     = "smbc.open"
	SpanCreat    = "smbc.creat"
	SpanRead     = "smbc.read"
	SpanWrite    = "smbc.write"
	SpanSeek     = "smbc.lseek"
	SpanFstat    = "smbc.fstat"
	SpanTruncate = "smbc.ftruncate"
	SpanClose    = "smbc.close"
	SpanOpendir  = "smbc.opendir"
	SpanReaddir  = "smbc.readdir"
	SpanClosedir = "smbc.closedir"
	SpanMkdir    = "smbc.mkdir"
	SpanRmdir    = "smbc.rmdir"
	SpanUnlink   = "smbc.unlink"
	SpanRename   = "smbc.rename"
	SpanStat     = "smbc.stat"
	SpanStatvfs  = "smbc.statvfs"
	SpanChmod    = "smbc.chmod"
	SpanUtimes   = "smbc.utimes"
	SpanAuth     = "smbc.auth"

	SpanBridgeStart = "bridge.start"
	SpanBridgeStop  = "bridge.stop"
)

// SessionID returns an attribute for the session identifier
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// Dispatch returns an attribute for the dispatch mode
func Dispatch(mode string) attribute.KeyValue {
	return attribute.String(AttrDispatch, mode)
}

// Backend returns an attribute for the invoker backend name
func Backend(name string) attribute.KeyValue {
	return attribute.String(AttrBackend, name)
}

// QueueLen returns an attribute for the bridge queue length
func QueueLen(n int) attribute.KeyValue {
	return attribute.Int(AttrQueueLen, n)
}

// Server returns an attribute for the SMB server name
func Server(name string) attribute.KeyValue {
	return attribute.String(AttrServerAddress, name)
}

// Share returns an attribute for the share name
func Share(name string) attribute.KeyValue {
	return attribute.String(AttrShare, name)
}

// URL returns an attribute for a target URL. Pass redacted URLs only.
func URL(u string) attribute.KeyValue {
	return attribute.String(AttrURL, u)
}

// Descriptor returns an attribute for an open descriptor
func Descriptor(fd uint64) attribute.KeyValue {
	return attribute.Int64(AttrDescriptor, int64(fd))
}

// Operation returns an attribute for the operation name
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// Offset returns an attribute for an I/O offset
func Offset(offset int64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, offset)
}

// Count returns an attribute for a requested byte count
func Count(n int) attribute.KeyValue {
	return attribute.Int(AttrCount, n)
}

// Size returns an attribute for a file size
func Size(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// Mode returns an attribute for a permission mode
func Mode(mode uint32) attribute.KeyValue {
	return attribute.Int64(AttrMode, int64(mode))
}

// Errno returns an attribute for a POSIX error code
func Errno(code int) attribute.KeyValue {
	return attribute.Int(AttrErrno, code)
}

// BytesRead returns an attribute for bytes actually read
func BytesRead(n int) attribute.KeyValue {
	return attribute.Int(AttrBytesRead, n)
}

// BytesWritten returns an attribute for bytes actually written
func BytesWritten(n int) attribute.KeyValue {
	return attribute.Int(AttrBytesWrite, n)
}

// Entries returns an attribute for a directory entry count
func Entries(n int) attribute.KeyValue {
	return attribute.Int(AttrEntries, n)
}

// Username returns an attribute for the authenticating user
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// Domain returns an attribute for the authentication domain
func Domain(name string) attribute.KeyValue {
	return attribute.String(AttrDomain, name)
}

// Resolver returns an attribute for the credential resolver kind
func Resolver(kind string) attribute.KeyValue {
	return attribute.String(AttrResolver, kind)
}

// StartOperationSpan starts a span for a session operation.
// This is a convenience function that sets the common attributes.
func StartOperationSpan(ctx context.Context, op, dispatch string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Operation(op),
		Dispatch(dispatch),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "smbc."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(allAttrs...))
}

// StartBridgeSpan starts a span for bridge lifecycle work.
func StartBridgeSpan(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "bridge."+stage, trace.WithAttributes(attrs...))
}

// Detach returns a context carrying only the span of ctx, so work started
// from it is linked to the caller's trace without inheriting its
// cancellation.
func Detach(parent context.Context, ctx context.Context) context.Context {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return parent
	}
	return trace.ContextWithSpanContext(parent, sc)
}
