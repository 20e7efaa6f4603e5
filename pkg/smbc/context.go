// Package smbc is a client for SMB file shares addressed by smb:// URLs.
//
// A Context owns one connection backend (an invoker.Invoker), a credential
// table and, once EnableAsync has been called, a bridge worker that runs
// the async variant of every operation. Sync methods block the calling
// goroutine; methods with the Async suffix queue the operation on the
// worker and return a *bridge.Future.
package smbc

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"weak"

	"github.com/google/uuid"

	"github.com/marmos91/smbc/internal/logger"
	"github.com/marmos91/smbc/internal/telemetry"
	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/bridge"
	"github.com/marmos91/smbc/pkg/invoker"
	"github.com/marmos91/smbc/pkg/metrics"
	"github.com/marmos91/smbc/pkg/smberr"
)

// Resolver kinds reported in logs and metrics.
const (
	ResolverTable   = "table"
	ResolverFunc    = "func"
	ResolverFuncCtx = "func_ctx"
	ResolverCustom  = "custom"
)

// DefaultReadChunk is the growth step of File.ReadN for unbounded reads.
const DefaultReadChunk = 4096

// DefaultCredentials are used for every field no resolver or URL supplies.
var DefaultCredentials = auth.Credentials{Workgroup: "WORKGROUP", Username: "guest"}

// DefaultStopTimeout bounds how long Close waits for a running async job.
const DefaultStopTimeout = 5 * time.Second

// AuthFunc supplies a credential override for (server, share). share is
// empty when only the server's share list is being fetched.
type AuthFunc func(server, share string) (auth.Override, error)

// AuthFuncWithContext is AuthFunc that also receives the owning Context.
type AuthFuncWithContext func(c *Context, server, share string) (auth.Override, error)

type options struct {
	backend       string
	defaults      auth.Credentials
	queueSize     int
	readChunk     int
	stopTimeout   time.Duration
	clientMetrics metrics.ClientMetrics
	bridgeMetrics metrics.BridgeMetrics
}

// Option configures a Context.
type Option func(*options)

// WithBackendName labels the backend in logs and spans.
func WithBackendName(name string) Option {
	return func(o *options) { o.backend = name }
}

// WithDefaults replaces DefaultCredentials for this Context.
func WithDefaults(c auth.Credentials) Option {
	return func(o *options) { o.defaults = c }
}

// WithQueueSize bounds the async queue. Zero keeps the bridge default.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithReadChunk sets the growth step used by File.ReadN when reading a file
// of unknown size.
func WithReadChunk(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readChunk = n
		}
	}
}

// WithStopTimeout bounds how long Close waits for a running async job.
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stopTimeout = d
		}
	}
}

// WithMetrics installs metrics sinks. Nil values disable the corresponding
// observations.
func WithMetrics(client metrics.ClientMetrics, br metrics.BridgeMetrics) Option {
	return func(o *options) {
		o.clientMetrics = client
		o.bridgeMetrics = br
	}
}

type resolverSlot struct {
	r    auth.Resolver
	kind string
}

// Context is a client session. It is safe for concurrent use, although all
// async operations of one Context execute one at a time on its worker.
type Context struct {
	id          string
	backend     string
	inv         invoker.Invoker
	table       *auth.Table
	resolver    atomic.Pointer[resolverSlot]
	defaults    atomic.Pointer[auth.Credentials]
	metrics     metrics.ClientMetrics
	brMetrics   metrics.BridgeMetrics
	queueSize   int
	readChunk   int
	stopTimeout time.Duration

	mu     sync.Mutex
	br     *bridge.Bridge
	closed bool
	nextID uint64
	files  map[uint64]weak.Pointer[File]
	dirs   map[uint64]weak.Pointer[Dir]
}

// New creates a Context on top of the backend built by factory.
func New(factory invoker.Factory, opts ...Option) (*Context, error) {
	if factory == nil {
		return nil, smberr.Invalid("nil invoker factory")
	}

	o := options{
		backend:     "custom",
		defaults:    DefaultCredentials,
		readChunk:   DefaultReadChunk,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.defaults.Validate(); err != nil {
		return nil, err
	}

	c := &Context{
		id:          uuid.NewString(),
		backend:     o.backend,
		table:       auth.NewTable(),
		metrics:     o.clientMetrics,
		brMetrics:   o.bridgeMetrics,
		queueSize:   o.queueSize,
		readChunk:   o.readChunk,
		stopTimeout: o.stopTimeout,
		files:       make(map[uint64]weak.Pointer[File]),
		dirs:        make(map[uint64]weak.Pointer[Dir]),
	}
	defaults := o.defaults
	c.defaults.Store(&defaults)
	c.useTable()

	inv, err := factory(c.authenticate)
	if err != nil {
		return nil, err
	}
	c.inv = inv

	logger.Debug("smbc context created", logger.SessionID(c.id), logger.Backend(c.backend))
	return c, nil
}

// ID returns the unique identifier of c, used in logs and spans.
func (c *Context) ID() string {
	return c.id
}

// Backend returns the backend label.
func (c *Context) Backend() string {
	return c.backend
}

// Invoker returns the backend c dispatches to.
func (c *Context) Invoker() invoker.Invoker {
	return c.inv
}

// authenticate is the invoker.AuthFunc of c. It runs on whichever goroutine
// executes the operation, which is the worker for async calls.
func (c *Context) authenticate(ctx context.Context, server, share string, embedded auth.Override) (auth.Credentials, error) {
	slot := c.resolver.Load()
	creds, err := auth.Resolve(slot.r, *c.defaults.Load(), server, share, embedded)
	metrics.ObserveAuth(c.metrics, slot.kind, err)
	if err != nil {
		logger.DebugCtx(ctx, "credential resolution failed",
			logger.Server(server), logger.Share(share), logger.Resolver(slot.kind), logger.Err(err))
		return creds, err
	}

	telemetry.AddEvent(ctx, telemetry.SpanAuth,
		telemetry.Server(server), telemetry.Share(share), telemetry.Resolver(slot.kind),
		telemetry.Domain(creds.Workgroup), telemetry.Username(creds.Username))
	logger.DebugCtx(ctx, "credentials resolved",
		logger.Server(server), logger.Share(share), logger.Resolver(slot.kind),
		logger.Workgroup(creds.Workgroup), logger.Username(creds.Username))
	return creds, nil
}

func (c *Context) install(r auth.Resolver, kind string) {
	c.resolver.Store(&resolverSlot{r: r, kind: kind})
}

func (c *Context) useTable() {
	c.install(c.table, ResolverTable)
}

// SetCredentials stores an override for (server, share) and makes the
// credential table the active resolver. Either name may be auth.Wildcard.
func (c *Context) SetCredentials(server, share string, o auth.Override) error {
	if err := c.table.Set(server, share, o); err != nil {
		return err
	}
	c.useTable()
	return nil
}

// SetServerCredentials stores an override for every share of server.
func (c *Context) SetServerCredentials(server string, o auth.Override) error {
	if err := c.table.SetServer(server, o); err != nil {
		return err
	}
	c.useTable()
	return nil
}

// SetDefaultCredentials stores the (*, *) override.
func (c *Context) SetDefaultCredentials(o auth.Override) error {
	if err := c.table.SetDefault(o); err != nil {
		return err
	}
	c.useTable()
	return nil
}

// DeleteCredentials removes the entry for (server, share) and reports
// whether it existed.
func (c *Context) DeleteCredentials(server, share string) bool {
	ok := c.table.Delete(server, share)
	c.useTable()
	return ok
}

// LoadCredentials replaces the whole table.
func (c *Context) LoadCredentials(entries []auth.Entry) error {
	if err := c.table.Replace(entries); err != nil {
		return err
	}
	c.useTable()
	return nil
}

// Credentials returns the table entries, sorted.
func (c *Context) Credentials() []auth.Entry {
	return c.table.Entries()
}

// SetAuthFunc makes fn the active resolver. A nil fn reinstalls the table.
func (c *Context) SetAuthFunc(fn AuthFunc) {
	if fn == nil {
		c.useTable()
		return
	}
	c.install(auth.ResolverFunc(fn), ResolverFunc)
}

// SetAuthFuncWithContext is SetAuthFunc for callbacks that need c.
func (c *Context) SetAuthFuncWithContext(fn AuthFuncWithContext) {
	if fn == nil {
		c.useTable()
		return
	}
	c.install(auth.ResolverFunc(func(server, share string) (auth.Override, error) {
		return fn(c, server, share)
	}), ResolverFuncCtx)
}

// SetResolver makes r the active resolver. A nil r reinstalls the table.
func (c *Context) SetResolver(r auth.Resolver) {
	if r == nil {
		c.useTable()
		return
	}
	c.install(r, ResolverCustom)
}

// ResolverKind names the active resolver.
func (c *Context) ResolverKind() string {
	return c.resolver.Load().kind
}

// SetCredentialsWithFallback replaces the defaults used for fields no
// resolver and no URL supply.
func (c *Context) SetCredentialsWithFallback(workgroup, username, password string) error {
	creds := auth.Credentials{Workgroup: workgroup, Username: username, Password: password}
	if err := creds.Validate(); err != nil {
		return err
	}
	c.defaults.Store(&creds)
	return nil
}

// Defaults returns the current fallback credentials.
func (c *Context) Defaults() auth.Credentials {
	return *c.defaults.Load()
}

// EnableAsync starts the worker that runs Async operations. The worker
// lives until Close or until ctx is done. It can be enabled only once.
func (c *Context) EnableAsync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrContextClosed
	}
	if c.br != nil {
		return ErrAsyncEnabled
	}

	ctx, span := telemetry.StartBridgeSpan(ctx, "start", telemetry.SessionID(c.id), telemetry.QueueLen(c.queueSize))
	defer span.End()

	br := bridge.New(bridge.Config{Name: c.id, QueueSize: c.queueSize, Metrics: c.brMetrics})
	if err := br.Start(ctx); err != nil {
		return err
	}
	c.br = br
	logger.DebugCtx(ctx, "async calls enabled", logger.SessionID(c.id), logger.QueueLen(c.queueSize))
	return nil
}

// AsyncEnabled reports whether EnableAsync succeeded.
func (c *Context) AsyncEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.br != nil
}

// AsyncStats reports the worker's job counters; ok is false before
// EnableAsync.
func (c *Context) AsyncStats() (stats bridge.Stats, ok bool) {
	c.mu.Lock()
	br := c.br
	c.mu.Unlock()
	if br == nil {
		return bridge.Stats{}, false
	}
	return br.Stats(), true
}

func (c *Context) worker() (*bridge.Bridge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	if c.br == nil {
		return nil, ErrAsyncDisabled
	}
	return c.br, nil
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	return c.isClosed()
}

// OpenHandles counts the files and directories still open.
func (c *Context) OpenHandles() (files, dirs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.files), len(c.dirs)
}

func (c *Context) checkOpen() error {
	if c.isClosed() {
		return ErrContextClosed
	}
	return nil
}

// Close stops the async worker, closes every handle still open and shuts the
// backend down. Jobs still queued fail with ErrBridgeUnavailable. When a
// running job outlasts the stop timeout Close returns EBUSY and the handles
// are released once that job returns. Close is idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	br := c.br
	files, dirs := c.files, c.dirs
	c.files, c.dirs = nil, nil
	c.mu.Unlock()

	ctx := logger.WithContext(context.Background(), logger.NewLogContext(c.id))

	stopped := true
	if br != nil {
		_, span := telemetry.StartBridgeSpan(ctx, "stop", telemetry.SessionID(c.id))
		stopped = br.Stop(c.stopTimeout)
		span.End()
	}

	release := func() []error {
		var errs []error
		for _, wp := range files {
			if f := wp.Value(); f != nil && f.closed.CompareAndSwap(false, true) {
				if err := c.inv.Close(ctx, f.fd); err != nil {
					errs = append(errs, err)
				}
			}
		}
		for _, wp := range dirs {
			if d := wp.Value(); d != nil && d.closed.CompareAndSwap(false, true) {
				if err := c.inv.Closedir(ctx, d.fd); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if err := c.inv.Shutdown(ctx, true); err != nil {
			errs = append(errs, err)
		}
		return errs
	}

	if !stopped {
		// The backend is still in use by the running job.
		go func() {
			<-br.Done()
			if err := errors.Join(release()...); err != nil {
				logger.WarnCtx(ctx, "deferred release failed", logger.Err(err))
			}
			logger.DebugCtx(ctx, "smbc context released after running job returned")
		}()
		return smberr.Newf("close", "", syscall.EBUSY,
			"async job still running after %s; handles are released when it returns", c.stopTimeout)
	}

	errs := release()
	logger.DebugCtx(ctx, "smbc context closed", logger.Count(len(files)+len(dirs)))
	return errors.Join(errs...)
}

type reapArg struct {
	id  uint64
	fd  invoker.Descriptor
	dir bool
}

// trackFile registers f so Close and the garbage collector can release it.
// It fails when c was closed while f was being opened.
func (c *Context) trackFile(f *File) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		f.closed.Store(true)
		_ = c.inv.Close(context.Background(), f.fd)
		return ErrContextClosed
	}
	c.nextID++
	f.id = c.nextID
	c.files[f.id] = weak.Make(f)
	c.mu.Unlock()
	runtime.AddCleanup(f, c.reap, reapArg{id: f.id, fd: f.fd})
	return nil
}

func (c *Context) trackDir(d *Dir) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		d.closed.Store(true)
		_ = c.inv.Closedir(context.Background(), d.fd)
		return ErrContextClosed
	}
	c.nextID++
	d.id = c.nextID
	c.dirs[d.id] = weak.Make(d)
	c.mu.Unlock()
	runtime.AddCleanup(d, c.reap, reapArg{id: d.id, fd: d.fd, dir: true})
	return nil
}

// untrack forgets a handle that was closed explicitly.
func (c *Context) untrack(id uint64, dir bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dir {
		delete(c.dirs, id)
	} else {
		delete(c.files, id)
	}
}

// reap releases the descriptor of a handle that was dropped without Close.
// With a worker the release goes through it, so it never overlaps a job.
func (c *Context) reap(a reapArg) {
	c.mu.Lock()
	var live bool
	if a.dir {
		_, live = c.dirs[a.id]
		delete(c.dirs, a.id)
	} else {
		_, live = c.files[a.id]
		delete(c.files, a.id)
	}
	br := c.br
	c.mu.Unlock()
	if !live {
		return
	}

	release := func(ctx context.Context) error {
		if a.dir {
			return c.inv.Closedir(ctx, a.fd)
		}
		return c.inv.Close(ctx, a.fd)
	}
	report := func(err error) {
		logger.Debug("released unreachable handle",
			logger.SessionID(c.id), logger.Descriptor(uint64(a.fd)), logger.Err(err))
	}

	if br == nil {
		report(release(context.Background()))
		return
	}
	// Submit may block on a full queue; keep the cleanup goroutine free.
	go func() { report(onWorker(br, "reap", release)) }()
}

// onWorker runs fn without overlapping a job of br: as a job while br
// accepts work, otherwise once the worker goroutine has returned.
func onWorker(br *bridge.Bridge, op string, fn func(ctx context.Context) error) error {
	var ran atomic.Bool
	_, err := bridge.Submit(br, op, func(ctx context.Context) (none, error) {
		ran.Store(true)
		return none{}, fn(ctx)
	}).Result()
	if ran.Load() || !errors.Is(err, bridge.ErrTerminated) {
		return err
	}
	<-br.Done()
	return fn(context.Background())
}

// PurgeUnused drops cached server connections without open handles and
// returns how many were dropped.
func (c *Context) PurgeUnused(ctx context.Context) (int, error) {
	return call(c, ctx, "purge", "", func(ctx context.Context) (int, error) {
		return c.inv.PurgeUnused(ctx), nil
	})
}
