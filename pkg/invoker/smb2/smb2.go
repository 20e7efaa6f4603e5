// Package smb2 implements invoker.Invoker on top of
// github.com/hirochachacha/go-smb2, a pure Go SMB2/SMB3 client with NTLM
// authentication.
//
// Connections are cached per server address and identity, shares are mounted
// on first use, and a connection is only torn down by PurgeUnused or
// Shutdown. Workgroup browsing (smb://) needs NetBIOS and is not supported.
package smb2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	gosmb2 "github.com/hirochachacha/go-smb2"
	"github.com/marmos91/smbc/internal/logger"
	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/invoker"
	"github.com/marmos91/smbc/pkg/smberr"
	"github.com/marmos91/smbc/pkg/smburl"
)

// Options tunes the transport.
type Options struct {
	// Port is used for URLs without an explicit port. Zero means 445.
	Port int

	// Timeout bounds dialing and session setup.
	Timeout time.Duration

	// Workstation is the NetBIOS name sent during NTLM authentication.
	Workstation string

	// RequireSigning refuses servers that do not sign messages.
	RequireSigning bool
}

// conn is one authenticated SMB session.
type conn struct {
	key    string
	server string
	tcp    net.Conn
	sess   *gosmb2.Session
	shares map[string]*gosmb2.Share
	open   int
}

// mount is a share reached with one set of URL-embedded credentials.
type mount struct {
	conn  *conn
	share *gosmb2.Share // nil for share listings
}

type handle struct {
	mount *mount
	url   string
	flags int
	file  *gosmb2.File

	dir     bool
	entries []invoker.Dirent
	pos     int
}

// Invoker talks to real SMB servers.
type Invoker struct {
	opts   Options
	authFn invoker.AuthFunc

	mu     sync.Mutex
	conns  map[string]*conn
	mounts map[string]*mount
	fds    *invoker.Descriptors[*handle]
	closed bool
}

var _ invoker.Invoker = (*Invoker)(nil)

// New creates an Invoker. No connection is made until the first operation.
func New(opts Options, authFn invoker.AuthFunc) *Invoker {
	return &Invoker{
		opts:   opts,
		authFn: authFn,
		conns:  make(map[string]*conn),
		mounts: make(map[string]*mount),
		fds:    invoker.NewDescriptors[*handle](),
	}
}

// Factory returns an invoker.Factory using opts.
func Factory(opts Options) invoker.Factory {
	return func(authFn invoker.AuthFunc) (invoker.Invoker, error) {
		return New(opts, authFn), nil
	}
}

func (m *Invoker) addr(u *smburl.URL) string {
	if u.Port == 0 && m.opts.Port != 0 {
		return net.JoinHostPort(u.Server, strconv.Itoa(m.opts.Port))
	}
	return u.Addr()
}

func overrideKey(o auth.Override) string {
	part := func(p *string) string {
		if p == nil {
			return "-"
		}
		return "=" + *p
	}
	return part(o.Workgroup) + "\x00" + part(o.Username) + "\x00" + part(o.Password)
}

// connect returns the mount for u, authenticating and dialing as needed.
func (m *Invoker) connect(ctx context.Context, op string, u *smburl.URL) (*mount, error) {
	where := u.Redacted()
	addr := m.addr(u)
	embedded := u.Credentials()
	mkey := addr + "/" + strings.ToLower(u.Share) + "/" + overrideKey(embedded)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, smberr.Newf(op, where, syscall.EBADF, "invoker shut down")
	}
	if mt, ok := m.mounts[mkey]; ok {
		m.mu.Unlock()
		return mt, nil
	}
	m.mu.Unlock()

	creds, err := m.authFn(ctx, u.Server, u.Share, embedded)
	if err != nil {
		return nil, err
	}

	c, err := m.session(ctx, op, where, u.Server, addr, creds)
	if err != nil {
		return nil, err
	}

	mt := &mount{conn: c}
	if u.Share != "" {
		share, err := m.mountShare(ctx, c, u.Share)
		if err != nil {
			return nil, mapErr(op, where, err)
		}
		mt.share = share
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.mounts[mkey]; ok {
		return existing, nil
	}
	m.mounts[mkey] = mt
	return mt, nil
}

// session returns a cached session for (addr, creds) or dials a new one.
func (m *Invoker) session(ctx context.Context, op, where, server, addr string, creds auth.Credentials) (*conn, error) {
	ckey := addr + "|" + strings.ToLower(creds.Workgroup) + "\\" + creds.Username + "\x00" + creds.Password

	m.mu.Lock()
	if c, ok := m.conns[ckey]; ok {
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	dctx := ctx
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	var nd net.Dialer
	tcp, err := nd.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, mapErr(op, where, err)
	}

	d := &gosmb2.Dialer{
		Negotiator: gosmb2.Negotiator{RequireMessageSigning: m.opts.RequireSigning},
		Initiator: &gosmb2.NTLMInitiator{
			User:        creds.Username,
			Password:    creds.Password,
			Domain:      creds.Workgroup,
			Workstation: m.opts.Workstation,
		},
	}
	sess, err := d.DialContext(dctx, tcp)
	if err != nil {
		_ = tcp.Close()
		logger.DebugCtx(ctx, "smb session setup failed",
			logger.Server(server), logger.Username(creds.Username), logger.Err(err))
		return nil, mapErr(op, where, err)
	}
	logger.DebugCtx(ctx, "smb session established",
		logger.Server(server), logger.Workgroup(creds.Workgroup), logger.Username(creds.Username))

	c := &conn{key: ckey, server: server, tcp: tcp, sess: sess, shares: make(map[string]*gosmb2.Share)}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.conns[ckey]; ok {
		_ = sess.Logoff()
		_ = tcp.Close()
		return existing, nil
	}
	m.conns[ckey] = c
	return c, nil
}

func (m *Invoker) mountShare(ctx context.Context, c *conn, name string) (*gosmb2.Share, error) {
	key := strings.ToLower(name)
	m.mu.Lock()
	if s, ok := c.shares[key]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s, err := c.sess.WithContext(ctx).Mount(name)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := c.shares[key]; ok {
		_ = s.Umount()
		return existing, nil
	}
	c.shares[key] = s
	return s, nil
}

// resolve parses raw and returns the share and share-relative path it names.
func (m *Invoker) resolve(ctx context.Context, op, raw string) (*smburl.URL, *mount, string, error) {
	u, err := smburl.Parse(raw)
	if err != nil {
		return nil, nil, "", err
	}
	if u.Kind() != smburl.KindShare && u.Kind() != smburl.KindPath {
		return nil, nil, "", smberr.Newf(op, u.Redacted(), syscall.EINVAL, "not a share path")
	}
	mt, err := m.connect(ctx, op, u)
	if err != nil {
		return nil, nil, "", err
	}
	return u, mt, sharePath(u.Path), nil
}

// sharePath converts a URL path to the backslash form SMB expects.
func sharePath(p string) string {
	return strings.ReplaceAll(p, "/", `\`)
}

func (m *Invoker) track(mt *mount, delta int) {
	m.mu.Lock()
	mt.conn.open += delta
	m.mu.Unlock()
}

func (m *Invoker) Open(ctx context.Context, url string, flags int, perm fs.FileMode) (invoker.Descriptor, error) {
	u, mt, p, err := m.resolve(ctx, "open", url)
	if err != nil {
		return 0, err
	}
	if perm == 0 {
		perm = 0o644
	}
	f, err := mt.share.WithContext(ctx).OpenFile(p, flags, perm)
	if err != nil {
		return 0, mapErr("open", u.Redacted(), err)
	}
	if fi, err := f.Stat(); err == nil && fi.IsDir() {
		_ = f.Close()
		return 0, smberr.New("open", u.Redacted(), syscall.EISDIR)
	}
	m.track(mt, 1)
	return m.fds.Add(&handle{mount: mt, url: u.Redacted(), flags: flags, file: f}), nil
}

func (m *Invoker) file(op string, fd invoker.Descriptor) (*handle, error) {
	h, ok := m.fds.Get(fd)
	if !ok || h.dir {
		return nil, smberr.New(op, fmt.Sprintf("fd %d", fd), syscall.EBADF)
	}
	return h, nil
}

func (m *Invoker) Read(_ context.Context, fd invoker.Descriptor, p []byte) (int, error) {
	h, err := m.file("read", fd)
	if err != nil {
		return 0, err
	}
	n, err := h.file.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	if err != nil {
		return n, mapErr("read", h.url, err)
	}
	return n, nil
}

func (m *Invoker) Write(_ context.Context, fd invoker.Descriptor, p []byte) (int, error) {
	h, err := m.file("write", fd)
	if err != nil {
		return 0, err
	}
	if h.flags&os.O_APPEND != 0 {
		if _, err := h.file.Seek(0, io.SeekEnd); err != nil {
			return 0, mapErr("write", h.url, err)
		}
	}
	n, err := h.file.Write(p)
	if err != nil {
		return n, mapErr("write", h.url, err)
	}
	return n, nil
}

func (m *Invoker) Seek(_ context.Context, fd invoker.Descriptor, offset int64, whence int) (int64, error) {
	h, err := m.file("lseek", fd)
	if err != nil {
		return 0, err
	}
	pos, err := h.file.Seek(offset, whence)
	if err != nil {
		return 0, mapErr("lseek", h.url, err)
	}
	return pos, nil
}

func (m *Invoker) Fstat(_ context.Context, fd invoker.Descriptor) (*invoker.Stat, error) {
	h, err := m.file("fstat", fd)
	if err != nil {
		return nil, err
	}
	fi, err := h.file.Stat()
	if err != nil {
		return nil, mapErr("fstat", h.url, err)
	}
	return statOf(fi), nil
}

func (m *Invoker) Ftruncate(_ context.Context, fd invoker.Descriptor, size int64) error {
	h, err := m.file("ftruncate", fd)
	if err != nil {
		return err
	}
	if size < 0 {
		return smberr.New("ftruncate", h.url, syscall.EINVAL)
	}
	if err := h.file.Truncate(size); err != nil {
		return mapErr("ftruncate", h.url, err)
	}
	return nil
}

func (m *Invoker) Close(_ context.Context, fd invoker.Descriptor) error {
	h, err := m.file("close", fd)
	if err != nil {
		return err
	}
	m.fds.Remove(fd)
	m.track(h.mount, -1)
	if err := h.file.Close(); err != nil {
		return mapErr("close", h.url, err)
	}
	return nil
}

func (m *Invoker) Opendir(ctx context.Context, url string) (invoker.Descriptor, error) {
	u, err := smburl.Parse(url)
	if err != nil {
		return 0, err
	}
	where := u.Redacted()

	var (
		mt      *mount
		entries []invoker.Dirent
	)
	switch u.Kind() {
	case smburl.KindWorkgroups:
		return 0, smberr.Newf("opendir", where, syscall.ENOTSUP, "workgroup browsing is not supported")

	case smburl.KindShares:
		if mt, err = m.connect(ctx, "opendir", u); err != nil {
			return 0, err
		}
		names, err := mt.conn.sess.WithContext(ctx).ListSharenames()
		if err != nil {
			return 0, mapErr("opendir", where, err)
		}
		for _, name := range names {
			entries = append(entries, invoker.Dirent{Type: shareType(name), Name: name})
		}

	default:
		var p string
		if _, mt, p, err = m.resolve(ctx, "opendir", url); err != nil {
			return 0, err
		}
		infos, err := mt.share.WithContext(ctx).ReadDir(p)
		if err != nil {
			return 0, mapErr("opendir", where, err)
		}
		for _, fi := range infos {
			entries = append(entries, invoker.Dirent{Type: direntType(fi), Name: fi.Name()})
		}
	}

	m.track(mt, 1)
	return m.fds.Add(&handle{mount: mt, url: where, dir: true, entries: entries}), nil
}

// shareType guesses the type of a share from its name; ListSharenames does
// not report it.
func shareType(name string) invoker.DirentType {
	if strings.EqualFold(name, "IPC$") {
		return invoker.TypeIPCShare
	}
	return invoker.TypeFileShare
}

func direntType(fi fs.FileInfo) invoker.DirentType {
	switch {
	case fi.Mode()&fs.ModeSymlink != 0:
		return invoker.TypeLink
	case fi.IsDir():
		return invoker.TypeDir
	default:
		return invoker.TypeFile
	}
}

func statOf(fi fs.FileInfo) *invoker.Stat {
	st := invoker.StatFromFileInfo(fi)
	if fs, ok := fi.Sys().(*gosmb2.FileStat); ok {
		st.Btime = fs.CreationTime
		st.Atime = fs.LastAccessTime
		st.Mtime = fs.LastWriteTime
		st.Ctime = fs.ChangeTime
		st.Attributes = fs.FileAttributes
	}
	return st
}

func (m *Invoker) dir(op string, fd invoker.Descriptor) (*handle, error) {
	h, ok := m.fds.Get(fd)
	if !ok || !h.dir {
		return nil, smberr.New(op, fmt.Sprintf("fd %d", fd), syscall.EBADF)
	}
	return h, nil
}

func (m *Invoker) Readdir(_ context.Context, fd invoker.Descriptor) (*invoker.Dirent, error) {
	h, err := m.dir("readdir", fd)
	if err != nil {
		return nil, err
	}
	if h.pos >= len(h.entries) {
		return nil, io.EOF
	}
	d := h.entries[h.pos]
	h.pos++
	return &d, nil
}

func (m *Invoker) Telldir(_ context.Context, fd invoker.Descriptor) (int64, error) {
	h, err := m.dir("telldir", fd)
	if err != nil {
		return 0, err
	}
	return int64(h.pos), nil
}

func (m *Invoker) Lseekdir(_ context.Context, fd invoker.Descriptor, offset int64) error {
	h, err := m.dir("lseekdir", fd)
	if err != nil {
		return err
	}
	if offset < 0 || offset > int64(len(h.entries)) {
		return smberr.New("lseekdir", h.url, syscall.EINVAL)
	}
	h.pos = int(offset)
	return nil
}

func (m *Invoker) Closedir(_ context.Context, fd invoker.Descriptor) error {
	h, err := m.dir("closedir", fd)
	if err != nil {
		return err
	}
	m.fds.Remove(fd)
	m.track(h.mount, -1)
	return nil
}

func (m *Invoker) Mkdir(ctx context.Context, url string, perm fs.FileMode) error {
	u, mt, p, err := m.resolve(ctx, "mkdir", url)
	if err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o755
	}
	if err := mt.share.WithContext(ctx).Mkdir(p, perm); err != nil {
		return mapErr("mkdir", u.Redacted(), err)
	}
	return nil
}

func (m *Invoker) Rmdir(ctx context.Context, url string) error {
	u, mt, p, err := m.resolve(ctx, "rmdir", url)
	if err != nil {
		return err
	}
	share := mt.share.WithContext(ctx)
	fi, err := share.Stat(p)
	if err != nil {
		return mapErr("rmdir", u.Redacted(), err)
	}
	if !fi.IsDir() {
		return smberr.New("rmdir", u.Redacted(), syscall.ENOTDIR)
	}
	if err := share.Remove(p); err != nil {
		return mapErr("rmdir", u.Redacted(), err)
	}
	return nil
}

func (m *Invoker) Unlink(ctx context.Context, url string) error {
	u, mt, p, err := m.resolve(ctx, "unlink", url)
	if err != nil {
		return err
	}
	share := mt.share.WithContext(ctx)
	fi, err := share.Stat(p)
	if err != nil {
		return mapErr("unlink", u.Redacted(), err)
	}
	if fi.IsDir() {
		return smberr.New("unlink", u.Redacted(), syscall.EISDIR)
	}
	if err := share.Remove(p); err != nil {
		return mapErr("unlink", u.Redacted(), err)
	}
	return nil
}

func (m *Invoker) Rename(ctx context.Context, oldURL, newURL string) error {
	ou, src, oldPath, err := m.resolve(ctx, "rename", oldURL)
	if err != nil {
		return err
	}
	_, dst, newPath, err := m.resolve(ctx, "rename", newURL)
	if err != nil {
		return err
	}
	if src.share != dst.share {
		return smberr.New("rename", ou.Redacted(), syscall.EXDEV)
	}
	if err := src.share.WithContext(ctx).Rename(oldPath, newPath); err != nil {
		return mapErr("rename", ou.Redacted(), err)
	}
	return nil
}

func (m *Invoker) Stat(ctx context.Context, url string) (*invoker.Stat, error) {
	u, err := smburl.Parse(url)
	if err != nil {
		return nil, err
	}
	switch u.Kind() {
	case smburl.KindWorkgroups:
		return nil, smberr.Newf("stat", u.Redacted(), syscall.ENOTSUP, "workgroup browsing is not supported")
	case smburl.KindShares:
		if _, err := m.connect(ctx, "stat", u); err != nil {
			return nil, err
		}
		return &invoker.Stat{Name: u.Server, Mode: os.ModeDir | 0o555, Nlink: 2}, nil
	}
	u, mt, p, err := m.resolve(ctx, "stat", url)
	if err != nil {
		return nil, err
	}
	fi, err := mt.share.WithContext(ctx).Stat(p)
	if err != nil {
		return nil, mapErr("stat", u.Redacted(), err)
	}
	st := statOf(fi)
	if p == "" {
		st.Name = u.Share
	}
	return st, nil
}

func (m *Invoker) Statvfs(ctx context.Context, url string) (*invoker.StatVFS, error) {
	u, mt, p, err := m.resolve(ctx, "statvfs", url)
	if err != nil {
		return nil, err
	}
	info, err := mt.share.WithContext(ctx).Statfs(p)
	if err != nil {
		return nil, mapErr("statvfs", u.Redacted(), err)
	}
	return &invoker.StatVFS{
		BlockSize:       info.BlockSize(),
		FragmentSize:    info.FragmentSize(),
		Blocks:          info.TotalBlockCount(),
		BlocksFree:      info.FreeBlockCount(),
		BlocksAvail:     info.AvailableBlockCount(),
		NameMax:         255,
		CaseInsensitive: true,
	}, nil
}

func (m *Invoker) Chmod(ctx context.Context, url string, perm fs.FileMode) error {
	u, mt, p, err := m.resolve(ctx, "chmod", url)
	if err != nil {
		return err
	}
	if err := mt.share.WithContext(ctx).Chmod(p, perm); err != nil {
		return mapErr("chmod", u.Redacted(), err)
	}
	return nil
}

func (m *Invoker) Utimes(ctx context.Context, url string, atime, mtime time.Time) error {
	u, mt, p, err := m.resolve(ctx, "utimes", url)
	if err != nil {
		return err
	}
	if err := mt.share.WithContext(ctx).Chtimes(p, atime, mtime); err != nil {
		return mapErr("utimes", u.Redacted(), err)
	}
	return nil
}

// PurgeUnused logs off sessions with no open descriptors.
func (m *Invoker) PurgeUnused(ctx context.Context) int {
	m.mu.Lock()
	var idle []*conn
	for k, c := range m.conns {
		if c.open == 0 {
			idle = append(idle, c)
			delete(m.conns, k)
		}
	}
	m.dropMounts(idle)
	m.mu.Unlock()

	for _, c := range idle {
		c.close()
		logger.DebugCtx(ctx, "smb session purged", logger.Server(c.server))
	}
	return len(idle)
}

// dropMounts forgets every mount served by one of conns. m.mu must be held.
func (m *Invoker) dropMounts(conns []*conn) {
	for k, mt := range m.mounts {
		for _, c := range conns {
			if mt.conn == c {
				delete(m.mounts, k)
				break
			}
		}
	}
}

func (c *conn) close() {
	for _, s := range c.shares {
		_ = s.Umount()
	}
	_ = c.sess.Logoff()
	_ = c.tcp.Close()
}

func (m *Invoker) Shutdown(ctx context.Context, force bool) error {
	open := m.fds.All()
	if len(open) > 0 && !force {
		return smberr.Newf("shutdown", "", syscall.EBUSY, "%d descriptors open", len(open))
	}
	for _, fd := range open {
		if h, ok := m.fds.Remove(fd); ok && h.file != nil {
			_ = h.file.Close()
		}
	}

	m.mu.Lock()
	conns := make([]*conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]*conn)
	m.mounts = make(map[string]*mount)
	m.closed = true
	m.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	logger.DebugCtx(ctx, "smb invoker shut down", logger.Count(len(conns)))
	return nil
}
