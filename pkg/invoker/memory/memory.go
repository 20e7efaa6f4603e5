package memory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"os"
	pathpkg "path"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/marmos91/smbc/internal/logger"
	"github.com/marmos91/smbc/internal/smbstatus"
	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/invoker"
	"github.com/marmos91/smbc/pkg/smberr"
	"github.com/marmos91/smbc/pkg/smburl"
)

const (
	blockSize = 4096
	nameMax   = 255
	ipcShare  = "IPC$"
)

// session is an authenticated connection to one share, or to a server's
// share list when share is nil.
type session struct {
	key   string
	share *Share
	creds auth.Credentials
	open  int
}

type handle struct {
	sess  *session
	url   string
	path  string // absolute path inside the share filesystem
	flags int
	file  billy.File

	dir     bool
	entries []invoker.Dirent
	pos     int
}

// Invoker serves invoker operations from a Farm.
type Invoker struct {
	farm   *Farm
	authFn invoker.AuthFunc

	mu       sync.Mutex
	sessions map[string]*session
	fds      *invoker.Descriptors[*handle]
	closed   bool
}

var _ invoker.Invoker = (*Invoker)(nil)

// New creates an Invoker connected to farm.
func New(farm *Farm, authFn invoker.AuthFunc) *Invoker {
	return &Invoker{
		farm:     farm,
		authFn:   authFn,
		sessions: make(map[string]*session),
		fds:      invoker.NewDescriptors[*handle](),
	}
}

// Factory returns an invoker.Factory bound to farm.
func Factory(farm *Farm) invoker.Factory {
	return func(authFn invoker.AuthFunc) (invoker.Invoker, error) {
		return New(farm, authFn), nil
	}
}

// Sessions returns the number of cached connections.
func (m *Invoker) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
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

// connect returns a cached session for the URL target or authenticates a
// new one through authFn.
func (m *Invoker) connect(ctx context.Context, op string, u *smburl.URL) (*session, error) {
	path := u.Redacted()
	if !m.farm.hasServer(u.Server) {
		return nil, smberr.Newf(op, path, syscall.ENOENT, "server %q not found", u.Server)
	}
	var sh *Share
	if u.Share != "" && !strings.EqualFold(u.Share, ipcShare) {
		s, _, ok := m.farm.share(u.Server, u.Share)
		if !ok {
			return nil, smberr.Newf(op, path, syscall.ENOENT, "%s", smbstatus.BadNetworkName)
		}
		sh = s
	}

	embedded := u.Credentials()
	key := strings.ToLower(u.Server) + "/" + strings.ToLower(u.Share) + "/" + overrideKey(embedded)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, smberr.Newf(op, path, syscall.EBADF, "invoker shut down")
	}
	if s, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	creds, err := m.authFn(ctx, u.Server, u.Share, embedded)
	if err != nil {
		return nil, err
	}
	if sh != nil && !sh.accepts(creds) {
		logger.DebugCtx(ctx, "memory logon rejected",
			logger.Server(u.Server), logger.Share(u.Share), logger.Username(creds.Username))
		return nil, smberr.Newf(op, path, syscall.EACCES, "%s", smbstatus.LogonFailure)
	}

	s := &session{key: key, share: sh, creds: creds}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[key]; ok {
		return existing, nil
	}
	m.sessions[key] = s
	return s, nil
}

// resolve parses raw, connects to its share and returns the share-relative
// absolute path.
func (m *Invoker) resolve(ctx context.Context, op, raw string) (*smburl.URL, *session, string, error) {
	u, err := smburl.Parse(raw)
	if err != nil {
		return nil, nil, "", err
	}
	if u.Kind() != smburl.KindShare && u.Kind() != smburl.KindPath {
		return nil, nil, "", smberr.Newf(op, u.Redacted(), syscall.EINVAL, "not a share path")
	}
	s, err := m.connect(ctx, op, u)
	if err != nil {
		return nil, nil, "", err
	}
	if s.share == nil {
		return nil, nil, "", smberr.Newf(op, u.Redacted(), syscall.ENOTSUP, "IPC share has no filesystem")
	}
	return u, s, "/" + u.Path, nil
}

func fail(op, path string, err error) error {
	var se *smberr.Error
	if errors.As(err, &se) {
		return err
	}
	return smberr.Wrap(op, path, invoker.ErrnoOf(err), err)
}

func isDir(fsys billy.Filesystem, p string) (bool, error) {
	if p == "/" {
		return true, nil
	}
	fi, err := fsys.Stat(p)
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

// checkParent fails with ENOENT or ENOTDIR unless the parent of p is an
// existing directory. memfs creates missing parents on its own.
func checkParent(op, where string, fsys billy.Filesystem, p string) error {
	dir, err := isDir(fsys, pathpkg.Dir(p))
	if err != nil {
		return fail(op, where, err)
	}
	if !dir {
		return smberr.New(op, where, syscall.ENOTDIR)
	}
	return nil
}

func writable(flags int) bool {
	return flags&(os.O_WRONLY|os.O_RDWR) != 0
}

func (m *Invoker) Open(ctx context.Context, url string, flags int, perm fs.FileMode) (invoker.Descriptor, error) {
	u, s, p, err := m.resolve(ctx, "open", url)
	if err != nil {
		return 0, err
	}
	where := u.Redacted()
	fsys := s.share.fs

	if p == "/" {
		return 0, smberr.New("open", where, syscall.EISDIR)
	}
	if s.share.ReadOnly && (writable(flags) || flags&(os.O_CREATE|os.O_TRUNC) != 0) {
		return 0, smberr.Newf("open", where, syscall.EROFS, "%s", smbstatus.MediaWriteProtected)
	}
	if err := checkParent("open", where, fsys, p); err != nil {
		return 0, err
	}

	fi, statErr := fsys.Stat(p)
	switch {
	case statErr == nil && fi.IsDir():
		return 0, smberr.New("open", where, syscall.EISDIR)
	case statErr == nil && flags&os.O_CREATE != 0 && flags&os.O_EXCL != 0:
		return 0, smberr.Newf("open", where, syscall.EEXIST, "%s", smbstatus.ObjectNameCollision)
	case errors.Is(statErr, fs.ErrNotExist) && flags&os.O_CREATE == 0:
		return 0, smberr.Newf("open", where, syscall.ENOENT, "%s", smbstatus.ObjectNameNotFound)
	case statErr != nil && !errors.Is(statErr, fs.ErrNotExist):
		return 0, fail("open", where, statErr)
	}

	if perm == 0 {
		perm = 0o644
	}
	f, err := fsys.OpenFile(p, flags, perm.Perm())
	if err != nil {
		return 0, fail("open", where, err)
	}
	if statErr != nil {
		s.share.touch(p)
		s.share.setMode(p, perm)
	} else if flags&os.O_TRUNC != 0 {
		s.share.touch(p)
	}

	m.mu.Lock()
	s.open++
	m.mu.Unlock()
	return m.fds.Add(&handle{sess: s, url: where, path: p, flags: flags, file: f}), nil
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
	if h.flags&os.O_WRONLY != 0 {
		return 0, smberr.New("read", h.url, syscall.EBADF)
	}
	n, err := h.file.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	if err != nil {
		return n, fail("read", h.url, err)
	}
	return n, nil
}

func (m *Invoker) Write(_ context.Context, fd invoker.Descriptor, p []byte) (int, error) {
	h, err := m.file("write", fd)
	if err != nil {
		return 0, err
	}
	if !writable(h.flags) {
		return 0, smberr.New("write", h.url, syscall.EBADF)
	}
	if h.flags&os.O_APPEND != 0 {
		if _, err := h.file.Seek(0, io.SeekEnd); err != nil {
			return 0, fail("write", h.url, err)
		}
	}
	n, err := h.file.Write(p)
	if n > 0 {
		h.sess.share.touch(h.path)
	}
	if err != nil {
		return n, fail("write", h.url, err)
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
		return 0, fail("lseek", h.url, err)
	}
	if pos < 0 {
		return 0, smberr.New("lseek", h.url, syscall.EINVAL)
	}
	return pos, nil
}

func (m *Invoker) Fstat(_ context.Context, fd invoker.Descriptor) (*invoker.Stat, error) {
	h, err := m.file("fstat", fd)
	if err != nil {
		return nil, err
	}
	return m.stat("fstat", h.url, h.sess, h.path)
}

func (m *Invoker) Ftruncate(_ context.Context, fd invoker.Descriptor, size int64) error {
	h, err := m.file("ftruncate", fd)
	if err != nil {
		return err
	}
	if size < 0 {
		return smberr.New("ftruncate", h.url, syscall.EINVAL)
	}
	if !writable(h.flags) {
		return smberr.New("ftruncate", h.url, syscall.EBADF)
	}
	if err := h.file.Truncate(size); err != nil {
		return fail("ftruncate", h.url, err)
	}
	h.sess.share.touch(h.path)
	return nil
}

func (m *Invoker) Close(_ context.Context, fd invoker.Descriptor) error {
	h, err := m.file("close", fd)
	if err != nil {
		return err
	}
	m.release(fd, h)
	if err := h.file.Close(); err != nil {
		return fail("close", h.url, err)
	}
	return nil
}

func (m *Invoker) release(fd invoker.Descriptor, h *handle) {
	m.fds.Remove(fd)
	if h.sess == nil {
		return
	}
	m.mu.Lock()
	h.sess.open--
	m.mu.Unlock()
}

func (m *Invoker) Opendir(ctx context.Context, url string) (invoker.Descriptor, error) {
	u, err := smburl.Parse(url)
	if err != nil {
		return 0, err
	}
	where := u.Redacted()

	var (
		s       *session
		entries []invoker.Dirent
	)
	switch u.Kind() {
	case smburl.KindWorkgroups:
		entries = []invoker.Dirent{{Type: invoker.TypeWorkgroup, Name: m.farm.Workgroup()}}

	case smburl.KindShares:
		if strings.EqualFold(u.Server, m.farm.Workgroup()) && !m.farm.hasServer(u.Server) {
			for _, name := range m.farm.serverNames() {
				entries = append(entries, invoker.Dirent{Type: invoker.TypeServer, Name: name})
			}
			break
		}
		if s, err = m.connect(ctx, "opendir", u); err != nil {
			return 0, err
		}
		shares, _ := m.farm.shareList(u.Server)
		for _, sh := range shares {
			entries = append(entries, invoker.Dirent{Type: sh.Type, Name: sh.Name, Comment: sh.Comment})
		}
		entries = append(entries, invoker.Dirent{Type: invoker.TypeIPCShare, Name: ipcShare, Comment: "IPC Service"})

	default:
		var p string
		if _, s, p, err = m.resolve(ctx, "opendir", url); err != nil {
			return 0, err
		}
		dir, err := isDir(s.share.fs, p)
		if err != nil {
			return 0, fail("opendir", where, err)
		}
		if !dir {
			return 0, smberr.New("opendir", where, syscall.ENOTDIR)
		}
		infos, err := s.share.fs.ReadDir(p)
		if err != nil {
			return 0, fail("opendir", where, err)
		}
		for _, fi := range infos {
			t := invoker.TypeFile
			if fi.IsDir() {
				t = invoker.TypeDir
			}
			entries = append(entries, invoker.Dirent{Type: t, Name: fi.Name()})
		}
	}

	if s != nil {
		m.mu.Lock()
		s.open++
		m.mu.Unlock()
	}
	return m.fds.Add(&handle{sess: s, url: where, dir: true, entries: entries}), nil
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
	m.release(fd, h)
	return nil
}

// mutate resolves url for a modifying operation on a writable share.
func (m *Invoker) mutate(ctx context.Context, op, url string) (string, *session, string, error) {
	u, s, p, err := m.resolve(ctx, op, url)
	if err != nil {
		return "", nil, "", err
	}
	if s.share.ReadOnly {
		return "", nil, "", smberr.Newf(op, u.Redacted(), syscall.EROFS, "%s", smbstatus.MediaWriteProtected)
	}
	if p == "/" {
		return "", nil, "", smberr.Newf(op, u.Redacted(), syscall.EBUSY, "share root")
	}
	return u.Redacted(), s, p, nil
}

func (m *Invoker) Mkdir(ctx context.Context, url string, perm fs.FileMode) error {
	where, s, p, err := m.mutate(ctx, "mkdir", url)
	if err != nil {
		if smberr.Code(err) == syscall.EBUSY {
			return smberr.New("mkdir", smburl.Redact(url), syscall.EEXIST)
		}
		return err
	}
	fsys := s.share.fs
	if _, err := fsys.Stat(p); err == nil {
		return smberr.Newf("mkdir", where, syscall.EEXIST, "%s", smbstatus.ObjectNameCollision)
	}
	if err := checkParent("mkdir", where, fsys, p); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o755
	}
	if err := fsys.MkdirAll(p, perm.Perm()); err != nil {
		return fail("mkdir", where, err)
	}
	s.share.touch(p)
	s.share.setMode(p, perm)
	return nil
}

func (m *Invoker) Rmdir(ctx context.Context, url string) error {
	where, s, p, err := m.mutate(ctx, "rmdir", url)
	if err != nil {
		return err
	}
	fsys := s.share.fs
	dir, err := isDir(fsys, p)
	if err != nil {
		return fail("rmdir", where, err)
	}
	if !dir {
		return smberr.New("rmdir", where, syscall.ENOTDIR)
	}
	children, err := fsys.ReadDir(p)
	if err != nil {
		return fail("rmdir", where, err)
	}
	if len(children) > 0 {
		return smberr.Newf("rmdir", where, syscall.ENOTEMPTY, "%s", smbstatus.DirectoryNotEmpty)
	}
	if err := fsys.Remove(p); err != nil {
		return fail("rmdir", where, err)
	}
	s.share.forget(p)
	return nil
}

func (m *Invoker) Unlink(ctx context.Context, url string) error {
	where, s, p, err := m.mutate(ctx, "unlink", url)
	if err != nil {
		return err
	}
	dir, err := isDir(s.share.fs, p)
	if err != nil {
		return fail("unlink", where, err)
	}
	if dir {
		return smberr.Newf("unlink", where, syscall.EISDIR, "%s", smbstatus.FileIsADirectory)
	}
	if err := s.share.fs.Remove(p); err != nil {
		return fail("unlink", where, err)
	}
	s.share.forget(p)
	return nil
}

func (m *Invoker) Rename(ctx context.Context, oldURL, newURL string) error {
	where, src, oldPath, err := m.mutate(ctx, "rename", oldURL)
	if err != nil {
		return err
	}
	_, dst, newPath, err := m.mutate(ctx, "rename", newURL)
	if err != nil {
		return err
	}
	if src.share != dst.share {
		return smberr.Newf("rename", where, syscall.EXDEV, "%s", smbstatus.NotSameDevice)
	}
	fsys := src.share.fs

	srcDir, err := isDir(fsys, oldPath)
	if err != nil {
		return fail("rename", where, err)
	}
	if err := checkParent("rename", smburl.Redact(newURL), fsys, newPath); err != nil {
		return err
	}
	if oldPath == newPath {
		return nil
	}
	if srcDir && strings.HasPrefix(newPath, oldPath+"/") {
		return smberr.New("rename", where, syscall.EINVAL)
	}
	if fi, err := fsys.Stat(newPath); err == nil {
		switch {
		case fi.IsDir() && !srcDir:
			return smberr.New("rename", where, syscall.EISDIR)
		case !fi.IsDir() && srcDir:
			return smberr.New("rename", where, syscall.ENOTDIR)
		case fi.IsDir():
			children, _ := fsys.ReadDir(newPath)
			if len(children) > 0 {
				return smberr.New("rename", where, syscall.ENOTEMPTY)
			}
		}
		if err := fsys.Remove(newPath); err != nil {
			return fail("rename", where, err)
		}
	}
	if err := fsys.Rename(oldPath, newPath); err != nil {
		return fail("rename", where, err)
	}
	src.share.move(oldPath, newPath)
	return nil
}

func (m *Invoker) Stat(ctx context.Context, url string) (*invoker.Stat, error) {
	u, err := smburl.Parse(url)
	if err != nil {
		return nil, err
	}
	if u.Kind() == smburl.KindWorkgroups || u.Kind() == smburl.KindShares {
		if _, err := m.connectListing(ctx, u); err != nil {
			return nil, err
		}
		return &invoker.Stat{Name: u.Name(), Mode: os.ModeDir | 0o555, Nlink: 2}, nil
	}
	u, s, p, err := m.resolve(ctx, "stat", url)
	if err != nil {
		return nil, err
	}
	return m.stat("stat", u.Redacted(), s, p)
}

func (m *Invoker) connectListing(ctx context.Context, u *smburl.URL) (*session, error) {
	if u.Kind() == smburl.KindWorkgroups || strings.EqualFold(u.Server, m.farm.Workgroup()) {
		return nil, nil
	}
	return m.connect(ctx, "stat", u)
}

func (m *Invoker) stat(op, where string, s *session, p string) (*invoker.Stat, error) {
	var st *invoker.Stat
	if p == "/" {
		st = &invoker.Stat{Name: s.share.Name, Mode: os.ModeDir | 0o755, Nlink: 2}
	} else {
		fi, err := s.share.fs.Stat(p)
		if err != nil {
			return nil, fail(op, where, err)
		}
		st = invoker.StatFromFileInfo(fi)
		s.share.apply(p, st)
	}
	if s.share.ReadOnly {
		st.Mode &^= 0o222
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(s.key + p))
	st.Ino = h.Sum64()
	return st, nil
}

func (m *Invoker) Statvfs(ctx context.Context, url string) (*invoker.StatVFS, error) {
	_, s, _, err := m.resolve(ctx, "statvfs", url)
	if err != nil {
		return nil, err
	}
	used, files := usage(s.share.fs, "/")
	blocks := uint64(s.share.Capacity) / blockSize
	usedBlocks := (uint64(used) + blockSize - 1) / blockSize
	free := uint64(0)
	if blocks > usedBlocks {
		free = blocks - usedBlocks
	}
	return &invoker.StatVFS{
		BlockSize:    blockSize,
		FragmentSize: blockSize,
		Blocks:       blocks,
		BlocksFree:   free,
		BlocksAvail:  free,
		Files:        files,
		FilesFree:    free,
		NameMax:      nameMax,
		ReadOnly:     s.share.ReadOnly,
	}, nil
}

// usage sums file sizes and counts entries below dir.
func usage(fsys billy.Filesystem, dir string) (int64, uint64) {
	infos, err := fsys.ReadDir(dir)
	if err != nil {
		return 0, 0
	}
	var size int64
	var count uint64
	for _, fi := range infos {
		count++
		if fi.IsDir() {
			s, c := usage(fsys, pathpkg.Join(dir, fi.Name()))
			size += s
			count += c
			continue
		}
		size += fi.Size()
	}
	return size, count
}

func (m *Invoker) Chmod(ctx context.Context, url string, perm fs.FileMode) error {
	where, s, p, err := m.mutate(ctx, "chmod", url)
	if err != nil {
		return err
	}
	if _, err := s.share.fs.Stat(p); err != nil {
		return fail("chmod", where, err)
	}
	if ch, ok := s.share.fs.(billy.Change); ok {
		if err := ch.Chmod(p, perm.Perm()); err != nil {
			return fail("chmod", where, err)
		}
	}
	s.share.setMode(p, perm)
	return nil
}

func (m *Invoker) Utimes(ctx context.Context, url string, atime, mtime time.Time) error {
	where, s, p, err := m.mutate(ctx, "utimes", url)
	if err != nil {
		return err
	}
	if _, err := s.share.fs.Stat(p); err != nil {
		return fail("utimes", where, err)
	}
	if ch, ok := s.share.fs.(billy.Change); ok {
		if err := ch.Chtimes(p, atime, mtime); err != nil {
			return fail("utimes", where, err)
		}
	}
	s.share.setTimes(p, atime, mtime)
	return nil
}

func (m *Invoker) PurgeUnused(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, s := range m.sessions {
		if s.open == 0 {
			delete(m.sessions, k)
			n++
		}
	}
	return n
}

func (m *Invoker) Shutdown(_ context.Context, force bool) error {
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
	defer m.mu.Unlock()
	m.sessions = make(map[string]*session)
	m.closed = true
	return nil
}
