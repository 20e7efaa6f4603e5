// Package memory implements invoker.Invoker against an in-process farm of
// fake SMB servers whose shares are go-billy in-memory filesystems.
//
// It is used by tests and by the CLI's offline mode. Shares can demand
// credentials, so authentication and credential resolution are exercised the
// same way as against a real server.
package memory

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/invoker"
)

// DefaultWorkgroup is the workgroup every farm server belongs to.
const DefaultWorkgroup = "WORKGROUP"

// DefaultCapacity is the size reported by Statvfs for shares without an
// explicit capacity.
const DefaultCapacity = 1 << 30

// Share is one exported filesystem.
type Share struct {
	Name     string
	Comment  string
	Type     invoker.DirentType
	ReadOnly bool
	Capacity int64

	// Require, when set, is the only identity allowed to connect.
	// Workgroups compare case-insensitively; an empty required workgroup
	// accepts any.
	Require *auth.Credentials

	fs billy.Filesystem

	mu   sync.Mutex
	meta map[string]meta // keyed by absolute path
}

// meta is what memfs cannot record itself: permission bits and timestamps.
type meta struct {
	mode    fs.FileMode
	modeSet bool
	atime   time.Time
	mtime   time.Time
	btime   time.Time
}

// touch records a modification of p at the current time.
func (s *Share) touch(p string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meta[p]
	if m.btime.IsZero() {
		m.btime = now
	}
	m.atime, m.mtime = now, now
	s.meta[p] = m
}

func (s *Share) setMode(p string, mode fs.FileMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meta[p]
	m.mode, m.modeSet = mode.Perm(), true
	s.meta[p] = m
}

func (s *Share) setTimes(p string, atime, mtime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meta[p]
	if !atime.IsZero() {
		m.atime = atime
	}
	if !mtime.IsZero() {
		m.mtime = mtime
	}
	s.meta[p] = m
}

func under(k, p string) bool {
	return k == p || strings.HasPrefix(k, p+"/")
}

// forget drops p and everything below it.
func (s *Share) forget(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.meta {
		if under(k, p) {
			delete(s.meta, k)
		}
	}
}

// move re-keys the metadata of from and its children under to.
func (s *Share) move(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := make(map[string]meta)
	for k, m := range s.meta {
		switch {
		case under(k, from):
			moved[to+k[len(from):]] = m
			delete(s.meta, k)
		case under(k, to):
			delete(s.meta, k)
		}
	}
	for k, m := range moved {
		s.meta[k] = m
	}
}

// apply overlays recorded metadata on st.
func (s *Share) apply(p string, st *invoker.Stat) {
	s.mu.Lock()
	m, ok := s.meta[p]
	s.mu.Unlock()
	if !ok {
		return
	}
	if m.modeSet {
		st.Mode = st.Mode&^fs.ModePerm | m.mode
	}
	if !m.atime.IsZero() {
		st.Atime = m.atime
	}
	if !m.mtime.IsZero() {
		st.Mtime = m.mtime
		st.Ctime = m.mtime
	}
	if !m.btime.IsZero() {
		st.Btime = m.btime
	}
}

// FS returns the share's filesystem. Paths on it are absolute ("/dir/file").
func (s *Share) FS() billy.Filesystem {
	return s.fs
}

func (s *Share) accepts(c auth.Credentials) bool {
	if s.Require == nil {
		return true
	}
	if s.Require.Workgroup != "" && !strings.EqualFold(s.Require.Workgroup, c.Workgroup) {
		return false
	}
	return s.Require.Username == c.Username && s.Require.Password == c.Password
}

type server struct {
	name   string
	shares map[string]*Share // keyed by lowercased name
}

// Farm is a set of fake servers reachable by name.
// It is safe for concurrent use.
type Farm struct {
	mu        sync.RWMutex
	workgroup string
	servers   map[string]*server
}

// NewFarm creates an empty farm.
func NewFarm() *Farm {
	return &Farm{workgroup: DefaultWorkgroup, servers: make(map[string]*server)}
}

// ShareOption configures a share created by AddShare.
type ShareOption func(*Share)

// WithCredentials makes the share reject every other identity.
func WithCredentials(c auth.Credentials) ShareOption {
	return func(s *Share) { s.Require = &c }
}

// WithComment sets the share comment shown in listings.
func WithComment(comment string) ShareOption {
	return func(s *Share) { s.Comment = comment }
}

// WithType overrides the share type, e.g. invoker.TypePrinterShare.
func WithType(t invoker.DirentType) ShareOption {
	return func(s *Share) { s.Type = t }
}

// WithCapacity sets the total size reported by Statvfs.
func WithCapacity(bytes int64) ShareOption {
	return func(s *Share) { s.Capacity = bytes }
}

// WithFilesystem exports fs instead of a fresh in-memory filesystem, e.g.
// osfs.New(dir) to serve a local directory.
func WithFilesystem(fs billy.Filesystem) ShareOption {
	return func(s *Share) { s.fs = fs }
}

// ReadOnly rejects every modification with EROFS.
func ReadOnly() ShareOption {
	return func(s *Share) { s.ReadOnly = true }
}

// SetWorkgroup renames the workgroup the farm's servers belong to.
func (f *Farm) SetWorkgroup(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workgroup = name
}

// Workgroup returns the farm's workgroup name.
func (f *Farm) Workgroup() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.workgroup
}

// AddShare creates server if needed and exports a fresh in-memory share on
// it. Adding an existing share replaces it.
func (f *Farm) AddShare(serverName, shareName string, opts ...ShareOption) *Share {
	sh := &Share{
		Name:     shareName,
		Type:     invoker.TypeFileShare,
		Capacity: DefaultCapacity,
		fs:       memfs.New(),
		meta:     make(map[string]meta),
	}
	for _, opt := range opts {
		opt(sh)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(serverName)
	srv, ok := f.servers[key]
	if !ok {
		srv = &server{name: serverName, shares: make(map[string]*Share)}
		f.servers[key] = srv
	}
	srv.shares[strings.ToLower(shareName)] = sh
	return sh
}

// RemoveServer takes a server off the farm.
func (f *Farm) RemoveServer(serverName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.servers, strings.ToLower(serverName))
}

func (f *Farm) share(serverName, shareName string) (*Share, bool, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	srv, ok := f.servers[strings.ToLower(serverName)]
	if !ok {
		return nil, false, false
	}
	sh, ok := srv.shares[strings.ToLower(shareName)]
	return sh, true, ok
}

func (f *Farm) hasServer(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.servers[strings.ToLower(name)]
	return ok
}

func (f *Farm) serverNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.servers))
	for _, s := range f.servers {
		names = append(names, s.name)
	}
	sort.Strings(names)
	return names
}

func (f *Farm) shareList(serverName string) ([]*Share, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	srv, ok := f.servers[strings.ToLower(serverName)]
	if !ok {
		return nil, false
	}
	out := make([]*Share, 0, len(srv.shares))
	for _, sh := range srv.shares {
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, true
}

// WriteFile creates or replaces name on the share, creating parents.
// name is relative to the share root.
func (s *Share) WriteFile(name string, data []byte) error {
	p := "/" + strings.TrimPrefix(name, "/")
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := s.fs.Create(p)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// MkdirAll creates a directory tree on the share.
func (s *Share) MkdirAll(name string) error {
	return s.fs.MkdirAll("/"+strings.TrimPrefix(name, "/"), 0o755)
}

// ReadFile returns the contents of name on the share.
func (s *Share) ReadFile(name string) ([]byte, error) {
	f, err := s.fs.Open("/" + strings.TrimPrefix(name, "/"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}
