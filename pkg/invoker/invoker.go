// Package invoker defines the boundary between smbc sessions and the code
// that actually talks to SMB servers.
//
// An Invoker exposes a fixed set of blocking, URL-addressed operations in the
// style of a POSIX client library. Files and directories are referenced by
// opaque Descriptors. Invokers are not required to be safe for concurrent
// use: a session calls into its Invoker from one goroutine at a time (the
// application goroutine for synchronous calls, the bridge worker for
// asynchronous ones).
package invoker

import (
	"context"
	"io/fs"
	"os"
	"time"

	"github.com/marmos91/smbc/pkg/auth"
)

// Descriptor is an opaque reference to an open file or directory.
type Descriptor uint64

// BaseDescriptor is the first descriptor number handed out by the bundled
// backends, chosen to stay clear of process file descriptors.
const BaseDescriptor Descriptor = 10000

// Invoker is the operation capability set consumed by smbc sessions.
//
// Every error returned is an *smberr.Error carrying an errno, except
// credential validation failures which wrap smberr.ErrValidation.
type Invoker interface {
	// Open opens the file at url. flags are os.O_* values.
	Open(ctx context.Context, url string, flags int, perm fs.FileMode) (Descriptor, error)
	Read(ctx context.Context, fd Descriptor, p []byte) (int, error)
	Write(ctx context.Context, fd Descriptor, p []byte) (int, error)
	Seek(ctx context.Context, fd Descriptor, offset int64, whence int) (int64, error)
	Fstat(ctx context.Context, fd Descriptor) (*Stat, error)
	Ftruncate(ctx context.Context, fd Descriptor, size int64) error
	Close(ctx context.Context, fd Descriptor) error

	// Opendir opens a directory, a share list (smb://server) or the
	// workgroup list (smb://).
	Opendir(ctx context.Context, url string) (Descriptor, error)
	// Readdir returns the next entry, or io.EOF after the last one.
	Readdir(ctx context.Context, fd Descriptor) (*Dirent, error)
	Telldir(ctx context.Context, fd Descriptor) (int64, error)
	Lseekdir(ctx context.Context, fd Descriptor, offset int64) error
	Closedir(ctx context.Context, fd Descriptor) error

	Mkdir(ctx context.Context, url string, perm fs.FileMode) error
	Rmdir(ctx context.Context, url string) error
	Unlink(ctx context.Context, url string) error
	Rename(ctx context.Context, oldURL, newURL string) error
	Stat(ctx context.Context, url string) (*Stat, error)
	Statvfs(ctx context.Context, url string) (*StatVFS, error)
	Chmod(ctx context.Context, url string, perm fs.FileMode) error
	Utimes(ctx context.Context, url string, atime, mtime time.Time) error

	// PurgeUnused drops cached server connections that have no open
	// descriptors and returns how many were dropped.
	PurgeUnused(ctx context.Context) int

	// Shutdown closes every descriptor and connection. With force unset it
	// fails with EBUSY while descriptors are open.
	Shutdown(ctx context.Context, force bool) error
}

// AuthFunc supplies the credentials for a new connection to (server, share).
// embedded holds the fields carried in the URL itself. Share is empty when
// the connection targets the server's share list.
type AuthFunc func(ctx context.Context, server, share string, embedded auth.Override) (auth.Credentials, error)

// Factory builds an Invoker that authenticates through authFn.
type Factory func(authFn AuthFunc) (Invoker, error)

// DirentType classifies a directory entry.
type DirentType uint32

const (
	TypeWorkgroup    DirentType = 1
	TypeServer       DirentType = 2
	TypeFileShare    DirentType = 3
	TypePrinterShare DirentType = 4
	TypeCommsShare   DirentType = 5
	TypeIPCShare     DirentType = 6
	TypeDir          DirentType = 7
	TypeFile         DirentType = 8
	TypeLink         DirentType = 9
)

func (t DirentType) String() string {
	switch t {
	case TypeWorkgroup:
		return "workgroup"
	case TypeServer:
		return "server"
	case TypeFileShare:
		return "file_share"
	case TypePrinterShare:
		return "printer_share"
	case TypeCommsShare:
		return "comms_share"
	case TypeIPCShare:
		return "ipc_share"
	case TypeDir:
		return "dir"
	case TypeFile:
		return "file"
	case TypeLink:
		return "link"
	default:
		return "unknown"
	}
}

// Dirent is one entry returned by Readdir.
type Dirent struct {
	Type    DirentType `json:"type" yaml:"type"`
	Name    string     `json:"name" yaml:"name"`
	Comment string     `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// IsDir reports whether the entry can be opened with Opendir.
func (d *Dirent) IsDir() bool {
	return d.Type != TypeFile && d.Type != TypeLink
}

// Stat is file metadata in POSIX terms.
type Stat struct {
	Name  string
	Size  int64
	Mode  fs.FileMode
	Ino   uint64
	Nlink uint64
	UID   uint32
	GID   uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Btime time.Time // creation time, zero when unknown

	// Attributes holds the raw SMB file attributes, when known.
	Attributes uint32
}

// IsDir reports whether the entry is a directory.
func (s *Stat) IsDir() bool {
	return s.Mode.IsDir()
}

// FileInfo adapts s to fs.FileInfo.
func (s *Stat) FileInfo() fs.FileInfo {
	return statInfo{s}
}

type statInfo struct{ s *Stat }

func (i statInfo) Name() string       { return i.s.Name }
func (i statInfo) Size() int64        { return i.s.Size }
func (i statInfo) Mode() fs.FileMode  { return i.s.Mode }
func (i statInfo) ModTime() time.Time { return i.s.Mtime }
func (i statInfo) IsDir() bool        { return i.s.Mode.IsDir() }
func (i statInfo) Sys() any           { return i.s }

// StatFromFileInfo fills a Stat from a generic fs.FileInfo.
func StatFromFileInfo(fi fs.FileInfo) *Stat {
	st := &Stat{
		Name:  fi.Name(),
		Size:  fi.Size(),
		Mode:  fi.Mode(),
		Nlink: 1,
		Atime: fi.ModTime(),
		Mtime: fi.ModTime(),
		Ctime: fi.ModTime(),
	}
	if fi.IsDir() {
		st.Mode |= os.ModeDir
		st.Nlink = 2
	}
	return st
}

// StatVFS describes the filesystem holding a share.
type StatVFS struct {
	BlockSize       uint64
	FragmentSize    uint64
	Blocks          uint64
	BlocksFree      uint64
	BlocksAvail     uint64
	Files           uint64
	FilesFree       uint64
	NameMax         uint64
	ReadOnly        bool
	CaseInsensitive bool
}
