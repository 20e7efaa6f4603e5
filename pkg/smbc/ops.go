package smbc

import (
	"context"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/marmos91/smbc/internal/telemetry"
	"github.com/marmos91/smbc/pkg/bridge"
	"github.com/marmos91/smbc/pkg/invoker"
)

// Open opens the file at url. flags are os.O_* values; perm applies when
// the file is created.
func (c *Context) Open(ctx context.Context, url string, flags int, perm fs.FileMode) (*File, error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return call(c, ctx, "open", where, c.open(url, where, flags, perm), telemetry.Mode(uint32(perm)))
}

// OpenAsync is the async form of Open.
func (c *Context) OpenAsync(ctx context.Context, url string, flags int, perm fs.FileMode) (*bridge.Future[*File], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "open", where, c.open(url, where, flags, perm), telemetry.Mode(uint32(perm)))
}

func (c *Context) open(url, where string, flags int, perm fs.FileMode) func(ctx context.Context) (*File, error) {
	return func(ctx context.Context) (*File, error) {
		fd, err := c.inv.Open(ctx, url, flags, perm)
		if err != nil {
			return nil, err
		}
		f := &File{c: c, fd: fd, url: url, where: where}
		if err := c.trackFile(f); err != nil {
			return nil, err
		}
		telemetry.SetAttributes(ctx, telemetry.Descriptor(uint64(fd)))
		return f, nil
	}
}

const creatFlags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC

// Creat creates or truncates the file at url and opens it for writing.
func (c *Context) Creat(ctx context.Context, url string, perm fs.FileMode) (*File, error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return call(c, ctx, "creat", where, c.open(url, where, creatFlags, perm), telemetry.Mode(uint32(perm)))
}

// CreatAsync is the async form of Creat.
func (c *Context) CreatAsync(ctx context.Context, url string, perm fs.FileMode) (*bridge.Future[*File], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "creat", where, c.open(url, where, creatFlags, perm), telemetry.Mode(uint32(perm)))
}

// Opendir opens a directory. smb://server lists the server's shares and
// smb:// lists workgroups, where the backend supports it.
func (c *Context) Opendir(ctx context.Context, url string) (*Dir, error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return call(c, ctx, "opendir", where, c.opendir(url, where))
}

// OpendirAsync is the async form of Opendir.
func (c *Context) OpendirAsync(ctx context.Context, url string) (*bridge.Future[*Dir], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "opendir", where, c.opendir(url, where))
}

func (c *Context) opendir(url, where string) func(ctx context.Context) (*Dir, error) {
	return func(ctx context.Context) (*Dir, error) {
		fd, err := c.inv.Opendir(ctx, url)
		if err != nil {
			return nil, err
		}
		d := &Dir{c: c, fd: fd, where: where}
		if err := c.trackDir(d); err != nil {
			return nil, err
		}
		telemetry.SetAttributes(ctx, telemetry.Descriptor(uint64(fd)))
		return d, nil
	}
}

// List returns every entry of the directory at url.
func (c *Context) List(ctx context.Context, url string) ([]invoker.Dirent, error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return call(c, ctx, "list", where, c.list(url))
}

// ListAsync is the async form of List.
func (c *Context) ListAsync(ctx context.Context, url string) (*bridge.Future[[]invoker.Dirent], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "list", where, c.list(url))
}

func (c *Context) list(url string) func(ctx context.Context) ([]invoker.Dirent, error) {
	return func(ctx context.Context) ([]invoker.Dirent, error) {
		fd, err := c.inv.Opendir(ctx, url)
		if err != nil {
			return nil, err
		}
		entries, err := readEntries(ctx, c.inv, fd)
		if cerr := c.inv.Closedir(ctx, fd); err == nil {
			err = cerr
		}
		telemetry.SetAttributes(ctx, telemetry.Entries(len(entries)))
		return entries, err
	}
}

func readEntries(ctx context.Context, inv invoker.Invoker, fd invoker.Descriptor) ([]invoker.Dirent, error) {
	var entries []invoker.Dirent
	for {
		e, err := inv.Readdir(ctx, fd)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, *e)
	}
}

// Mkdir creates a directory.
func (c *Context) Mkdir(ctx context.Context, url string, perm fs.FileMode) error {
	where, err := target(url)
	if err != nil {
		return err
	}
	_, err = call(c, ctx, "mkdir", where, c.mkdir(url, perm), telemetry.Mode(uint32(perm)))
	return err
}

// MkdirAsync is the async form of Mkdir.
func (c *Context) MkdirAsync(ctx context.Context, url string, perm fs.FileMode) (*bridge.Future[struct{}], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "mkdir", where, c.mkdir(url, perm), telemetry.Mode(uint32(perm)))
}

func (c *Context) mkdir(url string, perm fs.FileMode) func(ctx context.Context) (none, error) {
	return discard(func(ctx context.Context) error { return c.inv.Mkdir(ctx, url, perm) })
}

// Rmdir removes an empty directory.
func (c *Context) Rmdir(ctx context.Context, url string) error {
	where, err := target(url)
	if err != nil {
		return err
	}
	_, err = call(c, ctx, "rmdir", where, c.rmdir(url))
	return err
}

// RmdirAsync is the async form of Rmdir.
func (c *Context) RmdirAsync(ctx context.Context, url string) (*bridge.Future[struct{}], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "rmdir", where, c.rmdir(url))
}

func (c *Context) rmdir(url string) func(ctx context.Context) (none, error) {
	return discard(func(ctx context.Context) error { return c.inv.Rmdir(ctx, url) })
}

// Unlink removes a file.
func (c *Context) Unlink(ctx context.Context, url string) error {
	where, err := target(url)
	if err != nil {
		return err
	}
	_, err = call(c, ctx, "unlink", where, c.unlink(url))
	return err
}

// UnlinkAsync is the async form of Unlink.
func (c *Context) UnlinkAsync(ctx context.Context, url string) (*bridge.Future[struct{}], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "unlink", where, c.unlink(url))
}

func (c *Context) unlink(url string) func(ctx context.Context) (none, error) {
	return discard(func(ctx context.Context) error { return c.inv.Unlink(ctx, url) })
}

// Rename moves oldURL to newURL. Both must be on the same share.
func (c *Context) Rename(ctx context.Context, oldURL, newURL string) error {
	where, err := renameTarget(oldURL, newURL)
	if err != nil {
		return err
	}
	_, err = call(c, ctx, "rename", where, c.rename(oldURL, newURL))
	return err
}

// RenameAsync is the async form of Rename.
func (c *Context) RenameAsync(ctx context.Context, oldURL, newURL string) (*bridge.Future[struct{}], error) {
	where, err := renameTarget(oldURL, newURL)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "rename", where, c.rename(oldURL, newURL))
}

func renameTarget(oldURL, newURL string) (string, error) {
	from, err := target(oldURL)
	if err != nil {
		return "", err
	}
	to, err := target(newURL)
	if err != nil {
		return "", err
	}
	return from + " -> " + to, nil
}

func (c *Context) rename(oldURL, newURL string) func(ctx context.Context) (none, error) {
	return discard(func(ctx context.Context) error { return c.inv.Rename(ctx, oldURL, newURL) })
}

// Stat returns metadata for url.
func (c *Context) Stat(ctx context.Context, url string) (*invoker.Stat, error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return call(c, ctx, "stat", where, c.stat(url))
}

// StatAsync is the async form of Stat.
func (c *Context) StatAsync(ctx context.Context, url string) (*bridge.Future[*invoker.Stat], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "stat", where, c.stat(url))
}

func (c *Context) stat(url string) func(ctx context.Context) (*invoker.Stat, error) {
	return func(ctx context.Context) (*invoker.Stat, error) { return c.inv.Stat(ctx, url) }
}

// Statvfs describes the filesystem of the share holding url.
func (c *Context) Statvfs(ctx context.Context, url string) (*invoker.StatVFS, error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return call(c, ctx, "statvfs", where, c.statvfs(url))
}

// StatvfsAsync is the async form of Statvfs.
func (c *Context) StatvfsAsync(ctx context.Context, url string) (*bridge.Future[*invoker.StatVFS], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "statvfs", where, c.statvfs(url))
}

func (c *Context) statvfs(url string) func(ctx context.Context) (*invoker.StatVFS, error) {
	return func(ctx context.Context) (*invoker.StatVFS, error) { return c.inv.Statvfs(ctx, url) }
}

// Chmod changes permission bits. Most servers only honour the write bit.
func (c *Context) Chmod(ctx context.Context, url string, perm fs.FileMode) error {
	where, err := target(url)
	if err != nil {
		return err
	}
	_, err = call(c, ctx, "chmod", where, c.chmod(url, perm), telemetry.Mode(uint32(perm)))
	return err
}

// ChmodAsync is the async form of Chmod.
func (c *Context) ChmodAsync(ctx context.Context, url string, perm fs.FileMode) (*bridge.Future[struct{}], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "chmod", where, c.chmod(url, perm), telemetry.Mode(uint32(perm)))
}

func (c *Context) chmod(url string, perm fs.FileMode) func(ctx context.Context) (none, error) {
	return discard(func(ctx context.Context) error { return c.inv.Chmod(ctx, url, perm) })
}

// Utimes sets access and modification times.
func (c *Context) Utimes(ctx context.Context, url string, atime, mtime time.Time) error {
	where, err := target(url)
	if err != nil {
		return err
	}
	_, err = call(c, ctx, "utimes", where, c.utimes(url, atime, mtime))
	return err
}

// UtimesAsync is the async form of Utimes.
func (c *Context) UtimesAsync(ctx context.Context, url string, atime, mtime time.Time) (*bridge.Future[struct{}], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "utimes", where, c.utimes(url, atime, mtime))
}

func (c *Context) utimes(url string, atime, mtime time.Time) func(ctx context.Context) (none, error) {
	return discard(func(ctx context.Context) error { return c.inv.Utimes(ctx, url, atime, mtime) })
}

// ReadFile returns the whole content of the file at url.
func (c *Context) ReadFile(ctx context.Context, url string) ([]byte, error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return call(c, ctx, "read_file", where, c.readFile(url))
}

// ReadFileAsync is the async form of ReadFile.
func (c *Context) ReadFileAsync(ctx context.Context, url string) (*bridge.Future[[]byte], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "read_file", where, c.readFile(url))
}

func (c *Context) readFile(url string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		fd, err := c.inv.Open(ctx, url, os.O_RDONLY, 0)
		if err != nil {
			return nil, err
		}
		data, err := readAll(ctx, c.inv, fd, -1, c.readChunk)
		if cerr := c.inv.Close(ctx, fd); err == nil {
			err = cerr
		}
		c.observeBytes(ctx, "read", len(data), 0)
		return data, err
	}
}

// WriteFile creates or truncates the file at url and writes data to it.
func (c *Context) WriteFile(ctx context.Context, url string, data []byte, perm fs.FileMode) error {
	where, err := target(url)
	if err != nil {
		return err
	}
	_, err = call(c, ctx, "write_file", where, c.writeFile(url, data, perm), telemetry.Size(int64(len(data))))
	return err
}

// WriteFileAsync is the async form of WriteFile. data must not be modified
// until the Future completes.
func (c *Context) WriteFileAsync(ctx context.Context, url string, data []byte, perm fs.FileMode) (*bridge.Future[struct{}], error) {
	where, err := target(url)
	if err != nil {
		return nil, err
	}
	return callAsync(c, ctx, "write_file", where, c.writeFile(url, data, perm), telemetry.Size(int64(len(data))))
}

func (c *Context) writeFile(url string, data []byte, perm fs.FileMode) func(ctx context.Context) (none, error) {
	return discard(func(ctx context.Context) error {
		fd, err := c.inv.Open(ctx, url, creatFlags, perm)
		if err != nil {
			return err
		}
		n, err := writeAll(ctx, c.inv, fd, data)
		if cerr := c.inv.Close(ctx, fd); err == nil {
			err = cerr
		}
		c.observeBytes(ctx, "write", 0, n)
		return err
	})
}
