package smbc

import (
	"bytes"
	"context"
	"io"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/smbc/pkg/smberr"
)

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func TestReadNGrowsBuffer(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t, WithReadChunk(16))

	want := payload(1000)
	require.NoError(t, c.WriteFile(ctx, "smb://fs/public/big", want, 0o644))

	f, err := c.Open(ctx, "smb://fs/public/big", os.O_RDONLY, 0)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	got, err := f.ReadN(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	got, err = f.ReadN(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, want[:10], got)

	_, err = f.Seek(-5, io.SeekEnd)
	require.NoError(t, err)
	got, err = f.ReadN(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, want[995:], got, "short only at end of file")

	got, err = f.ReadN(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadFileEmpty(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t)

	require.NoError(t, c.WriteFile(ctx, "smb://fs/public/empty", nil, 0o644))
	data, err := c.ReadFile(ctx, "smb://fs/public/empty")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileAsIOReaderWriter(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t)

	want := payload(5000)
	w, err := c.Creat(ctx, "smb://fs/public/copy", 0o644)
	require.NoError(t, err)
	n, err := io.Copy(w, bytes.NewReader(want))
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), n)
	require.NoError(t, w.Close())

	r, err := c.Open(ctx, "smb://fs/public/copy", os.O_RDONLY, 0)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	n2, err := r.Read(make([]byte, 8))
	assert.Zero(t, n2)
	assert.Equal(t, io.EOF, err)
	require.NoError(t, r.Close())
}

func TestWriteOnReadOnlyHandle(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t)

	require.NoError(t, c.WriteFile(ctx, "smb://fs/public/f", []byte("x"), 0o644))
	f, err := c.Open(ctx, "smb://fs/public/f", os.O_RDONLY, 0)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	err = f.WriteAll(ctx, []byte("y"))
	assert.Equal(t, syscall.EBADF, errnoOf(t, err))
}

func TestFileStatvfs(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t)

	f, err := c.Creat(ctx, "smb://fs/public/f", 0o644)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	vfs, err := f.Statvfs(ctx)
	require.NoError(t, err)
	assert.NotZero(t, vfs.Blocks)
}

func TestSplice(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t)

	want := payload(3*spliceChunk + 100)
	require.NoError(t, c.WriteFile(ctx, "smb://fs/public/src", want, 0o644))

	src, err := c.Open(ctx, "smb://fs/public/src", os.O_RDONLY, 0)
	require.NoError(t, err)
	defer func() { _ = src.Close() }()
	dst, err := c.Creat(ctx, "smb://fs/public/dst", 0o644)
	require.NoError(t, err)

	var calls int
	copied, err := src.Splice(ctx, dst, -1, func(n int64) bool {
		calls++
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), copied)
	assert.Equal(t, 4, calls)
	require.NoError(t, dst.Close())

	got, err := c.ReadFile(ctx, "smb://fs/public/dst")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSpliceCount(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t)

	require.NoError(t, c.WriteFile(ctx, "smb://fs/public/src", payload(100), 0o644))
	src, err := c.Open(ctx, "smb://fs/public/src", os.O_RDONLY, 0)
	require.NoError(t, err)
	defer func() { _ = src.Close() }()
	dst, err := c.Creat(ctx, "smb://fs/public/dst", 0o644)
	require.NoError(t, err)
	defer func() { _ = dst.Close() }()

	copied, err := src.Splice(ctx, dst, 40, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(40), copied)

	st, err := dst.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(40), st.Size)
}

func TestSpliceProgressCancels(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t)

	require.NoError(t, c.WriteFile(ctx, "smb://fs/public/src", payload(2*spliceChunk), 0o644))
	src, err := c.Open(ctx, "smb://fs/public/src", os.O_RDONLY, 0)
	require.NoError(t, err)
	defer func() { _ = src.Close() }()
	dst, err := c.Creat(ctx, "smb://fs/public/dst", 0o644)
	require.NoError(t, err)
	defer func() { _ = dst.Close() }()

	copied, err := src.Splice(ctx, dst, -1, func(int64) bool { return false })
	assert.Equal(t, syscall.ECANCELED, errnoOf(t, err))
	assert.Equal(t, int64(spliceChunk), copied)
}

func TestSpliceAcrossContexts(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestContext(t)
	b, _ := newTestContext(t)

	src, err := a.Creat(ctx, "smb://fs/public/src", 0o644)
	require.NoError(t, err)
	dst, err := b.Creat(ctx, "smb://fs/public/dst", 0o644)
	require.NoError(t, err)

	_, err = src.Splice(ctx, dst, -1, nil)
	require.Error(t, err)
	assert.True(t, smberr.IsValidation(err))
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t)

	f, err := c.Creat(ctx, "smb://fs/public/f", 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = f.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.Stat(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	d, err := c.Opendir(ctx, "smb://fs/public")
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	_, err = d.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestContextCloseReleasesHandles(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t)

	f, err := c.Creat(ctx, "smb://fs/public/f", 0o644)
	require.NoError(t, err)
	d, err := c.Opendir(ctx, "smb://fs/public")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "Close is idempotent")

	_, err = f.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrContextClosed)
	_, err = d.Next(ctx)
	assert.ErrorIs(t, err, ErrContextClosed)
	assert.NoError(t, f.Close())
	assert.NoError(t, d.Close())

	_, err = c.Open(ctx, "smb://fs/public/f", os.O_RDONLY, 0)
	assert.ErrorIs(t, err, ErrContextClosed)
	assert.True(t, smberr.IsValidation(err))
}
