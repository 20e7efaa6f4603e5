package smberr

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	e := New("mkdir", "smb://srv/share/dir", syscall.EEXIST)
	assert.Equal(t, "mkdir smb://srv/share/dir: "+syscall.EEXIST.Error(), e.Error())

	e = New("close", "", syscall.EBADF)
	assert.Equal(t, "close: "+syscall.EBADF.Error(), e.Error())

	e = Newf("write", "fd 10000", syscall.EIO, "short write: %d of %d", 2, 4)
	assert.Equal(t, "write fd 10000: short write: 2 of 4", e.Error())
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("response error: STATUS_OBJECT_NAME_COLLISION")
	err := fmt.Errorf("dispatch: %w", Wrap("mkdir", "smb://srv/s/d", syscall.EEXIST, cause))

	assert.True(t, errors.Is(err, syscall.EEXIST))
	assert.True(t, errors.Is(err, fs.ErrExist))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, fs.ErrNotExist))
	assert.Equal(t, syscall.EEXIST, Code(err))
	assert.Contains(t, err.Error(), "STATUS_OBJECT_NAME_COLLISION")

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, int(syscall.EEXIST), e.Errno())
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, syscall.Errno(0), Code(errors.New("plain")))
	assert.Equal(t, syscall.Errno(0), Code(nil))
}

func TestValidation(t *testing.T) {
	err := Invalid("username contains NUL byte at %d", 3)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "NUL byte at 3")
	assert.False(t, IsValidation(New("open", "x", syscall.ENOENT)))
}
