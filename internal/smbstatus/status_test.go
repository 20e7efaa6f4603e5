package smbstatus

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrnoMapping(t *testing.T) {
	tests := []struct {
		status Status
		want   syscall.Errno
	}{
		{ObjectNameCollision, syscall.EEXIST},
		{ObjectNameNotFound, syscall.ENOENT},
		{ObjectPathNotFound, syscall.ENOENT},
		{BadNetworkName, syscall.ENOENT},
		{AccessDenied, syscall.EACCES},
		{LogonFailure, syscall.EACCES},
		{DirectoryNotEmpty, syscall.ENOTEMPTY},
		{NotADirectory, syscall.ENOTDIR},
		{FileIsADirectory, syscall.EISDIR},
		{SharingViolation, syscall.EBUSY},
		{DiskFull, syscall.ENOSPC},
		{NotSupported, syscall.ENOTSUP},
		{InvalidParameter, syscall.EINVAL},
		{FileClosed, syscall.EBADF},
		{NotSameDevice, syscall.EXDEV},
		{Success, 0},
		{NoMoreFiles, 0},
		{Status(0xC0FFFFFF), syscall.EIO},
		{Status(0x80001234), 0},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Errno())
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "STATUS_OBJECT_NAME_COLLISION", ObjectNameCollision.String())
	assert.Equal(t, "STATUS_0xC0FFFFFF", Status(0xC0FFFFFF).String())
}

func TestSeverity(t *testing.T) {
	assert.True(t, Success.IsSuccess())
	assert.True(t, Pending.IsSuccess())
	assert.True(t, NoMoreFiles.IsWarning())
	assert.False(t, NoMoreFiles.IsError())
	assert.True(t, AccessDenied.IsError())
	assert.Equal(t, 0, Success.Severity())
	assert.Equal(t, 2, NoMoreFiles.Severity())
	assert.Equal(t, 3, AccessDenied.Severity())
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, LogonFailure.IsAuthFailure())
	assert.True(t, WrongPassword.IsAuthFailure())
	assert.False(t, AccessDenied.IsAuthFailure())
}
