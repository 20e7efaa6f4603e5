// Package smbstatus names the NT_STATUS codes an SMB server may answer with
// and translates them into POSIX errno values for callers.
package smbstatus

import (
	"fmt"
	"syscall"
)

// Status represents an NT_STATUS code returned in SMB2 responses.
//
// NT_STATUS codes are 32-bit values divided into:
//   - Severity (bits 30-31): 00=Success, 01=Informational, 10=Warning, 11=Error
//   - Customer (bit 29): 0=Microsoft-defined, 1=Customer-defined
//   - Facility (bits 16-28): Component that generated the status
//   - Code (bits 0-15): Status code within the facility
//
// [MS-ERREF] Section 2.3
type Status uint32

const (
	Success     Status = 0x00000000
	Pending     Status = 0x00000103
	NoMoreFiles Status = 0x80000006

	InvalidHandle           Status = 0xC0000008
	InvalidParameter        Status = 0xC000000D
	NoSuchFile              Status = 0xC000000F
	EndOfFile               Status = 0xC0000011
	MoreProcessingRequired  Status = 0xC0000016
	AccessDenied            Status = 0xC0000022
	ObjectNameInvalid       Status = 0xC0000033
	ObjectNameNotFound      Status = 0xC0000034
	ObjectNameCollision     Status = 0xC0000035
	ObjectPathNotFound      Status = 0xC000003A
	ObjectPathSyntaxBad     Status = 0xC000003B
	SharingViolation        Status = 0xC0000043
	QuotaExceeded           Status = 0xC0000044
	FileLockConflict        Status = 0xC0000054
	LockNotGranted          Status = 0xC0000055
	DeletePending           Status = 0xC0000056
	PrivilegeNotHeld        Status = 0xC0000061
	WrongPassword           Status = 0xC000006A
	LogonFailure            Status = 0xC000006D
	AccountRestriction      Status = 0xC000006E
	PasswordExpired         Status = 0xC0000071
	AccountDisabled         Status = 0xC0000072
	DiskFull                Status = 0xC000007F
	InsufficientResources   Status = 0xC000009A
	MediaWriteProtected     Status = 0xC00000A2
	IOTimeout               Status = 0xC00000B5
	FileIsADirectory        Status = 0xC00000BA
	NotSupported            Status = 0xC00000BB
	NetworkNameDeleted      Status = 0xC00000C9
	BadNetworkName          Status = 0xC00000CC
	NotSameDevice           Status = 0xC00000D4
	InternalError           Status = 0xC00000E5
	UnexpectedIOError       Status = 0xC00000E9
	DirectoryNotEmpty       Status = 0xC0000101
	NotADirectory           Status = 0xC0000103
	NameTooLong             Status = 0xC0000106
	Cancelled               Status = 0xC0000120
	CannotDelete            Status = 0xC0000121
	FileClosed              Status = 0xC0000128
	UserSessionDeleted      Status = 0xC0000203
	NetworkSessionExpired   Status = 0xC000035C
	AccountLockedOut        Status = 0xC0000234
	ConnectionRefused       Status = 0xC0000236
	NetworkUnreachable      Status = 0xC000023C
	HostUnreachable         Status = 0xC000023D
	PathNotCovered          Status = 0xC0000257
	NotAReparsePoint        Status = 0xC0000275
	InvalidDeviceRequest    Status = 0xC0000010
	InvalidInfoClass        Status = 0xC0000003
	BufferTooSmall          Status = 0xC0000023
	RequestNotAccepted      Status = 0xC00000D0
	InvalidNetworkResponse  Status = 0xC00000C3
	UnexpectedNetworkError  Status = 0xC00000C4
	ConnectionReset         Status = 0xC000020D
	ConnectionDisconnected  Status = 0xC000020C
)

type entry struct {
	name  string
	errno syscall.Errno
}

// table is the single source of names and errno translations.
var table = map[Status]entry{
	Success:                {"STATUS_SUCCESS", 0},
	Pending:                {"STATUS_PENDING", 0},
	NoMoreFiles:            {"STATUS_NO_MORE_FILES", 0},
	InvalidHandle:          {"STATUS_INVALID_HANDLE", syscall.EBADF},
	InvalidParameter:       {"STATUS_INVALID_PARAMETER", syscall.EINVAL},
	NoSuchFile:             {"STATUS_NO_SUCH_FILE", syscall.ENOENT},
	EndOfFile:              {"STATUS_END_OF_FILE", syscall.EIO},
	MoreProcessingRequired: {"STATUS_MORE_PROCESSING_REQUIRED", syscall.EIO},
	AccessDenied:           {"STATUS_ACCESS_DENIED", syscall.EACCES},
	ObjectNameInvalid:      {"STATUS_OBJECT_NAME_INVALID", syscall.ENOENT},
	ObjectNameNotFound:     {"STATUS_OBJECT_NAME_NOT_FOUND", syscall.ENOENT},
	ObjectNameCollision:    {"STATUS_OBJECT_NAME_COLLISION", syscall.EEXIST},
	ObjectPathNotFound:     {"STATUS_OBJECT_PATH_NOT_FOUND", syscall.ENOENT},
	ObjectPathSyntaxBad:    {"STATUS_OBJECT_PATH_SYNTAX_BAD", syscall.ENOTDIR},
	SharingViolation:       {"STATUS_SHARING_VIOLATION", syscall.EBUSY},
	QuotaExceeded:          {"STATUS_QUOTA_EXCEEDED", syscall.ENOSPC},
	FileLockConflict:       {"STATUS_FILE_LOCK_CONFLICT", syscall.EACCES},
	LockNotGranted:         {"STATUS_LOCK_NOT_GRANTED", syscall.EACCES},
	DeletePending:          {"STATUS_DELETE_PENDING", syscall.ENOENT},
	PrivilegeNotHeld:       {"STATUS_PRIVILEGE_NOT_HELD", syscall.EPERM},
	WrongPassword:          {"STATUS_WRONG_PASSWORD", syscall.EACCES},
	LogonFailure:           {"STATUS_LOGON_FAILURE", syscall.EACCES},
	AccountRestriction:     {"STATUS_ACCOUNT_RESTRICTION", syscall.EACCES},
	PasswordExpired:        {"STATUS_PASSWORD_EXPIRED", syscall.EACCES},
	AccountDisabled:        {"STATUS_ACCOUNT_DISABLED", syscall.EACCES},
	AccountLockedOut:       {"STATUS_ACCOUNT_LOCKED_OUT", syscall.EACCES},
	DiskFull:               {"STATUS_DISK_FULL", syscall.ENOSPC},
	InsufficientResources:  {"STATUS_INSUFFICIENT_RESOURCES", syscall.ENOMEM},
	MediaWriteProtected:    {"STATUS_MEDIA_WRITE_PROTECTED", syscall.EROFS},
	IOTimeout:              {"STATUS_IO_TIMEOUT", syscall.ETIMEDOUT},
	FileIsADirectory:       {"STATUS_FILE_IS_A_DIRECTORY", syscall.EISDIR},
	NotSupported:           {"STATUS_NOT_SUPPORTED", syscall.ENOTSUP},
	NetworkNameDeleted:     {"STATUS_NETWORK_NAME_DELETED", syscall.ECONNRESET},
	BadNetworkName:         {"STATUS_BAD_NETWORK_NAME", syscall.ENOENT},
	NotSameDevice:          {"STATUS_NOT_SAME_DEVICE", syscall.EXDEV},
	InternalError:          {"STATUS_INTERNAL_ERROR", syscall.EIO},
	UnexpectedIOError:      {"STATUS_UNEXPECTED_IO_ERROR", syscall.EIO},
	DirectoryNotEmpty:      {"STATUS_DIRECTORY_NOT_EMPTY", syscall.ENOTEMPTY},
	NotADirectory:          {"STATUS_NOT_A_DIRECTORY", syscall.ENOTDIR},
	NameTooLong:            {"STATUS_NAME_TOO_LONG", syscall.ENAMETOOLONG},
	Cancelled:              {"STATUS_CANCELLED", syscall.ECANCELED},
	CannotDelete:           {"STATUS_CANNOT_DELETE", syscall.EPERM},
	FileClosed:             {"STATUS_FILE_CLOSED", syscall.EBADF},
	UserSessionDeleted:     {"STATUS_USER_SESSION_DELETED", syscall.ECONNRESET},
	NetworkSessionExpired:  {"STATUS_NETWORK_SESSION_EXPIRED", syscall.ECONNRESET},
	ConnectionRefused:      {"STATUS_CONNECTION_REFUSED", syscall.ECONNREFUSED},
	NetworkUnreachable:     {"STATUS_NETWORK_UNREACHABLE", syscall.ENETUNREACH},
	HostUnreachable:        {"STATUS_HOST_UNREACHABLE", syscall.EHOSTUNREACH},
	PathNotCovered:         {"STATUS_PATH_NOT_COVERED", syscall.ENOENT},
	NotAReparsePoint:       {"STATUS_NOT_A_REPARSE_POINT", syscall.EINVAL},
	InvalidDeviceRequest:   {"STATUS_INVALID_DEVICE_REQUEST", syscall.EINVAL},
	InvalidInfoClass:       {"STATUS_INVALID_INFO_CLASS", syscall.EINVAL},
	BufferTooSmall:         {"STATUS_BUFFER_TOO_SMALL", syscall.EINVAL},
	RequestNotAccepted:     {"STATUS_REQUEST_NOT_ACCEPTED", syscall.EBUSY},
	InvalidNetworkResponse: {"STATUS_INVALID_NETWORK_RESPONSE", syscall.EIO},
	UnexpectedNetworkError: {"STATUS_UNEXPECTED_NETWORK_ERROR", syscall.EIO},
	ConnectionReset:        {"STATUS_CONNECTION_RESET", syscall.ECONNRESET},
	ConnectionDisconnected: {"STATUS_CONNECTION_DISCONNECTED", syscall.ECONNRESET},
}

// String returns the MS-ERREF symbolic name, or the hex value when unknown.
func (s Status) String() string {
	if e, ok := table[s]; ok {
		return e.name
	}
	return fmt.Sprintf("STATUS_0x%08X", uint32(s))
}

// Errno maps s to the POSIX error a local filesystem would report.
// Success and warning codes map to 0; unknown errors map to EIO.
func (s Status) Errno() syscall.Errno {
	if e, ok := table[s]; ok {
		return e.errno
	}
	if !s.IsError() {
		return 0
	}
	return syscall.EIO
}

// IsSuccess returns true if the status indicates success.
// NT_STATUS success codes have severity 00 (bits 30-31 are 0).
func (s Status) IsSuccess() bool {
	return (uint32(s) & 0xC0000000) == 0
}

// IsError returns true if the status indicates an error (severity 11).
func (s Status) IsError() bool {
	return (uint32(s) & 0xC0000000) == 0xC0000000
}

// IsWarning returns true if the status indicates a warning (severity 10).
func (s Status) IsWarning() bool {
	return (uint32(s) & 0xC0000000) == 0x80000000
}

// Severity returns the severity level (0-3) of the status.
func (s Status) Severity() int {
	return int((uint32(s) >> 30) & 0x3)
}

// IsAuthFailure reports whether s means the credentials were rejected.
func (s Status) IsAuthFailure() bool {
	switch s {
	case LogonFailure, WrongPassword, AccountRestriction, PasswordExpired,
		AccountDisabled, AccountLockedOut:
		return true
	}
	return false
}
