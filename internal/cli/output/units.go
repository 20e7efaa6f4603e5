package output

import (
	"io/fs"
	"strconv"

	"github.com/marmos91/smbc/internal/bytesize"
)

// Size formats n bytes. Exact byte counts are kept below 1KiB; larger
// values use binary units.
func Size(n int64, human bool) string {
	if !human || n < 0 {
		return strconv.FormatInt(n, 10)
	}
	return bytesize.ByteSize(n).String()
}

// Mode formats a file mode the way ls -l does, e.g. "drwxr-xr-x".
func Mode(m fs.FileMode) string {
	s := m.String()
	// fs.FileMode marks a directory with 'd' but other types with letters
	// ls does not use; keep only the directory and symlink markers.
	switch {
	case m.IsDir():
		return "d" + s[len(s)-9:]
	case m&fs.ModeSymlink != 0:
		return "l" + s[len(s)-9:]
	default:
		return "-" + s[len(s)-9:]
	}
}
