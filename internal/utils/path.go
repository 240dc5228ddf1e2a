// internal/utils/path.go

package utils

import (
	"path"
	"runtime"
	"strings"
)

// ToSFTPPath converts a path to the cleaned forward-slash form SFTP
// servers expect.
func ToSFTPPath(p string) string {
	if p == "" {
		return p
	}
	if runtime.GOOS == "windows" {
		p = strings.ReplaceAll(p, "\\", "/")
	}
	return path.Clean(p)
}
