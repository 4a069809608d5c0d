//go:build windows

package fsutil

// Windows cannot fsync a directory handle opened with os.Open.
func isUnsupportedSync(error) bool { return true }
