//go:build !windows

package fsutil

func isUnsupportedSync(error) bool { return false }
