//go:build windows

package identity

import (
	"os"
	"strings"

	"golang.org/x/sys/windows"
)

// isSystem reports whether the process runs as a machine account, whose
// user name is the computer name followed by "$".
func isSystem() bool {
	user := strings.TrimSuffix(os.Getenv("USERNAME"), "$")
	return user != "" && strings.EqualFold(user, os.Getenv("COMPUTERNAME"))
}

func principalName() (string, error) {
	n := uint32(256)
	for {
		buf := make([]uint16, n)
		err := windows.GetUserNameEx(windows.NameUserPrincipal, &buf[0], &n)
		if err == nil {
			return windows.UTF16ToString(buf[:n]), nil
		}
		if err != windows.ERROR_MORE_DATA || int(n) <= len(buf) {
			return "", err
		}
	}
}
