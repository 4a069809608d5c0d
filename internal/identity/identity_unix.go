//go:build !windows

package identity

import (
	"os"
	"os/user"

	"golang.org/x/sys/unix"
)

func isSystem() bool {
	return unix.Geteuid() == 0
}

func principalName() (string, error) {
	if name := os.Getenv("USER"); name != "" {
		return name, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Username, nil
}
