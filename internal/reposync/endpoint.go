package reposync

import (
	"fmt"
	"net"
	"strconv"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

var defaultPorts = map[string]int{
	"ssh":   22,
	"git":   9418,
	"http":  80,
	"https": 443,
}

// remote is the parsed form of a repository URL.
type remote struct {
	protocol string
	user     string
	// address is host:port, empty for local repositories.
	address string
}

func parseRemote(rawURL string) (remote, error) {
	ep, err := transport.NewEndpoint(rawURL)
	if err != nil {
		return remote{}, fmt.Errorf("invalid repository url %q: %w", rawURL, err)
	}
	r := remote{protocol: ep.Protocol, user: ep.User}
	if ep.Protocol == "file" || ep.Host == "" {
		return r, nil
	}
	port := ep.Port
	if port == 0 {
		port = defaultPorts[ep.Protocol]
	}
	r.address = net.JoinHostPort(ep.Host, strconv.Itoa(port))
	return r, nil
}

func (r remote) isSSH() bool {
	return r.protocol == "ssh"
}
