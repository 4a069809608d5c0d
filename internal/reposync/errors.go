package reposync

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	// ErrNetwork means the remote host could not be reached.
	ErrNetwork = errors.New("network error")
	// ErrCredential means key material or host trust could not be set up,
	// or the remote rejected it.
	ErrCredential = errors.New("credential error")
	// ErrRepository covers every other clone or filesystem failure.
	ErrRepository = errors.New("repository error")
)

// Error is returned by Sync. errors.Is matches both Kind and the wrapped cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// classify maps a clone error onto an error kind.
func classify(err error) error {
	var keyErr *knownhosts.KeyError
	var netErr net.Error
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod),
		errors.As(err, &keyErr),
		strings.Contains(err.Error(), "unable to authenticate"),
		strings.Contains(err.Error(), "knownhosts:"):
		return ErrCredential
	case errors.As(err, &netErr):
		return ErrNetwork
	default:
		return ErrRepository
	}
}
