// Package identity determines which audience the current process serves
// and the principal name used for group lookups.
package identity

import (
	"github.com/specialistvlad/repotaskrun/internal/model"
)

// Identity describes the account the agent runs under.
type Identity struct {
	Audience model.Audience
	// Principal is the user principal name, empty for the system account
	// or when the platform cannot report one.
	Principal string
}

// Detect inspects the running process.
func Detect() (Identity, error) {
	if isSystem() {
		return Identity{Audience: model.AudienceSystem}, nil
	}
	principal, err := principalName()
	if err != nil {
		return Identity{Audience: model.AudienceUser}, err
	}
	return Identity{Audience: model.AudienceUser, Principal: principal}, nil
}
