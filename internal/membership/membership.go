// Package membership resolves the directory groups of the signed-in user.
// The task builder intersects these groups with a task's group filter.
package membership

import (
	"context"

	"github.com/specialistvlad/repotaskrun/internal/model"
)

// Resolver looks up the groups a principal belongs to.
type Resolver interface {
	Groups(ctx context.Context, principal string) (model.Set, error)
}

// Static returns a fixed membership regardless of principal.
type Static struct {
	Names []string
}

// Groups returns the configured names.
func (s Static) Groups(context.Context, string) (model.Set, error) {
	return model.NewSet(s.Names...), nil
}
