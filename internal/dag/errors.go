package dag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCircularDependency is matched by every *CycleError.
var ErrCircularDependency = errors.New("circular dependency")

// CycleError reports tasks that could not be ordered.
type CycleError struct {
	// Pending lists the names left in the queue, in queue order.
	Pending []string
	// Missing maps a pending task to dependency names that match no task.
	Missing map[string][]string
	// Loop is one concrete cycle among the pending tasks, if there is one.
	Loop []string
}

func (e *CycleError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "circular dependency among tasks [%s]", strings.Join(e.Pending, ", "))
	if len(e.Loop) > 0 {
		fmt.Fprintf(&b, "; loop: %s", strings.Join(e.Loop, " -> "))
	}
	if len(e.Missing) > 0 {
		names := make([]string, 0, len(e.Missing))
		for name := range e.Missing {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s needs %s", name, strings.Join(e.Missing[name], ",")))
		}
		fmt.Fprintf(&b, "; unknown dependencies: %s", strings.Join(parts, "; "))
	}
	return b.String()
}

// Is lets errors.Is match ErrCircularDependency.
func (e *CycleError) Is(target error) bool {
	return target == ErrCircularDependency
}
