package builder

import (
	"strings"

	"github.com/specialistvlad/repotaskrun/internal/model"
)

// accumulator is the metadata inherited from the directories on the path
// from the root to the current entry.
type accumulator struct {
	taskType       model.TaskType
	context        model.Audience
	dependsOn      model.Set
	userFilter     model.Set
	groupFilter    model.Set
	rebootRequired bool
}

// apply returns a copy of acc updated with the directive encoded in a
// directory name. Names that are not directives return acc unchanged.
// Sets are copied on write by model.Set.Add, so siblings never share state.
func (acc accumulator) apply(dirName string) (accumulator, bool) {
	key, value, ok := strings.Cut(dirName, "-")
	if !ok {
		return acc, false
	}

	switch key {
	case "context":
		aud, ok := model.ParseAudience(value)
		if !ok {
			return acc, false
		}
		acc.context = aud
	case "type":
		typ, ok := model.ParseTaskType(value)
		if !ok {
			return acc, false
		}
		acc.taskType = typ
	case "reboot":
		switch value {
		case "enabled":
			acc.rebootRequired = true
		case "disabled":
			acc.rebootRequired = false
		default:
			return acc, false
		}
	case "group":
		acc.groupFilter = acc.groupFilter.Add(value)
	case "user":
		acc.userFilter = acc.userFilter.Add(value)
	case "depends":
		acc.dependsOn = acc.dependsOn.Add(value)
	default:
		return acc, false
	}
	return acc, true
}
