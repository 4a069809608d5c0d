package dag

import (
	"github.com/specialistvlad/repotaskrun/internal/model"
)

// Order returns tasks sorted so that each task follows all of its
// dependencies. Tasks without a mutual constraint keep their input order.
func Order(tasks []model.Task) ([]model.Task, error) {
	queue := make([]int, len(tasks))
	for i := range tasks {
		queue[i] = i
	}

	ordered := make([]model.Task, 0, len(tasks))
	placed := make(map[string]struct{}, len(tasks))
	starved := 0

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		task := tasks[idx]

		if satisfied(task, placed) {
			ordered = append(ordered, task)
			placed[task.Name] = struct{}{}
			starved = 0
			continue
		}

		// Every task still queued has been tried once since the last
		// placement, so nothing can make progress any more.
		if starved >= len(queue) {
			queue = append(queue, idx)
			return nil, explain(tasks, queue)
		}
		starved++
		queue = append(queue, idx)
	}

	return ordered, nil
}

func satisfied(t model.Task, placed map[string]struct{}) bool {
	for _, dep := range t.DependsOn {
		if _, ok := placed[dep]; !ok {
			return false
		}
	}
	return true
}

// explain builds a CycleError for the tasks left in the queue.
func explain(tasks []model.Task, queue []int) *CycleError {
	known := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		known[t.Name] = struct{}{}
	}

	g := NewGraph()
	pending := make([]string, 0, len(queue))
	for _, idx := range queue {
		pending = append(pending, tasks[idx].Name)
		g.AddNode(tasks[idx].Name)
	}

	missing := make(map[string][]string)
	for _, idx := range queue {
		t := tasks[idx]
		for _, dep := range t.DependsOn {
			if _, ok := known[dep]; !ok {
				missing[t.Name] = append(missing[t.Name], dep)
				continue
			}
			if g.HasNode(dep) {
				// Both ends exist, so AddEdge cannot fail.
				_ = g.AddEdge(dep, t.Name)
			}
		}
	}

	err := &CycleError{Pending: pending, Loop: g.FindCycle()}
	if len(missing) > 0 {
		err.Missing = missing
	}
	return err
}
