package tasks

import "sort"

// registry owns the three id-keyed entity maps.
type registry struct {
	tasks    map[int]*Task
	epics    map[int]*Task
	subtasks map[int]*Task
}

func newRegistry() *registry {
	return &registry{
		tasks:    make(map[int]*Task),
		epics:    make(map[int]*Task),
		subtasks: make(map[int]*Task),
	}
}

func (r *registry) mapFor(kind Kind) map[int]*Task {
	switch kind {
	case KindEpic:
		return r.epics
	case KindSubtask:
		return r.subtasks
	default:
		return r.tasks
	}
}

func (r *registry) get(kind Kind, id int) (*Task, bool) {
	t, ok := r.mapFor(kind)[id]
	return t, ok && t != nil
}

func (r *registry) put(t Task) {
	stored := t.Clone()
	r.mapFor(t.Kind)[t.ID] = &stored
}

func (r *registry) delete(kind Kind, id int) {
	delete(r.mapFor(kind), id)
}

func (r *registry) exists(id int) bool {
	if _, ok := r.tasks[id]; ok {
		return true
	}
	if _, ok := r.epics[id]; ok {
		return true
	}
	_, ok := r.subtasks[id]
	return ok
}

// lookup finds id in any of the maps.
func (r *registry) lookup(id int) (*Task, bool) {
	for _, m := range []map[int]*Task{r.tasks, r.subtasks, r.epics} {
		if t, ok := m[id]; ok && t != nil {
			return t, true
		}
	}
	return nil, false
}

// list returns clones ordered by id so repeated calls are stable.
func (r *registry) list(kind Kind) []Task {
	m := r.mapFor(kind)
	out := make([]Task, 0, len(m))
	for _, t := range m {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *registry) maxID() int {
	max := 0
	for _, m := range []map[int]*Task{r.tasks, r.epics, r.subtasks} {
		for id := range m {
			if id > max {
				max = id
			}
		}
	}
	return max
}

func (r *registry) clone() *registry {
	out := newRegistry()
	for _, m := range []map[int]*Task{r.tasks, r.epics, r.subtasks} {
		for _, t := range m {
			out.put(*t)
		}
	}
	return out
}
