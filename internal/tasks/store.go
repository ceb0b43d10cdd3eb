package tasks

import "context"

// Snapshot is a complete, type-tagged copy of the manager's entity maps.
type Snapshot struct {
	Tasks    []Task
	Epics    []Task
	Subtasks []Task
}

func (s Snapshot) Len() int {
	return len(s.Tasks) + len(s.Epics) + len(s.Subtasks)
}

// All returns tasks, then epics, then subtasks.
func (s Snapshot) All() []Task {
	out := make([]Task, 0, s.Len())
	out = append(out, s.Tasks...)
	out = append(out, s.Epics...)
	out = append(out, s.Subtasks...)
	return out
}

// Store persists full snapshots. Save is called after every committed
// mutation; Load is called once before the manager starts serving.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
	Close() error
}
