package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Snapshot copies the three entity maps, each ordered by id.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Tasks:    m.reg.list(KindTask),
		Epics:    m.reg.list(KindEpic),
		Subtasks: m.reg.list(KindSubtask),
	}
}

// Restore replaces the manager state with snap, keeping the stored ids.
// The snapshot is fully validated first; on error the manager is untouched.
// Epic subtask lists and derived fields are rebuilt from the subtasks.
func (m *Manager) Restore(snap Snapshot) error {
	reg := newRegistry()
	schedule := NewSchedule()

	seen := make(map[int]Kind, snap.Len())
	claim := func(t Task, kind Kind) (Task, error) {
		if t.Kind != "" && t.Kind != kind {
			return Task{}, fmt.Errorf("%w: entity %d is %s, listed as %s", ErrValidation, t.ID, t.Kind, kind)
		}
		t.Kind = kind
		if t.ID <= 0 {
			return Task{}, fmt.Errorf("%w: %s with id %d", ErrValidation, kind, t.ID)
		}
		if prev, dup := seen[t.ID]; dup {
			return Task{}, fmt.Errorf("%w: id %d used by %s and %s", ErrValidation, t.ID, prev, kind)
		}
		seen[t.ID] = kind
		return t, nil
	}

	for _, raw := range snap.Epics {
		t, err := claim(raw, KindEpic)
		if err != nil {
			return restoreErr(err)
		}
		t.EpicID = 0
		t.SubtaskIDs = []int{}
		reg.put(t)
	}
	scheduled := make([]Task, 0, len(snap.Tasks)+len(snap.Subtasks))
	for _, raw := range snap.Tasks {
		t, err := claim(raw, KindTask)
		if err != nil {
			return restoreErr(err)
		}
		t.EpicID = 0
		t.SubtaskIDs = nil
		scheduled = append(scheduled, t)
	}
	for _, raw := range snap.Subtasks {
		t, err := claim(raw, KindSubtask)
		if err != nil {
			return restoreErr(err)
		}
		if _, ok := reg.get(KindEpic, t.EpicID); !ok {
			return restoreErr(fmt.Errorf("%w: subtask %d references missing epic %d", ErrValidation, t.ID, t.EpicID))
		}
		t.SubtaskIDs = nil
		scheduled = append(scheduled, t)
	}
	for i := range scheduled {
		t := scheduled[i]
		if err := validate(&t); err != nil {
			return restoreErr(fmt.Errorf("%s %d: %w", t.Kind, t.ID, err))
		}
		if conflicts := schedule.Conflicts(t); len(conflicts) > 0 {
			return restoreErr(fmt.Errorf("%w: %s %d overlaps %v", ErrSchedulingConflict, t.Kind, t.ID, conflicts))
		}
		schedule.Add(t)
		reg.put(t)
	}

	// Ids are monotonic, so ascending subtask id is the original insertion order.
	subIDs := make([]int, 0, len(reg.subtasks))
	for id := range reg.subtasks {
		subIDs = append(subIDs, id)
	}
	sort.Ints(subIDs)
	for _, sid := range subIDs {
		st := reg.subtasks[sid]
		epic := reg.epics[st.EpicID]
		epic.SubtaskIDs = append(epic.SubtaskIDs, sid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg = reg
	m.schedule = schedule
	m.history = NewHistory()
	m.nextID = reg.maxID() + 1
	for _, epic := range m.reg.epics {
		m.recomputeEpicLocked(epic)
	}
	m.pending = nil
	m.publishLocked(EventLoaded, "", 0)
	m.flushEventsLocked()
	return nil
}

// LoadFrom reads a snapshot from store and restores it.
func (m *Manager) LoadFrom(ctx context.Context, store Store) error {
	snap, err := store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			return err
		}
		return fmt.Errorf("%w: load: %w", ErrPersistence, err)
	}
	return m.Restore(snap)
}

func restoreErr(err error) error {
	return fmt.Errorf("%w: restore: %w", ErrPersistence, err)
}
