package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func mustTime(t *testing.T, raw string) *time.Time {
	t.Helper()
	ts, err := ParseTime(raw)
	if err != nil {
		t.Fatalf("ParseTime(%q) error = %v", raw, err)
	}
	return &ts
}

func draft(t *testing.T, name, start string, minutes int, status Status) Draft {
	t.Helper()
	return Draft{
		Name:        name,
		Description: name + " description",
		Status:      status,
		StartTime:   mustTime(t, start),
		Duration:    time.Duration(minutes) * time.Minute,
	}
}

func TestManagerWalkthrough(t *testing.T) {
	m := NewManager()

	a, err := m.AddTask(NewTask(draft(t, "A", "08.02.25 11:00", 180, StatusNew)))
	if err != nil {
		t.Fatalf("AddTask(A) error = %v", err)
	}
	if a.ID != 1 {
		t.Fatalf("A.ID = %d, want 1", a.ID)
	}
	if got, err := m.GetTask(a.ID); err != nil || !got.SameEntity(a) {
		t.Fatalf("GetTask() = %+v, %v, want entity %d", got, err, a.ID)
	}
	if got := len(m.PrioritizedTasks()); got != 1 {
		t.Fatalf("PrioritizedTasks() len = %d, want 1", got)
	}

	_, err = m.AddTask(NewTask(draft(t, "B", "08.02.25 12:00", 60, StatusNew)))
	if !errors.Is(err, ErrSchedulingConflict) {
		t.Fatalf("AddTask(B) error = %v, want ErrSchedulingConflict", err)
	}
	if got := len(m.PrioritizedTasks()); got != 1 {
		t.Fatalf("PrioritizedTasks() len after conflict = %d, want 1", got)
	}

	e, err := m.AddEpic(NewEpic("E", "epic"))
	if err != nil {
		t.Fatalf("AddEpic() error = %v", err)
	}
	if e.Status != StatusNew {
		t.Fatalf("epic status = %q, want %q", e.Status, StatusNew)
	}
	if e.Scheduled() {
		t.Fatalf("empty epic has start time %v, want unset", e.StartTime)
	}

	s1, err := m.AddSubtask(NewSubtask(e.ID, draft(t, "S1", "09.02.25 11:00", 60, StatusDone)))
	if err != nil {
		t.Fatalf("AddSubtask(S1) error = %v", err)
	}
	got, err := m.GetEpic(e.ID)
	if err != nil {
		t.Fatalf("GetEpic() error = %v", err)
	}
	if got.Status != StatusDone {
		t.Fatalf("epic status = %q, want %q", got.Status, StatusDone)
	}
	if !got.StartTime.Equal(*mustTime(t, "09.02.25 11:00")) || got.Duration != time.Hour {
		t.Fatalf("epic window = %v + %v, want 09.02.25 11:00 + 1h", got.StartTime, got.Duration)
	}

	s2, err := m.AddSubtask(NewSubtask(e.ID, draft(t, "S2", "09.02.25 13:00", 30, StatusNew)))
	if err != nil {
		t.Fatalf("AddSubtask(S2) error = %v", err)
	}
	got, _ = m.GetEpic(e.ID)
	if got.Status != StatusInProgress {
		t.Fatalf("epic status = %q, want %q", got.Status, StatusInProgress)
	}
	if got.Duration != 150*time.Minute {
		t.Fatalf("epic duration = %v, want 2h30m", got.Duration)
	}

	if err := m.RemoveSubtask(s1.ID); err != nil {
		t.Fatalf("RemoveSubtask(S1) error = %v", err)
	}
	got, _ = m.GetEpic(e.ID)
	if got.Status != StatusNew {
		t.Fatalf("epic status after remove = %q, want %q", got.Status, StatusNew)
	}
	if !got.StartTime.Equal(s2.StartTime) || got.Duration != 30*time.Minute {
		t.Fatalf("epic window = %v + %v, want S2 window", got.StartTime, got.Duration)
	}
	if len(got.SubtaskIDs) != 1 || got.SubtaskIDs[0] != s2.ID {
		t.Fatalf("epic SubtaskIDs = %v, want [%d]", got.SubtaskIDs, s2.ID)
	}
}

func TestManagerAdjacentTasksDoNotConflict(t *testing.T) {
	m := NewManager()
	if _, err := m.AddTask(NewTask(draft(t, "A", "08.02.25 11:00", 60, StatusNew))); err != nil {
		t.Fatalf("AddTask(A) error = %v", err)
	}
	if _, err := m.AddTask(NewTask(draft(t, "B", "08.02.25 12:00", 60, StatusNew))); err != nil {
		t.Fatalf("AddTask(B) error = %v, want adjacent tasks accepted", err)
	}
	if _, err := m.AddTask(NewTask(draft(t, "C", "08.02.25 10:00", 60, StatusNew))); err != nil {
		t.Fatalf("AddTask(C) error = %v, want adjacent tasks accepted", err)
	}

	got := m.PrioritizedTasks()
	want := []string{"C", "A", "B"}
	if len(got) != len(want) {
		t.Fatalf("PrioritizedTasks() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i] {
			t.Fatalf("PrioritizedTasks()[%d] = %q, want %q", i, got[i].Name, want[i])
		}
	}
}

func TestManagerSubtaskConflictsWithTask(t *testing.T) {
	m := NewManager()
	if _, err := m.AddTask(NewTask(draft(t, "A", "08.02.25 11:00", 60, StatusNew))); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	e, _ := m.AddEpic(NewEpic("E", ""))
	_, err := m.AddSubtask(NewSubtask(e.ID, draft(t, "S", "08.02.25 11:30", 60, StatusNew)))
	if !errors.Is(err, ErrSchedulingConflict) {
		t.Fatalf("AddSubtask() error = %v, want ErrSchedulingConflict", err)
	}
	got, _ := m.GetEpic(e.ID)
	if len(got.SubtaskIDs) != 0 {
		t.Fatalf("epic SubtaskIDs = %v, want empty after rejected add", got.SubtaskIDs)
	}
	if len(m.ListSubtasks()) != 0 {
		t.Fatalf("ListSubtasks() not empty after rejected add")
	}
}

func TestManagerAddSubtaskUnknownEpic(t *testing.T) {
	m := NewManager()
	_, err := m.AddSubtask(NewSubtask(42, draft(t, "S", "08.02.25 11:00", 60, StatusNew)))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("AddSubtask() error = %v, want ErrNotFound", err)
	}
}

func TestManagerIDsIgnoreClientValues(t *testing.T) {
	m := NewManager()
	in := NewTask(draft(t, "A", "08.02.25 11:00", 60, StatusNew))
	in.ID = 99
	got, err := m.AddTask(in)
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if got.ID != 1 {
		t.Fatalf("AddTask().ID = %d, want 1", got.ID)
	}
	e, _ := m.AddEpic(NewEpic("E", ""))
	if e.ID != 2 {
		t.Fatalf("AddEpic().ID = %d, want 2", e.ID)
	}
}

func TestManagerAddTaskDropsKindPayload(t *testing.T) {
	m := NewManager()
	in := NewTask(draft(t, "A", "08.02.25 11:00", 30, StatusNew))
	in.EpicID = 7
	in.SubtaskIDs = []int{1, 2}

	got, err := m.AddTask(in)
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if got.EpicID != 0 || got.SubtaskIDs != nil {
		t.Fatalf("AddTask() = %+v, want no epic fields", got)
	}
	stored, _ := m.GetTask(got.ID)
	if stored.EpicID != 0 || stored.SubtaskIDs != nil {
		t.Fatalf("stored task = %+v, want no epic fields", stored)
	}
}

func TestManagerUpdateTask(t *testing.T) {
	m := NewManager()
	a, _ := m.AddTask(NewTask(draft(t, "A", "08.02.25 11:00", 60, StatusNew)))
	b, _ := m.AddTask(NewTask(draft(t, "B", "08.02.25 13:00", 60, StatusNew)))

	moved := a
	moved.Name = "A2"
	moved.Status = StatusInProgress
	moved.StartTime = *mustTime(t, "08.02.25 11:30")
	if _, err := m.UpdateTask(moved); err != nil {
		t.Fatalf("UpdateTask() in place error = %v", err)
	}

	clash := b
	clash.StartTime = *mustTime(t, "08.02.25 12:00")
	if _, err := m.UpdateTask(clash); !errors.Is(err, ErrSchedulingConflict) {
		t.Fatalf("UpdateTask() error = %v, want ErrSchedulingConflict", err)
	}
	stored, _ := m.GetTask(b.ID)
	if !stored.StartTime.Equal(b.StartTime) {
		t.Fatalf("rejected update changed start time to %v", stored.StartTime)
	}

	missing := a
	missing.ID = 77
	if _, err := m.UpdateTask(missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateTask(missing) error = %v, want ErrNotFound", err)
	}

	got, _ := m.GetTask(a.ID)
	if got.Name != "A2" || got.Status != StatusInProgress {
		t.Fatalf("GetTask() = %+v, want updated name and status", got)
	}
}

func TestManagerUpdateRequiresCompleteValue(t *testing.T) {
	m := NewManager()
	a, _ := m.AddTask(NewTask(draft(t, "A", "08.02.25 11:00", 60, StatusNew)))

	noStart := a
	noStart.StartTime = time.Time{}
	if _, err := m.UpdateTask(noStart); !errors.Is(err, ErrValidation) {
		t.Fatalf("UpdateTask(no start) error = %v, want ErrValidation", err)
	}
	noStatus := a
	noStatus.Status = ""
	if _, err := m.UpdateTask(noStatus); !errors.Is(err, ErrValidation) {
		t.Fatalf("UpdateTask(no status) error = %v, want ErrValidation", err)
	}
	negative := a
	negative.Duration = -time.Minute
	if _, err := m.UpdateTask(negative); !errors.Is(err, ErrValidation) {
		t.Fatalf("UpdateTask(negative) error = %v, want ErrValidation", err)
	}
}

func TestManagerUpdateEpicIgnoresDerivedFields(t *testing.T) {
	m := NewManager()
	e, _ := m.AddEpic(NewEpic("E", "old"))
	st, _ := m.AddSubtask(NewSubtask(e.ID, draft(t, "S", "09.02.25 11:00", 60, StatusInProgress)))

	in := Task{ID: e.ID, Name: "E2", Description: "new", Status: StatusDone, SubtaskIDs: []int{}}
	got, err := m.UpdateEpic(in)
	if err != nil {
		t.Fatalf("UpdateEpic() error = %v", err)
	}
	if got.Name != "E2" || got.Description != "new" {
		t.Fatalf("UpdateEpic() = %+v, want new name and description", got)
	}
	if got.Status != StatusInProgress {
		t.Fatalf("epic status = %q, want derived %q", got.Status, StatusInProgress)
	}
	if len(got.SubtaskIDs) != 1 || got.SubtaskIDs[0] != st.ID {
		t.Fatalf("epic SubtaskIDs = %v, want [%d]", got.SubtaskIDs, st.ID)
	}

	if _, err := m.UpdateEpic(Task{ID: 500}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateEpic(missing) error = %v, want ErrNotFound", err)
	}
}

func TestManagerUpdateSubtaskMovesBetweenEpics(t *testing.T) {
	m := NewManager()
	e1, _ := m.AddEpic(NewEpic("E1", ""))
	e2, _ := m.AddEpic(NewEpic("E2", ""))
	st, _ := m.AddSubtask(NewSubtask(e1.ID, draft(t, "S", "09.02.25 11:00", 60, StatusDone)))

	moved := st
	moved.EpicID = e2.ID
	if _, err := m.UpdateSubtask(moved); err != nil {
		t.Fatalf("UpdateSubtask() error = %v", err)
	}
	got1, _ := m.GetEpic(e1.ID)
	got2, _ := m.GetEpic(e2.ID)
	if len(got1.SubtaskIDs) != 0 || got1.Status != StatusNew || got1.Scheduled() {
		t.Fatalf("old epic = %+v, want empty NEW unscheduled", got1)
	}
	if len(got2.SubtaskIDs) != 1 || got2.Status != StatusDone {
		t.Fatalf("new epic = %+v, want one DONE subtask", got2)
	}

	keep := moved
	keep.EpicID = 0
	keep.Status = StatusInProgress
	if _, err := m.UpdateSubtask(keep); err != nil {
		t.Fatalf("UpdateSubtask(keep owner) error = %v", err)
	}
	got, _ := m.GetSubtask(st.ID)
	if got.EpicID != e2.ID {
		t.Fatalf("subtask EpicID = %d, want %d", got.EpicID, e2.ID)
	}

	orphan := moved
	orphan.EpicID = 999
	if _, err := m.UpdateSubtask(orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateSubtask(unknown epic) error = %v, want ErrNotFound", err)
	}
}

func TestManagerRemoveEpicCascades(t *testing.T) {
	m := NewManager()
	e, _ := m.AddEpic(NewEpic("E", ""))
	s1, _ := m.AddSubtask(NewSubtask(e.ID, draft(t, "S1", "09.02.25 11:00", 60, StatusNew)))
	s2, _ := m.AddSubtask(NewSubtask(e.ID, draft(t, "S2", "09.02.25 12:00", 60, StatusNew)))
	_, _ = m.GetSubtask(s1.ID)
	_, _ = m.GetSubtask(s2.ID)
	_, _ = m.GetEpic(e.ID)

	if err := m.RemoveEpic(e.ID); err != nil {
		t.Fatalf("RemoveEpic() error = %v", err)
	}
	if len(m.ListSubtasks()) != 0 {
		t.Fatalf("ListSubtasks() len = %d, want 0", len(m.ListSubtasks()))
	}
	if len(m.PrioritizedTasks()) != 0 {
		t.Fatalf("PrioritizedTasks() len = %d, want 0", len(m.PrioritizedTasks()))
	}
	if len(m.History()) != 0 {
		t.Fatalf("History() len = %d, want 0", len(m.History()))
	}
	if err := m.RemoveEpic(e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RemoveEpic() twice error = %v, want ErrNotFound", err)
	}
}

func TestManagerRemoveAll(t *testing.T) {
	m := NewManager()
	a, _ := m.AddTask(NewTask(draft(t, "A", "08.02.25 11:00", 60, StatusNew)))
	e, _ := m.AddEpic(NewEpic("E", ""))
	s, _ := m.AddSubtask(NewSubtask(e.ID, draft(t, "S", "09.02.25 11:00", 60, StatusDone)))
	_, _ = m.GetTask(a.ID)
	_, _ = m.GetSubtask(s.ID)

	if err := m.RemoveAllSubtasks(); err != nil {
		t.Fatalf("RemoveAllSubtasks() error = %v", err)
	}
	got, _ := m.GetEpic(e.ID)
	if got.Status != StatusNew || len(got.SubtaskIDs) != 0 || got.Scheduled() {
		t.Fatalf("epic after RemoveAllSubtasks = %+v, want empty NEW", got)
	}
	if len(m.PrioritizedTasks()) != 1 {
		t.Fatalf("PrioritizedTasks() len = %d, want 1", len(m.PrioritizedTasks()))
	}

	if err := m.RemoveAllTasks(); err != nil {
		t.Fatalf("RemoveAllTasks() error = %v", err)
	}
	if len(m.ListTasks()) != 0 || len(m.PrioritizedTasks()) != 0 {
		t.Fatalf("tasks remain after RemoveAllTasks")
	}

	_, _ = m.AddSubtask(NewSubtask(e.ID, draft(t, "S2", "10.02.25 11:00", 60, StatusNew)))
	if err := m.RemoveAllEpics(); err != nil {
		t.Fatalf("RemoveAllEpics() error = %v", err)
	}
	if len(m.ListEpics()) != 0 || len(m.ListSubtasks()) != 0 {
		t.Fatalf("epics or subtasks remain after RemoveAllEpics")
	}
	if len(m.History()) != 0 {
		t.Fatalf("History() = %v, want empty", m.History())
	}
}

func TestManagerGetRecordsHistory(t *testing.T) {
	m := NewManager()
	a, _ := m.AddTask(NewTask(draft(t, "A", "08.02.25 11:00", 60, StatusNew)))
	e, _ := m.AddEpic(NewEpic("E", ""))

	for i := 0; i < 3; i++ {
		if _, err := m.GetTask(a.ID); err != nil {
			t.Fatalf("GetTask() error = %v", err)
		}
	}
	if got := len(m.History()); got != 1 {
		t.Fatalf("History() len = %d, want 1", got)
	}
	_, _ = m.GetEpic(e.ID)
	_, _ = m.GetTask(a.ID)
	h := m.History()
	if len(h) != 2 || h[0].ID != e.ID || h[1].ID != a.ID {
		t.Fatalf("History() = %v, want [epic, task]", h)
	}

	if _, err := m.GetTask(e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTask(epic id) error = %v, want ErrNotFound", err)
	}
	if got := len(m.History()); got != 2 {
		t.Fatalf("History() len after miss = %d, want 2", got)
	}
}

func TestManagerGetSubtasksByEpicID(t *testing.T) {
	m := NewManager()
	e, _ := m.AddEpic(NewEpic("E", ""))
	s1, _ := m.AddSubtask(NewSubtask(e.ID, draft(t, "S1", "09.02.25 13:00", 60, StatusNew)))
	s2, _ := m.AddSubtask(NewSubtask(e.ID, draft(t, "S2", "09.02.25 11:00", 60, StatusNew)))

	got, err := m.GetSubtasksByEpicID(e.ID)
	if err != nil {
		t.Fatalf("GetSubtasksByEpicID() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != s1.ID || got[1].ID != s2.ID {
		t.Fatalf("GetSubtasksByEpicID() = %v, want [%d %d]", got, s1.ID, s2.ID)
	}
	if _, err := m.GetSubtasksByEpicID(404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSubtasksByEpicID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestEpicStatus(t *testing.T) {
	cases := []struct {
		name             string
		newCnt, done, of int
		want             Status
	}{
		{"empty", 0, 0, 0, StatusNew},
		{"all new", 2, 0, 2, StatusNew},
		{"all done", 0, 3, 3, StatusDone},
		{"mixed", 1, 1, 2, StatusInProgress},
		{"in progress only", 0, 0, 1, StatusInProgress},
	}
	for _, tc := range cases {
		if got := EpicStatus(tc.newCnt, tc.done, tc.of); got != tc.want {
			t.Fatalf("%s: EpicStatus() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestManagerPersistsAfterEveryMutation(t *testing.T) {
	store := newFakeStore()
	m := NewManager()
	m.SetStore(store)

	a, err := m.AddTask(NewTask(draft(t, "A", "08.02.25 11:00", 60, StatusNew)))
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if store.saves() != 1 || len(store.last().Tasks) != 1 {
		t.Fatalf("saves = %d, want 1 with one task", store.saves())
	}
	if _, err := m.GetTask(a.ID); err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if store.saves() != 1 {
		t.Fatalf("saves after read = %d, want 1", store.saves())
	}
	if err := m.RemoveTask(a.ID); err != nil {
		t.Fatalf("RemoveTask() error = %v", err)
	}
	if store.saves() != 2 || len(store.last().Tasks) != 0 {
		t.Fatalf("saves = %d, want 2 with no tasks", store.saves())
	}
}

func TestManagerRollsBackOnPersistenceFailure(t *testing.T) {
	store := newFakeStore()
	m := NewManager()
	m.SetStore(store)

	e, _ := m.AddEpic(NewEpic("E", ""))
	s, _ := m.AddSubtask(NewSubtask(e.ID, draft(t, "S", "09.02.25 11:00", 60, StatusDone)))
	_, _ = m.GetSubtask(s.ID)

	events, cancel := m.Subscribe()
	defer cancel()

	store.failWith(errors.New("disk full"))
	if _, err := m.AddTask(NewTask(draft(t, "A", "08.02.25 11:00", 60, StatusNew))); !errors.Is(err, ErrPersistence) {
		t.Fatalf("AddTask() error = %v, want ErrPersistence", err)
	}
	if err := m.RemoveEpic(e.ID); !errors.Is(err, ErrPersistence) {
		t.Fatalf("RemoveEpic() error = %v, want ErrPersistence", err)
	}

	if len(m.ListTasks()) != 0 {
		t.Fatalf("ListTasks() len = %d, want 0 after failed add", len(m.ListTasks()))
	}
	if len(m.ListSubtasks()) != 1 || len(m.PrioritizedTasks()) != 1 || len(m.History()) != 1 {
		t.Fatalf("state changed after failed RemoveEpic")
	}
	select {
	case evt := <-events:
		t.Fatalf("unexpected event %+v after failed operations", evt)
	default:
	}

	store.failWith(nil)
	a, err := m.AddTask(NewTask(draft(t, "A", "08.02.25 11:00", 60, StatusNew)))
	if err != nil {
		t.Fatalf("AddTask() after recovery error = %v", err)
	}
	if a.ID != s.ID+1 {
		t.Fatalf("AddTask().ID = %d, want %d (failed add must not consume ids)", a.ID, s.ID+1)
	}
}

func TestManagerSubscribeReceivesCommittedEvents(t *testing.T) {
	m := NewManager()
	events, cancel := m.Subscribe()
	defer cancel()

	e, _ := m.AddEpic(NewEpic("E", ""))
	if _, err := m.AddSubtask(NewSubtask(e.ID, draft(t, "S", "09.02.25 11:00", 60, StatusNew))); err != nil {
		t.Fatalf("AddSubtask() error = %v", err)
	}

	want := []Event{
		{Type: EventCreated, Kind: KindEpic, ID: e.ID},
		{Type: EventCreated, Kind: KindSubtask, ID: e.ID + 1},
		{Type: EventUpdated, Kind: KindEpic, ID: e.ID},
	}
	for i, w := range want {
		select {
		case got := <-events:
			if got.Type != w.Type || got.Kind != w.Kind || got.ID != w.ID {
				t.Fatalf("event[%d] = %+v, want %+v", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("event[%d] not delivered", i)
		}
	}
}

type fakeStore struct {
	mu       sync.Mutex
	err      error
	count    int
	snapshot Snapshot
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.count++
	s.snapshot = snap
	return nil
}

func (s *fakeStore) Load(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Snapshot{}, s.err
	}
	return s.snapshot, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeStore) saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *fakeStore) last() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}
