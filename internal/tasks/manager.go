package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultSaveTimeout = 5 * time.Second

// Manager is the single owner of tasks, epics and subtasks. Every exported
// method holds the manager lock for its whole duration, so callers never
// observe a half-applied operation.
type Manager struct {
	mu sync.RWMutex

	store       Store
	saveTimeout time.Duration
	now         func() time.Time

	reg      *registry
	schedule *Schedule
	history  *History
	nextID   int

	subscribers map[int]chan Event
	nextSubID   int
	eventBuffer int
	pending     []Event
}

func NewManager() *Manager {
	return &Manager{
		saveTimeout: defaultSaveTimeout,
		now:         time.Now,
		reg:         newRegistry(),
		schedule:    NewSchedule(),
		history:     NewHistory(),
		nextID:      1,
		subscribers: make(map[int]chan Event),
		eventBuffer: defaultEventBuffer,
	}
}

// SetStore installs the persistence hook flushed after every mutation.
func (m *Manager) SetStore(store Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = store
}

func (m *Manager) SetSaveTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultSaveTimeout
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveTimeout = d
}

func (m *Manager) AddTask(t Task) (Task, error) {
	t.Kind = KindTask
	if err := validate(&t); err != nil {
		return Task{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t.ID = 0
	t.EpicID = 0
	t.SubtaskIDs = nil
	if err := m.checkScheduleLocked(t); err != nil {
		return Task{}, err
	}
	cp := m.checkpointLocked()
	t.ID = m.allocIDLocked()
	m.reg.put(t)
	m.schedule.Add(t)
	m.publishLocked(EventCreated, KindTask, t.ID)
	if err := m.commitLocked(cp); err != nil {
		return Task{}, err
	}
	return t.Clone(), nil
}

func (m *Manager) AddEpic(t Task) (Task, error) {
	t.Kind = KindEpic
	t.Name = strings.TrimSpace(t.Name)

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := m.checkpointLocked()
	t.ID = m.allocIDLocked()
	t.EpicID = 0
	t.SubtaskIDs = []int{}
	m.reg.put(t)
	epic, _ := m.reg.get(KindEpic, t.ID)
	m.recomputeEpicLocked(epic)
	m.publishLocked(EventCreated, KindEpic, t.ID)
	if err := m.commitLocked(cp); err != nil {
		return Task{}, err
	}
	return epic.Clone(), nil
}

func (m *Manager) AddSubtask(t Task) (Task, error) {
	t.Kind = KindSubtask
	if err := validate(&t); err != nil {
		return Task{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	epic, ok := m.reg.get(KindEpic, t.EpicID)
	if !ok {
		return Task{}, fmt.Errorf("%w: epic %d", ErrNotFound, t.EpicID)
	}
	t.ID = 0
	if err := m.checkScheduleLocked(t); err != nil {
		return Task{}, err
	}
	cp := m.checkpointLocked()
	t.ID = m.allocIDLocked()
	t.SubtaskIDs = nil
	m.reg.put(t)
	m.schedule.Add(t)
	epic.SubtaskIDs = append(epic.SubtaskIDs, t.ID)
	m.recomputeEpicLocked(epic)
	m.publishLocked(EventCreated, KindSubtask, t.ID)
	m.publishLocked(EventUpdated, KindEpic, epic.ID)
	if err := m.commitLocked(cp); err != nil {
		return Task{}, err
	}
	return t.Clone(), nil
}

func (m *Manager) UpdateTask(t Task) (Task, error) {
	t.Kind = KindTask
	if err := validate(&t); err != nil {
		return Task{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reg.get(KindTask, t.ID); !ok {
		return Task{}, fmt.Errorf("%w: task %d", ErrNotFound, t.ID)
	}
	if err := m.checkScheduleLocked(t); err != nil {
		return Task{}, err
	}
	cp := m.checkpointLocked()
	t.EpicID = 0
	t.SubtaskIDs = nil
	m.reg.put(t)
	m.schedule.Add(t)
	m.publishLocked(EventUpdated, KindTask, t.ID)
	if err := m.commitLocked(cp); err != nil {
		return Task{}, err
	}
	return t.Clone(), nil
}

// UpdateEpic replaces the epic's name and description. Status, schedule and
// the subtask list stay under the manager's control.
func (m *Manager) UpdateEpic(t Task) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	epic, ok := m.reg.get(KindEpic, t.ID)
	if !ok {
		return Task{}, fmt.Errorf("%w: epic %d", ErrNotFound, t.ID)
	}
	cp := m.checkpointLocked()
	epic.Name = strings.TrimSpace(t.Name)
	epic.Description = t.Description
	m.recomputeEpicLocked(epic)
	m.publishLocked(EventUpdated, KindEpic, epic.ID)
	if err := m.commitLocked(cp); err != nil {
		return Task{}, err
	}
	return epic.Clone(), nil
}

// UpdateSubtask replaces a subtask. A zero EpicID keeps the current owner; a
// different one moves the subtask and recomputes both epics.
func (m *Manager) UpdateSubtask(t Task) (Task, error) {
	t.Kind = KindSubtask
	if err := validate(&t); err != nil {
		return Task{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.reg.get(KindSubtask, t.ID)
	if !ok {
		return Task{}, fmt.Errorf("%w: subtask %d", ErrNotFound, t.ID)
	}
	oldEpicID := stored.EpicID
	if t.EpicID == 0 {
		t.EpicID = oldEpicID
	}
	target, ok := m.reg.get(KindEpic, t.EpicID)
	if !ok {
		return Task{}, fmt.Errorf("%w: epic %d", ErrNotFound, t.EpicID)
	}
	if err := m.checkScheduleLocked(t); err != nil {
		return Task{}, err
	}
	cp := m.checkpointLocked()
	t.SubtaskIDs = nil
	m.reg.put(t)
	m.schedule.Add(t)
	if oldEpicID != t.EpicID {
		if prev, ok := m.reg.get(KindEpic, oldEpicID); ok {
			prev.SubtaskIDs = removeID(prev.SubtaskIDs, t.ID)
			m.recomputeEpicLocked(prev)
			m.publishLocked(EventUpdated, KindEpic, prev.ID)
		}
		target.SubtaskIDs = append(target.SubtaskIDs, t.ID)
	}
	m.recomputeEpicLocked(target)
	m.publishLocked(EventUpdated, KindSubtask, t.ID)
	m.publishLocked(EventUpdated, KindEpic, target.ID)
	if err := m.commitLocked(cp); err != nil {
		return Task{}, err
	}
	return t.Clone(), nil
}

func (m *Manager) RemoveTask(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reg.get(KindTask, id); !ok {
		return fmt.Errorf("%w: task %d", ErrNotFound, id)
	}
	cp := m.checkpointLocked()
	m.dropLocked(KindTask, id)
	m.publishLocked(EventRemoved, KindTask, id)
	return m.commitLocked(cp)
}

func (m *Manager) RemoveSubtask(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.reg.get(KindSubtask, id)
	if !ok {
		return fmt.Errorf("%w: subtask %d", ErrNotFound, id)
	}
	cp := m.checkpointLocked()
	epicID := st.EpicID
	m.dropLocked(KindSubtask, id)
	if epic, ok := m.reg.get(KindEpic, epicID); ok {
		epic.SubtaskIDs = removeID(epic.SubtaskIDs, id)
		m.recomputeEpicLocked(epic)
		m.publishLocked(EventUpdated, KindEpic, epicID)
	}
	m.publishLocked(EventRemoved, KindSubtask, id)
	return m.commitLocked(cp)
}

// RemoveEpic deletes the epic together with every subtask it owns.
func (m *Manager) RemoveEpic(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	epic, ok := m.reg.get(KindEpic, id)
	if !ok {
		return fmt.Errorf("%w: epic %d", ErrNotFound, id)
	}
	cp := m.checkpointLocked()
	for _, sid := range epic.SubtaskIDs {
		m.dropLocked(KindSubtask, sid)
		m.publishLocked(EventRemoved, KindSubtask, sid)
	}
	m.dropLocked(KindEpic, id)
	m.publishLocked(EventRemoved, KindEpic, id)
	return m.commitLocked(cp)
}

func (m *Manager) RemoveAllTasks() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := m.checkpointLocked()
	for id := range m.reg.tasks {
		m.dropLocked(KindTask, id)
	}
	m.publishLocked(EventCleared, KindTask, 0)
	return m.commitLocked(cp)
}

// RemoveAllSubtasks keeps every epic but leaves it empty and NEW.
func (m *Manager) RemoveAllSubtasks() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := m.checkpointLocked()
	for id := range m.reg.subtasks {
		m.dropLocked(KindSubtask, id)
	}
	for _, epic := range m.reg.epics {
		epic.SubtaskIDs = []int{}
		m.recomputeEpicLocked(epic)
	}
	m.publishLocked(EventCleared, KindSubtask, 0)
	return m.commitLocked(cp)
}

// RemoveAllEpics also removes every subtask, since none can outlive its epic.
func (m *Manager) RemoveAllEpics() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := m.checkpointLocked()
	for id := range m.reg.subtasks {
		m.dropLocked(KindSubtask, id)
	}
	for id := range m.reg.epics {
		m.dropLocked(KindEpic, id)
	}
	m.publishLocked(EventCleared, KindSubtask, 0)
	m.publishLocked(EventCleared, KindEpic, 0)
	return m.commitLocked(cp)
}

func (m *Manager) GetTask(id int) (Task, error) {
	return m.view(KindTask, id)
}

func (m *Manager) GetEpic(id int) (Task, error) {
	return m.view(KindEpic, id)
}

func (m *Manager) GetSubtask(id int) (Task, error) {
	return m.view(KindSubtask, id)
}

func (m *Manager) view(kind Kind, id int) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.reg.get(kind, id)
	if !ok {
		return Task{}, fmt.Errorf("%w: %s %d", ErrNotFound, strings.ToLower(string(kind)), id)
	}
	m.history.Record(*t)
	return t.Clone(), nil
}

// GetSubtasksByEpicID returns the epic's subtasks in the order they were added.
func (m *Manager) GetSubtasksByEpicID(epicID int) ([]Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	epic, ok := m.reg.get(KindEpic, epicID)
	if !ok {
		return nil, fmt.Errorf("%w: epic %d", ErrNotFound, epicID)
	}
	out := make([]Task, 0, len(epic.SubtaskIDs))
	for _, sid := range epic.SubtaskIDs {
		if st, ok := m.reg.get(KindSubtask, sid); ok {
			out = append(out, st.Clone())
		}
	}
	return out, nil
}

func (m *Manager) ListTasks() []Task {
	return m.list(KindTask)
}

func (m *Manager) ListEpics() []Task {
	return m.list(KindEpic)
}

func (m *Manager) ListSubtasks() []Task {
	return m.list(KindSubtask)
}

func (m *Manager) list(kind Kind) []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.list(kind)
}

// History returns viewed entities, least recently viewed first.
func (m *Manager) History() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.Items()
}

// PrioritizedTasks returns scheduled tasks and subtasks by start time, then id.
func (m *Manager) PrioritizedTasks() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.schedule.IDs()
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := m.reg.lookup(id); ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (m *Manager) Counts() map[Kind]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[Kind]int{
		KindTask:    len(m.reg.tasks),
		KindEpic:    len(m.reg.epics),
		KindSubtask: len(m.reg.subtasks),
	}
}

// EpicStatus derives an epic's status from subtask counts.
func EpicStatus(newCount, doneCount, total int) Status {
	switch {
	case total == 0 || newCount == total:
		return StatusNew
	case doneCount == total:
		return StatusDone
	default:
		return StatusInProgress
	}
}

// recomputeEpicLocked derives status and window from the epic's subtasks. An
// epic without scheduled subtasks has an unset start and zero duration.
func (m *Manager) recomputeEpicLocked(epic *Task) {
	var (
		newCount, doneCount int
		start, end          time.Time
	)
	for _, sid := range epic.SubtaskIDs {
		st, ok := m.reg.get(KindSubtask, sid)
		if !ok {
			continue
		}
		switch st.Status {
		case StatusNew:
			newCount++
		case StatusDone:
			doneCount++
		}
		stEnd, err := st.EndTime()
		if err != nil {
			continue
		}
		if start.IsZero() || st.StartTime.Before(start) {
			start = st.StartTime
		}
		if end.IsZero() || stEnd.After(end) {
			end = stEnd
		}
	}
	epic.Status = EpicStatus(newCount, doneCount, len(epic.SubtaskIDs))
	if start.IsZero() {
		epic.StartTime = time.Time{}
		epic.Duration = 0
		return
	}
	epic.StartTime = start
	epic.Duration = end.Sub(start)
}

func (m *Manager) checkScheduleLocked(t Task) error {
	if conflicts := m.schedule.Conflicts(t); len(conflicts) > 0 {
		return fmt.Errorf("%w: %s %q overlaps %v", ErrSchedulingConflict, strings.ToLower(string(t.Kind)), t.Name, conflicts)
	}
	return nil
}

// dropLocked removes id from its map, the schedule and the history.
func (m *Manager) dropLocked(kind Kind, id int) {
	m.reg.delete(kind, id)
	m.schedule.Remove(id)
	m.history.Remove(id)
}

func (m *Manager) allocIDLocked() int {
	for m.reg.exists(m.nextID) {
		m.nextID++
	}
	id := m.nextID
	m.nextID++
	return id
}

// validate normalizes t in place. Start times and durations are kept at
// minute precision, the resolution of the data file.
func validate(t *Task) error {
	t.Name = strings.TrimSpace(t.Name)
	if !t.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrValidation, t.Status)
	}
	if !t.Scheduled() {
		return fmt.Errorf("%w: start time is required", ErrValidation)
	}
	if t.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrValidation)
	}
	t.StartTime = t.StartTime.Truncate(time.Minute)
	t.Duration = t.Duration.Truncate(time.Minute)
	if t.Kind == KindSubtask && t.EpicID < 0 {
		return fmt.Errorf("%w: epic id %d", ErrValidation, t.EpicID)
	}
	return nil
}

func removeID(ids []int, id int) []int {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

type checkpoint struct {
	reg      *registry
	schedule *Schedule
	history  *History
	nextID   int
}

// checkpointLocked captures the state needed to undo an operation whose
// flush fails. Without a store nothing can fail after validation.
func (m *Manager) checkpointLocked() *checkpoint {
	m.pending = nil
	if m.store == nil {
		return nil
	}
	return &checkpoint{
		reg:      m.reg.clone(),
		schedule: m.schedule.Clone(),
		history:  m.history.Clone(),
		nextID:   m.nextID,
	}
}

func (m *Manager) commitLocked(cp *checkpoint) error {
	if m.store != nil {
		if err := m.saveLocked(); err != nil {
			if cp != nil {
				m.reg = cp.reg
				m.schedule = cp.schedule
				m.history = cp.history
				m.nextID = cp.nextID
			}
			m.pending = nil
			return err
		}
	}
	m.flushEventsLocked()
	return nil
}

func (m *Manager) saveLocked() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.saveTimeout)
	defer cancel()
	if err := m.store.Save(ctx, m.snapshotLocked()); err != nil {
		if errors.Is(err, ErrPersistence) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}
