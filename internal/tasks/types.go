package tasks

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindTask    Kind = "TASK"
	KindEpic    Kind = "EPIC"
	KindSubtask Kind = "SUBTASK"
)

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(raw))); k {
	case KindTask, KindEpic, KindSubtask:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrValidation, raw)
	}
}

type Status string

const (
	StatusNew        Status = "NEW"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusNew, StatusInProgress, StatusDone:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusDone:
		return true
	default:
		return false
	}
}

// Task is the record shared by every entity kind. EpicID is only meaningful
// for subtasks and SubtaskIDs only for epics.
type Task struct {
	ID          int
	Kind        Kind
	Name        string
	Description string
	Status      Status
	StartTime   time.Time
	Duration    time.Duration

	EpicID     int
	SubtaskIDs []int
}

// Draft carries the optional fields accepted by the constructors.
type Draft struct {
	Name        string
	Description string
	Status      Status
	StartTime   *time.Time
	Duration    time.Duration
}

func NewTask(d Draft) Task {
	return d.build(KindTask, time.Now)
}

func NewSubtask(epicID int, d Draft) Task {
	t := d.build(KindSubtask, time.Now)
	t.EpicID = epicID
	return t
}

func NewEpic(name, description string) Task {
	return Task{
		Kind:        KindEpic,
		Name:        strings.TrimSpace(name),
		Description: description,
		Status:      StatusNew,
		SubtaskIDs:  []int{},
	}
}

func (d Draft) build(kind Kind, now func() time.Time) Task {
	t := Task{
		Kind:        kind,
		Name:        strings.TrimSpace(d.Name),
		Description: d.Description,
		Status:      d.Status,
		Duration:    d.Duration,
	}
	if t.Status == "" {
		t.Status = StatusNew
	}
	if d.StartTime != nil {
		t.StartTime = *d.StartTime
	} else {
		t.StartTime = now().Truncate(time.Minute)
	}
	return t
}

func (t Task) Scheduled() bool {
	return !t.StartTime.IsZero()
}

func (t Task) EndTime() (time.Time, error) {
	if !t.Scheduled() {
		return time.Time{}, fmt.Errorf("%w: %s %d", ErrNoStartTime, t.Kind, t.ID)
	}
	return t.StartTime.Add(t.Duration), nil
}

// SameEntity reports whether both values refer to the same stored entity.
func (t Task) SameEntity(other Task) bool {
	return t.ID == other.ID
}

func (t Task) Clone() Task {
	out := t
	if t.SubtaskIDs != nil {
		out.SubtaskIDs = make([]int, len(t.SubtaskIDs))
		copy(out.SubtaskIDs, t.SubtaskIDs)
	}
	return out
}
