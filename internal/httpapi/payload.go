package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/tracker/internal/tasks"
)

// taskPayload is the wire form of every entity kind. Times use
// tasks.TimeLayout and durations are whole minutes.
type taskPayload struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	StartTime   string `json:"start_time,omitempty"`
	Duration    int64  `json:"duration"`
	EndTime     string `json:"end_time,omitempty"`
	EpicID      int    `json:"epic_id,omitempty"`
	SubtaskIDs  []int  `json:"subtask_ids,omitempty"`
}

func toPayload(t tasks.Task) taskPayload {
	p := taskPayload{
		ID:          t.ID,
		Type:        string(t.Kind),
		Name:        t.Name,
		Description: t.Description,
		Status:      string(t.Status),
		StartTime:   tasks.FormatTime(t.StartTime),
		Duration:    int64(t.Duration / time.Minute),
	}
	if end, err := t.EndTime(); err == nil {
		p.EndTime = tasks.FormatTime(end)
	}
	switch t.Kind {
	case tasks.KindSubtask:
		p.EpicID = t.EpicID
	case tasks.KindEpic:
		p.SubtaskIDs = t.SubtaskIDs
	}
	return p
}

func toPayloads(in []tasks.Task) []taskPayload {
	out := make([]taskPayload, 0, len(in))
	for _, t := range in {
		out = append(out, toPayload(t))
	}
	return out
}

// taskRequest is the body of add and update calls. Pointer fields tell an
// omitted value apart from an explicit zero.
type taskRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	StartTime   *string `json:"start_time"`
	Duration    *int64  `json:"duration"`
	EpicID      *int    `json:"epic_id"`
}

// draft converts the request for an add. Omitted fields fall back to the
// constructor defaults.
func (req taskRequest) draft() (tasks.Draft, error) {
	var d tasks.Draft
	if req.Name != nil {
		d.Name = *req.Name
	}
	if req.Description != nil {
		d.Description = *req.Description
	}
	if req.Status != nil {
		st, err := tasks.ParseStatus(*req.Status)
		if err != nil {
			return tasks.Draft{}, err
		}
		d.Status = st
	}
	if req.StartTime != nil && strings.TrimSpace(*req.StartTime) != "" {
		ts, err := tasks.ParseTime(*req.StartTime)
		if err != nil {
			return tasks.Draft{}, err
		}
		d.StartTime = &ts
	}
	if req.Duration != nil {
		if *req.Duration < 0 {
			return tasks.Draft{}, fmt.Errorf("%w: duration must not be negative", tasks.ErrValidation)
		}
		d.Duration = time.Duration(*req.Duration) * time.Minute
	}
	return d, nil
}

// replacement converts the request for an update, which must carry every
// scheduled field.
func (req taskRequest) replacement(kind tasks.Kind, id int) (tasks.Task, error) {
	var missing []string
	if req.Name == nil {
		missing = append(missing, "name")
	}
	if req.Status == nil {
		missing = append(missing, "status")
	}
	if req.StartTime == nil {
		missing = append(missing, "start_time")
	}
	if req.Duration == nil {
		missing = append(missing, "duration")
	}
	if len(missing) > 0 {
		return tasks.Task{}, fmt.Errorf("%w: missing %s", tasks.ErrValidation, strings.Join(missing, ", "))
	}
	d, err := req.draft()
	if err != nil {
		return tasks.Task{}, err
	}
	if d.StartTime == nil {
		return tasks.Task{}, fmt.Errorf("%w: start_time is required", tasks.ErrValidation)
	}
	t := tasks.Task{
		ID:          id,
		Kind:        kind,
		Name:        d.Name,
		Description: d.Description,
		Status:      d.Status,
		StartTime:   *d.StartTime,
		Duration:    d.Duration,
	}
	if req.EpicID != nil {
		t.EpicID = *req.EpicID
	}
	return t, nil
}

func (req taskRequest) epic(id int, requireName bool) (tasks.Task, error) {
	if requireName && req.Name == nil {
		return tasks.Task{}, fmt.Errorf("%w: missing name", tasks.ErrValidation)
	}
	var name, desc string
	if req.Name != nil {
		name = *req.Name
	}
	if req.Description != nil {
		desc = *req.Description
	}
	t := tasks.NewEpic(name, desc)
	t.ID = id
	return t, nil
}
