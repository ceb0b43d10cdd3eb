package tasks

import (
	"sort"
	"time"
)

type slot struct {
	id    int
	start time.Time
	end   time.Time
}

func (s slot) before(o slot) bool {
	if !s.start.Equal(o.start) {
		return s.start.Before(o.start)
	}
	return s.id < o.id
}

func (s slot) overlaps(o slot) bool {
	return s.start.Before(o.end) && s.end.After(o.start)
}

// Schedule orders every scheduled task and subtask by start time, then id.
// The id map is the source of truth; the ordered slice only holds sort keys.
type Schedule struct {
	slots   map[int]slot
	ordered []slot
}

func NewSchedule() *Schedule {
	return &Schedule{slots: make(map[int]slot)}
}

func slotOf(t Task) (slot, bool) {
	end, err := t.EndTime()
	if err != nil {
		return slot{}, false
	}
	return slot{id: t.ID, start: t.StartTime, end: end}, true
}

// CanSchedule reports whether t fits without overlapping any other entry.
// An entry with t's own id is ignored so updates can be validated in place.
func (s *Schedule) CanSchedule(t Task) bool {
	if !t.Scheduled() {
		return false
	}
	return len(s.Conflicts(t)) == 0
}

// Conflicts returns the ids whose intervals overlap t, in schedule order.
func (s *Schedule) Conflicts(t Task) []int {
	cand, ok := slotOf(t)
	if !ok {
		return nil
	}
	var out []int
	for _, existing := range s.ordered {
		if !existing.start.Before(cand.end) {
			break
		}
		if existing.id == cand.id {
			continue
		}
		if existing.overlaps(cand) {
			out = append(out, existing.id)
		}
	}
	return out
}

func (s *Schedule) Add(t Task) {
	if t.Kind == KindEpic {
		return
	}
	next, ok := slotOf(t)
	if !ok {
		s.Remove(t.ID)
		return
	}
	s.Remove(t.ID)
	i := sort.Search(len(s.ordered), func(i int) bool { return next.before(s.ordered[i]) })
	s.ordered = append(s.ordered, slot{})
	copy(s.ordered[i+1:], s.ordered[i:])
	s.ordered[i] = next
	s.slots[t.ID] = next
}

func (s *Schedule) Remove(id int) {
	cur, ok := s.slots[id]
	if !ok {
		return
	}
	delete(s.slots, id)
	i := sort.Search(len(s.ordered), func(i int) bool { return !s.ordered[i].before(cur) })
	if i < len(s.ordered) && s.ordered[i].id == id {
		s.ordered = append(s.ordered[:i], s.ordered[i+1:]...)
	}
}

func (s *Schedule) Contains(id int) bool {
	_, ok := s.slots[id]
	return ok
}

func (s *Schedule) IDs() []int {
	out := make([]int, len(s.ordered))
	for i, sl := range s.ordered {
		out[i] = sl.id
	}
	return out
}

func (s *Schedule) Len() int {
	return len(s.ordered)
}

func (s *Schedule) Clone() *Schedule {
	out := &Schedule{
		slots:   make(map[int]slot, len(s.slots)),
		ordered: make([]slot, len(s.ordered)),
	}
	for id, sl := range s.slots {
		out.slots[id] = sl
	}
	copy(out.ordered, s.ordered)
	return out
}
