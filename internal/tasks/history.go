package tasks

import "container/list"

// History remembers the latest view of each entity id, least recent first.
type History struct {
	order *list.List
	byID  map[int]*list.Element
}

func NewHistory() *History {
	return &History{
		order: list.New(),
		byID:  make(map[int]*list.Element),
	}
}

// Record moves id to the tail, replacing the stored snapshot.
func (h *History) Record(t Task) {
	if t.ID == 0 {
		return
	}
	if el, ok := h.byID[t.ID]; ok {
		h.order.Remove(el)
	}
	h.byID[t.ID] = h.order.PushBack(t.Clone())
}

func (h *History) Remove(id int) {
	el, ok := h.byID[id]
	if !ok {
		return
	}
	h.order.Remove(el)
	delete(h.byID, id)
}

func (h *History) Items() []Task {
	out := make([]Task, 0, h.order.Len())
	for el := h.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(Task).Clone())
	}
	return out
}

func (h *History) Len() int {
	return h.order.Len()
}

func (h *History) Clone() *History {
	out := NewHistory()
	for el := h.order.Front(); el != nil; el = el.Next() {
		out.Record(el.Value.(Task))
	}
	return out
}
