package tasks

import "time"

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
	EventCleared EventType = "cleared"
	EventLoaded  EventType = "loaded"
)

// Event describes one committed change. ID is zero for bulk events.
type Event struct {
	Type EventType `json:"type"`
	Kind Kind      `json:"kind"`
	ID   int       `json:"id,omitempty"`
	At   time.Time `json:"at"`
}

const defaultEventBuffer = 256

// Subscribe returns a channel of committed change events. Slow subscribers
// lose events rather than block the manager.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	size := m.eventBuffer
	if size <= 0 {
		size = defaultEventBuffer
	}
	ch := make(chan Event, size)
	m.nextSubID++
	id := m.nextSubID
	m.subscribers[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(c)
		}
	}
}

func (m *Manager) SetEventBuffer(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventBuffer = n
}

// publishLocked queues evt until the surrounding operation commits.
func (m *Manager) publishLocked(typ EventType, kind Kind, id int) {
	m.pending = append(m.pending, Event{
		Type: typ,
		Kind: kind,
		ID:   id,
		At:   m.now().UTC(),
	})
}

func (m *Manager) flushEventsLocked() {
	events := m.pending
	m.pending = nil
	if len(m.subscribers) == 0 {
		return
	}
	for _, evt := range events {
		for _, ch := range m.subscribers {
			select {
			case ch <- evt:
			default:
			}
		}
	}
}
