package store

import (
	"sync"
	"time"
)

// Op names the mutation behind a change event.
type Op string

const (
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpDuplicate Op = "duplicate"
	OpImportAll Op = "import_all"
	OpImportOne Op = "import_one"
)

// Event signals that the collection changed. Observers are expected to
// re-read the full list; IDs is informational only.
type Event struct {
	Op  Op        `json:"op"`
	IDs []string  `json:"ids"`
	At  time.Time `json:"at"`
}

type subscribers struct {
	mu     sync.Mutex
	nextID int
	chans  map[int]chan Event
}

func newSubscribers() *subscribers {
	return &subscribers{chans: make(map[int]chan Event)}
}

// publish never blocks: a subscriber whose buffer is full misses the event.
func (s *subscribers) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chans {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers for change events. The returned cancel func closes
// the channel and is safe to call more than once.
func (s *KnowledgeStore) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.subs.mu.Lock()
	id := s.subs.nextID
	s.subs.nextID++
	s.subs.chans[id] = ch
	s.subs.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subs.mu.Lock()
			delete(s.subs.chans, id)
			s.subs.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
