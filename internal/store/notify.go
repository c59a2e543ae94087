package store

import stdsync "sync"

// Event describes a committed local mutation. Subscribers use events to
// trigger a sync pass without polling the database.
type Event struct {
	TripID string
	Op     ChangeOp
}

// notifier fans committed-mutation events out to subscribers.
// Notifications fire after the transaction commits, never inside it.
type notifier struct {
	mu        stdsync.RWMutex
	listeners []func(Event)
}

func (n *notifier) notify(e Event) {
	n.mu.RLock()
	listeners := make([]func(Event), len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.RUnlock()

	for _, fn := range listeners {
		fn(e)
	}
}

// Subscribe registers fn to be called after every committed local
// mutation. Callbacks run on the mutating goroutine and must not block.
func (s *Store) Subscribe(fn func(Event)) {
	s.notifier.mu.Lock()
	defer s.notifier.mu.Unlock()
	s.notifier.listeners = append(s.notifier.listeners, fn)
}
