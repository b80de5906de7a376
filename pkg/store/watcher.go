package store

import (
	"sync"
)

// PlanEvent is delivered to watchers after every plan write.
type PlanEvent struct {
	Change string `json:"change"`
	Plan   *Plan  `json:"plan"`
}

type subscription struct {
	userID string
	date   string // empty matches all dates
	ch     chan PlanEvent
}

// planWatcher fans plan changes out to in-process subscribers. The
// gateway bridges these events onto websocket clients.
type planWatcher struct {
	mu     sync.RWMutex
	subs   map[int64]*subscription
	nextID int64
	closed bool
}

func newPlanWatcher() *planWatcher {
	return &planWatcher{
		subs: make(map[int64]*subscription),
	}
}

// WatchPlans subscribes to plan changes for a user, optionally filtered
// by date. The returned cancel func must be called to release the
// subscription. Slow consumers lose events rather than blocking writers.
func (s *Store) WatchPlans(userID, date string) (<-chan PlanEvent, func()) {
	return s.watcher.subscribe(userID, date)
}

func (w *planWatcher) subscribe(userID, date string) (<-chan PlanEvent, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++

	sub := &subscription{
		userID: userID,
		date:   date,
		ch:     make(chan PlanEvent, 16),
	}
	w.subs[id] = sub

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if s, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(s.ch)
		}
	}

	return sub.ch, cancel
}

func (w *planWatcher) notify(event PlanEvent) {
	if event.Plan == nil {
		return
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return
	}

	for _, sub := range w.subs {
		if sub.userID != "" && sub.userID != event.Plan.UserID {
			continue
		}
		if sub.date != "" && sub.date != event.Plan.Date {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Drop rather than stall a plan write.
		}
	}
}

func (w *planWatcher) closeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	for id, sub := range w.subs {
		delete(w.subs, id)
		close(sub.ch)
	}
}
