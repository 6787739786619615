package watcher

import "fmt"

// DefaultQueueCapacity is the smallest event queue a Watcher allocates.
const DefaultQueueCapacity = 64

// eventQueue stages events between a pump and their delivery. It is a
// fixed-size stack: the most recently pushed event is delivered first.
type eventQueue struct {
	events []Event
}

func newEventQueue(capacity int) *eventQueue {
	return &eventQueue{events: make([]Event, 0, capacity)}
}

// push panics when the queue is full. Sources never hand out more than the
// room they are given, so an overflow means the queue is undersized.
func (q *eventQueue) push(ev Event) {
	if len(q.events) == cap(q.events) {
		panic(fmt.Sprintf("watcher: event queue overflow (capacity %d)", cap(q.events)))
	}
	q.events = append(q.events, ev)
}

func (q *eventQueue) pop() (Event, bool) {
	if len(q.events) == 0 {
		return Event{}, false
	}
	last := len(q.events) - 1
	ev := q.events[last]
	q.events[last] = Event{}
	q.events = q.events[:last]
	return ev, true
}

func (q *eventQueue) len() int  { return len(q.events) }
func (q *eventQueue) room() int { return cap(q.events) - len(q.events) }

func (q *eventQueue) reset() {
	clear(q.events)
	q.events = q.events[:0]
}
