package application

import (
	"sync"
	"time"
)

// AttendanceChange describes one committed attendance mutation. Exactly one
// change is published per committed record write; consumers subscribe to
// this feed rather than watching storage.
type AttendanceChange struct {
	EventID    string
	Date       string
	UserID     string
	Action     string
	Status     string
	OccurredAt time.Time
}

// ChangeFeed fans committed attendance changes out to in-process
// subscribers. Delivery is best-effort: a subscriber whose buffer is full
// misses the change instead of blocking the mutation path.
type ChangeFeed struct {
	mu          sync.RWMutex
	nextID      int
	buffer      int
	subscribers map[int]chan AttendanceChange
	closed      bool
}

// NewChangeFeed creates a feed whose subscriber channels hold up to buffer
// undelivered changes.
func NewChangeFeed(buffer int) *ChangeFeed {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChangeFeed{
		buffer:      buffer,
		subscribers: make(map[int]chan AttendanceChange),
	}
}

// Subscribe registers a consumer and returns its channel plus a cancel
// function. Cancel is idempotent and closes the channel.
func (f *ChangeFeed) Subscribe() (<-chan AttendanceChange, func()) {
	if f == nil {
		ch := make(chan AttendanceChange)
		close(ch)
		return ch, func() {}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan AttendanceChange, f.buffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if sub, ok := f.subscribers[id]; ok {
				delete(f.subscribers, id)
				close(sub)
			}
			f.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers the change to every current subscriber without blocking.
func (f *ChangeFeed) Publish(change AttendanceChange) {
	if f == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, ch := range f.subscribers {
		select {
		case ch <- change:
		default:
		}
	}
}

// Close shuts the feed down and closes all subscriber channels.
func (f *ChangeFeed) Close() {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subscribers {
		delete(f.subscribers, id)
		close(ch)
	}
}
