package realtime

import (
	"log"
	"sync"

	"taskhub/internal/store"
)

// Op is the kind of change an event describes.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Table identifies which logical feed an event belongs to.
type Table string

const (
	TableMessages      Table = "messages"
	TableNotifications Table = "notifications"
)

// Event is one change pushed over the feed. Exactly one of Message or
// Notification is set, matching Table. Delete events still carry the full
// row so subscribers can match by id.
type Event struct {
	Table        Table
	Op           Op
	Message      *store.Message
	Notification *store.Notification
}

// Targets lists the users whose subscriptions this event matches. Message
// events reach both participants - the sender's copy is the echo the client
// stores must dedup by id - and notification events reach the owner only.
func (e Event) Targets() []string {
	switch e.Table {
	case TableMessages:
		if e.Message != nil {
			if e.Message.SenderID == e.Message.ReceiverID {
				return []string{e.Message.ReceiverID}
			}
			return []string{e.Message.ReceiverID, e.Message.SenderID}
		}
	case TableNotifications:
		if e.Notification != nil {
			return []string{e.Notification.UserID}
		}
	}
	return nil
}

func (e Event) clone() Event {
	out := e
	out.Message = e.Message.Clone()
	out.Notification = e.Notification.Clone()
	return out
}

// Feed is the process-wide change feed. Subscriptions are explicit handles:
// acquired once per signed-in session and closed on sign-out, so a stale
// subscriber cannot keep receiving events. Delivery order per subscription
// matches publish order; no ordering is promised relative to the writer's
// own call completing.
type Feed struct {
	mu      sync.Mutex
	nextID  int
	bufSize int
	subs    map[int]*Subscription
}

func NewFeed(channelBufferSize int) *Feed {
	if channelBufferSize <= 0 {
		channelBufferSize = 256
	}
	return &Feed{
		bufSize: channelBufferSize,
		subs:    make(map[int]*Subscription),
	}
}

// Subscribe registers a filter of the form "rows in table addressed to
// userID" and returns the handle owning the delivery channel.
func (f *Feed) Subscribe(table Table, userID string) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	sub := &Subscription{
		id:     f.nextID,
		feed:   f,
		table:  table,
		userID: userID,
		ch:     make(chan Event, f.bufSize),
	}
	f.subs[sub.id] = sub
	return sub
}

// Publish fans the event out to every matching subscription. A subscriber
// that cannot keep up loses the event; reconciliation happens on the next
// full fetch, not by replay.
func (f *Feed) Publish(ev Event) {
	targets := make(map[string]bool)
	for _, t := range ev.Targets() {
		targets[t] = true
	}

	// Sends are non-blocking, so holding the lock across the fan-out is
	// cheap and rules out a send on a channel Close is about to close.
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.table != ev.Table || !targets[sub.userID] {
			continue
		}
		select {
		case sub.ch <- ev.clone():
		default:
			log.Printf("realtime: subscriber %d buffer full, dropping %s/%s event", sub.id, ev.Table, ev.Op)
		}
	}
}

func (f *Feed) unsubscribe(s *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, s.id)
	close(s.ch)
}

// Subscription is the handle for one open feed channel.
type Subscription struct {
	id     int
	feed   *Feed
	table  Table
	userID string
	ch     chan Event
	once   sync.Once
}

// C is the delivery channel. It is closed when the subscription is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.unsubscribe(s)
	})
}
