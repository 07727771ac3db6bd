package notif

import (
	"context"
	"sync"

	"taskhub/internal/backend"
	"taskhub/internal/common"
	"taskhub/internal/realtime"
	"taskhub/internal/store"
)

// NotificationFetchLimit caps how many system notifications one refresh
// pulls. The unread part of the badge is counted within this page only, so
// a user with more than this many unread system notifications sees an
// undercount. Kept as an explicit, documented bound.
const NotificationFetchLimit = 50

// MessageAlert is one unread received message annotated with the sender's
// profile summary for display.
type MessageAlert struct {
	Message *store.Message
	Sender  *store.Profile
}

// View names where activating a feed item navigates to.
type View string

const (
	ViewNone        View = ""
	ViewMessages    View = "messages"
	ViewConnections View = "connections"
	ViewTodos       View = "todos"
)

// Route is the navigation outcome of clicking a feed item.
type Route struct {
	View          View
	CounterpartID string // set for ViewMessages
	Filter        string // set for ViewConnections ("incoming")
}

// Aggregator merges two independent alert sources - unread direct messages
// and system notifications - into one badge count and one feed.
type Aggregator struct {
	mu            sync.Mutex
	userID        string
	svc           *backend.Service
	messages      []*MessageAlert       // unread received messages, newest first
	notifications []*store.Notification // latest page, newest first
}

func NewAggregator(svc *backend.Service, userID string) *Aggregator {
	return &Aggregator{svc: svc, userID: userID}
}

// Refresh rebuilds both lists from server state. On failure the previous
// state is left untouched.
func (a *Aggregator) Refresh(ctx context.Context) error {
	unread, err := a.svc.UnreadMessages(ctx, a.userID)
	if err != nil {
		return common.WrapNotice("could not load unread messages", err)
	}

	senderIDs := make([]string, 0, len(unread))
	seen := make(map[string]bool)
	for _, msg := range unread {
		if !seen[msg.SenderID] {
			seen[msg.SenderID] = true
			senderIDs = append(senderIDs, msg.SenderID)
		}
	}
	profiles, err := a.svc.ProfilesByIDs(ctx, senderIDs)
	if err != nil {
		return common.WrapNotice("could not load profiles", err)
	}
	byID := make(map[string]*store.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.UserID] = p
	}

	alerts := make([]*MessageAlert, 0, len(unread))
	for _, msg := range unread {
		alerts = append(alerts, &MessageAlert{Message: msg, Sender: byID[msg.SenderID]})
	}

	notifications, err := a.svc.RecentNotifications(ctx, a.userID, NotificationFetchLimit)
	if err != nil {
		return common.WrapNotice("could not load notifications", err)
	}

	a.mu.Lock()
	a.messages = alerts
	a.notifications = notifications
	a.mu.Unlock()
	return nil
}

// ApplyMessageEvent is the low-latency path for an incoming message insert:
// add the alert and bump the badge without a full refresh. The raw event
// carries only ids, so the sender profile is fetched here.
func (a *Aggregator) ApplyMessageEvent(ctx context.Context, ev realtime.Event) error {
	if ev.Table != realtime.TableMessages || ev.Op != realtime.OpInsert || ev.Message == nil {
		return nil
	}
	msg := ev.Message.Clone()
	if msg.ReceiverID != a.userID || msg.Read {
		return nil
	}

	sender, err := a.svc.ProfileByID(ctx, msg.SenderID)
	if err != nil {
		sender = nil // alert still shown, just without the profile summary
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, alert := range a.messages {
		if alert.Message.ID == msg.ID {
			return nil // echo of a row already listed
		}
	}
	a.messages = append([]*MessageAlert{{Message: msg, Sender: sender}}, a.messages...)
	return nil
}

// ApplyNotificationEvent folds a system notification change into the local
// page. The payload already carries full content; no extra fetch is needed.
// Inserts prepend, updates patch in place, deletes remove - so a mark-read
// or clear in one session settles the badge in every other session too.
func (a *Aggregator) ApplyNotificationEvent(ev realtime.Event) {
	if ev.Table != realtime.TableNotifications || ev.Notification == nil {
		return
	}
	n := ev.Notification.Clone()
	if n.UserID != a.userID {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	switch ev.Op {
	case realtime.OpInsert:
		for _, existing := range a.notifications {
			if existing.ID == n.ID {
				return
			}
		}
		a.notifications = append([]*store.Notification{n}, a.notifications...)
	case realtime.OpUpdate:
		for i, existing := range a.notifications {
			if existing.ID == n.ID {
				a.notifications[i] = n
				return
			}
		}
	case realtime.OpDelete:
		for i, existing := range a.notifications {
			if existing.ID == n.ID {
				a.notifications = append(a.notifications[:i], a.notifications[i+1:]...)
				return
			}
		}
	}
}

// MarkNotificationRead flips the read flag at the store and locally.
func (a *Aggregator) MarkNotificationRead(ctx context.Context, id string) error {
	a.mu.Lock()
	for _, n := range a.notifications {
		if n.ID == id {
			n.Read = true
		}
	}
	a.mu.Unlock()

	if err := a.svc.MarkNotificationRead(ctx, id, a.userID); err != nil {
		// Optimistic flag stays; surfaced only.
		return common.WrapNotice("could not mark notification read", err)
	}
	return nil
}

// DismissMessageAlert marks the underlying message read - the only way a
// message alert disappears - and drops it from the list.
func (a *Aggregator) DismissMessageAlert(ctx context.Context, messageID string) error {
	a.dropMessages([]string{messageID})

	if err := a.svc.MarkMessagesRead(ctx, []string{messageID}, a.userID); err != nil {
		return common.WrapNotice("could not mark message read", err)
	}
	return nil
}

// DropMessages retires alerts whose messages were read or deleted through
// another path (thread open, remote read, delete event).
func (a *Aggregator) DropMessages(ids []string) {
	a.dropMessages(ids)
}

func (a *Aggregator) dropMessages(ids []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := a.messages[:0]
	for _, alert := range a.messages {
		if !drop[alert.Message.ID] {
			kept = append(kept, alert)
		}
	}
	a.messages = kept
}

// DeleteNotification removes one system notification at the store and
// locally.
func (a *Aggregator) DeleteNotification(ctx context.Context, id string) error {
	a.mu.Lock()
	for i, n := range a.notifications {
		if n.ID == id {
			a.notifications = append(a.notifications[:i], a.notifications[i+1:]...)
			break
		}
	}
	a.mu.Unlock()

	if err := a.svc.DeleteNotification(ctx, id, a.userID); err != nil {
		return common.WrapNotice("could not delete notification", err)
	}
	return nil
}

// ClearAll deletes every system notification for the user.
func (a *Aggregator) ClearAll(ctx context.Context) error {
	a.mu.Lock()
	a.notifications = nil
	a.mu.Unlock()

	if err := a.svc.ClearNotifications(ctx, a.userID); err != nil {
		return common.WrapNotice("could not clear notifications", err)
	}
	return nil
}

// Badge is the single unread count across both sources, never negative.
func (a *Aggregator) Badge() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := len(a.messages)
	for _, n := range a.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// MessageAlerts returns the unread-message feed, newest first.
func (a *Aggregator) MessageAlerts() []*MessageAlert {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*MessageAlert, len(a.messages))
	for i, alert := range a.messages {
		cp := &MessageAlert{Message: alert.Message.Clone()}
		if alert.Sender != nil {
			p := *alert.Sender
			cp.Sender = &p
		}
		out[i] = cp
	}
	return out
}

// Notifications returns the system-notification feed, newest first.
func (a *Aggregator) Notifications() []*store.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*store.Notification, len(a.notifications))
	for i, n := range a.notifications {
		out[i] = n.Clone()
	}
	return out
}

// ActivateMessageAlert resolves a click on a message alert: navigate to the
// conversation with the sender. The alert itself is not dismissed here.
func (a *Aggregator) ActivateMessageAlert(messageID string) Route {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, alert := range a.messages {
		if alert.Message.ID == messageID {
			return Route{View: ViewMessages, CounterpartID: alert.Message.SenderID}
		}
	}
	return Route{View: ViewNone}
}

// ActivateNotification resolves a click on a system notification: mark it
// read if needed, then route by its type tag. Unrecognized types stay on
// the notification list.
func (a *Aggregator) ActivateNotification(ctx context.Context, id string) (Route, error) {
	a.mu.Lock()
	var target *store.Notification
	for _, n := range a.notifications {
		if n.ID == id {
			target = n
			break
		}
	}
	a.mu.Unlock()

	if target == nil {
		return Route{View: ViewNone}, nil
	}

	var err error
	if !target.Read {
		err = a.MarkNotificationRead(ctx, id)
	}

	switch target.Type {
	case store.ConnectionRequestType:
		return Route{View: ViewConnections, Filter: "incoming"}, err
	case store.ReminderType:
		return Route{View: ViewTodos}, err
	default:
		return Route{View: ViewNone}, err
	}
}
