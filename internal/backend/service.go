package backend

import (
	"context"
	"errors"
	"log"
	"time"

	"taskhub/internal/realtime"
	"taskhub/internal/store"
)

// Service is the persistent store plus realtime feed the client stores are
// written against. Every mutation goes through here so the matching change
// event is published to all subscribed sessions, including the one that
// made the write - that echo is deliberate and the client stores must merge
// it by id.
type Service struct {
	messages      store.MessageRepository
	notifications store.NotificationRepository
	profiles      store.ProfileRepository
	todos         store.TodoRepository
	feed          *realtime.Feed
}

// Constructor used in DI/wire
func NewService(
	messages store.MessageRepository,
	notifications store.NotificationRepository,
	profiles store.ProfileRepository,
	todos store.TodoRepository,
	feed *realtime.Feed,
) *Service {
	return &Service{
		messages:      messages,
		notifications: notifications,
		profiles:      profiles,
		todos:         todos,
		feed:          feed,
	}
}

// Feed exposes the realtime feed for session subscriptions.
func (s *Service) Feed() *realtime.Feed {
	return s.feed
}

// SendMessage validates, stores and broadcasts a new message. The returned
// row is the canonical one with server-assigned id and timestamp.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID, content string) (*store.Message, error) {
	if senderID == "" {
		return nil, errors.New("sender ID cannot be empty")
	}
	if receiverID == "" {
		return nil, errors.New("receiver ID cannot be empty")
	}
	if content == "" {
		return nil, errors.New("message content cannot be empty")
	}

	msg, err := s.messages.Insert(ctx, &store.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
	})
	if err != nil {
		return nil, err
	}

	s.feed.Publish(realtime.Event{Table: realtime.TableMessages, Op: realtime.OpInsert, Message: msg})
	return msg, nil
}

// EditMessage updates content and stamps the edited timestamp. Only the
// sender may edit.
func (s *Service) EditMessage(ctx context.Context, id, editorID, content string) (*store.Message, error) {
	if content == "" {
		return nil, errors.New("message content cannot be empty")
	}

	msg, err := s.messages.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != editorID {
		return nil, errors.New("only the sender can edit a message")
	}

	editedAt := time.Now().UTC()
	if err := s.messages.UpdateContent(ctx, id, content, editedAt); err != nil {
		return nil, err
	}

	msg.Content = content
	msg.EditedAt = &editedAt
	s.feed.Publish(realtime.Event{Table: realtime.TableMessages, Op: realtime.OpUpdate, Message: msg})
	return msg, nil
}

// DeleteMessage removes the row permanently. Only a participant of the
// message may delete it. Deleting an absent row is not an error; deletion
// is terminal and idempotent.
func (s *Service) DeleteMessage(ctx context.Context, id, userID string) error {
	msg, err := s.messages.ByID(ctx, id)
	if err != nil {
		// Nothing to delete, nothing to announce.
		return nil
	}
	if msg.SenderID != userID && msg.ReceiverID != userID {
		return errors.New("only participants can delete a message")
	}

	if err := s.messages.Delete(ctx, id, userID); err != nil {
		return err
	}

	s.feed.Publish(realtime.Event{Table: realtime.TableMessages, Op: realtime.OpDelete, Message: msg})
	return nil
}

// MarkMessagesRead flips the read flag for the given ids in one batch and
// echoes an update event per row so other sessions of the same user stay
// in sync. Only rows addressed to userID are touched; foreign ids in the
// batch are ignored.
func (s *Service) MarkMessagesRead(ctx context.Context, ids []string, userID string) error {
	if len(ids) == 0 {
		return nil
	}

	if err := s.messages.MarkRead(ctx, ids, userID); err != nil {
		return err
	}

	for _, id := range ids {
		msg, err := s.messages.ByID(ctx, id)
		if err != nil {
			log.Printf("backend: read echo skipped for %s: %v", id, err)
			continue
		}
		if msg.ReceiverID != userID {
			continue
		}
		s.feed.Publish(realtime.Event{Table: realtime.TableMessages, Op: realtime.OpUpdate, Message: msg})
	}
	return nil
}

func (s *Service) MessageHistory(ctx context.Context, userID string) ([]*store.Message, error) {
	return s.messages.HistoryFor(ctx, userID)
}

func (s *Service) MessagesBetween(ctx context.Context, userID, counterpartID string) ([]*store.Message, error) {
	return s.messages.Between(ctx, userID, counterpartID)
}

func (s *Service) UnreadMessages(ctx context.Context, userID string) ([]*store.Message, error) {
	return s.messages.UnreadFor(ctx, userID)
}

func (s *Service) ProfileByID(ctx context.Context, id string) (*store.Profile, error) {
	return s.profiles.ByID(ctx, id)
}

func (s *Service) ProfilesByIDs(ctx context.Context, ids []string) ([]*store.Profile, error) {
	return s.profiles.ByIDs(ctx, ids)
}

// PushNotification stores a system notification and broadcasts its insert
// event to the owner's sessions.
func (s *Service) PushNotification(ctx context.Context, n *store.Notification) (*store.Notification, error) {
	if n.UserID == "" {
		return nil, errors.New("user ID cannot be empty")
	}
	if n.Title == "" {
		return nil, errors.New("title cannot be empty")
	}

	stored, err := s.notifications.Insert(ctx, n)
	if err != nil {
		return nil, err
	}

	s.feed.Publish(realtime.Event{Table: realtime.TableNotifications, Op: realtime.OpInsert, Notification: stored})
	return stored, nil
}

func (s *Service) RecentNotifications(ctx context.Context, userID string, limit int) ([]*store.Notification, error) {
	return s.notifications.RecentFor(ctx, userID, limit)
}

// MarkNotificationRead flips the read flag and echoes the update event so
// the owner's other sessions drop the unread state too.
func (s *Service) MarkNotificationRead(ctx context.Context, id, userID string) error {
	if err := s.notifications.MarkRead(ctx, id, userID); err != nil {
		return err
	}

	n, err := s.notifications.ByID(ctx, id, userID)
	if err != nil {
		log.Printf("backend: notification read echo skipped for %s: %v", id, err)
		return nil
	}
	s.feed.Publish(realtime.Event{Table: realtime.TableNotifications, Op: realtime.OpUpdate, Notification: n})
	return nil
}

// DeleteNotification removes the row and broadcasts its delete event to the
// owner's sessions.
func (s *Service) DeleteNotification(ctx context.Context, id, userID string) error {
	n, err := s.notifications.ByID(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.notifications.Delete(ctx, id, userID); err != nil {
		return err
	}

	s.feed.Publish(realtime.Event{Table: realtime.TableNotifications, Op: realtime.OpDelete, Notification: n})
	return nil
}

// ClearNotifications wipes the user's notifications and broadcasts one
// delete event per cleared row.
func (s *Service) ClearNotifications(ctx context.Context, userID string) error {
	cleared, err := s.notifications.RecentFor(ctx, userID, 0)
	if err != nil {
		return err
	}
	if err := s.notifications.DeleteAll(ctx, userID); err != nil {
		return err
	}

	for _, n := range cleared {
		s.feed.Publish(realtime.Event{Table: realtime.TableNotifications, Op: realtime.OpDelete, Notification: n})
	}
	return nil
}

func (s *Service) ReminderCandidates(ctx context.Context, userID string) ([]*store.Todo, error) {
	return s.todos.ReminderCandidates(ctx, userID)
}
