package messaging

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskhub/internal/backend"
	"taskhub/internal/common"
	"taskhub/internal/realtime"
	"taskhub/internal/store"
)

// ThreadStore holds the ordered message list for the one open conversation.
// Local optimistic writes and the realtime echo of the same row are
// concurrent; every mutation here merges by id, never by position, so the
// pair collapses to a single entry no matter which lands first.
type ThreadStore struct {
	mu          sync.Mutex
	userID      string
	username    string
	svc         *backend.Service
	counterpart string
	messages    []*store.Message // ascending by (created_at, id)
}

func NewThreadStore(svc *backend.Service, userID, username string) *ThreadStore {
	return &ThreadStore{
		svc:      svc,
		userID:   userID,
		username: username,
	}
}

// SetUsername updates the cached username after a profile change. Sending
// requires a non-empty username.
func (s *ThreadStore) SetUsername(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
}

// Open loads the full thread with counterpartID oldest-first and marks every
// unread message addressed to the current user as read in one batch. It
// returns the ids that were marked read so the caller can retire any
// matching unread alerts.
func (s *ThreadStore) Open(ctx context.Context, counterpartID string) ([]string, error) {
	if counterpartID == "" {
		return nil, common.NewNotice("no conversation selected")
	}

	s.mu.Lock()
	s.counterpart = counterpartID
	s.mu.Unlock()

	msgs, err := s.svc.MessagesBetween(ctx, s.userID, counterpartID)
	if err != nil {
		return nil, common.WrapNotice("could not load conversation", err)
	}

	var readIDs []string
	for _, msg := range msgs {
		if msg.ReceiverID == s.userID && !msg.Read {
			msg.Read = true
			readIDs = append(readIDs, msg.ID)
		}
	}

	s.mu.Lock()
	if s.counterpart != counterpartID {
		// User navigated on while the fetch was in flight; this response
		// must not leak into the thread that is open now.
		s.mu.Unlock()
		return nil, nil
	}
	s.messages = msgs
	s.mu.Unlock()

	if len(readIDs) > 0 {
		if err := s.svc.MarkMessagesRead(ctx, readIDs, s.userID); err != nil {
			// Local flags stay set; the next full fetch reconciles.
			return readIDs, common.WrapNotice("could not mark messages read", err)
		}
	}
	return readIDs, nil
}

// Send validates preconditions locally, stores the message and appends the
// canonical row. On failure nothing is appended, so the caller keeps the
// draft for resubmission.
func (s *ThreadStore) Send(ctx context.Context, text string) (*store.Message, error) {
	if err := common.ValidateMessageText(text); err != nil {
		return nil, common.NewNotice(err.Error())
	}

	s.mu.Lock()
	counterpart := s.counterpart
	username := s.username
	s.mu.Unlock()

	if counterpart == "" {
		return nil, common.NewNotice("no conversation selected")
	}
	if username == "" {
		return nil, common.NewNotice("set a username before sending messages")
	}

	msg, err := s.svc.SendMessage(ctx, s.userID, counterpart, text)
	if err != nil {
		return nil, common.WrapNotice("could not send message", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counterpart == counterpart {
		s.upsertLocked(msg)
	}
	return msg, nil
}

// Edit patches a message the current user sent. The entry is updated in
// place: position is governed by creation time only.
func (s *ThreadStore) Edit(ctx context.Context, id, text string) error {
	if err := common.ValidateMessageText(text); err != nil {
		return common.NewNotice(err.Error())
	}

	s.mu.Lock()
	target := s.findLocked(id)
	if target == nil {
		s.mu.Unlock()
		return common.NewNotice("message not found")
	}
	if target.SenderID != s.userID {
		s.mu.Unlock()
		return common.NewNotice("you can only edit your own messages")
	}

	// Optimistic local patch; the realtime echo carries the canonical
	// edited timestamp and replaces this entry by id.
	now := time.Now().UTC()
	target.Content = text
	target.EditedAt = &now
	s.mu.Unlock()

	if _, err := s.svc.EditMessage(ctx, id, s.userID, text); err != nil {
		// Not rolled back; reconciled by the next full fetch.
		return common.WrapNotice("could not edit message", err)
	}
	return nil
}

// Delete removes the message locally right away and then at the store.
// Deletion is terminal and idempotent, so no confirmation is awaited.
func (s *ThreadStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	target := s.findLocked(id)
	if target != nil && target.SenderID != s.userID && target.ReceiverID != s.userID {
		s.mu.Unlock()
		return common.NewNotice("message not found")
	}
	s.removeLocked(id)
	s.mu.Unlock()

	if err := s.svc.DeleteMessage(ctx, id, s.userID); err != nil {
		return common.WrapNotice("could not delete message", err)
	}
	return nil
}

// ApplyEvent reconciles one realtime delta into the open thread. Events for
// any other counterpart are ignored here (the conversation list still wants
// them). Returns whether the event touched the thread.
func (s *ThreadStore) ApplyEvent(ev realtime.Event) bool {
	if ev.Table != realtime.TableMessages || ev.Message == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counterpart == "" || ev.Message.CounterpartOf(s.userID) != s.counterpart {
		return false
	}

	switch ev.Op {
	case realtime.OpInsert:
		s.upsertLocked(ev.Message)
		return true
	case realtime.OpUpdate:
		if existing := s.findLocked(ev.Message.ID); existing != nil {
			*existing = *ev.Message.Clone()
			return true
		}
		return false
	case realtime.OpDelete:
		return s.removeLocked(ev.Message.ID)
	}
	return false
}

// MarkLocalRead flips the local read flag for the given ids without a store
// write; used when the write already happened elsewhere.
func (s *ThreadStore) MarkLocalRead(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if msg := s.findLocked(id); msg != nil {
			msg.Read = true
		}
	}
}

// Counterpart returns the id of the open conversation's other participant,
// or "" when no thread is open.
func (s *ThreadStore) Counterpart() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counterpart
}

// IsOpen reports whether the thread with counterpartID is the open one.
func (s *ThreadStore) IsOpen(counterpartID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counterpart != "" && s.counterpart == counterpartID
}

// Close forgets the open thread. Events arriving afterwards are ignored.
func (s *ThreadStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counterpart = ""
	s.messages = nil
}

// Messages returns a copy of the thread, oldest first.
func (s *ThreadStore) Messages() []*store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*store.Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = msg.Clone()
	}
	return out
}

func (s *ThreadStore) findLocked(id string) *store.Message {
	for _, msg := range s.messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

func (s *ThreadStore) removeLocked(id string) bool {
	for i, msg := range s.messages {
		if msg.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return true
		}
	}
	return false
}

// upsertLocked merges by id: a row already present is replaced, a new one
// is spliced in at its chronological position.
func (s *ThreadStore) upsertLocked(msg *store.Message) {
	cp := msg.Clone()
	if existing := s.findLocked(cp.ID); existing != nil {
		*existing = *cp
		return
	}

	idx := sort.Search(len(s.messages), func(i int) bool {
		return messageAfter(s.messages[i], cp)
	})
	s.messages = append(s.messages, nil)
	copy(s.messages[idx+1:], s.messages[idx:])
	s.messages[idx] = cp
}

// messageAfter reports whether a is ordered after b: creation time first,
// id as the tiebreak.
func messageAfter(a, b *store.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
