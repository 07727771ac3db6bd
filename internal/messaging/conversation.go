package messaging

import (
	"context"
	"sort"
	"sync"

	"taskhub/internal/backend"
	"taskhub/internal/common"
	"taskhub/internal/realtime"
	"taskhub/internal/store"
)

// Conversation is one row of the conversation list: the counterpart's
// profile summary, the latest message exchanged with them, and the latest
// message they sent us (which carries the unread state).
type Conversation struct {
	CounterpartID string
	Profile       *store.Profile
	LastMessage   *store.Message
	LastIncoming  *store.Message
}

// Unread reports whether the most recent message addressed to the current
// user in this conversation is still unread.
func (c *Conversation) Unread() bool {
	return c.LastIncoming != nil && !c.LastIncoming.Read
}

func (c *Conversation) clone() *Conversation {
	out := &Conversation{CounterpartID: c.CounterpartID, LastMessage: c.LastMessage.Clone(), LastIncoming: c.LastIncoming.Clone()}
	if c.Profile != nil {
		p := *c.Profile
		out.Profile = &p
	}
	return out
}

// ConversationStore keeps one entry per counterpart the user has ever
// exchanged messages with. A full load rebuilds the map from server state;
// realtime deltas patch individual entries afterwards.
type ConversationStore struct {
	mu            sync.Mutex
	userID        string
	svc           *backend.Service
	conversations map[string]*Conversation
}

func NewConversationStore(svc *backend.Service, userID string) *ConversationStore {
	return &ConversationStore{
		svc:           svc,
		userID:        userID,
		conversations: make(map[string]*Conversation),
	}
}

// LoadAll rebuilds the map from the full message history: newest-first
// fold keeping the first message seen per counterpart, then one batch
// profile fetch. On any failure the previous state is left untouched.
func (s *ConversationStore) LoadAll(ctx context.Context) error {
	history, err := s.svc.MessageHistory(ctx, s.userID)
	if err != nil {
		return common.WrapNotice("could not load conversations", err)
	}

	fresh := make(map[string]*Conversation)
	var counterpartIDs []string
	for _, msg := range history {
		key := msg.CounterpartOf(s.userID)
		conv, ok := fresh[key]
		if !ok {
			conv = &Conversation{CounterpartID: key, LastMessage: msg}
			fresh[key] = conv
			counterpartIDs = append(counterpartIDs, key)
		}
		// History is newest first, so the first incoming message per
		// counterpart is the latest one.
		if conv.LastIncoming == nil && msg.ReceiverID == s.userID {
			conv.LastIncoming = msg
		}
	}

	profiles, err := s.svc.ProfilesByIDs(ctx, counterpartIDs)
	if err != nil {
		return common.WrapNotice("could not load profiles", err)
	}
	for _, p := range profiles {
		if conv, ok := fresh[p.UserID]; ok {
			conv.Profile = p
		}
	}

	s.mu.Lock()
	s.conversations = fresh
	s.mu.Unlock()
	return nil
}

// ApplyEvent patches the single affected entry. Inserts only advance an
// entry to a strictly newer message (timestamps plus id tiebreak make ties
// impossible); a delete touching a cached row falls back to a full reload,
// the coarse but correctness-preserving strategy.
func (s *ConversationStore) ApplyEvent(ctx context.Context, ev realtime.Event) error {
	if ev.Table != realtime.TableMessages || ev.Message == nil {
		return nil
	}

	msg := ev.Message.Clone()
	key := msg.CounterpartOf(s.userID)

	switch ev.Op {
	case realtime.OpInsert:
		s.mu.Lock()
		conv, ok := s.conversations[key]
		if !ok {
			conv = &Conversation{CounterpartID: key, LastMessage: msg}
			s.conversations[key] = conv
		} else if messageAfter(msg, conv.LastMessage) {
			conv.LastMessage = msg
		}
		if msg.ReceiverID == s.userID &&
			(conv.LastIncoming == nil || messageAfter(msg, conv.LastIncoming)) {
			conv.LastIncoming = msg
		}
		needProfile := conv.Profile == nil
		s.mu.Unlock()

		if needProfile {
			profile, err := s.svc.ProfileByID(ctx, key)
			if err != nil {
				return common.WrapNotice("could not load profile", err)
			}
			s.mu.Lock()
			if conv, ok := s.conversations[key]; ok {
				conv.Profile = profile
			}
			s.mu.Unlock()
		}
		return nil

	case realtime.OpUpdate:
		s.mu.Lock()
		defer s.mu.Unlock()
		conv, ok := s.conversations[key]
		if !ok {
			return nil
		}
		if conv.LastMessage != nil && conv.LastMessage.ID == msg.ID {
			conv.LastMessage = msg
		}
		if conv.LastIncoming != nil && conv.LastIncoming.ID == msg.ID {
			conv.LastIncoming = msg
		}
		return nil

	case realtime.OpDelete:
		s.mu.Lock()
		conv, ok := s.conversations[key]
		affected := ok && ((conv.LastMessage != nil && conv.LastMessage.ID == msg.ID) ||
			(conv.LastIncoming != nil && conv.LastIncoming.ID == msg.ID))
		s.mu.Unlock()

		if affected {
			// The next-newest message is unknown locally; rebuild.
			return s.LoadAll(ctx)
		}
		return nil
	}
	return nil
}

// MarkRead flips the read flag at the store for the given ids and re-derives
// the local unread state.
func (s *ConversationStore) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	// Optimistic: flip local flags first, surface the store error without
	// rolling back.
	s.mu.Lock()
	s.markReadLocked(ids)
	s.mu.Unlock()

	if err := s.svc.MarkMessagesRead(ctx, ids, s.userID); err != nil {
		return common.WrapNotice("could not mark messages read", err)
	}
	return nil
}

// MarkLocalRead flips local flags only; used when the store write already
// happened elsewhere (for example on thread open).
func (s *ConversationStore) MarkLocalRead(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markReadLocked(ids)
}

func (s *ConversationStore) markReadLocked(ids []string) {
	for _, id := range ids {
		for _, conv := range s.conversations {
			if conv.LastMessage != nil && conv.LastMessage.ID == id {
				conv.LastMessage.Read = true
			}
			if conv.LastIncoming != nil && conv.LastIncoming.ID == id {
				conv.LastIncoming.Read = true
			}
		}
	}
}

// Get returns the conversation for one counterpart, or nil.
func (s *ConversationStore) Get(counterpartID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[counterpartID]; ok {
		return conv.clone()
	}
	return nil
}

// Snapshot returns all conversations sorted by recency of the last message.
func (s *ConversationStore) Snapshot() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, conv.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return messageAfter(out[i].LastMessage, out[j].LastMessage)
	})
	return out
}
