package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory bundles in-memory implementations of every repository interface in
// this package. It backs the state-manager tests, where read-after-write
// behavior against a real (if small) store matters more than call counting,
// and doubles as a development backend when MySQL is not around.
type Memory struct {
	core *memoryCore

	Messages      MessageRepository
	Notifications NotificationRepository
	Profiles      ProfileRepository
	Todos         TodoRepository
}

func NewMemory() *Memory {
	core := &memoryCore{
		messages:      make(map[string]*Message),
		notifications: make(map[string]*Notification),
		profiles:      make(map[string]*Profile),
		todos:         make(map[string]*Todo),
	}
	return &Memory{
		core:          core,
		Messages:      &memoryMessages{core},
		Notifications: &memoryNotifications{core},
		Profiles:      &memoryProfiles{core},
		Todos:         &memoryTodos{core},
	}
}

// FailWith makes every subsequent operation return err. Pass nil to heal.
func (m *Memory) FailWith(err error) {
	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	m.core.failErr = err
}

type memoryCore struct {
	mu            sync.Mutex
	messages      map[string]*Message
	notifications map[string]*Notification
	profiles      map[string]*Profile
	todos         map[string]*Todo
	seq           int64
	failErr       error
}

// nextTime hands out strictly increasing timestamps so ordering by
// (created_at, id) stays deterministic even within one test tick.
func (c *memoryCore) nextTime() time.Time {
	c.seq++
	return time.Unix(1700000000, c.seq*int64(time.Millisecond)).UTC()
}

type memoryMessages struct{ c *memoryCore }

func (r *memoryMessages) Insert(ctx context.Context, msg *Message) (*Message, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	stored := msg.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.c.nextTime()
	}
	r.c.messages[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *memoryMessages) HistoryFor(ctx context.Context, userID string) ([]*Message, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	var out []*Message
	for _, msg := range r.c.messages {
		if msg.SenderID == userID || msg.ReceiverID == userID {
			out = append(out, msg.Clone())
		}
	}
	sortMessagesDesc(out)
	return out, nil
}

func (r *memoryMessages) Between(ctx context.Context, userID, counterpartID string) ([]*Message, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	var out []*Message
	for _, msg := range r.c.messages {
		if (msg.SenderID == userID && msg.ReceiverID == counterpartID) ||
			(msg.SenderID == counterpartID && msg.ReceiverID == userID) {
			out = append(out, msg.Clone())
		}
	}
	sortMessagesAsc(out)
	return out, nil
}

func (r *memoryMessages) UnreadFor(ctx context.Context, userID string) ([]*Message, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	var out []*Message
	for _, msg := range r.c.messages {
		if msg.ReceiverID == userID && !msg.Read {
			out = append(out, msg.Clone())
		}
	}
	sortMessagesDesc(out)
	return out, nil
}

func (r *memoryMessages) MarkRead(ctx context.Context, ids []string, receiverID string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return r.c.failErr
	}

	for _, id := range ids {
		if msg, ok := r.c.messages[id]; ok && msg.ReceiverID == receiverID {
			msg.Read = true
		}
	}
	return nil
}

func (r *memoryMessages) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return r.c.failErr
	}

	msg, ok := r.c.messages[id]
	if !ok {
		return fmt.Errorf("message not found: %s", id)
	}
	msg.Content = content
	t := editedAt
	msg.EditedAt = &t
	return nil
}

func (r *memoryMessages) ByID(ctx context.Context, id string) (*Message, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	msg, ok := r.c.messages[id]
	if !ok {
		return nil, fmt.Errorf("message not found: %s", id)
	}
	return msg.Clone(), nil
}

func (r *memoryMessages) Delete(ctx context.Context, id, userID string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return r.c.failErr
	}

	if msg, ok := r.c.messages[id]; ok && (msg.SenderID == userID || msg.ReceiverID == userID) {
		delete(r.c.messages, id)
	}
	return nil
}

type memoryNotifications struct{ c *memoryCore }

func (r *memoryNotifications) Insert(ctx context.Context, n *Notification) (*Notification, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	stored := n.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.c.nextTime()
	}
	r.c.notifications[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *memoryNotifications) RecentFor(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	var out []*Notification
	for _, n := range r.c.notifications {
		if n.UserID == userID {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryNotifications) ByID(ctx context.Context, id, userID string) (*Notification, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	n, ok := r.c.notifications[id]
	if !ok || n.UserID != userID {
		return nil, fmt.Errorf("notification not found: %s", id)
	}
	return n.Clone(), nil
}

func (r *memoryNotifications) MarkRead(ctx context.Context, id, userID string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return r.c.failErr
	}

	n, ok := r.c.notifications[id]
	if !ok || n.UserID != userID {
		return fmt.Errorf("notification not found or access denied: %s", id)
	}
	n.Read = true
	return nil
}

func (r *memoryNotifications) Delete(ctx context.Context, id, userID string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return r.c.failErr
	}

	n, ok := r.c.notifications[id]
	if !ok || n.UserID != userID {
		return fmt.Errorf("notification not found: %s", id)
	}
	delete(r.c.notifications, id)
	return nil
}

func (r *memoryNotifications) DeleteAll(ctx context.Context, userID string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return r.c.failErr
	}

	for id, n := range r.c.notifications {
		if n.UserID == userID {
			delete(r.c.notifications, id)
		}
	}
	return nil
}

type memoryProfiles struct{ c *memoryCore }

func (r *memoryProfiles) Create(ctx context.Context, p *Profile) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return r.c.failErr
	}

	if p.UserID == "" {
		p.UserID = uuid.NewString()
	}
	stored := *p
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.c.nextTime()
	}
	r.c.profiles[stored.UserID] = &stored
	return nil
}

func (r *memoryProfiles) ByID(ctx context.Context, id string) (*Profile, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	p, ok := r.c.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile not found: %s", id)
	}
	cp := *p
	return &cp, nil
}

func (r *memoryProfiles) ByIDs(ctx context.Context, ids []string) ([]*Profile, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	out := make([]*Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.c.profiles[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryProfiles) ByEmail(ctx context.Context, email string) (*Profile, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	for _, p := range r.c.profiles {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("profile not found for email")
}

func (r *memoryProfiles) UpdateUsername(ctx context.Context, id, username string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return r.c.failErr
	}

	p, ok := r.c.profiles[id]
	if !ok {
		return fmt.Errorf("profile not found: %s", id)
	}
	p.Username = username
	p.UpdatedAt = time.Now()
	return nil
}

type memoryTodos struct{ c *memoryCore }

func (r *memoryTodos) Create(ctx context.Context, t *Todo) (*Todo, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	stored := *t
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.c.nextTime()
	}
	r.c.todos[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (r *memoryTodos) ForUser(ctx context.Context, userID string) ([]*Todo, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	var out []*Todo
	for _, t := range r.c.todos {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryTodos) Update(ctx context.Context, t *Todo) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return r.c.failErr
	}

	if _, ok := r.c.todos[t.ID]; !ok {
		return fmt.Errorf("todo not found: %s", t.ID)
	}
	cp := *t
	r.c.todos[t.ID] = &cp
	return nil
}

func (r *memoryTodos) Delete(ctx context.Context, id, userID string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return r.c.failErr
	}

	t, ok := r.c.todos[id]
	if !ok || t.UserID != userID {
		return fmt.Errorf("todo not found: %s", id)
	}
	delete(r.c.todos, id)
	return nil
}

func (r *memoryTodos) ReminderCandidates(ctx context.Context, userID string) ([]*Todo, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failErr != nil {
		return nil, r.c.failErr
	}

	var out []*Todo
	for _, t := range r.c.todos {
		if t.UserID == userID && !t.Completed && t.DueDate != nil && t.ReminderMinutesBefore != nil {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func sortMessagesAsc(msgs []*Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

func sortMessagesDesc(msgs []*Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
		}
		return msgs[i].ID > msgs[j].ID
	})
}
