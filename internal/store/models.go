package store

import (
	"time"
)

// NotificationType tags a system notification so the client knows
// where a click on it should navigate.
const (
	ConnectionRequestType = "connection_request"
	ReminderType          = "reminder"
	SystemType            = "system"
)

// Message is one direct message between exactly two users. The store row is
// the source of truth; clients hold read-through caches keyed by ID.
type Message struct {
	ID         string `gorm:"primaryKey;size:36"`
	SenderID   string `gorm:"not null;index;size:36"`
	ReceiverID string `gorm:"not null;index;size:36"`
	Content    string `gorm:"not null;type:text"`
	// Read is settable only by the receiver.
	Read bool `gorm:"not null;default:false"`
	// EditedAt being non-nil is the sole "edited" indicator.
	EditedAt  *time.Time
	CreatedAt time.Time `gorm:"index"`
}

// CounterpartOf returns the other participant of the message.
func (m *Message) CounterpartOf(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.EditedAt != nil {
		t := *m.EditedAt
		out.EditedAt = &t
	}
	return &out
}

// Notification is a system notification owned by a single user.
type Notification struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"not null;index;size:36"`
	Type      string `gorm:"not null;size:50"`
	Title     string `gorm:"not null;size:255"`
	Body      string `gorm:"not null;type:text"`
	Read      bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	out := *n
	return &out
}

// Profile is the user record plus the summary fields shown next to
// messages and conversation rows.
type Profile struct {
	UserID       string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"not null;uniqueIndex;size:255"`
	PasswordHash string `gorm:"not null;size:255" json:"-"`
	// Username may be empty until the user sets one; sending messages
	// requires it.
	Username  string `gorm:"index;size:50"`
	FullName  string `gorm:"size:100"`
	AvatarURL string `gorm:"size:512"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Todo carries the fields the reminder scanner reads. The rest of the todo
// surface (projects, ordering, teams) lives outside this core.
type Todo struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"not null;index;size:36"`
	Text      string `gorm:"not null;type:text"`
	Completed bool   `gorm:"not null;default:false"`
	DueDate   *time.Time
	// ReminderMinutesBefore <= 0 means no reminder.
	ReminderMinutesBefore *int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
