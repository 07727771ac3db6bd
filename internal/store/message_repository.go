package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageRepository interface {
	// Insert stores the message and returns the canonical row with the
	// server-assigned id and timestamp filled in.
	Insert(ctx context.Context, msg *Message) (*Message, error)
	// HistoryFor returns every message where the user is sender or
	// receiver, newest first.
	HistoryFor(ctx context.Context, userID string) ([]*Message, error)
	// Between returns all messages between the two participants,
	// oldest first.
	Between(ctx context.Context, userID, counterpartID string) ([]*Message, error)
	// UnreadFor returns unread messages addressed to the user, newest first.
	UnreadFor(ctx context.Context, userID string) ([]*Message, error)
	// MarkRead flips the read flag for rows addressed to receiverID; ids
	// pointing at other users' messages are left untouched.
	MarkRead(ctx context.Context, ids []string, receiverID string) error
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error
	ByID(ctx context.Context, id string) (*Message, error)
	// Delete removes the row if userID is the sender or the receiver.
	Delete(ctx context.Context, id, userID string) error
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Insert(ctx context.Context, msg *Message) (*Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

func (r *messageRepository) HistoryFor(ctx context.Context, userID string) ([]*Message, error) {
	var messages []*Message
	err := r.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message history: %w", err)
	}
	return messages, nil
}

func (r *messageRepository) Between(ctx context.Context, userID, counterpartID string) ([]*Message, error) {
	var messages []*Message
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, counterpartID, counterpartID, userID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread: %w", err)
	}
	return messages, nil
}

func (r *messageRepository) UnreadFor(ctx context.Context, userID string) ([]*Message, error) {
	var messages []*Message
	err := r.db.WithContext(ctx).
		Where("receiver_id = ? AND `read` = ?", userID, false).
		Order("created_at DESC, id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unread messages: %w", err)
	}
	return messages, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, ids []string, receiverID string) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&Message{}).
		Where("id IN ? AND receiver_id = ?", ids, receiverID).
		Update("read", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":   content,
			"edited_at": &editedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("message not found: %s", id)
	}
	return nil
}

func (r *messageRepository) ByID(ctx context.Context, id string) (*Message, error) {
	var msg Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("message not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

func (r *messageRepository) Delete(ctx context.Context, id, userID string) error {
	// Deletion is terminal and idempotent; a missing row is not an error.
	// The participant predicate keeps one user from deleting another
	// pair's messages.
	if err := r.db.WithContext(ctx).
		Delete(&Message{}, "id = ? AND (sender_id = ? OR receiver_id = ?)", id, userID, userID).Error; err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}
