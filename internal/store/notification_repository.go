package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Insert(ctx context.Context, n *Notification) (*Notification, error)
	// RecentFor returns up to limit notifications for the user, newest first.
	RecentFor(ctx context.Context, userID string, limit int) ([]*Notification, error)
	ByID(ctx context.Context, id, userID string) (*Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	Delete(ctx context.Context, id, userID string) error
	DeleteAll(ctx context.Context, userID string) error
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Insert(ctx context.Context, n *Notification) (*Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return n, nil
}

func (r *notificationRepository) RecentFor(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	var notifications []*Notification

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to get user notifications: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) ByID(ctx context.Context, id, userID string) (*Notification, error) {
	var n Notification
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("notification not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	result := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)

	if result.Error != nil {
		return fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification not found or access denied: %s", id)
	}
	return nil
}

func (r *notificationRepository) Delete(ctx context.Context, id, userID string) error {
	result := r.db.WithContext(ctx).Delete(&Notification{}, "id = ? AND user_id = ?", id, userID)

	if result.Error != nil {
		return fmt.Errorf("failed to delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification not found: %s", id)
	}
	return nil
}

func (r *notificationRepository) DeleteAll(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Delete(&Notification{}, "user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("failed to clear notifications: %w", err)
	}
	return nil
}
