package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TodoRepository interface {
	Create(ctx context.Context, t *Todo) (*Todo, error)
	ForUser(ctx context.Context, userID string) ([]*Todo, error)
	Update(ctx context.Context, t *Todo) error
	Delete(ctx context.Context, id, userID string) error
	// ReminderCandidates returns incomplete todos that have both a due
	// date and a reminder offset configured.
	ReminderCandidates(ctx context.Context, userID string) ([]*Todo, error)
}

type todoRepository struct {
	db *gorm.DB
}

func NewTodoRepository(db *gorm.DB) TodoRepository {
	return &todoRepository{db: db}
}

func (r *todoRepository) Create(ctx context.Context, t *Todo) (*Todo, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, fmt.Errorf("failed to create todo: %w", err)
	}
	return t, nil
}

func (r *todoRepository) ForUser(ctx context.Context, userID string) ([]*Todo, error) {
	var todos []*Todo
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&todos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	return todos, nil
}

func (r *todoRepository) Update(ctx context.Context, t *Todo) error {
	if err := r.db.WithContext(ctx).Save(t).Error; err != nil {
		return fmt.Errorf("failed to update todo: %w", err)
	}
	return nil
}

func (r *todoRepository) Delete(ctx context.Context, id, userID string) error {
	result := r.db.WithContext(ctx).Delete(&Todo{}, "id = ? AND user_id = ?", id, userID)

	if result.Error != nil {
		return fmt.Errorf("failed to delete todo: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("todo not found: %s", id)
	}
	return nil
}

func (r *todoRepository) ReminderCandidates(ctx context.Context, userID string) ([]*Todo, error) {
	var todos []*Todo
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND completed = ? AND due_date IS NOT NULL AND reminder_minutes_before IS NOT NULL",
			userID, false).
		Find(&todos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reminder candidates: %w", err)
	}
	return todos, nil
}
