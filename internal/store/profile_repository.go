package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	ByID(ctx context.Context, id string) (*Profile, error)
	// ByIDs batch-fetches profile summaries in one query.
	ByIDs(ctx context.Context, ids []string) ([]*Profile, error)
	ByEmail(ctx context.Context, email string) (*Profile, error)
	UpdateUsername(ctx context.Context, id, username string) error
}

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Create(ctx context.Context, p *Profile) error {
	if p.UserID == "" {
		p.UserID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (r *profileRepository) ByID(ctx context.Context, id string) (*Profile, error) {
	var profile Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", id).First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("profile not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

func (r *profileRepository) ByIDs(ctx context.Context, ids []string) ([]*Profile, error) {
	if len(ids) == 0 {
		return []*Profile{}, nil
	}

	var profiles []*Profile
	err := r.db.WithContext(ctx).
		Where("user_id IN ?", ids).
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to batch fetch profiles: %w", err)
	}
	return profiles, nil
}

func (r *profileRepository) ByEmail(ctx context.Context, email string) (*Profile, error) {
	var profile Profile
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("profile not found for email")
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

func (r *profileRepository) UpdateUsername(ctx context.Context, id, username string) error {
	result := r.db.WithContext(ctx).
		Model(&Profile{}).
		Where("user_id = ?", id).
		Updates(map[string]interface{}{
			"username":   username,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update username: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("profile not found: %s", id)
	}
	return nil
}
