package repository

import (
	"context"
	"fmt"

	"Melodeck/model"

	"gorm.io/gorm"
)

// LikeRepository stores per-user favorites.
type LikeRepository interface {
	// CreateLike returns ErrDuplicate if the user already liked the track.
	CreateLike(ctx context.Context, userID, trackID int64) (*model.Like, error)
	HasLiked(ctx context.Context, userID, trackID int64) (bool, error)
	// DeleteLike reports false if there was nothing to remove.
	DeleteLike(ctx context.Context, userID, trackID int64) (bool, error)
	// GetLikedTracks lists liked tracks, most recently liked first.
	GetLikedTracks(ctx context.Context, userID int64) ([]model.Track, error)
}

type gormLikeRepository struct {
	db *gorm.DB
}

func NewGormLikeRepository(db *gorm.DB) LikeRepository {
	return &gormLikeRepository{db: db}
}

func (r *gormLikeRepository) CreateLike(ctx context.Context, userID, trackID int64) (*model.Like, error) {
	like := &model.Like{UserID: userID, TrackID: trackID}
	if err := r.db.WithContext(ctx).Create(like).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to like track %d: %w", trackID, err)
	}
	return like, nil
}

func (r *gormLikeRepository) HasLiked(ctx context.Context, userID, trackID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Like{}).
		Where("user_id = ? AND track_id = ?", userID, trackID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check like: %w", err)
	}
	return count > 0, nil
}

func (r *gormLikeRepository) DeleteLike(ctx context.Context, userID, trackID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND track_id = ?", userID, trackID).
		Delete(&model.Like{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to unlike track %d: %w", trackID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormLikeRepository) GetLikedTracks(ctx context.Context, userID int64) ([]model.Track, error) {
	tracks := make([]model.Track, 0)
	// likes.id breaks ties between likes recorded within the same clock tick
	err := r.db.WithContext(ctx).Model(&model.Track{}).
		Select("tracks.*").
		Joins("JOIN likes ON likes.track_id = tracks.id").
		Where("likes.user_id = ?", userID).
		Order("likes.liked_at DESC, likes.id DESC").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get liked tracks for user %d: %w", userID, err)
	}
	return tracks, nil
}
