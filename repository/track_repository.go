package repository

import (
	"context"
	"errors"
	"fmt"

	"Melodeck/model"

	"gorm.io/gorm"
)

// TrackRepository defines the interface for catalog data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) error
	GetTrackByID(ctx context.Context, id int64) (*model.Track, error)
	// ListTracks returns every track, newest insertion first.
	ListTracks(ctx context.Context) ([]model.Track, error)
	// SearchTracks matches term case-insensitively as a substring of title,
	// artist, album or genre. Case folding covers non-ASCII letters on both
	// MySQL and SQLite.
	SearchTracks(ctx context.Context, term string) ([]model.Track, error)
	// DeleteTrack removes the track together with its likes and playlist
	// memberships. It reports false if the track did not exist.
	DeleteTrack(ctx context.Context, id int64) (bool, error)
}

type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository creates a new GORM backed TrackRepository.
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

func (r *gormTrackRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	if err := r.db.WithContext(ctx).Create(track).Error; err != nil {
		return fmt.Errorf("failed to execute CreateTrack: %w", err)
	}
	return nil
}

// GetTrackByID retrieves a track by its ID. Returns nil, nil when not found.
func (r *gormTrackRepository) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).First(&track, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get track by ID %d: %w", id, err)
	}
	return &track, nil
}

func (r *gormTrackRepository) ListTracks(ctx context.Context) ([]model.Track, error) {
	tracks := make([]model.Track, 0)
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}

func (r *gormTrackRepository) SearchTracks(ctx context.Context, term string) ([]model.Track, error) {
	pattern := containsPattern(term)
	tracks := make([]model.Track, 0)
	err := r.db.WithContext(ctx).
		Where(`LOWER(title) LIKE ? ESCAPE '!' OR LOWER(artist) LIKE ? ESCAPE '!' OR LOWER(album) LIKE ? ESCAPE '!' OR LOWER(genre) LIKE ? ESCAPE '!'`,
			pattern, pattern, pattern, pattern).
		Order("id DESC").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	return tracks, nil
}

func (r *gormTrackRepository) DeleteTrack(ctx context.Context, id int64) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("track_id = ?", id).Delete(&model.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("track_id = ?", id).Delete(&model.PlaylistTrack{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Track{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errNoRows
		}
		return nil
	})
	if errors.Is(err, errNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete track %d: %w", id, err)
	}
	return true, nil
}
