package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Melodeck/model"

	"gorm.io/gorm"
)

// PlaylistRepository 定义播放列表相关的数据库操作接口
type PlaylistRepository interface {
	CreatePlaylist(ctx context.Context, playlist *model.Playlist) error
	// GetPlaylistByID returns nil, nil when the playlist does not exist.
	GetPlaylistByID(ctx context.Context, id int64) (*model.Playlist, error)
	// GetPlaylistsByUserID lists a user's playlists, newest first.
	GetPlaylistsByUserID(ctx context.Context, userID int64) ([]model.Playlist, error)
	// UpdatePlaylist reports false if the playlist did not exist.
	UpdatePlaylist(ctx context.Context, id int64, name, description string) (bool, error)
	// DeletePlaylist removes the membership rows and the playlist row in one
	// transaction. It reports false if the playlist did not exist.
	DeletePlaylist(ctx context.Context, id int64) (bool, error)

	// AddTrack appends a track; ErrDuplicate if it is already a member.
	AddTrack(ctx context.Context, playlistID, trackID int64) (*model.PlaylistTrack, error)
	HasTrack(ctx context.Context, playlistID, trackID int64) (bool, error)
	// GetPlaylistTracks lists member tracks in insertion order.
	GetPlaylistTracks(ctx context.Context, playlistID int64) ([]model.Track, error)
}

type gormPlaylistRepository struct {
	db *gorm.DB
}

// NewGormPlaylistRepository 创建 GORM 播放列表仓库
func NewGormPlaylistRepository(db *gorm.DB) PlaylistRepository {
	return &gormPlaylistRepository{db: db}
}

func (r *gormPlaylistRepository) CreatePlaylist(ctx context.Context, playlist *model.Playlist) error {
	if err := r.db.WithContext(ctx).Create(playlist).Error; err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	return nil
}

func (r *gormPlaylistRepository) GetPlaylistByID(ctx context.Context, id int64) (*model.Playlist, error) {
	var playlist model.Playlist
	err := r.db.WithContext(ctx).First(&playlist, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get playlist %d: %w", id, err)
	}
	return &playlist, nil
}

func (r *gormPlaylistRepository) GetPlaylistsByUserID(ctx context.Context, userID int64) ([]model.Playlist, error) {
	playlists := make([]model.Playlist, 0)
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&playlists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists for user %d: %w", userID, err)
	}
	return playlists, nil
}

func (r *gormPlaylistRepository) UpdatePlaylist(ctx context.Context, id int64, name, description string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Playlist{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"name":        name,
			"description": description,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update playlist %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormPlaylistRepository) DeletePlaylist(ctx context.Context, id int64) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("playlist_id = ?", id).Delete(&model.PlaylistTrack{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Playlist{}, id)
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
		return false, fmt.Errorf("failed to delete playlist %d: %w", id, err)
	}
	return true, nil
}

func (r *gormPlaylistRepository) AddTrack(ctx context.Context, playlistID, trackID int64) (*model.PlaylistTrack, error) {
	link := &model.PlaylistTrack{PlaylistID: playlistID, TrackID: trackID}
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to add track %d to playlist %d: %w", trackID, playlistID, err)
	}
	return link, nil
}

func (r *gormPlaylistRepository) HasTrack(ctx context.Context, playlistID, trackID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.PlaylistTrack{}).
		Where("playlist_id = ? AND track_id = ?", playlistID, trackID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check playlist membership: %w", err)
	}
	return count > 0, nil
}

func (r *gormPlaylistRepository) GetPlaylistTracks(ctx context.Context, playlistID int64) ([]model.Track, error) {
	tracks := make([]model.Track, 0)
	err := r.db.WithContext(ctx).Model(&model.Track{}).
		Select("tracks.*").
		Joins("JOIN playlist_tracks ON playlist_tracks.track_id = tracks.id").
		Where("playlist_tracks.playlist_id = ?", playlistID).
		Order("playlist_tracks.id ASC").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get tracks of playlist %d: %w", playlistID, err)
	}
	return tracks, nil
}
