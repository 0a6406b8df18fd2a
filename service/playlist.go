package service

import (
	"context"
	"errors"
	"strings"

	"Melodeck/model"
	"Melodeck/repository"
)

// PlaylistService enforces ownership on playlist operations.
type PlaylistService struct {
	playlists repository.PlaylistRepository
	tracks    repository.TrackRepository
}

// NewPlaylistService creates a PlaylistService.
func NewPlaylistService(playlists repository.PlaylistRepository, tracks repository.TrackRepository) *PlaylistService {
	return &PlaylistService{playlists: playlists, tracks: tracks}
}

// Create makes an empty playlist owned by userID.
func (s *PlaylistService) Create(ctx context.Context, userID int64, name, description string) (*model.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("playlist name is required")
	}

	playlist := &model.Playlist{UserID: userID, Name: name, Description: description}
	if err := s.playlists.CreatePlaylist(ctx, playlist); err != nil {
		return nil, err
	}
	return playlist, nil
}

// ListMine returns userID's playlists, newest first.
func (s *PlaylistService) ListMine(ctx context.Context, userID int64) ([]model.Playlist, error) {
	return s.playlists.GetPlaylistsByUserID(ctx, userID)
}

// owned loads a playlist and checks that userID owns it.
func (s *PlaylistService) owned(ctx context.Context, playlistID, userID int64) (*model.Playlist, error) {
	playlist, err := s.playlists.GetPlaylistByID(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if playlist == nil {
		return nil, notFound("playlist not found")
	}
	if playlist.UserID != userID {
		return nil, forbidden("you do not have access to this playlist")
	}
	return playlist, nil
}

// Get returns a playlist owned by userID.
func (s *PlaylistService) Get(ctx context.Context, playlistID, userID int64) (*model.Playlist, error) {
	return s.owned(ctx, playlistID, userID)
}

// Update renames a playlist and replaces its description.
func (s *PlaylistService) Update(ctx context.Context, playlistID, userID int64, name, description string) (*model.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("playlist name is required")
	}
	if _, err := s.owned(ctx, playlistID, userID); err != nil {
		return nil, err
	}

	ok, err := s.playlists.UpdatePlaylist(ctx, playlistID, name, description)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("playlist not found")
	}
	return s.owned(ctx, playlistID, userID)
}

// Delete removes a playlist and its memberships atomically.
func (s *PlaylistService) Delete(ctx context.Context, playlistID, userID int64) error {
	if _, err := s.owned(ctx, playlistID, userID); err != nil {
		return err
	}
	ok, err := s.playlists.DeletePlaylist(ctx, playlistID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("playlist not found")
	}
	return nil
}

// AddTrack appends trackID to the playlist.
func (s *PlaylistService) AddTrack(ctx context.Context, playlistID, userID, trackID int64) (*model.PlaylistTrack, error) {
	if trackID <= 0 {
		return nil, validationError("songId is required")
	}
	if _, err := s.owned(ctx, playlistID, userID); err != nil {
		return nil, err
	}

	track, err := s.tracks.GetTrackByID(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, notFound("track not found")
	}

	has, err := s.playlists.HasTrack(ctx, playlistID, trackID)
	if err != nil {
		return nil, err
	}
	if has {
		return nil, conflict("track is already in this playlist")
	}

	link, err := s.playlists.AddTrack(ctx, playlistID, trackID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflict("track is already in this playlist")
		}
		return nil, err
	}
	return link, nil
}

// Tracks lists the playlist's tracks in the order they were added.
func (s *PlaylistService) Tracks(ctx context.Context, playlistID, userID int64) ([]model.Track, error) {
	if _, err := s.owned(ctx, playlistID, userID); err != nil {
		return nil, err
	}
	return s.playlists.GetPlaylistTracks(ctx, playlistID)
}
