package service

import (
	"context"
	"errors"

	"Melodeck/model"
	"Melodeck/repository"
)

// LikeService manages per-user favorites.
type LikeService struct {
	likes  repository.LikeRepository
	tracks repository.TrackRepository
}

// NewLikeService creates a LikeService.
func NewLikeService(likes repository.LikeRepository, tracks repository.TrackRepository) *LikeService {
	return &LikeService{likes: likes, tracks: tracks}
}

// Like marks trackID as a favorite of userID.
func (s *LikeService) Like(ctx context.Context, userID, trackID int64) (*model.Like, error) {
	track, err := s.tracks.GetTrackByID(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, notFound("track not found")
	}

	like, err := s.likes.CreateLike(ctx, userID, trackID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflict("you already like this track")
		}
		return nil, err
	}
	return like, nil
}

// Unlike removes the favorite.
func (s *LikeService) Unlike(ctx context.Context, userID, trackID int64) error {
	removed, err := s.likes.DeleteLike(ctx, userID, trackID)
	if err != nil {
		return err
	}
	if !removed {
		return notFound("you have not liked this track")
	}
	return nil
}

// ListLiked returns userID's liked tracks, most recent first. Only the user
// themself may list them.
func (s *LikeService) ListLiked(ctx context.Context, requesterID, userID int64) ([]model.Track, error) {
	if requesterID != userID {
		return nil, forbidden("you can only view your own liked songs")
	}
	return s.likes.GetLikedTracks(ctx, userID)
}
