package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"Melodeck/cache"
	"Melodeck/core/feed"
	"Melodeck/core/media"
	"Melodeck/logger"
	"Melodeck/model"
	"Melodeck/repository"
	"Melodeck/storage"
)

// UploadFile is one file of an upload request.
type UploadFile struct {
	Name        string // client-supplied file name
	Size        int64
	ContentType string
	Body        io.Reader
}

// TrackMetadata is the descriptive part of an upload.
type TrackMetadata struct {
	Title  string
	Artist string
	Album  string
	Genre  string
}

// CatalogService manages the shared track catalog.
type CatalogService struct {
	tracks repository.TrackRepository
	store  storage.Store
	cache  cache.TrackCache
	feed   feed.Publisher
	now    func() time.Time
}

type discardPublisher struct{}

func (discardPublisher) Publish(feed.Event) {}

// NewCatalogService creates a CatalogService. trackCache and publisher may
// be nil.
func NewCatalogService(tracks repository.TrackRepository, store storage.Store, trackCache cache.TrackCache, publisher feed.Publisher) *CatalogService {
	if trackCache == nil {
		trackCache = cache.NoopTrackCache{}
	}
	if publisher == nil {
		publisher = discardPublisher{}
	}
	return &CatalogService{
		tracks: tracks,
		store:  store,
		cache:  trackCache,
		feed:   publisher,
		now:    time.Now,
	}
}

// Upload stores the files and records the track. The files are written
// before the row; if any later step fails the files already written are
// removed.
func (s *CatalogService) Upload(ctx context.Context, ownerID int64, meta TrackMetadata, audio, cover *UploadFile) (*model.Track, error) {
	if audio == nil || audio.Body == nil || audio.Size == 0 {
		return nil, validationError("an audio file is required")
	}
	meta.Title = strings.TrimSpace(meta.Title)
	if meta.Title == "" {
		return nil, validationError("title is required")
	}

	now := s.now()
	track := &model.Track{
		UserID: ownerID,
		Title:  meta.Title,
		Artist: strings.TrimSpace(meta.Artist),
		Album:  strings.TrimSpace(meta.Album),
		Genre:  strings.TrimSpace(meta.Genre),
	}

	var written []string
	cleanup := func() {
		for _, key := range written {
			s.removeFile(key, "upload rollback")
		}
	}

	key, err := s.putUnique(ctx, media.AudioKey, now, audio)
	if err != nil {
		return nil, fmt.Errorf("failed to store audio file: %w", err)
	}
	track.FilePath = key
	written = append(written, key)

	if cover != nil && cover.Body != nil {
		key, err := s.putUnique(ctx, media.CoverKey, now, cover)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to store cover art: %w", err)
		}
		track.CoverArtPath = key
		written = append(written, key)
	}

	if err := s.tracks.CreateTrack(ctx, track); err != nil {
		cleanup()
		return nil, err
	}

	s.cache.Invalidate(ctx)
	s.feed.Publish(feed.Event{Type: feed.TrackCreated, TrackID: track.ID, Track: track})

	logger.Info("Track uploaded",
		logger.Int64("trackId", track.ID),
		logger.Int64("userId", ownerID),
		logger.String("file", track.FilePath))
	return track, nil
}

// maxNameAttempts bounds how many later timestamps putUnique tries when a
// storage name is already taken.
const maxNameAttempts = 5

// putUnique stores f under keyFor(now, name). When that key exists it moves
// the timestamp forward one millisecond at a time, so a concurrent upload of
// the same file name never overwrites another track's file.
func (s *CatalogService) putUnique(ctx context.Context, keyFor func(time.Time, string) string, now time.Time, f *UploadFile) (string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		key := keyFor(now.Add(time.Duration(i)*time.Millisecond), f.Name)
		err := s.store.Put(ctx, key, f.Body, f.Size, f.ContentType)
		if !errors.Is(err, storage.ErrExists) {
			return key, err
		}
		// the body may have been read before the clash was detected
		seeker, ok := f.Body.(io.Seeker)
		if !ok {
			break
		}
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("failed to rewind %s: %w", f.Name, err)
		}
	}
	return "", conflict("another upload with the same file name is in progress, please retry")
}

// List returns every track, newest first.
func (s *CatalogService) List(ctx context.Context) ([]model.Track, error) {
	return s.cache.List(ctx, s.tracks.ListTracks)
}

// Search matches term case-insensitively against title, artist, album and
// genre.
func (s *CatalogService) Search(ctx context.Context, term string) ([]model.Track, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, validationError("a search term is required")
	}
	return s.cache.Search(ctx, term, func(ctx context.Context) ([]model.Track, error) {
		return s.tracks.SearchTracks(ctx, term)
	})
}

// Get returns one track.
func (s *CatalogService) Get(ctx context.Context, id int64) (*model.Track, error) {
	track, err := s.tracks.GetTrackByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, notFound("track not found")
	}
	return track, nil
}

// Delete removes a track owned by requesterID, then its files. File removal
// failures are logged only.
func (s *CatalogService) Delete(ctx context.Context, trackID, requesterID int64) error {
	track, err := s.Get(ctx, trackID)
	if err != nil {
		return err
	}
	if track.UserID != requesterID {
		return forbidden("you can only delete your own tracks")
	}

	deleted, err := s.tracks.DeleteTrack(ctx, trackID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("track not found")
	}

	s.removeFile(track.FilePath, "track delete")
	if track.CoverArtPath != "" {
		s.removeFile(track.CoverArtPath, "track delete")
	}

	s.cache.Invalidate(ctx)
	s.feed.Publish(feed.Event{Type: feed.TrackDeleted, TrackID: trackID})

	logger.Info("Track deleted", logger.Int64("trackId", trackID), logger.Int64("userId", requesterID))
	return nil
}

// removeFile deletes key on a fresh context so that cleanup still runs when
// the request was cancelled.
func (s *CatalogService) removeFile(key, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("Failed to remove media file",
			logger.String("file", key),
			logger.String("reason", reason),
			logger.ErrorField(err))
	}
}
