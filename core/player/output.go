package player

import (
	"errors"
	"time"

	"Melodeck/model"
)

// Track is the catalog entry being played.
type Track = model.Track

// ErrStreamClosed is returned by operations on a released stream.
var ErrStreamClosed = errors.New("stream closed")

// Stream is one bound audio resource. A stream plays a single track and is
// discarded once closed.
type Stream interface {
	Play() error
	Pause() error
	Seek(pos time.Duration) error
	// SetVolume takes a level in [0, 1].
	SetVolume(level float64) error
	Position() time.Duration
	Close() error
}

// Listener receives completion notifications from a stream.
type Listener interface {
	// TrackEnded is called when s reaches the end of its track. It must be
	// delivered on the goroutine that drives the session.
	TrackEnded(s Stream)
}

// Output acquires streams for tracks.
type Output interface {
	// Bind opens a stream for the track's audio file and registers l as the
	// stream's listener. The stream is not started.
	Bind(track Track, l Listener) (Stream, error)
}
