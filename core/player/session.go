// Package player implements the client-side playback session: a queue built
// from a source list, a current position, repeat and shuffle modes, and one
// bound audio stream at a time.
package player

import (
	"errors"
	"math/rand/v2"
	"time"

	"Melodeck/logger"
)

// ErrNoOutput is returned when a session is created without an output.
var ErrNoOutput = errors.New("player: nil output")

// Session is the playback state machine. It is owned by a single goroutine
// and is not safe for concurrent use.
type Session struct {
	out Output
	rng *rand.Rand

	queue   []Track
	current int // -1 when nothing is selected
	playing bool
	repeat  RepeatMode
	shuffle bool
	volume  float64

	stream Stream
}

// Option configures a Session.
type Option func(*Session)

// WithRand sets the random source used to shuffle queues.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) { s.rng = r }
}

// WithVolume sets the initial volume applied to every bound stream.
func WithVolume(level float64) Option {
	return func(s *Session) { s.volume = clampVolume(level) }
}

// NewSession creates an empty session driving out.
func NewSession(out Output, opts ...Option) (*Session, error) {
	if out == nil {
		return nil, ErrNoOutput
	}
	s := &Session{
		out:     out,
		current: -1,
		volume:  1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s, nil
}

// Play builds a new queue from source and starts the chosen track. An empty
// source plays track on its own; with no track either the session is
// cleared. Under shuffle the chosen track is placed first and the remaining
// entries are permuted; otherwise the queue is source as given and playback
// starts at the chosen track's position (0 if it is not in source).
func (s *Session) Play(track Track, source []Track) error {
	s.release()

	if len(source) == 0 {
		if track.IsZero() {
			s.clear()
			return nil
		}
		source = []Track{track}
	}

	idx := indexOf(source, track)
	if s.shuffle && len(source) > 1 {
		if idx < 0 {
			idx = 0
		}
		s.queue = s.shuffled(source, idx)
		s.current = 0
	} else {
		s.queue = append([]Track(nil), source...)
		s.current = max(idx, 0)
	}

	return s.start()
}

// shuffled returns source[chosen] followed by a uniform permutation of the
// other entries.
func (s *Session) shuffled(source []Track, chosen int) []Track {
	rest := make([]Track, 0, len(source)-1)
	rest = append(rest, source[:chosen]...)
	rest = append(rest, source[chosen+1:]...)

	// Fisher-Yates
	for i := len(rest) - 1; i > 0; i-- {
		j := s.rng.IntN(i + 1)
		rest[i], rest[j] = rest[j], rest[i]
	}

	return append([]Track{source[chosen]}, rest...)
}

// Pause pauses the bound stream. It is a no-op when nothing is bound.
func (s *Session) Pause() error {
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Pause(); err != nil {
		return err
	}
	s.playing = false
	return nil
}

// Resume restarts the bound stream. It is a no-op when nothing is bound.
func (s *Session) Resume() error {
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Play(); err != nil {
		return err
	}
	s.playing = true
	return nil
}

// Next advances to the following entry, wrapping from the last to the
// first. On an empty queue it stops playback.
func (s *Session) Next() error {
	if len(s.queue) == 0 {
		s.release()
		s.clear()
		return nil
	}
	s.current = (s.current + 1) % len(s.queue)
	return s.restart()
}

// Previous moves to the preceding entry, wrapping from the first to the
// last. On an empty queue it rewinds the bound stream, if any.
func (s *Session) Previous() error {
	if len(s.queue) == 0 {
		if s.stream != nil {
			return s.stream.Seek(0)
		}
		return nil
	}
	s.current = (s.current - 1 + len(s.queue)) % len(s.queue)
	return s.restart()
}

// ToggleRepeatMode cycles none -> one -> all -> none and returns the new mode.
func (s *Session) ToggleRepeatMode() RepeatMode {
	s.repeat = s.repeat.next()
	return s.repeat
}

// ToggleShuffle flips shuffle and returns the new setting. The current queue
// is left as is; the setting applies from the next Play.
func (s *Session) ToggleShuffle() bool {
	s.shuffle = !s.shuffle
	return s.shuffle
}

// Seek moves the bound stream to pos. No-op when nothing is bound.
func (s *Session) Seek(pos time.Duration) error {
	if s.stream == nil {
		return nil
	}
	if pos < 0 {
		pos = 0
	}
	return s.stream.Seek(pos)
}

// SetVolume sets the level, clamped to [0, 1], for the bound stream and
// every stream bound later.
func (s *Session) SetVolume(level float64) error {
	s.volume = clampVolume(level)
	if s.stream == nil {
		return nil
	}
	return s.stream.SetVolume(s.volume)
}

// Stop releases the stream and empties the queue.
func (s *Session) Stop() {
	s.release()
	s.clear()
}

// TrackEnded implements Listener. Notifications from streams other than the
// bound one are dropped.
func (s *Session) TrackEnded(st Stream) {
	if st == nil || st != s.stream {
		return
	}

	if s.repeat == RepeatOne {
		if err := s.stream.Seek(0); err != nil {
			logger.Warn("Failed to rewind track for repeat", logger.ErrorField(err))
		}
		if err := s.stream.Play(); err != nil {
			logger.Warn("Failed to replay track", logger.ErrorField(err))
			s.playing = false
			return
		}
		s.playing = true
		return
	}

	// every other mode wraps around
	if err := s.Next(); err != nil {
		logger.Warn("Failed to advance after track end", logger.ErrorField(err))
	}
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	return State{
		Queue:        append([]Track(nil), s.queue...),
		CurrentIndex: s.current,
		IsPlaying:    s.playing,
		RepeatMode:   s.repeat,
		Shuffle:      s.shuffle,
		Volume:       s.volume,
		Position:     s.position(),
	}
}

func (s *Session) position() time.Duration {
	if s.stream == nil {
		return 0
	}
	return s.stream.Position()
}

// restart rebinds the stream to the current entry.
func (s *Session) restart() error {
	s.release()
	return s.start()
}

func (s *Session) start() error {
	st, err := s.out.Bind(s.queue[s.current], s)
	if err != nil {
		s.playing = false
		return err
	}
	s.stream = st

	if err := st.SetVolume(s.volume); err != nil {
		logger.Warn("Failed to apply volume", logger.ErrorField(err))
	}
	if err := st.Play(); err != nil {
		s.playing = false
		return err
	}
	s.playing = true
	return nil
}

// release pauses, rewinds and closes the bound stream.
func (s *Session) release() {
	if s.stream == nil {
		return
	}
	st := s.stream
	s.stream = nil
	s.playing = false

	if err := st.Pause(); err != nil {
		logger.Debug("Pause on release failed", logger.ErrorField(err))
	}
	if err := st.Seek(0); err != nil {
		logger.Debug("Rewind on release failed", logger.ErrorField(err))
	}
	if err := st.Close(); err != nil {
		logger.Warn("Failed to close stream", logger.ErrorField(err))
	}
}

func (s *Session) clear() {
	s.queue = nil
	s.current = -1
	s.playing = false
}

func indexOf(tracks []Track, t Track) int {
	for i := range tracks {
		if tracks[i].ID == t.ID {
			return i
		}
	}
	return -1
}

func clampVolume(level float64) float64 {
	return min(max(level, 0), 1)
}
