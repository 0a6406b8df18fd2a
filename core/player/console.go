package player

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ConsoleOutput is an Output that prints playback events instead of
// producing sound. The position advances with the wall clock while a stream
// is playing. Finish simulates the natural end of the bound track.
type ConsoleOutput struct {
	w   io.Writer
	now func() time.Time

	mu       sync.Mutex
	bound    *consoleStream
	listener Listener
}

// NewConsoleOutput creates a ConsoleOutput writing to w.
func NewConsoleOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{w: w, now: time.Now}
}

// Bind implements Output.
func (o *ConsoleOutput) Bind(track Track, l Listener) (Stream, error) {
	if track.FilePath == "" {
		return nil, fmt.Errorf("track %d has no audio file", track.ID)
	}

	st := &consoleStream{out: o, track: track, volume: 1}
	o.mu.Lock()
	o.bound = st
	o.listener = l
	o.mu.Unlock()

	o.printf("loaded  %s\n", describe(track))
	return st, nil
}

// Finish reports the end of the most recently bound stream to its listener.
// It returns false when there is no open stream.
func (o *ConsoleOutput) Finish() bool {
	o.mu.Lock()
	st, l := o.bound, o.listener
	o.mu.Unlock()

	if st == nil || l == nil || st.isClosed() {
		return false
	}
	st.markEnded()
	o.printf("ended   %s\n", describe(st.track))
	l.TrackEnded(st)
	return true
}

func (o *ConsoleOutput) printf(format string, args ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.w, format, args...)
}

func describe(t Track) string {
	if t.Artist == "" {
		return fmt.Sprintf("#%d %s", t.ID, t.Title)
	}
	return fmt.Sprintf("#%d %s - %s", t.ID, t.Artist, t.Title)
}

type consoleStream struct {
	out   *ConsoleOutput
	track Track

	mu      sync.Mutex
	offset  time.Duration // position at the last start or seek
	started time.Time     // zero while paused
	volume  float64
	closed  bool
}

func (s *consoleStream) Play() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	if s.started.IsZero() {
		s.started = s.out.now()
	}
	s.mu.Unlock()

	s.out.printf("playing %s\n", describe(s.track))
	return nil
}

func (s *consoleStream) Pause() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	wasPlaying := !s.started.IsZero()
	s.offset = s.positionLocked()
	s.started = time.Time{}
	pos := s.offset
	s.mu.Unlock()

	if wasPlaying {
		s.out.printf("paused  %s at %s\n", describe(s.track), pos.Truncate(time.Second))
	}
	return nil
}

func (s *consoleStream) Seek(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.offset = pos
	if !s.started.IsZero() {
		s.started = s.out.now()
	}
	return nil
}

func (s *consoleStream) SetVolume(level float64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	changed := s.volume != level
	s.volume = level
	s.mu.Unlock()

	if changed {
		s.out.printf("volume  %d%%\n", int(level*100+0.5))
	}
	return nil
}

func (s *consoleStream) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *consoleStream) positionLocked() time.Duration {
	if s.started.IsZero() {
		return s.offset
	}
	return s.offset + s.out.now().Sub(s.started)
}

func (s *consoleStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *consoleStream) markEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = s.positionLocked()
	s.started = time.Time{}
}

func (s *consoleStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
