package player

import "time"

// State is a copy of the session's observable state.
type State struct {
	Queue        []Track
	CurrentIndex int
	IsPlaying    bool
	RepeatMode   RepeatMode
	Shuffle      bool
	Volume       float64
	Position     time.Duration
}

// CurrentTrack returns queue[CurrentIndex], or false when nothing is selected.
func (st State) CurrentTrack() (Track, bool) {
	if st.CurrentIndex < 0 || st.CurrentIndex >= len(st.Queue) {
		return Track{}, false
	}
	return st.Queue[st.CurrentIndex], true
}
