package player

// RepeatMode controls what happens when the current track finishes.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota // advance to the next entry
	RepeatOne                    // replay the current track
	RepeatAll                    // advance, wrapping at the end
)

// String returns the wire name of the mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "none"
	}
}

// ParseRepeatMode converts a wire name to a RepeatMode. Unknown names map to
// RepeatNone.
func ParseRepeatMode(s string) RepeatMode {
	switch s {
	case "one":
		return RepeatOne
	case "all":
		return RepeatAll
	default:
		return RepeatNone
	}
}

// next cycles none -> one -> all -> none.
func (m RepeatMode) next() RepeatMode {
	switch m {
	case RepeatNone:
		return RepeatOne
	case RepeatOne:
		return RepeatAll
	default:
		return RepeatNone
	}
}
