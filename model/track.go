package model

import "time"

// Track represents an uploaded audio item in the shared catalog.
// Rows are never updated after creation; they are only deleted.
type Track struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	UserID       int64     `json:"userId" gorm:"index;not null"` // owner
	Title        string    `json:"title" gorm:"size:255;not null"`
	Artist       string    `json:"artist" gorm:"size:255"`
	Album        string    `json:"album" gorm:"size:255"`
	Genre        string    `json:"genre" gorm:"size:100"`
	FilePath     string    `json:"filePath" gorm:"size:767;not null"` // relative to the media store, e.g. songs/1700000000000_a.mp3
	CoverArtPath string    `json:"coverArtPath,omitempty" gorm:"size:767"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

// IsZero reports whether t is the zero Track.
func (t Track) IsZero() bool {
	return t.ID == 0 && t.FilePath == ""
}
