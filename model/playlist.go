package model

import "time"

// Playlist is a user-owned, ordered collection of tracks.
type Playlist struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	UserID      int64     `json:"userId" gorm:"index;not null"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Playlist) TableName() string {
	return "playlists"
}

// PlaylistTrack links a track to a playlist. The autoincrement ID is the
// insertion order used when listing a playlist's tracks.
type PlaylistTrack struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	PlaylistID int64     `json:"playlistId" gorm:"not null;uniqueIndex:uq_playlist_track"`
	TrackID    int64     `json:"trackId" gorm:"not null;uniqueIndex:uq_playlist_track;index"`
	AddedAt    time.Time `json:"addedAt" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (PlaylistTrack) TableName() string {
	return "playlist_tracks"
}
