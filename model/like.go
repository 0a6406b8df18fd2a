package model

import "time"

// Like records that a user marked a track as a favorite.
type Like struct {
	ID      int64     `json:"id" gorm:"primaryKey"`
	UserID  int64     `json:"userId" gorm:"not null;uniqueIndex:uq_user_track"`
	TrackID int64     `json:"trackId" gorm:"not null;uniqueIndex:uq_user_track;index"`
	LikedAt time.Time `json:"likedAt" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Like) TableName() string {
	return "likes"
}
