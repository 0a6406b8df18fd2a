package server

import (
	"net/http"
)

// LikeTrackHandler 收藏歌曲
func (s *Server) LikeTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	trackID, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid song id")
		return
	}

	like, err := s.likes.Like(r.Context(), userID, trackID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":     "Song liked successfully",
		"likedSongId": like.ID,
	})
}

// UnlikeTrackHandler 取消收藏
func (s *Server) UnlikeTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	trackID, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid song id")
		return
	}

	if err := s.likes.Unlike(r.Context(), userID, trackID); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Song unliked successfully")
}

// LikedTracksHandler 获取用户收藏的歌曲，只能查看自己的
func (s *Server) LikedTracksHandler(w http.ResponseWriter, r *http.Request) {
	requesterID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid user id")
		return
	}

	tracks, err := s.likes.ListLiked(r.Context(), requesterID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}
