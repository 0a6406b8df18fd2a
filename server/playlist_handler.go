package server

import (
	"net/http"
)

type playlistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type addTrackRequest struct {
	SongID int64 `json:"songId"`
}

// playlistContext resolves the caller and the {id} route variable.
func playlistContext(w http.ResponseWriter, r *http.Request) (userID, playlistID int64, ok bool) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return 0, 0, false
	}
	playlistID, ok = pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid playlist id")
		return 0, 0, false
	}
	return userID, playlistID, true
}

// CreatePlaylistHandler 创建播放列表
func (s *Server) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req playlistRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	playlist, err := s.playlists.Create(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":    "Playlist created successfully",
		"playlistId": playlist.ID,
		"playlist":   playlist,
	})
}

// ListPlaylistsHandler 获取当前用户的播放列表
func (s *Server) ListPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	playlists, err := s.playlists.ListMine(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

// GetPlaylistHandler 获取播放列表详情
func (s *Server) GetPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, playlistID, ok := playlistContext(w, r)
	if !ok {
		return
	}

	playlist, err := s.playlists.Get(r.Context(), playlistID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

// UpdatePlaylistHandler 更新播放列表名称和描述
func (s *Server) UpdatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, playlistID, ok := playlistContext(w, r)
	if !ok {
		return
	}

	var req playlistRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	playlist, err := s.playlists.Update(r.Context(), playlistID, userID, req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Playlist updated successfully",
		"playlist": playlist,
	})
}

// DeletePlaylistHandler 删除播放列表
func (s *Server) DeletePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, playlistID, ok := playlistContext(w, r)
	if !ok {
		return
	}

	if err := s.playlists.Delete(r.Context(), playlistID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Playlist deleted successfully")
}

// AddPlaylistTrackHandler 向播放列表添加歌曲
func (s *Server) AddPlaylistTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, playlistID, ok := playlistContext(w, r)
	if !ok {
		return
	}

	var req addTrackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	link, err := s.playlists.AddTrack(r.Context(), playlistID, userID, req.SongID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":        "Song added to playlist successfully",
		"playlistSongId": link.ID,
	})
}

// PlaylistTracksHandler 获取播放列表中的歌曲
func (s *Server) PlaylistTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, playlistID, ok := playlistContext(w, r)
	if !ok {
		return
	}

	tracks, err := s.playlists.Tracks(r.Context(), playlistID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}
