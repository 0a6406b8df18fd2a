package server

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"Melodeck/logger"
	"Melodeck/service"
)

// multipart 表单在内存中保留的最大字节数，其余写入临时文件
const multipartMemory = 32 << 20

// UploadTrackHandler handles audio file uploads and metadata.
func (s *Server) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if r.ContentLength > s.uploadMaxBytes {
		logger.Warn("请求体过大，拒绝处理",
			logger.Int64("contentLength", r.ContentLength),
			logger.Int64("maxSize", s.uploadMaxBytes))
		writeMessage(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request too large. Maximum size is %d MB", s.uploadMaxBytes>>20))
		return
	}

	// 控制并发上传数量
	select {
	case s.uploadSem <- struct{}{}:
		defer func() { <-s.uploadSem }()
	default:
		logger.Warn("服务器繁忙，拒绝新的上传请求")
		writeMessage(w, http.StatusServiceUnavailable, "Server is busy, please try again later")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.uploadMaxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large. Maximum size is %d MB", s.uploadMaxBytes>>20))
			return
		}
		writeMessage(w, http.StatusBadRequest, "Failed to parse upload form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	audio, closeAudio, err := formFile(r, "audio")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to read audio file")
		return
	}
	defer closeAudio()

	cover, closeCover, err := formFile(r, "coverArt")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to read cover art")
		return
	}
	defer closeCover()

	meta := service.TrackMetadata{
		Title:  r.FormValue("title"),
		Artist: r.FormValue("artist"),
		Album:  r.FormValue("album"),
		Genre:  r.FormValue("genre"),
	}

	track, err := s.catalog.Upload(r.Context(), userID, meta, audio, cover)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Song uploaded successfully",
		"songId":  track.ID,
		"song":    track,
	})
}

// formFile opens the named multipart file. A missing field yields a nil
// file and no error.
func formFile(r *http.Request, field string) (*service.UploadFile, func(), error) {
	noop := func() {}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, err
	}

	return &service.UploadFile{
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: partContentType(header),
		Body:        file,
	}, func() { file.Close() }, nil
}

func partContentType(h *multipart.FileHeader) string {
	if ct := h.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ListTracksHandler 返回全部歌曲
func (s *Server) ListTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// SearchTracksHandler 按关键词搜索歌曲
func (s *Server) SearchTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// GetTrackHandler returns one track.
func (s *Server) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid song id")
		return
	}

	track, err := s.catalog.Get(r.Context(), trackID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// DeleteTrackHandler 删除当前用户上传的歌曲
func (s *Server) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
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

	if err := s.catalog.Delete(r.Context(), trackID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Song deleted successfully")
}
