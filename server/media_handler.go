package server

import (
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"Melodeck/logger"
	"Melodeck/storage"
)

// MediaHandler serves stored audio and cover files under /uploads/. Range
// requests are handled by http.ServeContent. The server's WriteTimeout does
// not apply to the file body, so slow listeners get the whole file.
func (s *Server) MediaHandler(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/uploads/")

	obj, info, err := s.store.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			writeMessage(w, http.StatusNotFound, "File not found")
			return
		}
		writeError(w, r, err)
		return
	}
	defer obj.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = storage.ContentType(key)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "public, max-age=31536000") // 文件名带时间戳，内容不会变化

	// 大文件流式传输, 取消写超时
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn("Failed to clear write deadline", logger.String("key", key), logger.ErrorField(err))
	}
	http.ServeContent(w, r, path.Base(info.Key), info.LastModified, obj)
}

// FeedHandler upgrades to a websocket that receives catalog events.
func (s *Server) FeedHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", logger.ErrorField(err))
		return
	}
	s.hub.Serve(conn)
}

// HealthHandler reports whether the database answers.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ping(r.Context()); err != nil {
		logger.Warn("Health check failed", logger.ErrorField(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.Len(),
	})
}
