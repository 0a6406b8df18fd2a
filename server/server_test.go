package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Melodeck/config"
	"Melodeck/core/auth"
	"Melodeck/core/feed"
	"Melodeck/db/dbtest"
	"Melodeck/model"
	"Melodeck/storage"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef"

type testEnv struct {
	ts  *httptest.Server
	srv *Server
	hub *feed.Hub
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:           testSecret,
		JWTTTL:              time.Hour,
		UploadMaxBytes:      1 << 20,
		UploadMaxConcurrent: 2,
		AuthRateLimit:       1000,
		AuthRateBurst:       1000,
	}
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	hub := feed.NewHub()
	srv := New(cfg, dbtest.New(t), store, nil, hub)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &testEnv{ts: ts, srv: srv, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func messageOf(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	decode(t, resp, &body)
	return body.Message
}

// register creates an account and returns its token and id.
func (e *testEnv) register(t *testing.T, name string) (string, int64) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": name,
		"email":    name + "@example.com",
		"password": "secret-" + name,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	decode(t, resp, &body)
	require.NotEmpty(t, body.Token)
	return body.Token, body.User.ID
}

type uploadPart struct {
	field, filename string
	data            []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...uploadPart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, token string, fields map[string]string, files ...uploadPart) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, fields, files...)
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+"/upload", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) uploadTrack(t *testing.T, token, title string) model.Track {
	t.Helper()
	resp := e.upload(t, token,
		map[string]string{"title": title, "artist": "Band"},
		uploadPart{"audio", title + ".mp3", []byte("0123456789")},
	)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		SongID int64       `json:"songId"`
		Song   model.Track `json:"song"`
	}
	decode(t, resp, &body)
	require.Equal(t, body.SongID, body.Song.ID)
	return body.Song
}

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv(t, testConfig())
	e.register(t, "ana")

	resp := e.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "ana", "email": "other@example.com", "password": "pw",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/register", "", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/login", "", map[string]string{
		"email": "ana@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, messageOf(t, resp))

	resp = e.do(t, http.MethodPost, "/login", "", map[string]string{
		"email": "ana@example.com", "password": "secret-ana",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "ana", body.User.Username)

	resp = e.do(t, http.MethodGet, "/me", body.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me map[string]interface{}
	decode(t, resp, &me)
	assert.Equal(t, "ana", me["username"])
	assert.NotContains(t, me, "passwordHash")
}

func TestInvalidJSONBody(t *testing.T) {
	e := newTestEnv(t, testConfig())

	req, err := http.NewRequest(http.MethodPost, e.ts.URL+"/login", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthMiddleware(t *testing.T) {
	e := newTestEnv(t, testConfig())
	expired, err := auth.NewTokenManager(testSecret, -time.Minute).GenerateToken(1, "ana")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer garbage", http.StatusForbidden},
		{"expired token", "Bearer " + expired, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, e.ts.URL+"/playlists/user", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		})
	}
}

func TestRequestIDAndCORS(t *testing.T) {
	e := newTestEnv(t, testConfig())

	resp := e.do(t, http.MethodGet, "/songs", "", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodGet, e.ts.URL+"/songs", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "abc-123", resp2.Header.Get("X-Request-ID"))

	req, err = http.NewRequest(http.MethodOptions, e.ts.URL+"/upload", nil)
	require.NoError(t, err)
	resp3, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
	assert.Contains(t, resp3.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestUploadListSearchAndServe(t *testing.T) {
	e := newTestEnv(t, testConfig())
	token, userID := e.register(t, "ana")

	resp := e.upload(t, token,
		map[string]string{"title": "Blue Song", "artist": "Band", "genre": "jazz"},
		uploadPart{"audio", "blue song.mp3", []byte("0123456789")},
		uploadPart{"coverArt", "cover.png", []byte("png")},
	)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body struct {
		Message string      `json:"message"`
		SongID  int64       `json:"songId"`
		Song    model.Track `json:"song"`
	}
	decode(t, resp, &body)
	assert.Equal(t, userID, body.Song.UserID)
	assert.True(t, strings.HasPrefix(body.Song.FilePath, "songs/"))
	assert.True(t, strings.HasSuffix(body.Song.FilePath, "_blue_song.mp3"))
	assert.True(t, strings.HasPrefix(body.Song.CoverArtPath, "cover_arts/"))

	resp = e.do(t, http.MethodGet, "/songs", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tracks []model.Track
	decode(t, resp, &tracks)
	require.Len(t, tracks, 1)
	assert.Equal(t, body.SongID, tracks[0].ID)

	resp = e.do(t, http.MethodGet, "/search/songs?q=JAZZ", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tracks = nil
	decode(t, resp, &tracks)
	assert.Len(t, tracks, 1)

	resp = e.do(t, http.MethodGet, "/search/songs?q=", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodGet, fmt.Sprintf("/songs/%d", body.SongID), "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, e.ts.URL+"/uploads/"+body.Song.FilePath, nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=2-5")
	media, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer media.Body.Close()
	assert.Equal(t, http.StatusPartialContent, media.StatusCode)
	assert.Equal(t, "bytes 2-5/10", media.Header.Get("Content-Range"))
	assert.Equal(t, "audio/mpeg", media.Header.Get("Content-Type"))
	data, err := io.ReadAll(media.Body)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(data))

	resp = e.do(t, http.MethodGet, "/uploads/songs/missing.mp3", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMediaOutlivesWriteTimeout(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	hub := feed.NewHub()
	srv := New(testConfig(), dbtest.New(t), store, nil, hub)
	ts := httptest.NewUnstartedServer(srv.Router())
	ts.Config.WriteTimeout = 200 * time.Millisecond
	ts.Start()
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})

	// larger than the loopback socket buffers, so the server blocks on write
	audio := bytes.Repeat([]byte("a"), 32<<20)
	require.NoError(t, store.Put(context.Background(), "songs/1_long.mp3", bytes.NewReader(audio), int64(len(audio)), "audio/mpeg"))

	resp, err := http.Get(ts.URL + "/uploads/songs/1_long.mp3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	time.Sleep(500 * time.Millisecond)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, len(audio), len(data))
}

func TestUploadValidation(t *testing.T) {
	e := newTestEnv(t, testConfig())
	token, _ := e.register(t, "ana")

	resp := e.upload(t, token, map[string]string{"title": "No audio"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.upload(t, token, map[string]string{"artist": "x"},
		uploadPart{"audio", "a.mp3", []byte("abc")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "title is required", messageOf(t, resp))

	resp = e.do(t, http.MethodGet, "/songs", "", nil)
	var tracks []model.Track
	decode(t, resp, &tracks)
	assert.Empty(t, tracks)
}

func TestUploadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.UploadMaxBytes = 64
	e := newTestEnv(t, cfg)
	token, _ := e.register(t, "ana")

	resp := e.upload(t, token, map[string]string{"title": "Big"},
		uploadPart{"audio", "big.mp3", bytes.Repeat([]byte("a"), 1024)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUploadBusy(t *testing.T) {
	cfg := testConfig()
	cfg.UploadMaxConcurrent = 1
	e := newTestEnv(t, cfg)
	token, _ := e.register(t, "ana")

	e.srv.uploadSem <- struct{}{}
	defer func() { <-e.srv.uploadSem }()

	resp := e.upload(t, token, map[string]string{"title": "Busy"},
		uploadPart{"audio", "a.mp3", []byte("abc")})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDeleteTrackOwnership(t *testing.T) {
	e := newTestEnv(t, testConfig())
	owner, _ := e.register(t, "ana")
	other, _ := e.register(t, "bob")
	track := e.uploadTrack(t, owner, "Mine")
	path := fmt.Sprintf("/songs/%d", track.ID)

	resp := e.do(t, http.MethodDelete, path, other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = e.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, path, owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Song deleted successfully", messageOf(t, resp))

	resp = e.do(t, http.MethodDelete, path, owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = e.do(t, http.MethodGet, "/uploads/"+track.FilePath, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/songs/abc", owner, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlaylistEndpoints(t *testing.T) {
	e := newTestEnv(t, testConfig())
	token, _ := e.register(t, "ana")
	other, _ := e.register(t, "bob")
	first := e.uploadTrack(t, token, "First")
	second := e.uploadTrack(t, token, "Second")

	resp := e.do(t, http.MethodPost, "/playlists", token, map[string]string{"description": "no name"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/playlists", token, map[string]string{"name": "Road trip"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		PlaylistID int64 `json:"playlistId"`
	}
	decode(t, resp, &created)
	base := fmt.Sprintf("/playlists/%d", created.PlaylistID)

	for _, id := range []int64{second.ID, first.ID} {
		resp = e.do(t, http.MethodPost, base+"/songs", token, map[string]int64{"songId": id})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp = e.do(t, http.MethodPost, base+"/songs", token, map[string]int64{"songId": first.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = e.do(t, http.MethodPost, base+"/songs", token, map[string]int64{"songId": 999})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodGet, base+"/songs", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tracks []model.Track
	decode(t, resp, &tracks)
	require.Len(t, tracks, 2)
	assert.Equal(t, second.ID, tracks[0].ID)
	assert.Equal(t, first.ID, tracks[1].ID)

	resp = e.do(t, http.MethodGet, base, other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = e.do(t, http.MethodGet, base+"/songs", other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodPut, base, token, map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = e.do(t, http.MethodPut, base, token, map[string]string{"name": "Renamed", "description": "d"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, base, token, nil)
	var playlist model.Playlist
	decode(t, resp, &playlist)
	assert.Equal(t, "Renamed", playlist.Name)
	assert.Equal(t, "d", playlist.Description)

	resp = e.do(t, http.MethodGet, "/playlists/user", token, nil)
	var mine []model.Playlist
	decode(t, resp, &mine)
	assert.Len(t, mine, 1)

	resp = e.do(t, http.MethodDelete, base, other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = e.do(t, http.MethodDelete, base, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = e.do(t, http.MethodGet, base, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLikeEndpoints(t *testing.T) {
	e := newTestEnv(t, testConfig())
	token, userID := e.register(t, "ana")
	_, otherID := e.register(t, "bob")
	track := e.uploadTrack(t, token, "Fave")
	likePath := fmt.Sprintf("/songs/%d/like", track.ID)

	resp := e.do(t, http.MethodPost, likePath, token, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = e.do(t, http.MethodPost, likePath, token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = e.do(t, http.MethodPost, "/songs/999/like", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodGet, fmt.Sprintf("/users/%d/liked-songs", userID), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var liked []model.Track
	decode(t, resp, &liked)
	require.Len(t, liked, 1)
	assert.Equal(t, track.ID, liked[0].ID)

	resp = e.do(t, http.MethodGet, fmt.Sprintf("/users/%d/liked-songs", otherID), token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, likePath, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = e.do(t, http.MethodDelete, likePath, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRateLimit = 0.001
	cfg.AuthRateBurst = 2
	e := newTestEnv(t, cfg)

	login := map[string]string{"email": "nobody@example.com", "password": "x"}
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/login", "", login).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/login", "", login).StatusCode)

	resp := e.do(t, http.MethodPost, "/login", "", login)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// 其他接口不受限
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/songs", "", nil).StatusCode)
}

func TestCatalogFeed(t *testing.T) {
	e := newTestEnv(t, testConfig())
	token, _ := e.register(t, "ana")

	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws/catalog"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return e.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	track := e.uploadTrack(t, token, "Live")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev feed.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, feed.TrackCreated, ev.Type)
	assert.Equal(t, track.ID, ev.TrackID)
	require.NotNil(t, ev.Track)
	assert.Equal(t, "Live", ev.Track.Title)
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t, testConfig())

	resp := e.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])

	down := *e.srv
	down.ping = func(ctx context.Context) error { return errors.New("db down") }
	rec := httptest.NewRecorder()
	down.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	e := newTestEnv(t, testConfig())

	resp := e.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", messageOf(t, resp))
}
