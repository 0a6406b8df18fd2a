package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"Melodeck/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"message": "authentication token required"})
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "invalid email or password"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "Logged in successfully",
			"token":   "tok",
			"user":    model.User{ID: 7, Username: "ana"},
		})
	})
	mux.HandleFunc("GET /songs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.Track{{ID: 2, Title: "B"}, {ID: 1, Title: "A"}})
	})
	mux.HandleFunc("GET /search/songs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.Track{{ID: 3, Title: r.URL.Query().Get("q")}})
	})
	mux.HandleFunc("GET /playlists/user", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.Playlist{{ID: 4, Name: "Mix"}})
	}))
	mux.HandleFunc("GET /playlists/4/songs", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.Track{{ID: 5}})
	}))
	mux.HandleFunc("GET /users/7/liked-songs", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.Track{{ID: 6}})
	}))

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestLoginAndAuthedCalls(t *testing.T) {
	ts := newFakeServer(t)
	c := New(ts.URL+"/", nil)
	ctx := context.Background()

	_, err := c.Playlists(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "authentication token required", apiErr.Message)

	user, err := c.Login(ctx, "ana@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "tok", c.Token())
	assert.Same(t, user, c.User())

	playlists, err := c.Playlists(ctx)
	require.NoError(t, err)
	require.Len(t, playlists, 1)

	tracks, err := c.PlaylistTracks(ctx, playlists[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), tracks[0].ID)

	liked, err := c.LikedTracks(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), liked[0].ID)
}

func TestLoginFailure(t *testing.T) {
	c := New(newFakeServer(t).URL, nil)

	_, err := c.Login(context.Background(), "ana@example.com", "nope")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Empty(t, c.Token())
	assert.Nil(t, c.User())
}

func TestCatalogCalls(t *testing.T) {
	c := New(newFakeServer(t).URL, nil)
	ctx := context.Background()

	tracks, err := c.ListTracks(ctx)
	require.NoError(t, err)
	assert.Len(t, tracks, 2)

	found, err := c.Search(ctx, "rock & roll")
	require.NoError(t, err)
	assert.Equal(t, "rock & roll", found[0].Title)
}

func TestCancelledContext(t *testing.T) {
	c := New(newFakeServer(t).URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListTracks(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMediaURL(t *testing.T) {
	c := New("http://music.local/", nil)
	assert.Equal(t, "http://music.local/uploads/songs/a.mp3", c.MediaURL("songs/a.mp3"))
	assert.Empty(t, c.MediaURL(""))
}

func TestNonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := New(ts.URL, nil).ListTracks(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
}
