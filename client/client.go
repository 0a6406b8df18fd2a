// Package client is a small Go client for the Melodeck REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"Melodeck/model"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("melodeck: %d %s", e.StatusCode, e.Message)
}

// Client talks to one Melodeck server. It is not safe to change the token
// while requests are in flight.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	user       *model.User
}

// New creates a client for baseURL. A nil httpClient uses
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:3001"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) { c.token = token }

// Token returns the current bearer token.
func (c *Client) Token() string { return c.token }

// User returns the account of the last successful Login, or nil.
func (c *Client) User() *model.User { return c.user }

// Login authenticates and keeps the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	var resp struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/login", body, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	c.user = &resp.User
	return c.user, nil
}

// ListTracks returns the whole catalog.
func (c *Client) ListTracks(ctx context.Context) ([]model.Track, error) {
	var tracks []model.Track
	err := c.do(ctx, http.MethodGet, "/songs", nil, &tracks)
	return tracks, err
}

// Search returns the tracks matching term.
func (c *Client) Search(ctx context.Context, term string) ([]model.Track, error) {
	var tracks []model.Track
	err := c.do(ctx, http.MethodGet, "/search/songs?q="+url.QueryEscape(term), nil, &tracks)
	return tracks, err
}

// Playlists returns the caller's playlists.
func (c *Client) Playlists(ctx context.Context) ([]model.Playlist, error) {
	var playlists []model.Playlist
	err := c.do(ctx, http.MethodGet, "/playlists/user", nil, &playlists)
	return playlists, err
}

// PlaylistTracks returns a playlist's tracks in insertion order.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID int64) ([]model.Track, error) {
	var tracks []model.Track
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/playlists/%d/songs", playlistID), nil, &tracks)
	return tracks, err
}

// LikedTracks returns userID's liked tracks. Only the logged in user's own
// list is readable.
func (c *Client) LikedTracks(ctx context.Context, userID int64) ([]model.Track, error) {
	var tracks []model.Track
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d/liked-songs", userID), nil, &tracks)
	return tracks, err
}

// MediaURL returns the URL a stored key is served from.
func (c *Client) MediaURL(key string) string {
	if key == "" {
		return ""
	}
	return c.baseURL + "/uploads/" + strings.TrimPrefix(key, "/")
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&msg); err == nil {
			apiErr.Message = msg.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
