package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost/google/callback",
		BaseURL:      srv.URL,
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		HTTPClient:   srv.Client(),
	})
}

var tok = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "g-token", TokenType: "Bearer"})

func TestInsertEvent(t *testing.T) {
	start := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)
		assert.Equal(t, "Bearer g-token", r.Header.Get("Authorization"))

		var ev Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, "Clocked in", ev.Summary)
		require.NotNil(t, ev.Start.DateTime)
		assert.True(t, start.Equal(*ev.Start.DateTime))

		ev.ID = "evt-1"
		_ = json.NewEncoder(w).Encode(ev)
	}))
	defer srv.Close()

	ev, err := newTestClient(srv).InsertEvent(context.Background(), tok, &Event{
		Summary: "Clocked in",
		Start:   At(start),
		End:     At(start.Add(time.Minute)),
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.ID)
}

func TestPatchEvent_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/calendars/primary/events/missing", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"Not Found"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).PatchEvent(context.Background(), tok, "missing", &Event{ColorID: "10"})
	require.ErrorIs(t, err, domain.ErrUpstreamProvider)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListEvents_FollowsPageTokens(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))

		if q.Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"items":[{"id":"a"},{"id":"b"}],"nextPageToken":"p2"}`))
			return
		}
		assert.Equal(t, "p2", q.Get("pageToken"))
		_, _ = w.Write([]byte(`{"items":[{"id":"c"}]}`))
	}))
	defer srv.Close()

	now := time.Now()
	events, err := newTestClient(srv).ListEvents(context.Background(), tok, now, now.Add(7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, events, 3)
	assert.Equal(t, "c", events[2].ID)
}

func TestUnauthorizedMapsToNotConnected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListEvents(context.Background(), tok, time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrIntegrationNotConnected)
}

func TestAuthCodeURL_RequestsOfflineAccess(t *testing.T) {
	c := NewClient(Config{ClientID: "id", ClientSecret: "s", RedirectURI: "http://x/cb"})
	u := c.AuthCodeURL("st")
	assert.Contains(t, u, "https://accounts.google.com/")
	assert.Contains(t, u, "access_type=offline")
	assert.Contains(t, u, "prompt=consent")
	assert.Contains(t, u, "state=st")
	assert.True(t, c.Configured())
}
