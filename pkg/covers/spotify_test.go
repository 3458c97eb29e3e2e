package covers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeSpotifySession struct {
	mu            sync.Mutex
	authenticated bool
	token         string
	tokenErr      error
	logouts       int
}

func (s *fakeSpotifySession) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *fakeSpotifySession) AccessToken(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokenErr != nil {
		return "", s.tokenErr
	}
	return s.token, nil
}

func (s *fakeSpotifySession) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
	s.logouts++
}

func (s *fakeSpotifySession) logoutCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logouts
}

func newTestSpotifyProvider(t *testing.T, handler http.Handler, sink SearchFinishedFunc) (*SpotifyProvider, *fakeSpotifySession) {
	t.Helper()

	session := &fakeSpotifySession{authenticated: true, token: "spotify-token"}

	p := NewSpotifyProvider(session, nil, sink, nil)
	if handler != nil {
		server := httptest.NewServer(handler)
		t.Cleanup(server.Close)
		p.apiURL = server.URL
	}
	t.Cleanup(p.Close)

	return p, session
}

func TestSpotifyProvider_AlbumSearch(t *testing.T) {
	var gotType, gotQuery, gotAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.URL.Query().Get("type")
		gotQuery = r.URL.Query().Get("q")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{
			"albums": {
				"items": [
					{
						"name": "Random Access Memories (Disc 2)",
						"artists": [{"name": "Daft Punk"}],
						"images": [
							{"url": "https://img.example.com/640.jpg", "width": 640, "height": 640},
							{"url": "https://img.example.com/300.jpg", "width": 300, "height": 300}
						]
					}
				]
			}
		}`)
	})

	sink := newCollector()
	p, _ := newTestSpotifyProvider(t, handler, sink.sink)

	if !p.StartSearch("Daft Punk", "Random Access Memories", "", 9) {
		t.Fatal("StartSearch() rejected a valid query")
	}
	d := sink.wait(t)

	if gotType != "album" {
		t.Errorf("type = %q, want album", gotType)
	}
	if gotQuery != "Daft Punk Random Access Memories" {
		t.Errorf("q = %q, want %q", gotQuery, "Daft Punk Random Access Memories")
	}
	if gotAuth != "Bearer spotify-token" {
		t.Errorf("Authorization = %q, want Bearer spotify-token", gotAuth)
	}

	if d.id != 9 {
		t.Errorf("delivery id = %d, want 9", d.id)
	}
	// One item, two images.
	if len(d.results) != 2 {
		t.Fatalf("got %d results, want 2", len(d.results))
	}
	if d.results[0].Album != "Random Access Memories" {
		t.Errorf("album = %q, want disc qualifier stripped", d.results[0].Album)
	}
	if d.results[0].Rank != 1 || d.results[1].Rank != 1 {
		t.Error("all images of one item must share the same rank")
	}
	if d.results[1].Width != 300 {
		t.Errorf("second image width = %d, want 300", d.results[1].Width)
	}
}

func TestSpotifyProvider_TrackSearchNestedAlbum(t *testing.T) {
	var gotType string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.URL.Query().Get("type")
		fmt.Fprint(w, `{
			"tracks": {
				"items": [
					{
						"artists": [{"name": "Daft Punk"}],
						"album": {
							"name": "Discovery",
							"images": [{"url": "https://img.example.com/d.jpg", "width": 640, "height": 640}]
						}
					}
				]
			}
		}`)
	})

	sink := newCollector()
	p, _ := newTestSpotifyProvider(t, handler, sink.sink)

	if !p.StartSearch("Daft Punk", "", "One More Time", 1) {
		t.Fatal("StartSearch() rejected a valid query")
	}
	d := sink.wait(t)

	if gotType != "track" {
		t.Errorf("type = %q, want track", gotType)
	}
	if len(d.results) != 1 {
		t.Fatalf("got %d results, want 1", len(d.results))
	}
	if d.results[0].Artist != "Daft Punk" || d.results[0].Album != "Discovery" {
		t.Errorf("result = %q / %q, want Daft Punk / Discovery", d.results[0].Artist, d.results[0].Album)
	}
}

func TestSpotifyProvider_MalformedItemSkipped(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"albums": {
				"items": [
					{"name": "No Images", "artists": [{"name": "Somebody"}], "images": []},
					{"name": "Homework", "artists": [{"name": "Daft Punk"}],
					 "images": [{"url": "https://img.example.com/h.jpg", "width": 640, "height": 640}]}
				]
			}
		}`)
	})

	sink := newCollector()
	p, _ := newTestSpotifyProvider(t, handler, sink.sink)

	if !p.StartSearch("Daft Punk", "Homework", "", 1) {
		t.Fatal("StartSearch() rejected a valid query")
	}
	d := sink.wait(t)

	if len(d.results) != 1 {
		t.Fatalf("got %d results, want 1", len(d.results))
	}
	if d.results[0].Album != "Homework" || d.results[0].Rank != 1 {
		t.Errorf("surviving item = %q rank %d, want Homework rank 1", d.results[0].Album, d.results[0].Rank)
	}
}

func TestSpotifyProvider_ExpiredTokenTriggersLogout(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"status": 401, "message": "The access token expired"}}`)
	})

	sink := newCollector()
	p, session := newTestSpotifyProvider(t, handler, sink.sink)

	if !p.StartSearch("Daft Punk", "Homework", "", 1) {
		t.Fatal("StartSearch() rejected a valid query")
	}
	d := sink.wait(t)

	if len(d.results) != 0 {
		t.Errorf("got %d results, want 0", len(d.results))
	}
	if session.logoutCount() != 1 {
		t.Errorf("Logout() called %d times, want exactly 1", session.logoutCount())
	}
}

func TestSpotifyProvider_TokenFetchFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request should be issued when the token fetch fails")
		fmt.Fprint(w, `{}`)
	})

	sink := newCollector()
	p, session := newTestSpotifyProvider(t, handler, sink.sink)
	session.mu.Lock()
	session.tokenErr = errors.New("token endpoint unreachable")
	session.mu.Unlock()

	if !p.StartSearch("Daft Punk", "Homework", "", 3) {
		t.Fatal("StartSearch() rejected a valid query")
	}
	d := sink.wait(t)

	if d.id != 3 {
		t.Errorf("delivery id = %d, want 3", d.id)
	}
	if len(d.results) != 0 {
		t.Errorf("got %d results, want 0", len(d.results))
	}
}

func TestSpotifyProvider_ClearSession(t *testing.T) {
	sink := newCollector()
	p, session := newTestSpotifyProvider(t, nil, sink.sink)

	p.ClearSession()

	if session.logoutCount() != 1 {
		t.Errorf("Logout() called %d times, want 1", session.logoutCount())
	}
	if p.StartSearch("Daft Punk", "Homework", "", 1) {
		t.Error("StartSearch() accepted a query after ClearSession")
	}
	sink.expectNone(t, 100*time.Millisecond)
}

func TestDecodeSpotifyError(t *testing.T) {
	tests := []struct {
		name               string
		status             int
		body               string
		wantMessage        string
		wantSessionInvalid bool
	}{
		{
			name:        "service error object",
			status:      http.StatusTooManyRequests,
			body:        `{"error": {"status": 429, "message": "API rate limit exceeded"}}`,
			wantMessage: "API rate limit exceeded (429)",
		},
		{
			name:               "expired token",
			status:             http.StatusUnauthorized,
			body:               `{"error": {"status": 401, "message": "The access token expired"}}`,
			wantMessage:        "The access token expired (401)",
			wantSessionInvalid: true,
		},
		{
			name:               "401 with unrecognizable body",
			status:             http.StatusUnauthorized,
			body:               `<html>unauthorized</html>`,
			wantMessage:        "",
			wantSessionInvalid: true,
		},
		{
			name:        "unrecognizable body on other status",
			status:      http.StatusBadGateway,
			body:        `<html>bad gateway</html>`,
			wantMessage: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message, sessionInvalid := decodeSpotifyError(tt.status, []byte(tt.body))
			if message != tt.wantMessage {
				t.Errorf("message = %q, want %q", message, tt.wantMessage)
			}
			if sessionInvalid != tt.wantSessionInvalid {
				t.Errorf("sessionInvalid = %v, want %v", sessionInvalid, tt.wantSessionInvalid)
			}
		})
	}
}
