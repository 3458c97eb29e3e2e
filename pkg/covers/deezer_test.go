package covers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestDeezerProvider(t *testing.T, handler http.Handler, sink SearchFinishedFunc) *DeezerProvider {
	t.Helper()

	p := NewDeezerProvider(nil, sink, nil)
	if handler != nil {
		server := httptest.NewServer(handler)
		t.Cleanup(server.Close)
		p.apiURL = server.URL
	}
	t.Cleanup(p.Close)

	return p
}

func TestDeezerProvider_NoAuthRequired(t *testing.T) {
	sink := newCollector()
	p := newTestDeezerProvider(t, nil, sink.sink)

	if p.AuthRequired() {
		t.Error("AuthRequired() = true, want false")
	}
	if !p.Authenticated() {
		t.Error("Authenticated() = false, want true")
	}
	if p.StartSearch("", "", "", 1) {
		t.Error("StartSearch() accepted an empty query")
	}
}

func TestDeezerProvider_AlbumSearch(t *testing.T) {
	var gotPath, gotQuery string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		fmt.Fprint(w, `{
			"data": [
				{
					"title": "Moon Safari (CD 1)",
					"artist": {"name": "Air"},
					"cover_medium": "https://cdn.example.com/m.jpg",
					"cover_big": "https://cdn.example.com/b.jpg",
					"cover_xl": "https://cdn.example.com/xl.jpg"
				}
			],
			"total": 1
		}`)
	})

	sink := newCollector()
	p := newTestDeezerProvider(t, handler, sink.sink)

	if !p.StartSearch("Air", "Moon Safari", "", 4) {
		t.Fatal("StartSearch() rejected a valid query")
	}
	d := sink.wait(t)

	if gotPath != "/search/album" {
		t.Errorf("request path = %q, want /search/album", gotPath)
	}
	if gotQuery != "Air Moon Safari" {
		t.Errorf("q = %q, want %q", gotQuery, "Air Moon Safari")
	}

	// One item, three cover resolutions, largest first.
	if len(d.results) != 3 {
		t.Fatalf("got %d results, want 3", len(d.results))
	}
	if d.results[0].Width != 1000 || d.results[0].ImageURL != "https://cdn.example.com/xl.jpg" {
		t.Errorf("first result = %dpx %q, want 1000px xl.jpg", d.results[0].Width, d.results[0].ImageURL)
	}
	if d.results[0].Album != "Moon Safari" {
		t.Errorf("album = %q, want disc qualifier stripped", d.results[0].Album)
	}
	for i, r := range d.results {
		if r.Rank != 1 {
			t.Errorf("result %d rank = %d, want 1", i, r.Rank)
		}
	}
}

func TestDeezerProvider_TrackSearchNestedAlbum(t *testing.T) {
	var gotPath string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{
			"data": [
				{
					"title": "Sexy Boy",
					"artist": {"name": "Air"},
					"album": {
						"title": "Moon Safari",
						"cover_medium": "https://cdn.example.com/m.jpg"
					}
				}
			]
		}`)
	})

	sink := newCollector()
	p := newTestDeezerProvider(t, handler, sink.sink)

	if !p.StartSearch("Air", "", "Sexy Boy", 1) {
		t.Fatal("StartSearch() rejected a valid query")
	}
	d := sink.wait(t)

	if gotPath != "/search/track" {
		t.Errorf("request path = %q, want /search/track", gotPath)
	}
	// Only the medium cover is present.
	if len(d.results) != 1 {
		t.Fatalf("got %d results, want 1", len(d.results))
	}
	if d.results[0].Album != "Moon Safari" || d.results[0].Width != 250 {
		t.Errorf("result = %q %dpx, want Moon Safari 250px", d.results[0].Album, d.results[0].Width)
	}
}

func TestDeezerProvider_ErrorObjectWithSuccessStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Deezer reports quota errors with HTTP 200.
		fmt.Fprint(w, `{"error": {"type": "Exception", "message": "Quota limit exceeded", "code": 4}}`)
	})

	sink := newCollector()
	p := newTestDeezerProvider(t, handler, sink.sink)

	if !p.StartSearch("Air", "Moon Safari", "", 1) {
		t.Fatal("StartSearch() rejected a valid query")
	}
	d := sink.wait(t)

	if len(d.results) != 0 {
		t.Errorf("got %d results from an error payload, want 0", len(d.results))
	}
}

func TestDeezerProvider_MalformedItemSkipped(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"data": [
				{"title": "No Artist", "cover_medium": "https://cdn.example.com/x.jpg"},
				{"title": "Talkie Walkie", "artist": {"name": "Air"}, "cover_medium": "https://cdn.example.com/t.jpg"}
			]
		}`)
	})

	sink := newCollector()
	p := newTestDeezerProvider(t, handler, sink.sink)

	if !p.StartSearch("Air", "", "", 1) {
		t.Fatal("StartSearch() rejected a valid query")
	}
	d := sink.wait(t)

	if len(d.results) != 1 {
		t.Fatalf("got %d results, want 1", len(d.results))
	}
	if d.results[0].Album != "Talkie Walkie" || d.results[0].Rank != 1 {
		t.Errorf("surviving item = %q rank %d, want Talkie Walkie rank 1", d.results[0].Album, d.results[0].Rank)
	}
}

func TestDecodeDeezerError(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantMessage string
	}{
		{
			name:        "service error object",
			body:        `{"error": {"type": "Exception", "message": "Quota limit exceeded", "code": 4}}`,
			wantMessage: "Exception: Quota limit exceeded (4)",
		},
		{
			name:        "unrecognizable body",
			body:        `<html>service unavailable</html>`,
			wantMessage: "",
		},
		{
			name:        "object without error",
			body:        `{"data": []}`,
			wantMessage: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message, sessionInvalid := decodeDeezerError(http.StatusServiceUnavailable, []byte(tt.body))
			if message != tt.wantMessage {
				t.Errorf("message = %q, want %q", message, tt.wantMessage)
			}
			if sessionInvalid {
				t.Error("Deezer has no session to invalidate")
			}
		})
	}
}
