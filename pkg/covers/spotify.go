package covers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"coverhound/pkg/titlenorm"
)

const (
	spotifyAPIURL      = "https://api.spotify.com/v1"
	spotifyQuality     = 2.0
	spotifySearchLimit = 10
	// spotifySessionInvalidStatus is the HTTP status Spotify answers with
	// once the access token has expired or been revoked.
	spotifySessionInvalidStatus = 401
)

// SpotifySession supplies an application access token for the Spotify Web
// API. Obtaining the token may itself require a network round trip, so it
// is fetched from inside the request goroutine.
type SpotifySession interface {
	Authenticated() bool
	AccessToken(ctx context.Context) (string, error)
	Logout()
}

// SpotifyProvider searches the Spotify catalogue for cover art.
type SpotifyProvider struct {
	base
	session SpotifySession

	// apiURL is overridable for tests.
	apiURL string
}

// NewSpotifyProvider creates a Spotify cover provider delivering results to
// sink. A nil client gets a default with a request timeout.
func NewSpotifyProvider(session SpotifySession, client *http.Client, sink SearchFinishedFunc, logger *zap.Logger) *SpotifyProvider {
	return &SpotifyProvider{
		base:    newBase("spotify", spotifyQuality, client, sink, logger),
		session: session,
		apiURL:  spotifyAPIURL,
	}
}

func (p *SpotifyProvider) AuthRequired() bool { return true }

func (p *SpotifyProvider) Authenticated() bool {
	return p.session != nil && p.session.Authenticated()
}

// StartSearch issues one album or track search. Album searches are
// preferred; only a title with no album falls back to the track type.
func (p *SpotifyProvider) StartSearch(artist, album, title string, id int) bool {
	if !p.Authenticated() {
		return false
	}
	if artist == "" && album == "" && title == "" {
		return false
	}

	searchType := "album"
	extract := "albums"
	query := artist
	if album == "" && title != "" {
		searchType = "track"
		extract = "tracks"
		if query != "" {
			query += " "
		}
		query += title
	} else if album != "" {
		if query != "" {
			query += " "
		}
		query += album
	}

	params := url.Values{
		"q":     {query},
		"type":  {searchType},
		"limit": {strconv.Itoa(spotifySearchLimit)},
	}

	r, ctx, ok := p.track.begin(context.Background(), id)
	if !ok {
		return false
	}

	endpoint := p.apiURL + "/search?" + params.Encode()

	go p.run(ctx, r, endpoint, extract)
	return true
}

// CancelSearch cancels in-flight searches for id. The cancelled searches
// still finish with empty results.
func (p *SpotifyProvider) CancelSearch(id int) { p.track.cancelID(id) }

// ClearSession drops the session so the next StartSearch fails its
// precondition check.
func (p *SpotifyProvider) ClearSession() {
	if p.session != nil {
		p.session.Logout()
	}
}

func (p *SpotifyProvider) run(ctx context.Context, r *inflight, endpoint, extract string) {
	defer p.track.done()
	defer r.cancel()

	p.deliver(r, p.search(ctx, endpoint, extract))
}

func (p *SpotifyProvider) search(ctx context.Context, endpoint, extract string) []CoverSearchResult {
	token, err := p.session.AccessToken(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.report(networkError(fmt.Errorf("obtaining access token: %w", err)))
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		p.report(networkError(err))
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, serr := fetch(p.client, req, decodeSpotifyError)
	if serr != nil {
		if ctx.Err() != nil {
			return nil
		}
		if serr.SessionInvalid {
			p.session.Logout()
		}
		p.report(serr)
		return nil
	}

	return p.parse(body, extract)
}

// decodeSpotifyError recognizes Spotify's error object. A 401 means the
// token is no longer usable.
func decodeSpotifyError(status int, body []byte) (string, bool) {
	var payload struct {
		Error struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Message == "" {
		return "", status == spotifySessionInvalidStatus
	}
	message := fmt.Sprintf("%s (%d)", payload.Error.Message, payload.Error.Status)
	return message, status == spotifySessionInvalidStatus
}

type spotifyImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyAlbum struct {
	Name    string          `json:"name"`
	Artists []spotifyArtist `json:"artists"`
	Images  []spotifyImage  `json:"images"`
}

type spotifyTrack struct {
	Artists []spotifyArtist `json:"artists"`
	Album   *spotifyAlbum   `json:"album"`
}

// parse walks the albums or tracks page of a search response. Spotify
// reports explicit dimensions per image, so every listed image becomes one
// result sharing the item's rank.
func (p *SpotifyProvider) parse(body []byte, extract string) []CoverSearchResult {
	var payload map[string]struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		p.report(malformedError("response is not a JSON object", body))
		return nil
	}
	page, ok := payload[extract]
	if !ok || page.Items == nil {
		p.report(malformedError(fmt.Sprintf("response is missing %s items", extract), body))
		return nil
	}

	var results []CoverSearchResult
	rank := 0
	for _, raw := range page.Items {
		album, serr := parseSpotifyItem(raw, extract)
		if serr != nil {
			p.report(serr)
			continue
		}
		rank++
		for _, image := range album.Images {
			results = append(results, CoverSearchResult{
				Provider: p.name,
				Artist:   album.Artists[0].Name,
				Album:    titlenorm.StripDisc(album.Name),
				Rank:     rank,
				ImageURL: image.URL,
				Width:    image.Width,
				Height:   image.Height,
			})
		}
	}
	return results
}

// parseSpotifyItem validates one items entry. Track results nest the album
// object; album results are the album object.
func parseSpotifyItem(raw json.RawMessage, extract string) (spotifyAlbum, *searchError) {
	var album spotifyAlbum
	if extract == "tracks" {
		var track spotifyTrack
		if err := json.Unmarshal(raw, &track); err != nil {
			return spotifyAlbum{}, &searchError{Kind: ErrorKindPartialItem, Message: "items entry is not an object", Debug: string(raw)}
		}
		if track.Album == nil {
			return spotifyAlbum{}, &searchError{Kind: ErrorKindPartialItem, Message: "items entry is missing album", Debug: string(raw)}
		}
		album = *track.Album
		if len(album.Artists) == 0 {
			album.Artists = track.Artists
		}
	} else {
		if err := json.Unmarshal(raw, &album); err != nil {
			return spotifyAlbum{}, &searchError{Kind: ErrorKindPartialItem, Message: "items entry is not an object", Debug: string(raw)}
		}
	}

	if len(album.Artists) == 0 || album.Artists[0].Name == "" {
		return spotifyAlbum{}, &searchError{Kind: ErrorKindPartialItem, Message: "items entry is missing artist", Debug: string(raw)}
	}
	if album.Name == "" || len(album.Images) == 0 {
		return spotifyAlbum{}, &searchError{Kind: ErrorKindPartialItem, Message: "items entry is missing album name or images", Debug: string(raw)}
	}
	return album, nil
}
