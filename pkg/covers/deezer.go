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
	deezerAPIURL      = "https://api.deezer.com"
	deezerQuality     = 1.5
	deezerSearchLimit = 10
)

// deezerCoverSizes maps the fixed cover fields Deezer serves per album to
// their pixel sizes, largest first.
var deezerCoverSizes = []struct {
	field string
	px    int
}{
	{"xl", 1000},
	{"big", 500},
	{"medium", 250},
}

// DeezerProvider searches the public Deezer catalogue for cover art. The
// search API needs no credentials, so the provider has no session and
// ClearSession is a no-op.
type DeezerProvider struct {
	base

	// apiURL is overridable for tests.
	apiURL string
}

// NewDeezerProvider creates a Deezer cover provider delivering results to
// sink. A nil client gets a default with a request timeout.
func NewDeezerProvider(client *http.Client, sink SearchFinishedFunc, logger *zap.Logger) *DeezerProvider {
	return &DeezerProvider{
		base:   newBase("deezer", deezerQuality, client, sink, logger),
		apiURL: deezerAPIURL,
	}
}

func (p *DeezerProvider) AuthRequired() bool { return false }

func (p *DeezerProvider) Authenticated() bool { return true }

// StartSearch issues one album or track search.
func (p *DeezerProvider) StartSearch(artist, album, title string, id int) bool {
	if artist == "" && album == "" && title == "" {
		return false
	}

	resource := "search/album"
	query := artist
	if album == "" && title != "" {
		resource = "search/track"
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
		"limit": {strconv.Itoa(deezerSearchLimit)},
	}

	r, ctx, ok := p.track.begin(context.Background(), id)
	if !ok {
		return false
	}

	endpoint := p.apiURL + "/" + resource + "?" + params.Encode()

	go p.run(ctx, r, endpoint)
	return true
}

// CancelSearch cancels in-flight searches for id. The cancelled searches
// still finish with empty results.
func (p *DeezerProvider) CancelSearch(id int) { p.track.cancelID(id) }

// ClearSession is a no-op: the Deezer search API is unauthenticated.
func (p *DeezerProvider) ClearSession() {}

func (p *DeezerProvider) run(ctx context.Context, r *inflight, endpoint string) {
	defer p.track.done()
	defer r.cancel()

	p.deliver(r, p.search(ctx, endpoint))
}

func (p *DeezerProvider) search(ctx context.Context, endpoint string) []CoverSearchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		p.report(networkError(err))
		return nil
	}

	body, serr := fetch(p.client, req, decodeDeezerError)
	if serr != nil {
		if ctx.Err() == nil {
			p.report(serr)
		}
		return nil
	}

	return p.parse(body)
}

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *deezerError) describe() string {
	return fmt.Sprintf("%s: %s (%d)", e.Type, e.Message, e.Code)
}

// decodeDeezerError recognizes Deezer's error object on non-success
// statuses. There is no session to invalidate.
func decodeDeezerError(_ int, body []byte) (string, bool) {
	var payload struct {
		Error *deezerError `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == nil {
		return "", false
	}
	return payload.Error.describe(), false
}

type deezerArtist struct {
	Name string `json:"name"`
}

type deezerAlbum struct {
	Title       string `json:"title"`
	CoverMedium string `json:"cover_medium"`
	CoverBig    string `json:"cover_big"`
	CoverXL     string `json:"cover_xl"`
}

type deezerItem struct {
	Title  string        `json:"title"`
	Artist *deezerArtist `json:"artist"`
	Album  *deezerAlbum  `json:"album"`
	// Cover fields sit on the item itself for album search results.
	CoverMedium string `json:"cover_medium"`
	CoverBig    string `json:"cover_big"`
	CoverXL     string `json:"cover_xl"`
}

func (p *DeezerProvider) parse(body []byte) []CoverSearchResult {
	var payload struct {
		Data  []json.RawMessage `json:"data"`
		Error *deezerError      `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		p.report(malformedError("response is not a JSON object", body))
		return nil
	}
	// Deezer reports API errors with a success status and an error object
	// in place of the data array.
	if payload.Error != nil {
		p.report(&searchError{Kind: ErrorKindAPI, Message: payload.Error.describe(), Debug: string(body)})
		return nil
	}
	if payload.Data == nil {
		p.report(malformedError("response is missing data", body))
		return nil
	}

	var results []CoverSearchResult
	rank := 0
	for _, raw := range payload.Data {
		match, serr := parseDeezerItem(raw)
		if serr != nil {
			p.report(serr)
			continue
		}
		rank++
		for _, size := range deezerCoverSizes {
			coverURL := match.covers[size.field]
			if coverURL == "" {
				continue
			}
			results = append(results, CoverSearchResult{
				Provider: p.name,
				Artist:   match.artist,
				Album:    titlenorm.StripDisc(match.album),
				Rank:     rank,
				ImageURL: coverURL,
				Width:    size.px,
				Height:   size.px,
			})
		}
	}
	return results
}

type deezerMatch struct {
	artist string
	album  string
	covers map[string]string
}

// parseDeezerItem validates one data entry. Track results nest the album
// object; album results carry title and cover fields on the item itself.
func parseDeezerItem(raw json.RawMessage) (deezerMatch, *searchError) {
	var item deezerItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return deezerMatch{}, &searchError{Kind: ErrorKindPartialItem, Message: "data entry is not an object", Debug: string(raw)}
	}
	if item.Artist == nil || item.Artist.Name == "" {
		return deezerMatch{}, &searchError{Kind: ErrorKindPartialItem, Message: "data entry is missing artist", Debug: string(raw)}
	}

	title := item.Title
	covers := map[string]string{
		"medium": item.CoverMedium,
		"big":    item.CoverBig,
		"xl":     item.CoverXL,
	}
	if item.Album != nil {
		title = item.Album.Title
		covers = map[string]string{
			"medium": item.Album.CoverMedium,
			"big":    item.Album.CoverBig,
			"xl":     item.Album.CoverXL,
		}
	}
	if title == "" || (covers["medium"] == "" && covers["big"] == "" && covers["xl"] == "") {
		return deezerMatch{}, &searchError{Kind: ErrorKindPartialItem, Message: "data entry is missing album title or covers", Debug: string(raw)}
	}

	return deezerMatch{artist: item.Artist.Name, album: title, covers: covers}, nil
}
