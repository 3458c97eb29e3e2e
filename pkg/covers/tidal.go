package covers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"coverhound/pkg/titlenorm"
)

const (
	tidalAPIURL       = "https://api.tidal.com/v1"
	tidalResourcesURL = "https://resources.tidal.com"
	// tidalQuality is the merge weight of Tidal results.
	tidalQuality = 2.5
	// tidalDefaultSearchLimit is used when the session does not carry one.
	tidalDefaultSearchLimit = 10
	// tidalSessionInvalidStatus and tidalSessionInvalidSubStatus together
	// mean the user no longer has a valid session.
	tidalSessionInvalidStatus    = 401
	tidalSessionInvalidSubStatus = 6001
)

// tidalCoverSizes is the fixed list of resolutions Tidal serves for every
// cover id, largest first.
var tidalCoverSizes = []struct {
	label string
	px    int
}{
	{"1280x1280", 1280},
	{"750x750", 750},
	{"640x640", 640},
}

// TidalSession supplies per-request credentials and account-scoped search
// parameters. The provider reads them on every search and never stores
// them, so expiry or logout invalidates future searches without extra
// bookkeeping. Logout is invoked by the provider when the service reports
// the session is no longer valid.
type TidalSession interface {
	Authenticated() bool
	AccessToken() string
	CountryCode() string
	SearchLimit() int
	Logout()
}

// TidalProvider searches the Tidal catalogue for cover art. It requires an
// authenticated session.
type TidalProvider struct {
	base
	session TidalSession

	// apiURL and resourcesURL are overridable for tests.
	apiURL       string
	resourcesURL string
}

// NewTidalProvider creates a Tidal cover provider delivering results to
// sink. A nil client gets a default with a request timeout.
func NewTidalProvider(session TidalSession, client *http.Client, sink SearchFinishedFunc, logger *zap.Logger) *TidalProvider {
	return &TidalProvider{
		base:         newBase("tidal", tidalQuality, client, sink, logger),
		session:      session,
		apiURL:       tidalAPIURL,
		resourcesURL: tidalResourcesURL,
	}
}

func (p *TidalProvider) AuthRequired() bool { return true }

func (p *TidalProvider) Authenticated() bool {
	return p.session != nil && p.session.Authenticated()
}

// StartSearch issues one albums or tracks search. Album searches are
// preferred; only a title with no album falls back to the tracks endpoint.
func (p *TidalProvider) StartSearch(artist, album, title string, id int) bool {
	if !p.Authenticated() {
		return false
	}
	if artist == "" && album == "" && title == "" {
		return false
	}

	resource := "search/albums"
	query := artist
	if album == "" && title != "" {
		resource = "search/tracks"
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

	limit := p.session.SearchLimit()
	if limit <= 0 {
		limit = tidalDefaultSearchLimit
	}

	params := url.Values{
		"query":       {query},
		"limit":       {strconv.Itoa(limit)},
		"countryCode": {p.session.CountryCode()},
	}

	r, ctx, ok := p.track.begin(context.Background(), id)
	if !ok {
		return false
	}

	endpoint := p.apiURL + "/" + resource + "?" + params.Encode()
	token := p.session.AccessToken()

	go p.run(ctx, r, endpoint, token)
	return true
}

// CancelSearch cancels in-flight searches for id. The cancelled searches
// still finish with empty results.
func (p *TidalProvider) CancelSearch(id int) { p.track.cancelID(id) }

// ClearSession drops the session so the next StartSearch fails its
// precondition check instead of repeating a doomed request.
func (p *TidalProvider) ClearSession() {
	if p.session != nil {
		p.session.Logout()
	}
}

func (p *TidalProvider) run(ctx context.Context, r *inflight, endpoint, token string) {
	defer p.track.done()
	defer r.cancel()

	p.deliver(r, p.search(ctx, endpoint, token))
}

func (p *TidalProvider) search(ctx context.Context, endpoint, token string) []CoverSearchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		p.report(networkError(err))
		return nil
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	body, serr := fetch(p.client, req, decodeTidalError)
	if serr != nil {
		if ctx.Err() != nil {
			// Cancelled or aborted; nothing to report.
			return nil
		}
		if serr.SessionInvalid {
			p.session.Logout()
		}
		p.report(serr)
		return nil
	}

	return p.parse(body)
}

// decodeTidalError recognizes Tidal's error object, which carries a status
// code, a sub-status and a human-readable message. Session invalidity is
// keyed on the status codes alone; the message may be absent.
func decodeTidalError(_ int, body []byte) (string, bool) {
	var payload struct {
		Status      int    `json:"status"`
		SubStatus   int    `json:"subStatus"`
		UserMessage string `json:"userMessage"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	sessionInvalid := payload.Status == tidalSessionInvalidStatus && payload.SubStatus == tidalSessionInvalidSubStatus
	if payload.UserMessage == "" {
		return "", sessionInvalid
	}
	return fmt.Sprintf("%s (%d) (%d)", payload.UserMessage, payload.Status, payload.SubStatus), sessionInvalid
}

type tidalArtist struct {
	Name string `json:"name"`
}

type tidalAlbum struct {
	Title string `json:"title"`
	Cover string `json:"cover"`
}

type tidalItem struct {
	Artist *tidalArtist `json:"artist"`
	Album  *tidalAlbum  `json:"album"`
	// Title and Cover sit on the item itself for album search results.
	Title string `json:"title"`
	Cover string `json:"cover"`
}

type tidalMatch struct {
	artist string
	album  string
	cover  string
}

func (p *TidalProvider) parse(body []byte) []CoverSearchResult {
	var payload struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		p.report(malformedError("response is not a JSON object", body))
		return nil
	}
	if payload.Items == nil {
		p.report(malformedError("response is missing items", body))
		return nil
	}

	var results []CoverSearchResult
	rank := 0
	for _, raw := range payload.Items {
		match, serr := parseTidalItem(raw)
		if serr != nil {
			// One malformed item never aborts the rest of the batch.
			p.report(serr)
			continue
		}
		rank++
		for _, size := range tidalCoverSizes {
			results = append(results, CoverSearchResult{
				Provider: p.name,
				Artist:   match.artist,
				Album:    titlenorm.StripDisc(match.album),
				Rank:     rank,
				ImageURL: fmt.Sprintf("%s/images/%s/%s.jpg", p.resourcesURL, match.cover, size.label),
				Width:    size.px,
				Height:   size.px,
			})
		}
	}
	return results
}

// parseTidalItem validates one items entry. Track results nest the album
// object; album results carry title and cover on the item itself. Cover ids
// arrive dash-separated but address a slash-separated resource path.
func parseTidalItem(raw json.RawMessage) (tidalMatch, *searchError) {
	var item tidalItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return tidalMatch{}, &searchError{Kind: ErrorKindPartialItem, Message: "items entry is not an object", Debug: string(raw)}
	}
	if item.Artist == nil || item.Artist.Name == "" {
		return tidalMatch{}, &searchError{Kind: ErrorKindPartialItem, Message: "items entry is missing artist", Debug: string(raw)}
	}

	title := item.Title
	cover := item.Cover
	if item.Album != nil {
		title = item.Album.Title
		cover = item.Album.Cover
	}
	if title == "" || cover == "" {
		return tidalMatch{}, &searchError{Kind: ErrorKindPartialItem, Message: "items entry is missing album title or cover", Debug: string(raw)}
	}

	return tidalMatch{
		artist: item.Artist.Name,
		album:  title,
		cover:  strings.ReplaceAll(cover, "-", "/"),
	}, nil
}
