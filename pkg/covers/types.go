// Package covers provides multi-provider album cover art search against
// external music metadata services.
package covers

// SearchQuery describes one logical cover art search. At least one of
// Artist, Album or Title must be non-empty for a search to be attempted.
type SearchQuery struct {
	Artist string
	Album  string
	Title  string
	// ID is caller-assigned correlation data. It is threaded through to the
	// result callback unchanged and never interpreted by the provider.
	ID int
}

// IsEmpty reports whether the query carries no search terms at all.
func (q SearchQuery) IsEmpty() bool {
	return q.Artist == "" && q.Album == "" && q.Title == ""
}

// CoverSearchResult is one candidate cover image returned by a provider.
// A single album match typically expands into several results, one per
// available image resolution, all sharing the same Rank.
type CoverSearchResult struct {
	Provider string `json:"provider"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	// Rank is the 1-based position of the matched item within the
	// provider's own response ordering.
	Rank     int    `json:"rank"`
	ImageURL string `json:"image_url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// SearchFinishedFunc receives the outcome of one accepted search. It is
// invoked exactly once per StartSearch call that returned true, possibly
// with an empty slice, and never after the provider has been closed.
type SearchFinishedFunc func(id int, results []CoverSearchResult)

// Provider integrates one external cover art search service.
type Provider interface {
	// Name identifies the provider in results, logs and metrics.
	Name() string

	// Quality is the relative weight of this provider's results when
	// merging across providers. Higher is better.
	Quality() float64

	// AuthRequired reports whether the provider needs an authenticated
	// session before it will accept searches.
	AuthRequired() bool

	// Authenticated reports whether the provider currently holds a usable
	// session.
	Authenticated() bool

	// StartSearch validates preconditions and, when they hold, issues one
	// asynchronous search request and returns true. It returns false
	// without side effects when the provider is unauthenticated, the query
	// is empty, or the provider has been closed. StartSearch never blocks
	// on network I/O; the result is delivered to the sink registered at
	// construction, strictly after StartSearch returns.
	StartSearch(artist, album, title string, id int) bool

	// CancelSearch cancels in-flight searches for the given id.
	// Best-effort: providers that cannot map an id to a request may no-op.
	CancelSearch(id int)

	// ClearSession drops provider-held session state so that a subsequent
	// StartSearch re-validates preconditions.
	ClearSession()

	// Close aborts every in-flight request and waits for them to drain.
	// The result sink is disconnected before the abort, so no callback
	// fires after Close returns. Closing a provider with nothing in flight
	// only releases resources. Idempotent.
	Close()
}
