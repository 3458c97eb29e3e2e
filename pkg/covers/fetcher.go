package covers

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSearchTimeout bounds one aggregated search across all providers.
const DefaultSearchTimeout = 15 * time.Second

// Fetcher fans one logical cover art search out to every registered
// provider, collects their asynchronous deliveries and merges them into a
// single ranked list. It is the sink for every provider it owns: create
// the fetcher first, then construct providers with its SearchFinished
// method and register them.
type Fetcher struct {
	mu        sync.Mutex
	providers []Provider
	pending   map[int]chan []CoverSearchResult
	nextID    int
	timeout   time.Duration
	logger    *zap.Logger
}

// NewFetcher creates a fetcher with the given per-search timeout. A zero
// timeout selects DefaultSearchTimeout.
func NewFetcher(timeout time.Duration, logger *zap.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		pending: make(map[int]chan []CoverSearchResult),
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a provider whose searches deliver to this fetcher.
func (f *Fetcher) Register(p Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers = append(f.providers, p)
}

// Providers returns the registered providers.
func (f *Fetcher) Providers() []Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Provider, len(f.providers))
	copy(out, f.providers)
	return out
}

// SearchFinished receives one provider delivery. Deliveries for ids no
// longer waited on (timed out or never issued) are dropped.
func (f *Fetcher) SearchFinished(id int, results []CoverSearchResult) {
	f.mu.Lock()
	ch, ok := f.pending[id]
	if ok {
		delete(f.pending, id)
	}
	f.mu.Unlock()

	if !ok {
		f.logger.Debug("dropping late delivery", zap.Int("id", id))
		return
	}
	ch <- results
}

type issuedSearch struct {
	provider Provider
	id       int
	ch       chan []CoverSearchResult
}

// Search fans the query out to every provider that accepts it and blocks
// until all accepted searches deliver or the timeout expires, whichever is
// first. Stragglers are cancelled and their eventual deliveries dropped.
// The merged list is deduplicated by image URL and ordered by provider
// quality, then provider rank, then descending pixel area.
func (f *Fetcher) Search(ctx context.Context, artist, album, title string) []CoverSearchResult {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var issued []issuedSearch
	for _, p := range f.Providers() {
		ch := make(chan []CoverSearchResult, 1)

		f.mu.Lock()
		f.nextID++
		id := f.nextID
		f.pending[id] = ch
		f.mu.Unlock()

		if !p.StartSearch(artist, album, title, id) {
			f.mu.Lock()
			delete(f.pending, id)
			f.mu.Unlock()
			continue
		}
		issued = append(issued, issuedSearch{provider: p, id: id, ch: ch})
	}

	var contributions [][]CoverSearchResult
	for _, s := range issued {
		select {
		case results := <-s.ch:
			contributions = append(contributions, results)
		case <-ctx.Done():
			f.mu.Lock()
			delete(f.pending, s.id)
			f.mu.Unlock()
			s.provider.CancelSearch(s.id)
			f.logger.Warn("provider did not deliver in time",
				zap.String("provider", s.provider.Name()),
				zap.Int("id", s.id))
		}
	}

	return f.merge(contributions)
}

func (f *Fetcher) merge(contributions [][]CoverSearchResult) []CoverSearchResult {
	quality := make(map[string]float64)
	for _, p := range f.Providers() {
		quality[p.Name()] = p.Quality()
	}

	var all []CoverSearchResult
	seen := make(map[string]struct{})
	for _, contribution := range contributions {
		for _, result := range contribution {
			if _, dup := seen[result.ImageURL]; dup {
				continue
			}
			seen[result.ImageURL] = struct{}{}
			all = append(all, result)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		qi, qj := quality[all[i].Provider], quality[all[j].Provider]
		if qi != qj {
			return qi > qj
		}
		if all[i].Rank != all[j].Rank {
			return all[i].Rank < all[j].Rank
		}
		return all[i].Width*all[i].Height > all[j].Width*all[j].Height
	})

	return all
}

// Close closes every registered provider, aborting their in-flight
// requests, and drops any pending deliveries.
func (f *Fetcher) Close() {
	for _, p := range f.Providers() {
		p.Close()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.pending {
		delete(f.pending, id)
	}
}
