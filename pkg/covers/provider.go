package covers

import (
	"net/http"

	"go.uber.org/zap"
)

// base carries the pieces shared by every provider implementation: the
// HTTP client, the result sink, the error side channel and the in-flight
// request set.
type base struct {
	name    string
	quality float64
	client  *http.Client
	sink    SearchFinishedFunc
	logger  *zap.Logger
	track   *tracker
}

func newBase(name string, quality float64, client *http.Client, sink SearchFinishedFunc, logger *zap.Logger) base {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		name:    name,
		quality: quality,
		client:  client,
		sink:    sink,
		logger:  logger,
		track:   newTracker(),
	}
}

func (b *base) Name() string { return b.name }

func (b *base) Quality() float64 { return b.quality }

func (b *base) Close() { b.track.close() }

// deliver finishes the request and invokes the sink unless the provider
// was closed in the meantime.
func (b *base) deliver(r *inflight, results []CoverSearchResult) {
	if !b.track.finish(r) {
		return
	}
	b.sink(r.id, results)
}

// report surfaces a failed search through the provider's log side channel.
// Failures are never raised to the caller; the caller always observes a
// finished search with empty or partial results.
func (b *base) report(serr *searchError) {
	b.logger.Error("cover search failed",
		zap.String("provider", b.name),
		zap.String("kind", string(serr.Kind)),
		zap.String("message", serr.Message))
	if serr.Debug != "" {
		b.logger.Debug("offending payload",
			zap.String("provider", b.name),
			zap.String("payload", serr.Debug))
	}
}
