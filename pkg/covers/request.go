package covers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// requestTimeout bounds one search request end to end.
	requestTimeout = 10 * time.Second
	// maxResponseSize limits how much of a response body we read.
	maxResponseSize = 1 << 20
)

// errorDecoder extracts a service-specific error description from a
// non-success response body. Each provider supplies its own decoder since
// error object shapes and session-invalid sub-codes differ per service.
type errorDecoder func(status int, body []byte) (message string, sessionInvalid bool)

// inflight is one sent-but-not-yet-finished request, tracked by identity.
type inflight struct {
	id     int
	cancel context.CancelFunc
}

// tracker owns a provider's in-flight request set and enforces the teardown
// ordering guarantee: the closed flag is set before any request is aborted,
// so a late or abort-triggered response can never be delivered to a
// torn-down owner.
type tracker struct {
	mu       sync.Mutex
	closed   bool
	requests map[*inflight]struct{}
	wg       sync.WaitGroup
}

func newTracker() *tracker {
	return &tracker{requests: make(map[*inflight]struct{})}
}

// begin registers a new in-flight request derived from parent. It reports
// false when the tracker has already been closed.
func (t *tracker) begin(parent context.Context, id int) (*inflight, context.Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	r := &inflight{id: id, cancel: cancel}
	t.requests[r] = struct{}{}
	t.wg.Add(1)
	return r, ctx, true
}

// finish removes the request from the in-flight set and reports whether its
// result may still be delivered. A request already removed (aborted by
// close) is never delivered, and no request can finish twice.
func (t *tracker) finish(r *inflight) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	if _, ok := t.requests[r]; !ok {
		return false
	}
	delete(t.requests, r)
	return true
}

// cancelID cancels every in-flight request carrying the given id. The
// request stays tracked until its goroutine observes the cancellation and
// finishes, so delivery remains exactly-once.
func (t *tracker) cancelID(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for r := range t.requests {
		if r.id == id {
			r.cancel()
		}
	}
}

// close disconnects delivery, aborts every in-flight request and waits for
// their goroutines to drain. Idempotent; a close with nothing in flight
// does no aborts.
func (t *tracker) close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	for r := range t.requests {
		r.cancel()
		delete(t.requests, r)
	}
	t.mu.Unlock()

	t.wg.Wait()
}

// done is called by a request goroutine once its outcome is resolved.
func (t *tracker) done() { t.wg.Done() }

func (t *tracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

// fetch issues one GET and classifies the outcome: transport failures are
// network errors; non-success statuses are run through the provider's error
// decoder with a generic HTTP status fallback; a success status yields the
// raw payload for JSON extraction.
func fetch(client *http.Client, req *http.Request, decode errorDecoder) ([]byte, *searchError) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, networkError(err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		message := ""
		sessionInvalid := false
		if decode != nil {
			message, sessionInvalid = decode(resp.StatusCode, body)
		}
		if message == "" {
			message = fmt.Sprintf("received HTTP status %d", resp.StatusCode)
		}
		return nil, &searchError{
			Kind:           ErrorKindAPI,
			Message:        message,
			SessionInvalid: sessionInvalid,
			Debug:          string(body),
		}
	}

	return body, nil
}
