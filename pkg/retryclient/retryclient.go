// Package retryclient is a reference SDK implementation of the client-side
// Retry Queue described in SPEC_FULL.md §4.7: when a client fails to POST a
// "response" command back to the SSE bridge, the response is queued and
// retried with bounded attempts, because the server uses correlation
// timeouts for liveness and a lost response silently poisons a pending
// slot. Grounded on the originating codebase's queue.Worker stopCh+sleep
// loop shape, adapted to a bounded work queue instead of a poll loop.
package retryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

const (
	// DefaultRetryInterval is response_retry_interval's default from §4.7.
	DefaultRetryInterval = 2 * time.Second

	// DefaultMaxRetries is max_response_retries's default from §4.7.
	DefaultMaxRetries = 5

	defaultQueueCapacity = 256
)

// Stats are the sent/failed/retried/abandoned counters §4.7 requires.
type Stats struct {
	Sent      int64
	Failed    int64
	Retried   int64
	Abandoned int64
}

type queuedResponse struct {
	clientID string
	resp     models.ResponseEnvelope
	attempts int
}

// Queue is a bounded in-memory retry queue for outbound "response" command
// POSTs. Entries that fail to reach the server are retried by a background
// worker at RetryInterval, up to MaxRetries times, then abandoned.
type Queue struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger

	// RetryInterval and MaxRetries may be tuned before Start; they default
	// to DefaultRetryInterval / DefaultMaxRetries.
	RetryInterval time.Duration
	MaxRetries    int

	items  chan queuedResponse
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// New builds a Queue that POSTs response commands to endpoint.
func New(endpoint string) *Queue {
	return &Queue{
		endpoint:      endpoint,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        slog.Default().With("component", "retryclient"),
		RetryInterval: DefaultRetryInterval,
		MaxRetries:    DefaultMaxRetries,
		items:         make(chan queuedResponse, defaultQueueCapacity),
		stopCh:        make(chan struct{}),
	}
}

// Start launches the background retry worker.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.run(ctx)
}

// Stop signals the worker to exit and waits for it to finish. Call it
// exactly once: a second call panics on the already-closed stop channel.
func (q *Queue) Stop() {
	close(q.stopCh)
	q.wg.Wait()
}

// Send attempts to POST resp to the bridge immediately. On failure it is
// queued for retry and Send still returns the original error so the caller
// can log it, per §4.7: "the client MUST try to deliver a response even
// across transient failure."
func (q *Queue) Send(ctx context.Context, clientID string, resp models.ResponseEnvelope) error {
	if err := q.post(ctx, clientID, resp); err != nil {
		q.enqueue(clientID, resp)
		return err
	}
	q.mu.Lock()
	q.stats.Sent++
	q.mu.Unlock()
	return nil
}

func (q *Queue) enqueue(clientID string, resp models.ResponseEnvelope) {
	select {
	case q.items <- queuedResponse{clientID: clientID, resp: resp}:
	default:
		q.logger.Error("retry queue full, dropping response", "client_id", clientID, "request_id", resp.RequestID)
		q.mu.Lock()
		q.stats.Abandoned++
		q.mu.Unlock()
	}
}

// Snapshot returns a copy of the current counters.
func (q *Queue) Snapshot() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case item := <-q.items:
			q.retry(ctx, item)
		}
	}
}

func (q *Queue) retry(ctx context.Context, item queuedResponse) {
	q.sleep(q.interval())

	if err := q.post(ctx, item.clientID, item.resp); err != nil {
		item.attempts++
		q.mu.Lock()
		q.stats.Failed++
		q.mu.Unlock()

		if item.attempts >= q.maxRetries() {
			q.logger.Error("response delivery abandoned after max retries", "client_id", item.clientID, "request_id", item.resp.RequestID, "attempts", item.attempts)
			q.mu.Lock()
			q.stats.Abandoned++
			q.mu.Unlock()
			return
		}

		q.logger.Warn("response delivery failed, re-queuing", "client_id", item.clientID, "request_id", item.resp.RequestID, "attempt", item.attempts, "error", err)
		q.mu.Lock()
		q.stats.Retried++
		q.mu.Unlock()
		select {
		case q.items <- item:
		default:
			q.logger.Error("retry queue full, dropping response", "client_id", item.clientID, "request_id", item.resp.RequestID)
			q.mu.Lock()
			q.stats.Abandoned++
			q.mu.Unlock()
		}
		return
	}

	q.mu.Lock()
	q.stats.Sent++
	q.mu.Unlock()
}

func (q *Queue) sleep(d time.Duration) {
	select {
	case <-q.stopCh:
	case <-time.After(d):
	}
}

func (q *Queue) interval() time.Duration {
	if q.RetryInterval > 0 {
		return q.RetryInterval
	}
	return DefaultRetryInterval
}

func (q *Queue) maxRetries() int {
	if q.MaxRetries > 0 {
		return q.MaxRetries
	}
	return DefaultMaxRetries
}

func (q *Queue) post(ctx context.Context, clientID string, resp models.ResponseEnvelope) error {
	body, err := json.Marshal(struct {
		Cmd string `json:"cmd"`
		models.ResponseEnvelope
	}{Cmd: "response", ResponseEnvelope: resp})
	if err != nil {
		return fmt.Errorf("marshal response command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build response request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-ID", clientID)

	httpResp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post response command: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 300 {
		return fmt.Errorf("post response command: unexpected status %d", httpResp.StatusCode)
	}
	return nil
}
