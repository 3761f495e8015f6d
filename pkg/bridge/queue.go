// Copyright 2024-2026 Aiku AI

package bridge

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// eventHeap is a min-heap of hub events keyed by timestamp, with insertion
// sequence as the tie-breaker so equal timestamps drain in arrival order.
type eventHeap []*HubEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Timestamp.Equal(h[j].Timestamp) {
		return h[i].seq < h[j].seq
	}
	return h[i].Timestamp.Before(h[j].Timestamp)
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*HubEvent)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}

// eventResolver consumes drained events. Implemented by *Resolver; tests
// substitute a recorder.
type eventResolver interface {
	Resolve(ctx context.Context, ev *HubEvent)
}

// Ingestor runs the two periodic tasks against the hub feed: a poll task
// that reads event batches and orders them by timestamp, and a faster drain
// task that hands queued events to the resolver. Splitting the two smooths
// bursts and restores a global timestamp order even though the feed delivers
// small batches out of causal order.
type Ingestor struct {
	log           zerolog.Logger
	feed          HubFeed
	resolver      eventResolver
	pollInterval  time.Duration
	drainInterval time.Duration
	newBackoff    func() backoff.BackOff

	mu    sync.Mutex
	queue eventHeap
	seq   uint64
}

// NewIngestor wires an ingestor to a feed and resolver. The poll interval
// must respect the hub's per-connection rate limit; the drain interval
// should be shorter than the poll interval.
func NewIngestor(feed HubFeed, resolver eventResolver, pollInterval, drainInterval time.Duration, newBackoff func() backoff.BackOff, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		log:           log.With().Str("component", "ingestor").Logger(),
		feed:          feed,
		resolver:      resolver,
		pollInterval:  pollInterval,
		drainInterval: drainInterval,
		newBackoff:    newBackoff,
	}
}

// Run blocks, polling and draining until ctx is cancelled.
func (q *Ingestor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		q.pollLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		q.drainLoop(ctx)
	}()
	wg.Wait()
}

func (q *Ingestor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.poll(ctx)
		}
	}
}

// poll reads one batch from the feed. A feed error costs no events: the
// batch read before the failure is still queued, and the feed is reconnected
// before the next cycle.
func (q *Ingestor) poll(ctx context.Context) {
	batch, err := q.feed.Poll(ctx)
	q.Enqueue(batch...)
	if err != nil {
		q.log.Warn().Err(err).Msg("Hub feed poll failed, reconnecting")
		q.reconnect(ctx)
	}
}

// Enqueue stamps and queues events. Events without a hub timestamp get the
// local receive time.
func (q *Ingestor) Enqueue(events ...*HubEvent) {
	if len(events) == 0 {
		return
	}
	now := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ev := range events {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
		ev.seq = q.seq
		q.seq++
		heap.Push(&q.queue, ev)
	}
}

func (q *Ingestor) reconnect(ctx context.Context) {
	bo := q.newBackoff()
	for {
		if err := q.feed.Connect(ctx); err == nil {
			q.log.Info().Msg("Hub feed reconnected")
			return
		} else {
			q.log.Warn().Err(err).Msg("Hub feed reconnect failed")
		}
		if !sleepCtx(ctx, bo.NextBackOff()) {
			return
		}
	}
}

func (q *Ingestor) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(q.drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Drain(ctx)
		}
	}
}

// Drain resolves every queued event in non-decreasing timestamp order. The
// queue is snapshotted first: events arriving mid-drain wait for the next
// cycle instead of jumping ahead of ones already queued.
func (q *Ingestor) Drain(ctx context.Context) {
	q.mu.Lock()
	batch := q.queue
	q.queue = nil
	q.mu.Unlock()
	for batch.Len() > 0 {
		ev := heap.Pop(&batch).(*HubEvent)
		q.resolver.Resolve(ctx, ev)
	}
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first or the
// backoff policy reported stop.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
