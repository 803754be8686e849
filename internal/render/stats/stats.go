// Package stats carries the per-request counters threaded through the
// fetcher and the render context factory, and the process-global count of
// renders currently in flight.
package stats

import (
	"sync/atomic"

	"github.com/jrjohn/arcana-ssr/internal/observability"
)

// Request is a per-render bookkeeping record. It is created once by the
// Orchestrator handling one request, but its counters are written
// concurrently: the parallel package fetch (one goroutine per URL) and the
// sandbox's resource loader (one goroutine per intercepted request) both
// touch the same Request, so every mutator goes through sync/atomic.
type Request struct {
	PendingRenderRequests int64 `json:"pendingRenderRequests"`
	PackageFetches        int64 `json:"packageFetches"`
	FromCache             int64 `json:"fromCache"`
	VMContextSize         int64 `json:"vmContextSize"`
	CreatedVMContext      bool  `json:"createdVmContext"`
}

// IncPackageFetches records that a real network fetch occurred for this
// request (as opposed to a cache hit).
func (r *Request) IncPackageFetches() {
	atomic.AddInt64(&r.PackageFetches, 1)
}

// IncFromCache records that a package was served from the cache.
func (r *Request) IncFromCache() {
	atomic.AddInt64(&r.FromCache, 1)
}

// AddVMContextSize accumulates the crude vmContextSize proxy
// (sum(len(content))*2), preserved verbatim for log-line compatibility. It
// is not a measurement of actual sandbox memory.
func (r *Request) AddVMContextSize(contentLen int) {
	atomic.AddInt64(&r.VMContextSize, int64(contentLen*2))
}

// Registry tracks the process-global count of renders currently in flight,
// reporting it to the render_requests_in_flight gauge as it changes.
type Registry struct {
	pending int64
	metrics *observability.MetricsProvider
}

// NewRegistry creates an empty Registry. mp may be nil, in which case the
// gauge update is skipped.
func NewRegistry(mp *observability.MetricsProvider) *Registry {
	return &Registry{metrics: mp}
}

// Begin increments the pending-render counter and returns its value after
// the increment, to be captured into the request's own stats record.
func (r *Registry) Begin() int64 {
	n := atomic.AddInt64(&r.pending, 1)
	if r.metrics != nil {
		r.metrics.SetPendingRenders(int(n))
	}
	return n
}

// End decrements the pending-render counter. Must be called exactly once
// per Begin, on every exit path (success or failure).
func (r *Registry) End() {
	n := atomic.AddInt64(&r.pending, -1)
	if r.metrics != nil {
		r.metrics.SetPendingRenders(int(n))
	}
}

// Pending returns the current number of renders in flight.
func (r *Registry) Pending() int64 {
	return atomic.LoadInt64(&r.pending)
}
