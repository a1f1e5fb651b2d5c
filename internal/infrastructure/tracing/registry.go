package tracing

import "sync"

// registry tracks spans that have started but not ended, in start order.
// It backs CurrentSpan and the Inject fallback for callers that do not pass
// a context. Under concurrent requests "most recent" is only a heuristic.
type registry struct {
	mu    sync.Mutex
	spans []*Span
}

func (r *registry) add(s *Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, s)
}

func (r *registry) remove(s *Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.spans) - 1; i >= 0; i-- {
		if r.spans[i] == s {
			r.spans = append(r.spans[:i], r.spans[i+1:]...)
			return
		}
	}
}

func (r *registry) current() *Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.spans) == 0 {
		return nil
	}
	return r.spans[len(r.spans)-1]
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spans)
}
