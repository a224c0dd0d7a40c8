package protocol

import (
	"fmt"
	"sync"
)

// PendingRequest is a submitted call awaiting its response.
//
// It is resolved exactly once: by the worker's response, by a synthetic crash
// response, or never observed because the caller timed out. Later resolutions
// are ignored.
type PendingRequest struct {
	Method string

	once   sync.Once
	done   chan struct{}
	result *Response
}

// NewPendingRequest creates an unresolved request handle.
func NewPendingRequest(method string) *PendingRequest {
	return &PendingRequest{
		Method: method,
		done:   make(chan struct{}),
	}
}

// Resolve stores resp and signals completion. It reports whether this call won.
func (p *PendingRequest) Resolve(resp *Response) bool {
	won := false

	p.once.Do(func() {
		p.result = resp
		won = true

		close(p.done)
	})

	return won
}

// Done returns a channel closed once the request is resolved.
func (p *PendingRequest) Done() <-chan struct{} {
	return p.done
}

// Result returns the response. Only valid after Done is closed.
func (p *PendingRequest) Result() *Response {
	select {
	case <-p.done:
		return p.result
	default:
		return nil
	}
}

// Table correlates in-flight request ids with their waiting callers.
// It is safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	pending map[uint64]*PendingRequest
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{pending: make(map[uint64]*PendingRequest, 16)}
}

// Add registers req under id.
func (t *Table) Add(id uint64, req *PendingRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.pending[id]; exists {
		return fmt.Errorf("request id %d already pending", id)
	}

	t.pending[id] = req

	return nil
}

// Resolve removes the request registered under id and completes it with resp.
// It returns false when no such request is pending.
func (t *Table) Resolve(id uint64, resp *Response) bool {
	t.mu.Lock()

	req, exists := t.pending[id]
	if exists {
		delete(t.pending, id)
	}

	t.mu.Unlock()

	if !exists {
		return false
	}

	req.Resolve(resp)

	return true
}

// DrainAllFailing resolves every pending request with a synthetic error
// response and leaves the table empty. It returns the number of requests failed.
func (t *Table) DrainAllFailing(code int, message string) int {
	t.mu.Lock()
	drained := t.pending
	t.pending = make(map[uint64]*PendingRequest, 16)
	t.mu.Unlock()

	for id, req := range drained {
		req.Resolve(&Response{ID: id, Errcode: code, Errstr: message, local: true})
	}

	return len(drained)
}

// Len returns the number of pending requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}
