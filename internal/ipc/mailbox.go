// Package ipc provides the narrow cross-process channel between the API
// process and the model host: three independent last-write-wins registers
// (outbound request, outbound response, liveness). It is deliberately not
// a queue; a new request overwrites an unconsumed one, and overwrites are
// counted rather than dropped silently.
package ipc

import (
	"sync"

	"lexd/pkg/types"
)

// Mailbox is the channel contract. Take* consumes the register (a second
// Take returns ok=false until the next Post); ReadLiveness never consumes.
// All errors are transient I/O and safe to retry on the next poll.
type Mailbox interface {
	PostRequest(req types.Request) error
	TakeRequest() (types.Request, bool, error)
	PostResponse(resp types.Response) error
	TakeResponse() (types.Response, bool, error)
	WriteLiveness(rep types.LivenessReport) error
	ReadLiveness() (types.LivenessReport, bool, error)
	// Overwrites counts Posts that replaced an unconsumed request or
	// response since the mailbox was created.
	Overwrites() uint64
	// Clear drops any pending request/response. Recovery calls it before
	// relaunching the host so a stale request is not replayed.
	Clear() error
}

// MemoryMailbox is an in-process Mailbox used by tests and by same-process
// wiring of host and proxy.
type MemoryMailbox struct {
	mu         sync.Mutex
	req        types.Request
	hasReq     bool
	resp       types.Response
	hasResp    bool
	live       types.LivenessReport
	hasLive    bool
	overwrites uint64
}

func NewMemoryMailbox() *MemoryMailbox { return &MemoryMailbox{} }

func (m *MemoryMailbox) PostRequest(req types.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasReq {
		m.overwrites++
		overwritesTotal.WithLabelValues("request").Inc()
	}
	m.req = req
	m.hasReq = true
	return nil
}

func (m *MemoryMailbox) TakeRequest() (types.Request, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasReq {
		return types.Request{}, false, nil
	}
	m.hasReq = false
	return m.req, true, nil
}

func (m *MemoryMailbox) PostResponse(resp types.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasResp {
		m.overwrites++
		overwritesTotal.WithLabelValues("response").Inc()
	}
	m.resp = resp
	m.hasResp = true
	return nil
}

func (m *MemoryMailbox) TakeResponse() (types.Response, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasResp {
		return types.Response{}, false, nil
	}
	m.hasResp = false
	return m.resp, true, nil
}

func (m *MemoryMailbox) WriteLiveness(rep types.LivenessReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live = rep
	m.hasLive = true
	return nil
}

func (m *MemoryMailbox) ReadLiveness() (types.LivenessReport, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live, m.hasLive, nil
}

func (m *MemoryMailbox) Overwrites() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overwrites
}

func (m *MemoryMailbox) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasReq = false
	m.hasResp = false
	return nil
}
