package helpers

import (
	"bufio"
	"bytes"
	"net/http"
	"sync"
)

// MockHTTP is http.RoundTripper stub for uplink tests.
// Fun takes precedence, then Err, then canned Header+Body.
// Every request is recorded.
type MockHTTP struct {
	Fun    func(*http.Request) (*http.Response, error)
	Header []byte
	Body   []byte
	Err    error

	mu       sync.Mutex
	requests []*http.Request
}

func (m *MockHTTP) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Fun != nil {
		return m.Fun(req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	header := m.Header
	if header == nil {
		header = []byte("HTTP/1.0 200 OK\r\n\r\n")
	}
	rb := make([]byte, 0, len(header)+len(m.Body))
	rb = append(rb, header...)
	rb = append(rb, m.Body...)
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(rb)), req)
}

func (m *MockHTTP) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs := make([]*http.Request, len(m.requests))
	copy(rs, m.requests)
	return rs
}

// MockHTTPStatus builds canned response header for MockHTTP.Header.
func MockHTTPStatus(status string) []byte {
	return []byte("HTTP/1.0 " + status + "\r\n\r\n")
}
