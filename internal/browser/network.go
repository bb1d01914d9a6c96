package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// TraceEntry is one network response recorded while tracing.
type TraceEntry struct {
	URL      string    `json:"url"`
	Method   string    `json:"method,omitempty"`
	Status   int64     `json:"status"`
	MimeType string    `json:"mimeType,omitempty"`
	Type     string    `json:"type,omitempty"`
	At       time.Time `json:"at"`
}

// networkMonitor tracks in-flight requests for idle detection and, while
// tracing, records responses.
type networkMonitor struct {
	mu        sync.Mutex
	inflight  map[network.RequestID]string
	lastBusy  time.Time
	tracing   bool
	traceFrom time.Time
	entries   []TraceEntry
}

func newNetworkMonitor() *networkMonitor {
	return &networkMonitor{
		inflight: make(map[network.RequestID]string),
		lastBusy: time.Now(),
	}
}

func (m *networkMonitor) handle(ev any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		m.inflight[e.RequestID] = e.Request.Method
		m.lastBusy = time.Now()
	case *network.EventResponseReceived:
		if m.tracing && e.Response != nil {
			m.entries = append(m.entries, TraceEntry{
				URL:      e.Response.URL,
				Method:   m.inflight[e.RequestID],
				Status:   e.Response.Status,
				MimeType: e.Response.MimeType,
				Type:     string(e.Type),
				At:       time.Now(),
			})
		}
	case *network.EventLoadingFinished:
		m.done(e.RequestID)
	case *network.EventLoadingFailed:
		m.done(e.RequestID)
	}
}

func (m *networkMonitor) done(id network.RequestID) {
	if _, ok := m.inflight[id]; ok {
		delete(m.inflight, id)
		m.lastBusy = time.Now()
	}
}

// idleFor reports how long the network has had no request in flight.
func (m *networkMonitor) idleFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inflight) > 0 {
		return 0
	}
	return time.Since(m.lastBusy)
}

func (m *networkMonitor) waitIdle(ctx context.Context, idle time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.idleFor() >= idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *networkMonitor) startTrace() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tracing {
		return fmt.Errorf("tracing already started")
	}
	m.tracing = true
	m.traceFrom = time.Now()
	m.entries = nil
	return nil
}

func (m *networkMonitor) stopTrace(path string) error {
	m.mu.Lock()
	if !m.tracing {
		m.mu.Unlock()
		return fmt.Errorf("tracing not started")
	}
	trace := struct {
		StartedAt time.Time    `json:"startedAt"`
		StoppedAt time.Time    `json:"stoppedAt"`
		Responses []TraceEntry `json:"responses"`
	}{m.traceFrom, time.Now(), m.entries}
	m.tracing = false
	m.entries = nil
	m.mu.Unlock()

	if trace.Responses == nil {
		trace.Responses = []TraceEntry{}
	}
	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
