// Package health polls the backend status endpoint on a fixed interval
// and exposes the current connectivity flag plus capability metadata.
// The connected flag feeds the fallback policy elsewhere: while
// disconnected, history is sourced via plain request/response fetches.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/youruser/chatcore/internal/logging"
)

var log = logging.For("health")

// DefaultInterval is the probe period when none is configured.
const DefaultInterval = 30 * time.Second

const probeTimeout = 10 * time.Second

// Capabilities describes what the connected backend supports.
type Capabilities struct {
	SupportedFileTypes []string        `json:"supportedFileTypes,omitempty"`
	Features           map[string]bool `json:"features,omitempty"`
}

// Monitor periodically probes GET /chat/health. A failed probe flips the
// connected flag immediately; the next scheduled tick is the only retry.
type Monitor struct {
	baseURL    string
	apiKey     string
	interval   time.Duration
	httpClient *http.Client

	connected atomic.Bool

	mu   sync.Mutex
	caps *Capabilities
}

// NewMonitor creates a health monitor. A zero interval uses DefaultInterval.
func NewMonitor(baseURL, apiKey string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		interval:   interval,
		httpClient: &http.Client{Timeout: probeTimeout},
	}
}

// Start probes once immediately, then on every tick until ctx is
// cancelled. It returns after spawning the polling goroutine.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.probe(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// Connected reports the result of the most recent probe.
func (m *Monitor) Connected() bool {
	return m.connected.Load()
}

// Capabilities returns the most recently fetched capability descriptor,
// nil if none was ever retrieved.
func (m *Monitor) Capabilities() *Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.caps == nil {
		return nil
	}
	cp := *m.caps
	return &cp
}

// probe performs one health check and, while healthy, refreshes the
// capability descriptor through the authenticated variant.
func (m *Monitor) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	ok := m.checkStatus(ctx)
	was := m.connected.Swap(ok)
	if was != ok {
		log.Info().Bool("connected", ok).Msg("connectivity changed")
	}

	if ok {
		m.refreshCapabilities(ctx)
	}
}

func (m *Monitor) checkStatus(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/chat/health", nil)
	if err != nil {
		return false
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("health probe failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Msg("health probe rejected")
		return false
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.Status == "healthy" || status.Status == "ok"
}

// refreshCapabilities fetches the authenticated capability probe. Failures
// keep the previous descriptor; capabilities are advisory.
func (m *Monitor) refreshCapabilities(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/chat/capabilities", nil)
	if err != nil {
		return
	}
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("capability probe failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return
	}

	var caps Capabilities
	if err := json.NewDecoder(resp.Body).Decode(&caps); err != nil {
		return
	}

	m.mu.Lock()
	m.caps = &caps
	m.mu.Unlock()
}
