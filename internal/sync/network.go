package sync

import stdsync "sync"

// NetworkStatus reports whether the device currently has connectivity.
type NetworkStatus int

const (
	// StatusOnline means network I/O is expected to succeed.
	StatusOnline NetworkStatus = iota

	// StatusOffline means a sync attempt must fail fast without touching
	// the network.
	StatusOffline
)

// String returns "online" or "offline".
func (s NetworkStatus) String() string {
	if s == StatusOffline {
		return "offline"
	}
	return "online"
}

// NetworkMonitor tracks connectivity and notifies subscribers of changes.
//
// The monitor performs no network calls itself. In production it is fed by
// a platform connectivity signal; in tests it is driven explicitly through
// SetStatus. Status changes are visible to the next Status call immediately,
// so sync decisions never act on a stale reading.
type NetworkMonitor struct {
	mu          stdsync.RWMutex
	status      NetworkStatus
	subscribers []func(NetworkStatus)
}

// NewNetworkMonitor creates a monitor with the given initial status.
func NewNetworkMonitor(initial NetworkStatus) *NetworkMonitor {
	return &NetworkMonitor{status: initial}
}

// Status returns the current network status.
func (m *NetworkMonitor) Status() NetworkStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// SetStatus updates the current status and notifies subscribers when the
// status actually changed. Subscribers run on the calling goroutine.
func (m *NetworkMonitor) SetStatus(status NetworkStatus) {
	m.mu.Lock()
	if m.status == status {
		m.mu.Unlock()
		return
	}
	m.status = status
	subs := make([]func(NetworkStatus), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

// Subscribe registers fn to be called on every status change.
func (m *NetworkMonitor) Subscribe(fn func(NetworkStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}
