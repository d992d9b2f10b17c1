package bayeux

import (
	"sync"
	"time"
)

const defaultMaximumNetworkDelay = 10000 * time.Millisecond

// Transport is the pluggable wire layer a Session sends messages through.
// Send must, on completion, call exactly one of session.ReceiveMessages or
// session.FailMessages.
type Transport interface {
	// Name is the transport's unique identifier, e.g. "long-polling".
	Name() string
	// Accept reports whether this transport can speak the given Bayeux
	// protocol version.
	Accept(bayeuxVersion string) bool
	// Register installs the owning session and target URL.
	Register(session *Session, url string) error
	// Unregister clears the back-reference to the session.
	Unregister()
	// Reset restores any per-connection-cycle transport state (e.g.
	// cookies gathered under a stale clientId).
	Reset()
	// Abort cancels in-flight requests without surfacing them as
	// failures unless the transport chooses to report them, and
	// reinitializes the underlying HTTP client.
	Abort()
	// Send serializes and dispatches messages. sync requests a
	// best-effort synchronous send (used for a final disconnect flush).
	Send(messages []Message, sync bool)
	// GetTimeout returns the effective network timeout for messages:
	// maximum_network_delay, plus the advice timeout when messages is a
	// single meta-connect message.
	GetTimeout(messages []Message) time.Duration
}

// TransportRegistry is a named pool of Transports with version-based
// negotiation.
type TransportRegistry struct {
	mu         sync.RWMutex
	transports map[string]Transport
	order      []string
}

// NewTransportRegistry returns an empty TransportRegistry.
func NewTransportRegistry() *TransportRegistry {
	return &TransportRegistry{transports: make(map[string]Transport)}
}

// Add registers a transport under its Name, rejecting duplicates.
func (r *TransportRegistry) Add(t Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.transports[name]; exists {
		return false
	}
	r.transports[name] = t
	r.order = append(r.order, name)
	return true
}

// Remove unregisters and returns the named transport, or nil if unknown.
func (r *TransportRegistry) Remove(name string) Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transports[name]
	if !ok {
		return nil
	}
	delete(r.transports, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return t
}

// FindTransports returns the names of registered transports that accept
// the given Bayeux protocol version.
func (r *TransportRegistry) FindTransports(version string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, name := range r.order {
		if r.transports[name].Accept(version) {
			names = append(names, name)
		}
	}
	return names
}

// GetKnownTransports returns the names of all registered transports.
func (r *TransportRegistry) GetKnownTransports() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// GetTransport returns the named transport, or nil if unknown.
func (r *TransportRegistry) GetTransport(name string) Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transports[name]
}

// NegotiateTransport returns the first transport in requestedTransports
// order that is both locally known and accepts bayeuxVersion, or nil if
// none match.
func (r *TransportRegistry) NegotiateTransport(requestedTransports []string, bayeuxVersion string) Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range requestedTransports {
		t, ok := r.transports[name]
		if !ok {
			continue
		}
		if t.Accept(bayeuxVersion) {
			return t
		}
	}
	return nil
}

// Reset calls Reset on every registered transport.
func (r *TransportRegistry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		r.transports[name].Reset()
	}
}
