package bayeux

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Session is the Bayeux client session state machine: handshake/connect/
// disconnect lifecycle, channel registry, batching, the extension
// pipeline, the event bus, and failure routing. It owns all of its
// mutable state behind a single mutex, the Go rendering of the "single
// owning cooperative event loop" concurrency contract.
type Session struct {
	log Logger
	url string

	mu                        sync.Mutex
	status                    Status
	clientID                  string
	channels                  map[ChannelID]*Channel
	transports                *TransportRegistry
	transport                 Transport
	advice                    Advice
	backoffPeriod             time.Duration
	backoffPeriodIncrement    time.Duration
	maximumBackoffPeriod      time.Duration
	messageID                 int64
	batchDepth                int
	internalBatch             bool
	messageQueue              []queuedSend
	extensions                []Extension
	eventListeners            map[string][]eventListener
	nextEventListenerID       int
	reverseIncomingExtensions bool
	ackEnabled                bool
	timer                     *time.Timer
	timerGeneration           int
	ignoreError               func(error) bool
	transportOptions          []TransportOption
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithHTTPTransport installs a custom http.RoundTripper used by the
// session's default long-polling transport, e.g. to point at a test
// server or inject authentication headers.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(s *Session) {
		s.transportOptions = append(s.transportOptions, WithRoundTripper(rt))
	}
}

// WithIgnoreError installs a predicate used by the high-level Client to
// decide whether a failure reported on META_UNSUCCESSFUL should be
// swallowed instead of delivered on the channel returned by Start.
func WithIgnoreError(fn func(error) bool) Option {
	return func(s *Session) { s.ignoreError = fn }
}

// WithBackoffPeriodIncrement overrides the default 1000ms per-failure
// backoff increase.
func WithBackoffPeriodIncrement(d time.Duration) Option {
	return func(s *Session) { s.backoffPeriodIncrement = d }
}

// WithMaximumBackoffPeriod overrides the default 60000ms backoff cap.
func WithMaximumBackoffPeriod(d time.Duration) Option {
	return func(s *Session) { s.maximumBackoffPeriod = d }
}

// WithoutReversedIncomingExtensions disables the default
// reverse-incoming-extension-order behavior.
func WithoutReversedIncomingExtensions() Option {
	return func(s *Session) { s.reverseIncomingExtensions = false }
}

// WithDefaultAdvice overrides the advice assumed before the server has
// supplied any.
func WithDefaultAdvice(a Advice) Option {
	return func(s *Session) { s.advice = a }
}

// WithAckEnabled controls whether the ack extension opts into server acks;
// true by default.
func WithAckEnabled(enabled bool) Option {
	return func(s *Session) { s.ackEnabled = enabled }
}

// WithRequestHeader adds a static HTTP header sent with every transport
// request.
func WithRequestHeader(name, value string) Option {
	return func(s *Session) {
		s.transportOptions = append(s.transportOptions, withRequestHeaderOption(name, value))
	}
}

// WithMaximumNetworkDelay overrides the transport's base timeout.
func WithMaximumNetworkDelay(d time.Duration) Option {
	return func(s *Session) {
		s.transportOptions = append(s.transportOptions, withMaximumNetworkDelayOption(d))
	}
}

// NewSession builds a Session targeting serverAddress, registering a
// default long-polling transport. serverAddress must parse to a URL with
// a non-empty host.
func NewSession(serverAddress string, opts ...Option) (*Session, error) {
	if _, err := url.Parse(serverAddress); err != nil {
		return nil, ConnectionStringError{Transport: longPollingTransportName, Value: serverAddress}
	}

	s := &Session{
		log:                       nullLogger{},
		status:                    StatusUnconnected,
		channels:                  make(map[ChannelID]*Channel),
		advice:                    DefaultAdvice(),
		backoffPeriodIncrement:    time.Second,
		maximumBackoffPeriod:      60 * time.Second,
		reverseIncomingExtensions: true,
		ackEnabled:                true,
		eventListeners:            make(map[string][]eventListener),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.transports = NewTransportRegistry()
	defaultTransport := NewLongPollingTransport(s.transportOptions...)
	s.transports.Add(defaultTransport)
	if err := defaultTransport.Register(s, serverAddress); err != nil {
		return nil, err
	}
	s.transport = defaultTransport
	s.url = serverAddress

	return s, nil
}

func (s *Session) currentTransport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// Status returns the session's current lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ClientID returns the session's current Bayeux client id, or "" before a
// successful handshake.
func (s *Session) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// Advice returns the session's current effective advice.
func (s *Session) Advice() Advice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advice
}

// BackoffPeriod returns the session's current backoff duration.
func (s *Session) BackoffPeriod() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backoffPeriod
}

// AckEnabled reports whether the ack extension should opt into server
// acks; read by extensions/ack when it sends a handshake.
func (s *Session) AckEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ackEnabled
}

// GetChannel returns the Channel for id, creating it lazily on first
// lookup. Channels are never destroyed.
func (s *Session) GetChannel(id ChannelID) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getChannelLocked(id)
}

func (s *Session) getChannelLocked(id ChannelID) *Channel {
	if ch, ok := s.channels[id]; ok {
		return ch
	}
	ch := newChannel(s, id)
	s.channels[id] = ch
	return ch
}

// RegisterExtension appends ext to the outgoing extension chain (and the
// symmetric position in the default-reversed incoming chain), calling its
// Register hook.
func (s *Session) RegisterExtension(ext Extension) {
	s.mu.Lock()
	s.extensions = append(s.extensions, ext)
	s.mu.Unlock()
	ext.Register(s)
}

// UnregisterExtension removes ext from the chain and calls its Unregister
// hook. It reports whether ext was registered.
func (s *Session) UnregisterExtension(ext Extension) bool {
	s.mu.Lock()
	found := -1
	for i, e := range s.extensions {
		if e == ext {
			found = i
			break
		}
	}
	if found == -1 {
		s.mu.Unlock()
		return false
	}
	s.extensions = append(s.extensions[:found], s.extensions[found+1:]...)
	s.mu.Unlock()
	ext.Unregister()
	return true
}

// RegisterTransport adds t to the transport registry.
func (s *Session) RegisterTransport(t Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transports.Add(t)
}

// UnregisterTransport removes and returns the named transport.
func (s *Session) UnregisterTransport(name string) Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transports.Remove(name)
}

// GetTransport returns the named transport, or nil if unknown.
func (s *Session) GetTransport(name string) Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transports.GetTransport(name)
}

// GetKnownTransports returns the names of every registered transport.
func (s *Session) GetKnownTransports() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transports.GetKnownTransports()
}

// RegisterListener registers fn on the event bus for event, returning its
// listener id.
func (s *Session) RegisterListener(event string, fn EventListenerFunc, extraArgs []interface{}, extraKwargs map[string]interface{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventListenerID++
	id := s.nextEventListenerID
	s.eventListeners[event] = append(s.eventListeners[event], eventListener{
		id: id, event: event, fn: fn, extraArgs: extraArgs, extraKwargs: extraKwargs,
	})
	return id
}

// UnregisterListener removes an event-bus listener by id (any event) or by
// (event, function) identity. Exactly one of id or fn must be non-nil.
func (s *Session) UnregisterListener(id *int, event string, fn EventListenerFunc) (bool, error) {
	if (id == nil) == (fn == nil) {
		return false, errInvalidSelector{op: "unregisterListener"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != nil {
		for ev, listeners := range s.eventListeners {
			for i, l := range listeners {
				if l.id == *id {
					s.eventListeners[ev] = append(listeners[:i], listeners[i+1:]...)
					return true, nil
				}
			}
		}
		return false, nil
	}
	listeners := s.eventListeners[event]
	out := make([]eventListener, 0, len(listeners))
	removed := false
	for _, l := range listeners {
		if funcsEqual(l.fn, fn) {
			removed = true
			continue
		}
		out = append(out, l)
	}
	s.eventListeners[event] = out
	return removed, nil
}

// Fire invokes every listener registered for event with (s, args, kwargs),
// merging each listener's own extraArgs/extraKwargs in. Listener panics and
// errors are swallowed and logged, never propagated.
func (s *Session) Fire(event string, args []interface{}, kwargs map[string]interface{}) {
	s.mu.Lock()
	listeners := append([]eventListener(nil), s.eventListeners[event]...)
	s.mu.Unlock()

	for _, l := range listeners {
		s.fireOne(l, args, kwargs)
	}
}

func (s *Session) fireOne(l eventListener, args []interface{}, kwargs map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("event", l.event).Warn("bayeux: event listener panicked", "recovered", r)
		}
	}()
	allArgs := append(append([]interface{}{}, args...), l.extraArgs...)
	allKwargs := make(map[string]interface{}, len(kwargs)+len(l.extraKwargs))
	for k, v := range kwargs {
		allKwargs[k] = v
	}
	for k, v := range l.extraKwargs {
		allKwargs[k] = v
	}
	l.fn(s, allArgs, allKwargs)
}

func (s *Session) fireExtensionException(message Message, err error, outgoing bool) {
	s.log.WithError(err).Warn("bayeux: extension exception")
	s.Fire(EventExtensionException, []interface{}{message, err, outgoing}, nil)
}

func (s *Session) fireListenerException(l channelListener, message Message, err error) {
	s.log.WithError(err).Warn("bayeux: listener exception")
	s.Fire(EventListenerException, []interface{}{message, err}, nil)
}

func funcsEqual(a, b EventListenerFunc) bool {
	return fmt.Sprintf("%p", a) == fmt.Sprintf("%p", b)
}

func (s *Session) nextMessageID() string {
	s.messageID++
	return strconv.FormatInt(s.messageID, 10)
}
