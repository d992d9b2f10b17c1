package bayeux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

const longPollingTransportName = "long-polling"

// TransportOption configures a LongPollingTransport at construction time.
type TransportOption func(*LongPollingTransport)

// WithRoundTripper installs a custom http.RoundTripper, e.g. to inject
// authentication headers (see extensions/examples/salesforce for a worked
// example) or to point at a test server.
func WithRoundTripper(rt http.RoundTripper) TransportOption {
	return func(t *LongPollingTransport) { t.roundTripper = rt }
}

// withRequestHeaderOption adds a static header sent with every request, the
// "request_headers" transport option. Exposed to callers as the Session-level
// WithRequestHeader Option.
func withRequestHeaderOption(name, value string) TransportOption {
	return func(t *LongPollingTransport) {
		if t.requestHeaders == nil {
			t.requestHeaders = make(http.Header)
		}
		t.requestHeaders.Add(name, value)
	}
}

// withMaximumNetworkDelayOption overrides the default 10s base timeout, the
// "maximum_network_delay" transport option. Exposed to callers as the
// Session-level WithMaximumNetworkDelay Option.
func withMaximumNetworkDelayOption(d time.Duration) TransportOption {
	return func(t *LongPollingTransport) { t.maximumNetworkDelay = d }
}

// LongPollingTransport is the one concrete Transport this package ships:
// a long-polling HTTP transport maintaining a cookie jar across requests.
type LongPollingTransport struct {
	roundTripper        http.RoundTripper
	requestHeaders      http.Header
	maximumNetworkDelay time.Duration

	mu                sync.Mutex
	session           *Session
	rawURL            string
	appendMessageType bool
	httpClient        *http.Client
	generation        int
}

// NewLongPollingTransport builds a LongPollingTransport. A cookie jar
// (golang.org/x/net/publicsuffix-aware) is created at Register time.
func NewLongPollingTransport(opts ...TransportOption) *LongPollingTransport {
	t := &LongPollingTransport{maximumNetworkDelay: defaultMaximumNetworkDelay}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns "long-polling".
func (t *LongPollingTransport) Name() string { return longPollingTransportName }

// Accept always returns true: the long-polling transport accepts every
// Bayeux protocol version.
func (t *LongPollingTransport) Accept(bayeuxVersion string) bool { return true }

// Register installs the session and target URL, rejecting URLs with an
// empty host.
func (t *LongPollingTransport) Register(session *Session, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return ConnectionStringError{Transport: t.Name(), Value: rawURL}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = session
	t.rawURL = rawURL
	t.appendMessageType = parsed.RawQuery == "" && parsed.Fragment == ""
	t.httpClient = t.newHTTPClient()
	return nil
}

// Unregister clears the back-reference to the session.
func (t *LongPollingTransport) Unregister() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = nil
}

// Reset clears accumulated cookies, e.g. ahead of a fresh handshake.
func (t *LongPollingTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.httpClient = t.newHTTPClient()
}

// Abort cancels in-flight requests and reinitializes the HTTP client.
// Requests already in flight are superseded: their eventual failure is not
// reported to the session.
func (t *LongPollingTransport) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	t.httpClient = t.newHTTPClient()
}

func (t *LongPollingTransport) newHTTPClient() *http.Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	rt := t.roundTripper
	if rt == nil {
		rt = &http.Transport{
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: 5 * time.Second,
		}
	}
	return &http.Client{Jar: jar, Transport: rt}
}

// GetTimeout returns maximum_network_delay, plus the advice timeout when
// messages is a single meta-connect message.
func (t *LongPollingTransport) GetTimeout(messages []Message) time.Duration {
	timeout := t.maximumNetworkDelay
	if len(messages) == 1 && messages[0].Channel() == MetaConnect {
		if advice := messages[0].Advice(); advice != nil {
			timeout += advice.TimeoutAsDuration()
		}
	}
	return timeout
}

// targetURL appends the meta subpath to the base URL for a single
// meta-message request, when the base URL is well-formed and carries no
// query or fragment.
func (t *LongPollingTransport) targetURL(messages []Message) string {
	base := t.rawURL
	if !t.appendMessageType || len(messages) != 1 {
		return base
	}
	channel := messages[0].Channel()
	if !channel.IsMeta() {
		return base
	}
	suffix := strings.TrimPrefix(string(channel), metaPrefix)
	if suffix == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + suffix
}

// Send serializes messages as a JSON array body and POSTs them. On
// completion it calls session.ReceiveMessages or session.FailMessages.
// When sync is true the request is made on the calling goroutine;
// otherwise it is dispatched on a new goroutine.
func (t *LongPollingTransport) Send(messages []Message, sync bool) {
	t.mu.Lock()
	client := t.httpClient
	target := t.targetURL(messages)
	generation := t.generation
	session := t.session
	timeout := t.GetTimeout(messages)
	headers := t.requestHeaders
	t.mu.Unlock()

	do := func() {
		t.doSend(client, target, generation, session, timeout, headers, messages)
	}
	if sync {
		do()
		return
	}
	go do()
}

func (t *LongPollingTransport) doSend(client *http.Client, target string, generation int, session *Session, timeout time.Duration, headers http.Header, messages []Message) {
	body, err := ToJSON(messages)
	if err != nil {
		t.reportFailure(generation, session, messages, MessageUnparsableError{Cause: err})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		t.reportFailure(generation, session, messages, CommunicationError{Cause: err})
		return
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "application/json")
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			t.reportFailure(generation, session, messages, TimeoutError{})
			return
		}
		t.reportFailure(generation, session, messages, CommunicationError{Cause: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.reportFailure(generation, session, messages, ServerError{Code: resp.StatusCode})
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.reportFailure(generation, session, messages, CommunicationError{Cause: err})
		return
	}

	responses, err := FromJSON(data)
	if err != nil {
		t.reportFailure(generation, session, messages, err)
		return
	}

	t.mu.Lock()
	superseded := generation != t.generation
	t.mu.Unlock()
	if superseded || session == nil {
		return
	}
	session.ReceiveMessages(responses)
}

func (t *LongPollingTransport) reportFailure(generation int, session *Session, messages []Message, err error) {
	t.mu.Lock()
	superseded := generation != t.generation
	t.mu.Unlock()
	if superseded || session == nil {
		return
	}
	session.FailMessages(messages, err)
}

