// Package gobayeuxtest provides an in-process fake Bayeux server,
// installed as an http.RoundTripper, for exercising a Session/Client end
// to end without a real network or a real CometD deployment.
package gobayeuxtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	bayeux "github.com/silentsound/baiocas"
)

var chars = []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmonpqrstuvwxyz0123456789")

// Logger is the minimal logging surface the Server needs; *testing.T
// satisfies it.
type Logger interface {
	Logf(format string, args ...any)
}

// Server is a fake Bayeux server driven entirely through RoundTrip: it
// tracks per-client subscriptions and replies to handshake/connect/
// subscribe/unsubscribe/disconnect with plausible, successful responses.
// Installed via bayeux.WithHTTPTransport(server) on a Session under test.
type Server struct {
	log Logger

	mu                  sync.Mutex
	running             bool
	subs                map[string][]bayeux.ChannelID
	advice              bayeux.Advice
	handshakeError      bool
	rejectNextHandshake bool
	pending             map[string][]bayeux.Message // clientID -> queued broadcast data
}

// ServerOpts configures a Server at construction time.
type ServerOpts interface {
	apply(*Server)
}

type serverOptsFunc func(*Server)

func (f serverOptsFunc) apply(s *Server) { f(s) }

// WithHandshakeError makes every /meta/handshake request fail with a 400
// response, to exercise a Client's connect-error reporting.
func WithHandshakeError(enabled bool) ServerOpts {
	return serverOptsFunc(func(s *Server) { s.handshakeError = enabled })
}

// NewServer builds a Server that logs via logger (pass nil to discard).
func NewServer(logger Logger, opts ...ServerOpts) *Server {
	if logger == nil {
		logger = discardLogger{}
	}
	server := &Server{
		log:  logger,
		subs: make(map[string][]bayeux.ChannelID),
		advice: bayeux.Advice{
			Reconnect: bayeux.AdviceReconnectRetry,
			Timeout:   int(30 * time.Second / time.Millisecond),
			Interval:  0,
		},
		pending: make(map[string][]bayeux.Message),
	}
	for _, opt := range opts {
		opt.apply(server)
	}
	return server
}

type discardLogger struct{}

func (discardLogger) Logf(format string, args ...any) {}

// Start marks the server as accepting requests. RoundTrip refuses
// requests before Start or after Stop, mirroring a real transport's
// lifecycle so a Client exercised against this fake observes the same
// "not yet listening"/"shut down" failure modes it would against a real
// Bayeux deployment.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

// Stop marks the server as no longer accepting requests.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// RejectNextHandshake makes the next /meta/handshake fail with an
// unsuccessful response, to exercise handshake-failure/retry paths.
func (s *Server) RejectNextHandshake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNextHandshake = true
}

// Broadcast queues data to be delivered to every client subscribed to
// channel on its next /meta/connect long poll.
func (s *Server) Broadcast(channel bayeux.ChannelID, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for clientID, channels := range s.subs {
		for _, ch := range channels {
			if ch.Match(channel) {
				msg := bayeux.NewMessage(nil)
				msg.SetChannel(channel)
				msg.SetData(data)
				msg.SetClientID(clientID)
				s.pending[clientID] = append(s.pending[clientID], msg)
				break
			}
		}
	}
}

// RoundTrip implements http.RoundTripper, making Server installable
// directly as a Session's transport.
func (s *Server) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil, errors.New("gobayeuxtest: server not running")
	}

	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("gobayeuxtest: reading request body: %w", err)
	}

	msgs, err := bayeux.FromJSON(body)
	if err != nil {
		return &http.Response{
			StatusCode: http.StatusUnprocessableEntity,
			Status:     http.StatusText(http.StatusUnprocessableEntity),
			Body:       io.NopCloser(bytes.NewReader(nil)),
		}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var replies []bayeux.Message
	statusCode := http.StatusOK

	for _, msg := range msgs {
		s.log.Logf("gobayeuxtest: request: %+v", msg)
		switch msg.Channel() {
		case bayeux.MetaHandshake:
			if s.handshakeError {
				return &http.Response{
					StatusCode: http.StatusBadRequest,
					Status:     http.StatusText(http.StatusBadRequest),
					Body:       io.NopCloser(bytes.NewReader([]byte(`{"error":"Invalid request"}`))),
					Header:     make(http.Header),
				}, nil
			}
			replies = append(replies, s.handshakeLocked(msg))
		case bayeux.MetaConnect:
			replies = append(replies, s.connectLocked(msg)...)
		case bayeux.MetaSubscribe:
			replies = append(replies, s.subscribeLocked(msg))
		case bayeux.MetaUnsubscribe:
			replies = append(replies, s.unsubscribeLocked(msg))
		case bayeux.MetaDisconnect:
			replies = append(replies, s.disconnectLocked(msg))
		default:
			s.log.Logf("gobayeuxtest: unhandled channel: %s", msg.Channel())
		}
	}

	reply, err := bayeux.ToJSON(replies)
	if err != nil {
		return nil, fmt.Errorf("gobayeuxtest: marshaling response: %w", err)
	}
	s.log.Logf("gobayeuxtest: reply: %s", reply)

	return &http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       io.NopCloser(bytes.NewReader(reply)),
		Header:     make(http.Header),
	}, nil
}

func (s *Server) handshakeLocked(msg bayeux.Message) bayeux.Message {
	reply := bayeux.NewMessage(nil)
	reply.SetChannel(bayeux.MetaHandshake)
	reply.SetID(msg.ID())
	reply.SetVersion(msg.Version())
	reply.SetSupportedConnectionTypes(msg.SupportedConnectionTypes())
	reply.SetAdvice(s.advice)

	if s.rejectNextHandshake {
		s.rejectNextHandshake = false
		reply.SetSuccessful(false)
		reply.SetError("403::handshake denied")
		return reply
	}

	clientID := generateID(10)
	reply.SetClientID(clientID)
	reply.SetSuccessful(true)
	return reply
}

func (s *Server) connectLocked(msg bayeux.Message) []bayeux.Message {
	clientID := msg.ClientID()
	var replies []bayeux.Message
	for _, pending := range s.pending[clientID] {
		replies = append(replies, pending)
	}
	delete(s.pending, clientID)

	reply := bayeux.NewMessage(nil)
	reply.SetChannel(bayeux.MetaConnect)
	reply.SetID(msg.ID())
	reply.SetClientID(clientID)
	reply.SetSuccessful(true)
	reply.SetAdvice(s.advice)
	return append(replies, reply)
}

func (s *Server) subscribeLocked(msg bayeux.Message) bayeux.Message {
	clientID := msg.ClientID()
	subscription := msg.Subscription()

	reply := bayeux.NewMessage(nil)
	reply.SetChannel(bayeux.MetaSubscribe)
	reply.SetID(msg.ID())
	reply.SetClientID(clientID)
	reply.SetSubscription(subscription)

	for _, ch := range s.subs[clientID] {
		if ch == subscription {
			reply.SetSuccessful(false)
			reply.SetError("403:already subscribed:subscription denied")
			return reply
		}
	}

	s.subs[clientID] = append(s.subs[clientID], subscription)
	reply.SetSuccessful(true)
	return reply
}

func (s *Server) unsubscribeLocked(msg bayeux.Message) bayeux.Message {
	clientID := msg.ClientID()
	subscription := msg.Subscription()

	reply := bayeux.NewMessage(nil)
	reply.SetChannel(bayeux.MetaUnsubscribe)
	reply.SetID(msg.ID())
	reply.SetClientID(clientID)
	reply.SetSubscription(subscription)
	reply.SetSuccessful(true)

	channels := s.subs[clientID]
	out := channels[:0]
	for _, ch := range channels {
		if ch != subscription {
			out = append(out, ch)
		}
	}
	s.subs[clientID] = out
	return reply
}

func (s *Server) disconnectLocked(msg bayeux.Message) bayeux.Message {
	clientID := msg.ClientID()
	delete(s.subs, clientID)
	delete(s.pending, clientID)

	reply := bayeux.NewMessage(nil)
	reply.SetChannel(bayeux.MetaDisconnect)
	reply.SetID(msg.ID())
	reply.SetClientID(clientID)
	reply.SetSuccessful(true)
	return reply
}

func generateID(length int) string {
	ret := make([]rune, length)
	for i := range ret {
		ret[i] = chars[rand.Intn(len(chars))]
	}
	return string(ret)
}
