package bayeux

import (
	"testing"
	"time"
)

func newTestSessionWithTransport(t *testing.T) (*Session, *recordingTransport) {
	t.Helper()
	session, err := NewSession("http://www.example.com")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	rt := &recordingTransport{}
	session.mu.Lock()
	session.transports.Remove(longPollingTransportName)
	session.transports.Add(rt)
	session.transport = rt
	session.mu.Unlock()
	return session, rt
}

func TestSession_InitialStatus(t *testing.T) {
	s, _ := newTestSessionWithTransport(t)
	if s.Status() != StatusUnconnected {
		t.Fatalf("expected initial status Unconnected, got %v", s.Status())
	}
}

func TestSession_HandshakeBypassesStatusGate(t *testing.T) {
	s, rt := newTestSessionWithTransport(t)
	if err := s.Handshake(nil); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if got := rt.count(); got != 1 {
		t.Fatalf("expected handshake to reach the transport directly, got %d sends", got)
	}
	if s.Status() != StatusHandshaking {
		t.Fatalf("expected status Handshaking after Handshake, got %v", s.Status())
	}
}

func TestSession_ApplicationSendQueuedDuringHandshake(t *testing.T) {
	s, rt := newTestSessionWithTransport(t)
	if err := s.Handshake(nil); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	m := NewMessage(nil)
	m.SetChannel("/foo")
	if err := s.Send(m); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := rt.count(); got != 1 {
		t.Fatalf("expected application send to be queued, not reach the transport yet; got %d sends", got)
	}

	s.mu.Lock()
	queued := len(s.messageQueue)
	s.mu.Unlock()
	if queued != 1 {
		t.Fatalf("expected 1 queued message, got %d", queued)
	}
}

func TestSession_HandshakeResponseFlushesQueueAndConnects(t *testing.T) {
	s, rt := newTestSessionWithTransport(t)
	if err := s.Handshake(nil); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	m := NewMessage(nil)
	m.SetChannel("/foo")
	if err := s.Send(m); err != nil {
		t.Fatalf("Send: %v", err)
	}

	response := NewMessage(nil)
	response.SetChannel(MetaHandshake)
	response.SetSuccessful(true)
	response.SetClientID("client-1")
	response.SetSupportedConnectionTypes([]string{rt.Name()})
	response.SetVersion("1.0")
	s.ReceiveMessages([]Message{response})

	if s.Status() != StatusConnected {
		t.Fatalf("expected status Connected after successful handshake, got %v", s.Status())
	}
	if s.ClientID() != "client-1" {
		t.Fatalf("expected clientId to be captured, got %q", s.ClientID())
	}
	// handshake send (1) + flushed application send (1) + the first connect (1)
	if got := rt.count(); got != 3 {
		t.Fatalf("expected 3 sends after handshake response, got %d", got)
	}
}

func TestSession_DisconnectBypassesStatusGateAndFailsQueue(t *testing.T) {
	s, rt := newTestSessionWithTransport(t)
	if err := s.Handshake(nil); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	m := NewMessage(nil)
	m.SetChannel("/foo")
	if err := s.Send(m); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var failed []Message
	s.GetChannel(MetaUnsuccessful).AddListener(func(channel ChannelID, message Message, extraArgs []interface{}, extraKwargs map[string]interface{}) {
		failed = append(failed, message)
	}, nil, nil)

	if err := s.Disconnect(false); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if got := rt.count(); got != 2 {
		t.Fatalf("expected handshake send + disconnect send, got %d", got)
	}

	response := NewMessage(nil)
	response.SetChannel(MetaDisconnect)
	response.SetSuccessful(true)
	s.ReceiveMessages([]Message{response})

	if s.Status() != StatusDisconnected {
		t.Fatalf("expected status Disconnected, got %v", s.Status())
	}
	if len(failed) != 1 {
		t.Fatalf("expected the queued application send to fail, got %d failures", len(failed))
	}
}

func TestSession_ConnectFailureHandshakeAdviceResetsBackoff(t *testing.T) {
	s, _ := newTestSessionWithTransport(t)
	s.mu.Lock()
	s.status = StatusConnected
	s.clientID = "client-1"
	s.advice = Advice{Reconnect: AdviceReconnectHandshake}
	s.backoffPeriod = 5 * time.Second
	s.mu.Unlock()

	failed := NewMessage(nil)
	failed.SetChannel(MetaConnect)
	failed.SetSuccessful(false)
	failed.SetError("403::denied")
	s.handleConnectFailure(failed, messageError(failed))

	if s.Status() != StatusRehandshaking {
		t.Fatalf("expected status Rehandshaking, got %v", s.Status())
	}
	if got := s.BackoffPeriod(); got != 0 {
		t.Fatalf("expected backoff to be reset to 0, got %v", got)
	}
}

func TestSession_ConnectFailureDeliversRetryAdvice(t *testing.T) {
	s, _ := newTestSessionWithTransport(t)
	s.mu.Lock()
	s.status = StatusConnected
	s.clientID = "client-1"
	s.advice = Advice{Reconnect: AdviceReconnectRetry}
	s.backoffPeriodIncrement = 1 * time.Second
	s.maximumBackoffPeriod = 30 * time.Second
	s.mu.Unlock()

	var failed Message
	s.GetChannel(MetaUnsuccessful).AddListener(func(channel ChannelID, message Message, extraArgs []interface{}, extraKwargs map[string]interface{}) {
		failed = message
	}, nil, nil)

	request := NewMessage(nil)
	request.SetChannel(MetaConnect)
	request.SetSuccessful(false)
	request.SetError("403::denied")
	s.handleConnectFailure(request, messageError(request))

	if failed == nil {
		t.Fatal("expected a META_UNSUCCESSFUL failure message")
	}
	adv := failed.Advice()
	if adv == nil {
		t.Fatal("expected the failure message to carry advice")
	}
	if adv.Reconnect != AdviceReconnectRetry {
		t.Fatalf("expected failure advice reconnect=retry, got %q", adv.Reconnect)
	}
	if adv.Interval != 1000 {
		t.Fatalf("expected failure advice interval to reflect the increased backoff, got %d", adv.Interval)
	}
}

func TestSession_HandshakeFailureDeliversRetryAdvice(t *testing.T) {
	s, _ := newTestSessionWithTransport(t)
	s.mu.Lock()
	s.backoffPeriodIncrement = 1 * time.Second
	s.maximumBackoffPeriod = 30 * time.Second
	s.advice = Advice{Reconnect: AdviceReconnectRetry}
	s.mu.Unlock()

	var failed Message
	s.GetChannel(MetaUnsuccessful).AddListener(func(channel ChannelID, message Message, extraArgs []interface{}, extraKwargs map[string]interface{}) {
		failed = message
	}, nil, nil)

	request := NewMessage(nil)
	request.SetChannel(MetaHandshake)
	request.SetSuccessful(false)
	request.SetError("403::denied")
	s.handleHandshakeFailure(request, messageError(request))

	if failed == nil {
		t.Fatal("expected a META_UNSUCCESSFUL failure message")
	}
	adv := failed.Advice()
	if adv == nil {
		t.Fatal("expected the failure message to carry advice")
	}
	if adv.Reconnect != AdviceReconnectRetry {
		t.Fatalf("expected failure advice reconnect=retry, got %q", adv.Reconnect)
	}
	if adv.Interval != 1000 {
		t.Fatalf("expected failure advice interval to reflect the increased backoff, got %d", adv.Interval)
	}
}

func TestSession_NotifyListenersDispatchesWildcards(t *testing.T) {
	s, _ := newTestSessionWithTransport(t)

	var seen []ChannelID
	s.GetChannel("/foo/*").AddListener(func(channel ChannelID, message Message, extraArgs []interface{}, extraKwargs map[string]interface{}) {
		seen = append(seen, channel)
	}, nil, nil)

	m := NewMessage(nil)
	m.SetChannel("/foo/bar")
	s.notifyListeners("/foo/bar", m)

	if len(seen) != 1 || seen[0] != "/foo/bar" {
		t.Fatalf("expected wildcard listener to see the concrete channel id, got %v", seen)
	}
}

func TestSession_RegisterUnregisterExtension(t *testing.T) {
	s, _ := newTestSessionWithTransport(t)
	s.mu.Lock()
	s.status = StatusConnected
	s.clientID = "client-1"
	s.mu.Unlock()
	ext := &recordingExtension{}
	s.RegisterExtension(ext)
	if !ext.registered {
		t.Fatal("expected Register to be called")
	}

	m := NewMessage(nil)
	m.SetChannel("/foo")
	if err := s.Send(m); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ext.sendCalls != 1 {
		t.Fatalf("expected 1 outgoing extension call, got %d", ext.sendCalls)
	}

	if !s.UnregisterExtension(ext) {
		t.Fatal("expected UnregisterExtension to report found")
	}
	if !ext.unregistered {
		t.Fatal("expected Unregister to be called")
	}
}

type recordingExtension struct {
	registered   bool
	unregistered bool
	sendCalls    int
}

func (e *recordingExtension) Receive(message Message) Message { return message }
func (e *recordingExtension) Send(message Message) Message {
	e.sendCalls++
	return message
}
func (e *recordingExtension) Register(session *Session) { e.registered = true }
func (e *recordingExtension) Unregister()                { e.unregistered = true }
