package bayeux

import "time"

// handleHandshakeResponse implements the HANDSHAKING -> CONNECTED
// transition: negotiate a transport against the server's advertised
// types, end the internal batch, flush any application sends queued
// during the handshake, and emit the first META_CONNECT with
// advice.timeout=0.
func (s *Session) handleHandshakeResponse(message Message) {
	ok, present := message.Successful()
	if !present || !ok {
		s.handleHandshakeFailure(message, messageError(message))
		return
	}

	serverTypes := message.SupportedConnectionTypes()
	version := message.Version()
	negotiated := s.transports.NegotiateTransport(serverTypes, version)
	if negotiated == nil {
		s.handleHandshakeFailure(message, TransportNegotiationError{
			ClientTypes: s.transports.GetKnownTransports(),
			ServerTypes: serverTypes,
		})
		return
	}

	s.mu.Lock()
	if negotiated != s.transport {
		if err := negotiated.Register(s, s.url); err == nil {
			s.transport = negotiated
		}
	}
	s.clientID = message.ClientID()
	s.status = StatusConnected
	s.internalBatch = false
	s.mu.Unlock()

	s.resetBackoff()
	s.FlushBatch()
	s.notifyListeners(MetaHandshake, message)
	s.connect(true)
}

// handleHandshakeFailure increases backoff and schedules a retry unless
// advice says not to.
func (s *Session) handleHandshakeFailure(message Message, err error) {
	backoff := s.increaseBackoff()
	adv := s.Advice()

	failure := NewFailureMessage(message, err, map[string]interface{}{
		FieldAdvice: Advice{Reconnect: AdviceReconnectRetry, Interval: int(backoff / time.Millisecond)},
	})
	s.notifyListeners(MetaHandshake, failure)
	s.notifyListeners(MetaUnsuccessful, failure)

	if adv.MustNotRetryOrHandshake() {
		return
	}
	delay := adv.IntervalAsDuration() + backoff
	s.scheduleDelayedSend(func() { s.Handshake(nil) }, delay)
}

// handleConnectResponse resets backoff and schedules the next long poll.
func (s *Session) handleConnectResponse(message Message) {
	ok, present := message.Successful()
	if !present || !ok {
		s.handleConnectFailure(message, messageError(message))
		return
	}
	s.resetBackoff()
	s.notifyListeners(MetaConnect, message)

	adv := s.Advice()
	delay := adv.IntervalAsDuration() + s.BackoffPeriod()
	s.scheduleDelayedSend(func() { s.connect(false) }, delay)
}

// handleConnectFailure branches on the current advice's reconnect action:
// retry re-schedules the connect with backoff; handshake resets transports
// and zeroes backoff before re-handshaking; none disconnects. Any other
// value is an ActionError.
func (s *Session) handleConnectFailure(message Message, err error) {
	adv := s.Advice()
	backoff := s.increaseBackoff()

	failure := NewFailureMessage(message, err, map[string]interface{}{
		FieldAdvice: Advice{Reconnect: AdviceReconnectRetry, Interval: int(backoff / time.Millisecond)},
	})
	s.notifyListeners(MetaConnect, failure)
	s.notifyListeners(MetaUnsuccessful, failure)

	switch {
	case adv.ShouldRetry():
		delay := adv.IntervalAsDuration() + backoff
		s.scheduleDelayedSend(func() { s.connect(false) }, delay)
	case adv.ShouldHandshake():
		s.resetBackoff()
		s.mu.Lock()
		s.transports.Reset()
		s.status = StatusRehandshaking
		s.mu.Unlock()
		s.scheduleDelayedSend(func() { s.Handshake(nil) }, 0)
	case adv.MustNotRetryOrHandshake():
		s.Disconnect(false)
	default:
		actionErr := ActionError{Action: adv.Reconnect}
		s.notifyListeners(MetaUnsuccessful, NewFailureMessage(message, actionErr, nil))
	}
}

// handleDisconnectResponse finalizes the DISCONNECTING -> DISCONNECTED
// transition, clearing clientId and backoff and failing any messages left
// in the queue with StatusError.
func (s *Session) handleDisconnectResponse(message Message) {
	s.mu.Lock()
	s.status = StatusDisconnected
	s.clientID = ""
	s.backoffPeriod = 0
	s.mu.Unlock()

	s.failQueuedMessages(StatusError{Status: StatusDisconnected})

	ok, present := message.Successful()
	if !present || !ok {
		s.handleDisconnectFailure(message, messageError(message))
		return
	}
	s.notifyListeners(MetaDisconnect, message)
}

// handleDisconnectFailure aborts the transport and surfaces the failure;
// the session is still considered disconnected.
func (s *Session) handleDisconnectFailure(message Message, err error) {
	s.mu.Lock()
	s.status = StatusDisconnected
	s.mu.Unlock()

	if t := s.currentTransport(); t != nil {
		t.Abort()
	}
	s.failQueuedMessages(StatusError{Status: StatusDisconnected})

	failure := NewFailureMessage(message, err, nil)
	s.notifyListeners(MetaDisconnect, failure)
	s.notifyListeners(MetaUnsuccessful, failure)
}

func (s *Session) handleSubscribeResponse(message Message) {
	ok, present := message.Successful()
	if !present || !ok {
		s.handleSubscribeFailure(message, messageError(message))
		return
	}
	s.notifyListeners(MetaSubscribe, message)
}

func (s *Session) handleSubscribeFailure(message Message, err error) {
	failure := NewFailureMessage(message, err, nil)
	s.notifyListeners(MetaSubscribe, failure)
	s.notifyListeners(MetaUnsuccessful, failure)
}

func (s *Session) handleUnsubscribeResponse(message Message) {
	ok, present := message.Successful()
	if !present || !ok {
		s.handleUnsubscribeFailure(message, messageError(message))
		return
	}
	s.notifyListeners(MetaUnsubscribe, message)
}

func (s *Session) handleUnsubscribeFailure(message Message, err error) {
	failure := NewFailureMessage(message, err, nil)
	s.notifyListeners(MetaUnsubscribe, failure)
	s.notifyListeners(MetaUnsuccessful, failure)
}
