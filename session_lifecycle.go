package bayeux

import "time"

// queuedSend is a prepared outbound message waiting in the batch queue,
// remembering whether it was a setup send (one that bypasses the
// CONNECTING/CONNECTED status gate) for when the queue is flushed.
type queuedSend struct {
	message  Message
	forSetup bool
}

// responseHandlers maps a meta-channel's dispatch key (its path segments
// after "meta", joined with "_") to the handler invoked for a successful
// or server-push response on that channel.
var responseHandlers = map[string]func(*Session, Message){
	"handshake":   (*Session).handleHandshakeResponse,
	"connect":     (*Session).handleConnectResponse,
	"disconnect":  (*Session).handleDisconnectResponse,
	"subscribe":   (*Session).handleSubscribeResponse,
	"unsubscribe": (*Session).handleUnsubscribeResponse,
}

// failureHandlers mirrors responseHandlers for transport-level failures
// routed back via FailMessages.
var failureHandlers = map[string]func(*Session, Message, error){
	"handshake":   (*Session).handleHandshakeFailure,
	"connect":     (*Session).handleConnectFailure,
	"disconnect":  (*Session).handleDisconnectFailure,
	"subscribe":   (*Session).handleSubscribeFailure,
	"unsubscribe": (*Session).handleUnsubscribeFailure,
}

func metaDispatchKey(id ChannelID) string {
	parts := id.Parts() // e.g. ["meta", "disconnect"]
	if len(parts) < 2 {
		return ""
	}
	key := parts[1]
	for _, p := range parts[2:] {
		key += "_" + p
	}
	return key
}

// Handshake initiates (or re-initiates) the handshake lifecycle: any prior
// clientId/subscriptions/transport state is reset only if the session was
// disconnected, an internal batch is started so ordinary application sends
// queue until the handshake completes, and a META_HANDSHAKE message is
// emitted immediately (bypassing the status gate, since HANDSHAKING is
// never CONNECTING/CONNECTED).
func (s *Session) Handshake(properties map[string]interface{}) error {
	s.mu.Lock()
	fresh := s.status == StatusUnconnected || s.status.IsDisconnected()
	retry := s.status == StatusHandshaking || s.status == StatusRehandshaking
	if fresh {
		s.clientID = ""
		for _, ch := range s.channels {
			ch.ClearSubscriptions()
		}
		s.transports.Reset()
		s.status = StatusHandshaking
	} else if retry {
		s.status = StatusRehandshaking
	} else {
		s.status = StatusHandshaking
	}
	s.internalBatch = true
	knownTransports := s.transports.GetKnownTransports()
	s.mu.Unlock()

	msg := NewMessage(properties)
	msg.SetChannel(MetaHandshake)
	msg.SetVersion("1.0")
	msg.SetMinimumVersion("0.9")
	msg.SetSupportedConnectionTypes(knownTransports)
	return s.sendSetup([]Message{msg}, false)
}

// connect emits a META_CONNECT message. The first connect after a
// successful handshake carries advice.timeout=0 so it returns
// immediately, letting listeners observe a freshly connected state;
// subsequent connects are honored as long polls.
func (s *Session) connect(firstAfterHandshake bool) error {
	s.mu.Lock()
	clientID := s.clientID
	transportName := ""
	if s.transport != nil {
		transportName = s.transport.Name()
	}
	s.mu.Unlock()

	msg := NewMessage(nil)
	msg.SetChannel(MetaConnect)
	msg.SetClientID(clientID)
	msg.SetConnectionType(transportName)
	if firstAfterHandshake {
		msg.SetAdvice(Advice{Timeout: 0})
	}
	return s.Send(msg)
}

// Disconnect emits a META_DISCONNECT message, bypassing the status gate so
// it can be sent even mid-handshake. When sync is true the transport is
// asked to attempt a best-effort synchronous send.
func (s *Session) Disconnect(sync bool) error {
	s.mu.Lock()
	if s.status == StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusDisconnecting
	clientID := s.clientID
	s.mu.Unlock()

	msg := NewMessage(nil)
	msg.SetChannel(MetaDisconnect)
	msg.SetClientID(clientID)
	return s.sendSetup([]Message{msg}, sync)
}

// StartBatch begins (or nests into) a batching scope; outbound
// application messages accumulate into the queue instead of reaching the
// transport until the outermost EndBatch.
func (s *Session) StartBatch() {
	s.mu.Lock()
	s.batchDepth++
	s.mu.Unlock()
}

// EndBatch closes one level of batching scope, flushing the queue when the
// outermost scope closes. It fails with BatchError if called without a
// matching StartBatch.
func (s *Session) EndBatch() error {
	s.mu.Lock()
	if s.batchDepth == 0 {
		s.mu.Unlock()
		return BatchError{}
	}
	s.batchDepth--
	shouldFlush := s.batchDepth == 0
	s.mu.Unlock()
	if shouldFlush {
		s.FlushBatch()
	}
	return nil
}

// FlushBatch sends all queued messages in a single transport call, in
// enqueue order. It is a no-op if the queue is empty.
func (s *Session) FlushBatch() {
	s.mu.Lock()
	queue := s.messageQueue
	s.messageQueue = nil
	s.mu.Unlock()
	if len(queue) == 0 {
		return
	}
	forSetup := queue[0].forSetup
	messages := make([]Message, len(queue))
	for i, q := range queue {
		messages[i] = q.message
	}
	s.dispatchToTransport(messages, forSetup, false)
}

// Batch runs fn with a batching scope started and guaranteed to end (and
// flush) on every exit path, including a panic inside fn.
func (s *Session) Batch(fn func()) (err error) {
	s.StartBatch()
	defer func() { err = s.EndBatch() }()
	fn()
	return nil
}

// Send prepares and dispatches a single application message: stamping
// clientId, running the outgoing extension chain, assigning a message id,
// and then either queuing it (while batching) or dispatching it to the
// transport, gated on the session being CONNECTING/CONNECTED.
func (s *Session) Send(message Message) error {
	return s.enqueueOrSend([]Message{message}, false, false)
}

// sendSetup is like Send but bypasses both the batch queue and the status
// gate; it is used for the session's own META_HANDSHAKE and META_DISCONNECT
// messages, which must reach the transport regardless of current status.
func (s *Session) sendSetup(messages []Message, sync bool) error {
	s.mu.Lock()
	prepared := s.prepareOutgoingLocked(messages)
	s.mu.Unlock()
	if len(prepared) == 0 {
		return nil
	}
	return s.dispatchToTransport(prepared, true, sync)
}

func (s *Session) enqueueOrSend(messages []Message, forSetup bool, sync bool) error {
	s.mu.Lock()
	prepared := s.prepareOutgoingLocked(messages)
	if len(prepared) == 0 {
		s.mu.Unlock()
		return nil
	}
	if !forSetup && (s.batchDepth > 0 || s.internalBatch) {
		for _, m := range prepared {
			s.messageQueue = append(s.messageQueue, queuedSend{message: m, forSetup: forSetup})
		}
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.dispatchToTransport(prepared, forSetup, sync)
}

func (s *Session) prepareOutgoingLocked(messages []Message) []Message {
	prepared := make([]Message, 0, len(messages))
	for _, m := range messages {
		if s.clientID != "" && m.ClientID() == "" {
			m.SetClientID(s.clientID)
		}
		dropped := false
		for _, ext := range s.extensions {
			m = s.safeExtensionSend(ext, m)
			if m == nil {
				dropped = true
				break
			}
		}
		if dropped {
			continue
		}
		m.SetID(s.nextMessageID())
		prepared = append(prepared, m)
	}
	return prepared
}

func (s *Session) safeExtensionSend(ext Extension, message Message) (result Message) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = panicError{value: r}
			}
			s.fireExtensionException(message, err, true)
			result = message
		}
	}()
	return ext.Send(message)
}

func (s *Session) safeExtensionReceive(ext Extension, message Message) (result Message) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = panicError{value: r}
			}
			s.fireExtensionException(message, err, false)
			result = message
		}
	}()
	return ext.Receive(message)
}

func (s *Session) dispatchToTransport(messages []Message, forSetup bool, sync bool) error {
	s.mu.Lock()
	allowed := forSetup || s.status.IsConnected()
	status := s.status
	transport := s.transport
	s.mu.Unlock()
	if !allowed {
		err := StatusError{Status: status}
		s.FailMessages(messages, err)
		return err
	}
	transport.Send(messages, sync)
	return nil
}

// ReceiveMessages is the transport's success callback: each message runs
// through the incoming extension chain and is dispatched to its handler.
func (s *Session) ReceiveMessages(messages []Message) {
	for _, m := range messages {
		s.receive(m)
	}
}

func (s *Session) receive(message Message) {
	s.mu.Lock()
	exts := append([]Extension(nil), s.extensions...)
	reverse := s.reverseIncomingExtensions
	s.mu.Unlock()

	if reverse {
		for i := len(exts) - 1; i >= 0; i-- {
			message = s.safeExtensionReceive(exts[i], message)
			if message == nil {
				return
			}
		}
	} else {
		for _, ext := range exts {
			message = s.safeExtensionReceive(ext, message)
			if message == nil {
				return
			}
		}
	}

	if advice := message.Advice(); advice != nil {
		s.mu.Lock()
		s.advice = s.advice.Merge(*advice)
		s.mu.Unlock()
	}

	channel := message.Channel()
	if channel.IsMeta() {
		if handler, ok := responseHandlers[metaDispatchKey(channel)]; ok {
			handler(s, message)
			return
		}
	}
	s.handleGenericMessage(message)
}

// FailMessages is the transport's failure callback: it routes each message
// to its meta-channel-specific failure handler, or the generic one.
func (s *Session) FailMessages(messages []Message, err error) {
	for _, m := range messages {
		channel := m.Channel()
		if channel.IsMeta() {
			if handler, ok := failureHandlers[metaDispatchKey(channel)]; ok {
				handler(s, m, err)
				continue
			}
		}
		s.handleGenericFailure(m, err)
	}
}

// handleGenericMessage implements the non-meta dispatch rule: a null
// "successful" field means a server push (notify the concrete channel's
// listeners, via wildcard dispatch); true means a successful publish ack
// (notify META_PUBLISH); false means a failed publish (notify META_PUBLISH
// and META_UNSUCCESSFUL).
func (s *Session) handleGenericMessage(message Message) {
	ok, present := message.Successful()
	switch {
	case !present:
		s.notifyListeners(message.Channel(), message)
	case ok:
		s.notifyListeners(MetaPublish, message)
	default:
		s.notifyListeners(MetaPublish, message)
		s.notifyListeners(MetaUnsuccessful, message)
	}
}

func (s *Session) handleGenericFailure(message Message, err error) {
	failure := NewFailureMessage(message, err, nil)
	s.notifyListeners(MetaPublish, failure)
	s.notifyListeners(MetaUnsuccessful, failure)
}

// notifyListeners dispatches message to the concrete channel's listeners,
// then to every wildcard ancestor of channel, most-specific to
// least-specific, lazily creating wildcard channels as needed. The channel
// argument passed to every listener is always the original concrete
// channel, never the wildcard it matched through.
func (s *Session) notifyListeners(channel ChannelID, message Message) {
	s.GetChannel(channel).notifyListeners(channel, message)
	for _, wild := range channel.Wilds() {
		s.GetChannel(wild).notifyListeners(channel, message)
	}
}

// scheduleDelayedSend cancels any prior scheduled send and arranges for fn
// to run after delay (or immediately, on its own goroutine, if delay is
// zero). At most one delayed send is ever pending.
func (s *Session) scheduleDelayedSend(fn func(), delay time.Duration) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGeneration++
	generation := s.timerGeneration
	s.mu.Unlock()

	if delay <= 0 {
		go fn()
		return
	}

	s.mu.Lock()
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		stale := generation != s.timerGeneration
		s.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
	s.mu.Unlock()
}

func (s *Session) increaseBackoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backoffPeriod += s.backoffPeriodIncrement
	if s.backoffPeriod > s.maximumBackoffPeriod {
		s.backoffPeriod = s.maximumBackoffPeriod
	}
	return s.backoffPeriod
}

func (s *Session) resetBackoff() {
	s.mu.Lock()
	s.backoffPeriod = 0
	s.mu.Unlock()
}

func (s *Session) failQueuedMessages(err error) {
	s.mu.Lock()
	queue := s.messageQueue
	s.messageQueue = nil
	s.mu.Unlock()
	for _, q := range queue {
		s.handleGenericFailure(q.message, err)
	}
}
