package bayeux

import (
	"context"
	"fmt"

	"gopkg.in/tomb.v2"
)

// clientRequestQueueSize bounds how many outstanding Subscribe/Unsubscribe
// calls can be queued before SubscribeWithContext/UnsubscribeWithContext
// start blocking on the caller's context.
const clientRequestQueueSize = 10

type clientRequestKind int

const (
	clientSubscribeRequest clientRequestKind = iota
	clientUnsubscribeRequest
)

type clientRequest struct {
	kind    clientRequestKind
	channel ChannelID
	msgs    chan []Message
}

type clientSubscription struct {
	listenerID int
	internal   chan Message
	done       chan struct{}
}

// Client is a high-level, channel-oriented facade over a Session: Start
// drives the handshake/connect lifecycle on a tomb-supervised background
// goroutine, and Subscribe/Unsubscribe fan incoming messages out to
// per-channel Go channels supplied by the caller, instead of Session's
// listener-callback API.
//
// Subscription bookkeeping (the subs map) is owned exclusively by the
// goroutine started in Start, which is the only thing that ever reads or
// writes it, so it needs no locking of its own.
type Client struct {
	session  *Session
	tomb     *tomb.Tomb
	subs     map[ChannelID]*clientSubscription
	requests chan clientRequest
}

// NewClient builds a Client pointed at serverAddress. opts are the same
// Options accepted by NewSession; a nil Option is ignored, so callers can
// pass one positionally without constructing a slice.
func NewClient(serverAddress string, opts ...Option) (*Client, error) {
	filtered := make([]Option, 0, len(opts))
	for _, opt := range opts {
		if opt != nil {
			filtered = append(filtered, opt)
		}
	}
	session, err := NewSession(serverAddress, filtered...)
	if err != nil {
		return nil, err
	}
	return &Client{
		session:  session,
		subs:     make(map[ChannelID]*clientSubscription),
		requests: make(chan clientRequest, clientRequestQueueSize),
	}, nil
}

// Session returns the underlying Session, for callers that need the
// lower-level listener API alongside Client's channel-oriented one.
func (c *Client) Session() *Session {
	return c.session
}

// Start performs the handshake and begins servicing connects,
// subscriptions, and unsubscriptions on a supervised background
// goroutine. The returned channel receives every connection error not
// swallowed by WithIgnoreError; it is closed once the background
// goroutine exits, because ctx was canceled or Disconnect was called. A
// failed handshake is reported on the channel like any other connection
// error and does not stop the goroutine; the Session retries it as advice
// allows.
func (c *Client) Start(ctx context.Context) <-chan error {
	errs := make(chan error)
	c.tomb = &tomb.Tomb{}

	c.session.GetChannel(MetaUnsuccessful).AddListener(func(channel ChannelID, message Message, extraArgs []interface{}, extraKwargs map[string]interface{}) {
		err := message.Exception()
		if err == nil {
			return
		}
		if c.session.ignoreError != nil && c.session.ignoreError(err) {
			return
		}
		select {
		case errs <- err:
		case <-c.tomb.Dying():
		}
	}, nil, nil)

	c.tomb.Go(func() error {
		if err := c.session.Handshake(nil); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return c.session.Disconnect(true)
			case <-c.tomb.Dying():
				return c.session.Disconnect(true)
			case req := <-c.requests:
				c.service(req, errs)
			}
		}
	})

	go func() {
		defer close(errs)
		if err := c.tomb.Wait(); err != nil {
			select {
			case errs <- err:
			default:
			}
		}
	}()

	return errs
}

func (c *Client) service(req clientRequest, errs chan<- error) {
	var err error
	switch req.kind {
	case clientSubscribeRequest:
		err = c.processSubscribe(req.channel, req.msgs)
	case clientUnsubscribeRequest:
		err = c.processUnsubscribe(req.channel)
	}
	if err == nil {
		return
	}
	select {
	case errs <- err:
	case <-c.tomb.Dying():
	}
}

func (c *Client) processSubscribe(channel ChannelID, msgs chan []Message) error {
	if _, exists := c.subs[channel]; exists {
		return fmt.Errorf("bayeux: channel %q already subscribed", channel)
	}

	internal := make(chan Message, 16)
	done := make(chan struct{})
	listenerID, err := c.session.GetChannel(channel).Subscribe(func(ch ChannelID, message Message, extraArgs []interface{}, extraKwargs map[string]interface{}) {
		select {
		case internal <- message:
		default:
			c.session.log.Warn("client dropped a message, subscriber not keeping up", "channel", string(ch))
		}
	}, nil, nil, nil)
	if err != nil {
		return err
	}

	c.subs[channel] = &clientSubscription{listenerID: listenerID, internal: internal, done: done}
	if msgs != nil {
		go forwardClientMessages(msgs, internal, done)
	}
	return nil
}

func (c *Client) processUnsubscribe(channel ChannelID) error {
	sub, ok := c.subs[channel]
	if !ok {
		return fmt.Errorf("bayeux: channel %q has no subscriptions", channel)
	}
	delete(c.subs, channel)
	close(sub.done)

	_, err := c.session.GetChannel(channel).Unsubscribe(&sub.listenerID, nil, nil)
	return err
}

// forwardClientMessages relays messages delivered to internal, one at a
// time wrapped in a single-element slice, until done is closed.
func forwardClientMessages(out chan []Message, internal chan Message, done chan struct{}) {
	for {
		select {
		case msg := <-internal:
			select {
			case out <- []Message{msg}:
			case <-done:
				return
			}
		case <-done:
			return
		}
	}
}

// Subscribe requests a subscription to channel, with every subsequently
// received message delivered (as a single-element slice) to msgs. The
// request is serviced asynchronously by Start's background goroutine;
// any error (e.g. a duplicate subscription) is reported on the channel
// returned by Start, not returned here. It is safe to call before Start,
// in which case the request simply waits in the queue.
func (c *Client) Subscribe(channel ChannelID, msgs chan []Message) {
	_ = c.SubscribeWithContext(context.Background(), channel, msgs)
}

// SubscribeWithContext is like Subscribe, but returns an error if ctx is
// done before the request could be enqueued (e.g. because Start's
// goroutine isn't consuming requests fast enough).
func (c *Client) SubscribeWithContext(ctx context.Context, channel ChannelID, msgs chan []Message) error {
	select {
	case c.requests <- clientRequest{kind: clientSubscribeRequest, channel: channel, msgs: msgs}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe requests that channel's subscription be torn down. As with
// Subscribe, any error is reported on Start's error channel.
func (c *Client) Unsubscribe(channel ChannelID) {
	_ = c.UnsubscribeWithContext(context.Background(), channel)
}

// UnsubscribeWithContext is the context-aware form of Unsubscribe.
func (c *Client) UnsubscribeWithContext(ctx context.Context, channel ChannelID) error {
	select {
	case c.requests <- clientRequest{kind: clientUnsubscribeRequest, channel: channel}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect sends a META_DISCONNECT, kills the background goroutine, and
// waits for it to exit or for ctx to be done, whichever comes first.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.tomb == nil {
		return c.session.Disconnect(true)
	}
	c.tomb.Kill(nil)
	done := make(chan error, 1)
	go func() { done <- c.tomb.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
