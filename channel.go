package bayeux

import (
	"reflect"
	"sync"
)

// Channel is owned exclusively by a Session, keyed by ChannelID. It holds
// two ordered listener sequences — general listeners and subscriptions —
// and is created lazily on first lookup; channels are never destroyed.
type Channel struct {
	session *Session
	id      ChannelID

	mu             sync.Mutex
	nextListenerID int
	listeners      []channelListener
	subscriptions  []channelListener
}

func newChannel(session *Session, id ChannelID) *Channel {
	return &Channel{session: session, id: id}
}

// ID returns the channel's ChannelID.
func (c *Channel) ID() ChannelID { return c.id }

// AddListener registers fn as a general listener on this channel and
// returns its listener id.
func (c *Channel) AddListener(fn ChannelListenerFunc, extraArgs []interface{}, extraKwargs map[string]interface{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextListenerID++
	id := c.nextListenerID
	c.listeners = append(c.listeners, channelListener{
		id: id, fn: fn, extraArgs: extraArgs, extraKwargs: extraKwargs,
	})
	return id
}

// RemoveListener removes a general listener by id (first match) or by
// function identity (all matches). Exactly one of id or fn must be
// non-nil. It reports whether anything was removed.
func (c *Channel) RemoveListener(id *int, fn ChannelListenerFunc) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining, removed, err := removeListeners(c.listeners, id, fn)
	if err != nil {
		return false, err
	}
	c.listeners = remaining
	return removed, nil
}

// ClearListeners removes all general listeners.
func (c *Channel) ClearListeners() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = nil
}

// ClearSubscriptions removes all subscriptions without sending a
// META_UNSUBSCRIBE; intended for session-level teardown (e.g. a fresh
// handshake), not for application-initiated unsubscribe.
func (c *Channel) ClearSubscriptions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions = nil
}

// Subscribe adds fn to this channel's subscriptions and returns its
// listener id. If this is the first subscription on the channel, a
// META_SUBSCRIBE message is sent first; if that send fails the
// subscription is not added.
func (c *Channel) Subscribe(fn ChannelListenerFunc, extraArgs []interface{}, extraKwargs map[string]interface{}, properties map[string]interface{}) (int, error) {
	c.mu.Lock()
	first := len(c.subscriptions) == 0
	c.mu.Unlock()

	if first {
		msg := NewMessage(properties)
		msg.SetChannel(MetaSubscribe)
		msg.SetSubscription(c.id)
		if err := c.session.Send(msg); err != nil {
			return 0, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextListenerID++
	id := c.nextListenerID
	c.subscriptions = append(c.subscriptions, channelListener{
		id: id, fn: fn, extraArgs: extraArgs, extraKwargs: extraKwargs,
	})
	return id, nil
}

// Unsubscribe removes a subscription by id or function identity, mirroring
// RemoveListener. If subscriptions become empty as a result, a
// META_UNSUBSCRIBE message is sent.
func (c *Channel) Unsubscribe(id *int, fn ChannelListenerFunc, properties map[string]interface{}) (bool, error) {
	c.mu.Lock()
	remaining, removed, err := removeListeners(c.subscriptions, id, fn)
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	c.subscriptions = remaining
	empty := len(c.subscriptions) == 0
	c.mu.Unlock()

	if removed && empty {
		msg := NewMessage(properties)
		msg.SetChannel(MetaUnsubscribe)
		msg.SetSubscription(c.id)
		if err := c.session.Send(msg); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Publish sends a Message carrying data on this channel via the owning
// Session.
func (c *Channel) Publish(data interface{}, properties map[string]interface{}) error {
	msg := NewMessage(properties)
	msg.SetChannel(c.id)
	msg.SetData(data)
	return c.session.Send(msg)
}

// notifyListeners invokes this channel's listeners with the given
// (possibly more specific) concrete channel and message, then — only if
// message carries non-empty data — invokes its subscriptions too.
// Listener panics are recovered and reported via the session's event bus
// as EventListenerException; they never interrupt iteration.
func (c *Channel) notifyListeners(channel ChannelID, message Message) {
	c.mu.Lock()
	listeners := append([]channelListener(nil), c.listeners...)
	var subscriptions []channelListener
	if message.HasData() {
		subscriptions = append([]channelListener(nil), c.subscriptions...)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		c.invoke(l, channel, message)
	}
	for _, l := range subscriptions {
		c.invoke(l, channel, message)
	}
}

func (c *Channel) invoke(l channelListener, channel ChannelID, message Message) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = panicError{value: r}
			}
			c.session.fireListenerException(l, message, err)
		}
	}()
	l.fn(channel, message, l.extraArgs, l.extraKwargs)
}

// removeListeners implements the shared removeListener/unsubscribe
// selector rule: exactly one of id/fn must be provided. Removal by id
// removes the first match; removal by function identity removes all
// matches. Function identity is compared by code pointer, since Go
// function values only compare equal to nil.
func removeListeners(listeners []channelListener, id *int, fn ChannelListenerFunc) (remaining []channelListener, removed bool, err error) {
	if (id == nil) == (fn == nil) {
		return listeners, false, errInvalidSelector{op: "removeListener"}
	}
	if id != nil {
		out := make([]channelListener, 0, len(listeners))
		found := false
		for _, l := range listeners {
			if !found && l.id == *id {
				found = true
				continue
			}
			out = append(out, l)
		}
		return out, found, nil
	}
	out := make([]channelListener, 0, len(listeners))
	found := false
	target := reflect.ValueOf(fn).Pointer()
	for _, l := range listeners {
		if reflect.ValueOf(l.fn).Pointer() == target {
			found = true
			continue
		}
		out = append(out, l)
	}
	return out, found, nil
}

type panicError struct{ value interface{} }

func (p panicError) Error() string {
	if err, ok := p.value.(error); ok {
		return err.Error()
	}
	return "bayeux: listener panic"
}
