// Package ack implements the Bayeux ack extension: once a handshake
// response shows the server supports acks, every /meta/connect carries
// the last-seen ack id in its ext field, letting the server prune any
// backlog it no longer needs to replay on reconnect.
package ack

import (
	bayeux "github.com/silentsound/baiocas"
)

// ExtensionName is the ext field key both sides use to negotiate and
// carry ack ids.
const ExtensionName = "ack"

// Extension is the client side of the ack extension. A single instance
// is meant to be registered once per Session.
type Extension struct {
	session           *bayeux.Session
	serverSupportsAck bool
	ackID             interface{}
}

// New returns an unregistered Extension.
func New() *Extension {
	return &Extension{}
}

// Register stores session, read at Send time for AckEnabled.
func (e *Extension) Register(session *bayeux.Session) {
	e.session = session
}

// Unregister clears the back-reference to the session.
func (e *Extension) Unregister() {
	e.session = nil
}

// Send stamps the outgoing message's ext.ack: the session's AckEnabled
// setting (and a reset of the ack id) on handshake, or the last-seen ack
// id on every subsequent connect once the server supports acks.
func (e *Extension) Send(message bayeux.Message) bayeux.Message {
	switch message.Channel() {
	case bayeux.MetaHandshake:
		ext := message.Ext(true)
		ext[ExtensionName] = e.session.AckEnabled()
		e.ackID = nil
	case bayeux.MetaConnect:
		if e.serverSupportsAck {
			ext := message.Ext(true)
			ext[ExtensionName] = e.ackID
		}
	}
	return message
}

// Receive records whether the server advertised ack support on the
// handshake response, and tracks the latest ack id on every connect
// response.
func (e *Extension) Receive(message bayeux.Message) bayeux.Message {
	switch message.Channel() {
	case bayeux.MetaHandshake:
		ext := message.Ext(false)
		if ext != nil {
			if supported, ok := ext[ExtensionName].(bool); ok && supported {
				e.serverSupportsAck = true
			}
		}
	case bayeux.MetaConnect:
		ok, present := message.Successful()
		if e.serverSupportsAck && present && ok {
			ext := message.Ext(false)
			if ext != nil {
				if id, ok := ext[ExtensionName]; ok && isInteger(id) {
					e.ackID = id
				}
			}
		}
	}
	return message
}

// isInteger reports whether id decodes to a whole number: either a plain
// Go int (set programmatically, e.g. in tests) or a float64 with no
// fractional part, the shape encoding/json produces for JSON numbers.
func isInteger(id interface{}) bool {
	switch v := id.(type) {
	case int, int64:
		return true
	case float64:
		return v == float64(int64(v))
	default:
		return false
	}
}
