// Package timestamp implements the Bayeux timestamp extension: every
// outgoing message is stamped with an RFC 1123 (GMT) send time, useful
// for server-side request logging and clock-skew diagnostics.
package timestamp

import (
	"time"

	bayeux "github.com/silentsound/baiocas"
)

// Extension stamps every outgoing message's timestamp field. It carries
// no state and a single instance may be shared, though each Session
// should register its own.
type Extension struct{}

// New returns an Extension.
func New() *Extension {
	return &Extension{}
}

// Register is a no-op; the extension needs no back-reference to the
// session.
func (e *Extension) Register(session *bayeux.Session) {}

// Unregister is a no-op.
func (e *Extension) Unregister() {}

// Send stamps the message's timestamp field with the current time in
// RFC 1123 GMT form, e.g. "Mon, 02 Jan 2006 15:04:05 GMT".
func (e *Extension) Send(message bayeux.Message) bayeux.Message {
	message.SetTimestamp(time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"))
	return message
}

// Receive passes incoming messages through unchanged.
func (e *Extension) Receive(message bayeux.Message) bayeux.Message {
	return message
}
