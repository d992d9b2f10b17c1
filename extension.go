package bayeux

// Extension is a pluggable per-message transform applied to every outbound
// and inbound message. Register/Unregister are lifecycle hooks storing a
// back-reference to the owning Session; the reference is non-owning and is
// cleared on Unregister.
//
// Receive/Send may mutate message in place and return it, or return nil to
// drop the message from the pipeline. Panics raised inside an extension
// are recovered by the Session, which fires EventExtensionException with
// (message, error, outgoing) instead of propagating them.
type Extension interface {
	Receive(message Message) Message
	Send(message Message) Message
	Register(session *Session)
	Unregister()
}

// Event bus event names fired by the Session.
const (
	EventExtensionException = "extension_exception"
	EventListenerException  = "listener_exception"
)
