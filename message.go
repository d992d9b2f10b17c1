package bayeux

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Canonical Bayeux message field names.
const (
	FieldChannel                  = "channel"
	FieldClientID                 = "clientId"
	FieldID                       = "id"
	FieldData                     = "data"
	FieldSuccessful               = "successful"
	FieldAdvice                   = "advice"
	FieldExt                      = "ext"
	FieldError                    = "error"
	FieldSubscription             = "subscription"
	FieldConnectionType           = "connectionType"
	FieldSupportedConnectionTypes = "supportedConnectionTypes"
	FieldMinimumVersion           = "minimumVersion"
	FieldVersion                  = "version"
	FieldTimeout                  = "timeout"
	FieldInterval                 = "interval"
	FieldReconnect                = "reconnect"
	FieldTimestamp                = "timestamp"

	// non-wire, internal bookkeeping fields carried on FailureMessage.
	fieldException = "exception"
	fieldRequest   = "request"
)

// Message is a Bayeux protocol message: a mapping from canonical field
// names to arbitrary JSON-compatible values, with a thin typed accessor
// layer over the well-known fields. Unknown fields round-trip through
// JSON untouched.
type Message map[string]interface{}

// NewMessage builds a Message from a set of fields, canonicalizing the
// channel field if present.
func NewMessage(fields map[string]interface{}) Message {
	m := make(Message, len(fields))
	for k, v := range fields {
		m.Set(k, v)
	}
	return m
}

// Set assigns a field, routing "channel" and "subscription" through
// ChannelID canonicalization.
func (m Message) Set(key string, value interface{}) {
	switch key {
	case FieldChannel, FieldSubscription:
		if id, err := ConvertChannelID(value); err == nil {
			m[key] = id
			return
		}
	}
	m[key] = value
}

// Get returns the raw value stored under key, and whether it was present.
func (m Message) Get(key string) (interface{}, bool) {
	v, ok := m[key]
	return v, ok
}

// Channel returns the message's channel field, canonicalized to a
// ChannelID.
func (m Message) Channel() ChannelID {
	id, _ := ConvertChannelID(m[FieldChannel])
	return id
}

// SetChannel sets the message's channel field.
func (m Message) SetChannel(id ChannelID) { m[FieldChannel] = id }

// ClientID returns the message's clientId field, or "" if absent.
func (m Message) ClientID() string { return stringField(m, FieldClientID) }

// SetClientID sets the message's clientId field.
func (m Message) SetClientID(id string) { m[FieldClientID] = id }

// ID returns the message's id field, or "" if absent.
func (m Message) ID() string { return stringField(m, FieldID) }

// SetID sets the message's id field.
func (m Message) SetID(id string) { m[FieldID] = id }

// Data returns the message's data payload, or nil if absent.
func (m Message) Data() interface{} { return m[FieldData] }

// SetData sets the message's data payload.
func (m Message) SetData(data interface{}) { m[FieldData] = data }

// HasData reports whether the message carries a non-empty data payload.
func (m Message) HasData() bool {
	v, ok := m[FieldData]
	if !ok || v == nil {
		return false
	}
	switch d := v.(type) {
	case string:
		return d != ""
	case map[string]interface{}:
		return len(d) > 0
	case []interface{}:
		return len(d) > 0
	default:
		return true
	}
}

// Successful returns the message's successful field and whether it was
// present at all (server pushes omit it entirely).
func (m Message) Successful() (ok bool, present bool) {
	v, present := m[FieldSuccessful]
	if !present || v == nil {
		return false, false
	}
	b, _ := v.(bool)
	return b, true
}

// SetSuccessful sets the message's successful field.
func (m Message) SetSuccessful(ok bool) { m[FieldSuccessful] = ok }

// Failure reports whether the message represents a failed operation, i.e.
// successful is present and false.
func (m Message) Failure() bool {
	ok, present := m.Successful()
	return present && !ok
}

// Advice returns the message's advice field, or nil if absent.
func (m Message) Advice() *Advice {
	v, ok := m[FieldAdvice]
	if !ok {
		return nil
	}
	switch a := v.(type) {
	case *Advice:
		return a
	case Advice:
		return &a
	case map[string]interface{}:
		advice := adviceFromMap(a)
		return &advice
	default:
		return nil
	}
}

// SetAdvice sets the message's advice field.
func (m Message) SetAdvice(a Advice) { m[FieldAdvice] = a }

// Ext returns the message's ext map, lazily initializing it in place when
// create is true and it is currently absent.
func (m Message) Ext(create bool) map[string]interface{} {
	v, ok := m[FieldExt]
	if ok {
		if ext, ok := v.(map[string]interface{}); ok {
			return ext
		}
	}
	if !create {
		return nil
	}
	ext := make(map[string]interface{})
	m[FieldExt] = ext
	return ext
}

// Error returns the message's raw error field string.
func (m Message) Error() string { return stringField(m, FieldError) }

// SetError sets the message's error field.
func (m Message) SetError(s string) { m[FieldError] = s }

// Subscription returns the message's subscription field, canonicalized to
// a ChannelID.
func (m Message) Subscription() ChannelID {
	id, _ := ConvertChannelID(m[FieldSubscription])
	return id
}

// SetSubscription sets the message's subscription field.
func (m Message) SetSubscription(id ChannelID) { m[FieldSubscription] = id }

// ConnectionType returns the message's connectionType field.
func (m Message) ConnectionType() string { return stringField(m, FieldConnectionType) }

// SetConnectionType sets the message's connectionType field.
func (m Message) SetConnectionType(s string) { m[FieldConnectionType] = s }

// SupportedConnectionTypes returns the message's supportedConnectionTypes
// field.
func (m Message) SupportedConnectionTypes() []string {
	v, ok := m[FieldSupportedConnectionTypes]
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// SetSupportedConnectionTypes sets the message's supportedConnectionTypes
// field.
func (m Message) SetSupportedConnectionTypes(types []string) {
	m[FieldSupportedConnectionTypes] = types
}

// MinimumVersion returns the message's minimumVersion field.
func (m Message) MinimumVersion() string { return stringField(m, FieldMinimumVersion) }

// SetMinimumVersion sets the message's minimumVersion field.
func (m Message) SetMinimumVersion(v string) { m[FieldMinimumVersion] = v }

// Version returns the message's version field.
func (m Message) Version() string { return stringField(m, FieldVersion) }

// SetVersion sets the message's version field.
func (m Message) SetVersion(v string) { m[FieldVersion] = v }

// Reconnect returns the message's top-level reconnect field, if present
// outside of advice.
func (m Message) Reconnect() string { return stringField(m, FieldReconnect) }

// Timestamp returns the message's timestamp field.
func (m Message) Timestamp() string { return stringField(m, FieldTimestamp) }

// SetTimestamp sets the message's timestamp field.
func (m Message) SetTimestamp(s string) { m[FieldTimestamp] = s }

// Request returns the original Message a FailureMessage wraps, if any.
func (m Message) Request() (Message, bool) {
	v, ok := m[fieldRequest]
	if !ok {
		return nil, false
	}
	req, ok := v.(Message)
	return req, ok
}

// Exception returns the error a FailureMessage wraps, if any.
func (m Message) Exception() error {
	v, ok := m[fieldException]
	if !ok {
		return nil
	}
	err, _ := v.(error)
	return err
}

// Copy returns a shallow copy of the message that shares no top-level map
// with the original.
func (m Message) Copy() Message {
	out := make(Message, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringField(m Message, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// NewFailureMessage builds a FailureMessage: it clones id and channel from
// request, stores request under the "request" field, defaults
// successful=false and advice={reconnect:"none", interval:0}, stores
// exception, and then applies overrides.
func NewFailureMessage(request Message, exception error, overrides map[string]interface{}) Message {
	m := Message{
		FieldSuccessful: false,
		FieldAdvice: Advice{
			Reconnect: AdviceReconnectNone,
			Interval:  0,
		},
	}
	if request != nil {
		if id := request.ID(); id != "" {
			m.SetID(id)
		}
		m.SetChannel(request.Channel())
		m[fieldRequest] = request
	}
	if exception != nil {
		m[fieldException] = exception
	}
	for k, v := range overrides {
		m.Set(k, v)
	}
	return m
}

// MessageError is the decoded form of a Bayeux message's "error" field,
// which is carried on the wire as "<code>:<comma,separated,args>:<message>".
type MessageError struct {
	Code    int
	Args    []string
	Message string
}

// ParseError decodes the message's error field into a MessageError.
func (m Message) ParseError() (MessageError, error) {
	raw := m.Error()
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return MessageError{}, ErrorFieldError{Field: raw}
	}
	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return MessageError{}, ErrorFieldError{Field: raw}
	}
	var args []string
	if parts[1] != "" {
		args = strings.Split(parts[1], ",")
	}
	return MessageError{Code: code, Args: args, Message: parts[2]}, nil
}

func (e MessageError) Error() string {
	return strconv.Itoa(e.Code) + ":" + strings.Join(e.Args, ",") + ":" + e.Message
}

// plainError is a generic error used when a response is unsuccessful but
// carries no usable "error" field to parse.
type plainError string

func (e plainError) Error() string { return string(e) }

// messageError extracts an error from an unsuccessful response message,
// preferring its parsed "error" field and falling back to a generic error
// when that field is absent or malformed.
func messageError(message Message) error {
	if raw := message.Error(); raw != "" {
		if parsed, err := message.ParseError(); err == nil {
			return parsed
		}
		return plainError(raw)
	}
	return plainError("bayeux: unsuccessful response")
}

// FromJSON decodes a JSON-encoded Bayeux payload, which may be either a
// single message object or an array of message objects, into a slice of
// Messages.
func FromJSON(data []byte) ([]Message, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var raw []map[string]interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, MessageUnparsableError{Cause: err}
		}
		out := make([]Message, len(raw))
		for i, fields := range raw {
			out[i] = NewMessage(fields)
		}
		return out, nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, MessageUnparsableError{Cause: err}
	}
	return []Message{NewMessage(fields)}, nil
}

// ToJSON encodes a slice of Messages as a JSON array, the wire form the
// Bayeux protocol always uses for requests.
func ToJSON(msgs []Message) ([]byte, error) {
	encodable := make([]map[string]interface{}, len(msgs))
	for i, m := range msgs {
		encodable[i] = map[string]interface{}(m)
	}
	return json.Marshal(encodable)
}
