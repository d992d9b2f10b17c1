// Package replay implements the CometD/Salesforce replay extension, which
// lets a client resume a subscription from the last event ID it saw instead
// of only ever receiving events published after it (re)connects.
package replay

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	bayeux "github.com/silentsound/baiocas"
)

const (
	// ExtensionName is the ext key both client and server use to negotiate
	// and carry replay IDs.
	ExtensionName string = "replay"
	eventKey      string = "event"
	replayIDKey   string = "replayId"
)

const (
	unsupported int32 = iota
	supported
)

// IDStore tracks the last replay ID observed per channel.
type IDStore interface {
	Set(channel bayeux.ChannelID, replayID int)
	Get(channel bayeux.ChannelID) (int, bool)
	Delete(channel bayeux.ChannelID)
	AsMap() map[string]int
}

// Extension negotiates replay support during handshake and, once the
// server confirms support, attaches the stored replay IDs to every
// subscribe request so the server knows where to resume each channel.
type Extension struct {
	supportedByServer int32
	store             IDStore
}

// New builds an Extension backed by store.
func New(store IDStore) *Extension {
	return &Extension{store: store}
}

// Send implements Extension.
func (e *Extension) Send(message bayeux.Message) bayeux.Message {
	switch message.Channel() {
	case bayeux.MetaHandshake:
		message.Ext(true)[ExtensionName] = true
	case bayeux.MetaSubscribe:
		if e.isSupported() {
			message.Ext(true)[ExtensionName] = e.store.AsMap()
		}
	}
	return message
}

// Receive implements Extension.
func (e *Extension) Receive(message bayeux.Message) bayeux.Message {
	switch message.Channel() {
	case bayeux.MetaHandshake:
		if ext := message.Ext(false); ext != nil {
			if ok, _ := ext[ExtensionName].(bool); ok {
				atomic.CompareAndSwapInt32(&e.supportedByServer, unsupported, supported)
			}
		}
	case bayeux.MetaUnsubscribe:
		e.store.Delete(message.Subscription())
	default:
		if !message.Channel().IsMeta() {
			e.recordReplayID(message)
		}
	}
	return message
}

// Register implements Extension.
func (*Extension) Register(*bayeux.Session) {}

// Unregister implements Extension.
func (*Extension) Unregister() {}

func (e *Extension) recordReplayID(message bayeux.Message) {
	raw, ok := message.Data().(string)
	if !ok {
		return
	}
	var payload messageData
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return
	}
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(payload.Data), &fields); err != nil {
		return
	}
	event, ok := fields[eventKey].(map[string]interface{})
	if !ok {
		return
	}
	replayID, ok := event[replayIDKey].(float64)
	if !ok {
		return
	}
	e.store.Set(message.Channel(), int(replayID))
}

func (e *Extension) isSupported() bool {
	return atomic.LoadInt32(&e.supportedByServer) == supported
}

// messageData is the binary-data envelope CometD wraps event payloads in.
// See https://docs.cometd.org/current/reference/#_concepts_binary_data.
type messageData struct {
	Data string            `json:"data,omitempty"`
	Last bool              `json:"last,omitempty"`
	Meta map[string]string `json:"meta,omitempty"`
}

// MapStore is an in-memory IDStore guarded by a RWMutex.
type MapStore struct {
	mu    sync.RWMutex
	store map[bayeux.ChannelID]int
}

// NewMapStore builds an empty MapStore.
func NewMapStore() *MapStore {
	return &MapStore{store: make(map[bayeux.ChannelID]int)}
}

// Set implements IDStore.
func (s *MapStore) Set(channel bayeux.ChannelID, replayID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[channel] = replayID
}

// Get implements IDStore.
func (s *MapStore) Get(channel bayeux.ChannelID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	replayID, ok := s.store[channel]
	return replayID, ok
}

// Delete implements IDStore.
func (s *MapStore) Delete(channel bayeux.ChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, channel)
}

// AsMap implements IDStore.
func (s *MapStore) AsMap() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.store))
	for k, v := range s.store {
		out[string(k)] = v
	}
	return out
}
