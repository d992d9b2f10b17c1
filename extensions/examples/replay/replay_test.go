package replay

import (
	"testing"

	bayeux "github.com/silentsound/baiocas"
)

func TestSendAttachesHandshakeCapability(t *testing.T) {
	e := New(NewMapStore())
	m := bayeux.NewMessage(nil)
	m.SetChannel(bayeux.MetaHandshake)
	e.Send(m)

	ext := m.Ext(false)
	if ext == nil {
		t.Fatal("expected an ext block on the handshake")
	}
	if supported, _ := ext[ExtensionName].(bool); !supported {
		t.Fatalf("expected ext[%q] = true, got %v", ExtensionName, ext[ExtensionName])
	}
}

func TestSendSkipsReplayMapUntilServerConfirmsSupport(t *testing.T) {
	store := NewMapStore()
	store.Set("/foo/bar", 42)
	e := New(store)

	sub := bayeux.NewMessage(nil)
	sub.SetChannel(bayeux.MetaSubscribe)
	e.Send(sub)

	if ext := sub.Ext(false); ext != nil {
		t.Fatalf("expected no replay map before server support is confirmed, got %v", ext)
	}
}

func TestReceiveHandshakeEnablesReplayMap(t *testing.T) {
	store := NewMapStore()
	store.Set("/foo/bar", 42)
	e := New(store)

	handshakeResponse := bayeux.NewMessage(nil)
	handshakeResponse.SetChannel(bayeux.MetaHandshake)
	handshakeResponse.Ext(true)[ExtensionName] = true
	e.Receive(handshakeResponse)

	sub := bayeux.NewMessage(nil)
	sub.SetChannel(bayeux.MetaSubscribe)
	e.Send(sub)

	ext := sub.Ext(false)
	if ext == nil {
		t.Fatal("expected a replay map after server support is confirmed")
	}
	ids, ok := ext[ExtensionName].(map[string]int)
	if !ok || ids["/foo/bar"] != 42 {
		t.Fatalf("expected the stored replay id to be attached, got %v", ext[ExtensionName])
	}
}

func TestReceiveUnsubscribeForgetsChannel(t *testing.T) {
	store := NewMapStore()
	store.Set("/foo/bar", 42)
	e := New(store)

	unsub := bayeux.NewMessage(nil)
	unsub.SetChannel(bayeux.MetaUnsubscribe)
	unsub.SetSubscription("/foo/bar")
	e.Receive(unsub)

	if _, ok := store.Get("/foo/bar"); ok {
		t.Fatal("expected the replay id to be forgotten after unsubscribe")
	}
}

func TestReceiveBroadcastRecordsReplayID(t *testing.T) {
	store := NewMapStore()
	e := New(store)

	m := bayeux.NewMessage(nil)
	m.SetChannel("/foo/bar")
	m.SetData(`{"data":"{\"event\":{\"replayId\":7}}"}`)
	e.Receive(m)

	got, ok := store.Get("/foo/bar")
	if !ok || got != 7 {
		t.Fatalf("expected replay id 7 to be recorded, got %v (ok=%v)", got, ok)
	}
}

func TestMapStore(t *testing.T) {
	s := NewMapStore()
	if _, ok := s.Get("/x"); ok {
		t.Fatal("expected no entry in an empty store")
	}
	s.Set("/x", 1)
	if got, ok := s.Get("/x"); !ok || got != 1 {
		t.Fatalf("expected 1, got %v (ok=%v)", got, ok)
	}
	m := s.AsMap()
	if m["/x"] != 1 {
		t.Fatalf("expected AsMap to reflect the stored value, got %v", m)
	}
	s.Delete("/x")
	if _, ok := s.Get("/x"); ok {
		t.Fatal("expected the entry to be gone after Delete")
	}
}
