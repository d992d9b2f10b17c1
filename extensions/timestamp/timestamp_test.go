package timestamp

import (
	"testing"
	"time"

	bayeux "github.com/silentsound/baiocas"
)

func TestReceivePassesThrough(t *testing.T) {
	e := New()
	m := bayeux.NewMessage(nil)
	m.SetChannel("/test")
	got := e.Receive(m)
	if got.Timestamp() != "" {
		t.Fatal("receive should not stamp a timestamp")
	}
}

func TestSendStampsRFC1123GMT(t *testing.T) {
	e := New()
	m := bayeux.NewMessage(nil)
	m.SetChannel("/test")
	e.Send(m)

	got := m.Timestamp()
	if got == "" {
		t.Fatal("send should stamp a timestamp")
	}
	if _, err := time.Parse("Mon, 02 Jan 2006 15:04:05 GMT", got); err != nil {
		t.Fatalf("timestamp %q not in expected RFC 1123 GMT form: %v", got, err)
	}
}
