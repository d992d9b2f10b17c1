package bayeux

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/silentsound/baiocas/internal/gobayeuxtest"
)

func TestNewClient(t *testing.T) {
	testCases := []struct {
		name          string
		serverAddress string
		shouldErr     bool
	}{
		{"valid url for server address", "https://example.com", false},
		{"invalid url for server address", "http://192.168.0.%31/", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(tc.serverAddress)
			if (err != nil) != tc.shouldErr {
				t.Errorf("NewClient() error = %v, shouldErr = %v", err, tc.shouldErr)
			}
		})
	}
}

func TestClient_SubscribeBeforeStart(t *testing.T) {
	client, err := NewClient("https://example.com", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	// Queues without a running worker; must not block or panic.
	client.Subscribe("/foo/bar", nil)
}

func TestClient_SubscribeAndUnsubscribe(t *testing.T) {
	server := gobayeuxtest.NewServer(t)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("server.Start: %v", err)
	}

	client, err := NewClient(
		"https://example.com",
		WithHTTPTransport(server),
		WithIgnoreError(func(err error) bool { return true }),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	msgs := make(chan []Message)
	errs := client.Start(context.Background())

	done := make(chan error)
	recv := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)

		count := 0
		for {
			select {
			case ms := <-msgs:
				if count == 0 {
					close(recv)
				}
				count += len(ms)
			case err := <-errs:
				done <- err
				return
			case <-time.After(2 * time.Second):
				if count == 0 {
					done <- errAssertf("timeout with no messages received")
				}
				return
			}
		}
	}()

	if err := client.SubscribeWithContext(context.Background(), "/foo/bar", msgs); err != nil {
		t.Fatalf("SubscribeWithContext: %v", err)
	}

	// The subscribe ack reaches the fake server asynchronously, so keep
	// broadcasting until the first delivery is observed instead of
	// racing a single Broadcast call against it.
	broadcasting := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				server.Broadcast("/foo/bar", map[string]interface{}{"hello": "world"})
			case <-broadcasting:
				return
			}
		}
	}()

	select {
	case <-recv:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for first message")
	}
	close(broadcasting)

	client.Unsubscribe("/foo/bar")

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for worker to finish")
	}

	if err := client.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := server.Stop(context.Background()); err != nil {
		t.Fatalf("server.Stop: %v", err)
	}
	wg.Wait()
}

func TestClient_DoubleSubscribeReportsError(t *testing.T) {
	server := gobayeuxtest.NewServer(t)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("server.Start: %v", err)
	}

	client, err := NewClient(
		"https://example.com",
		WithHTTPTransport(server),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	msgs := make(chan []Message)
	errs := client.Start(context.Background())

	client.Subscribe("/foo/bar", msgs)
	client.Subscribe("/foo/bar", msgs)

	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "already subscribed") {
			t.Fatalf("expected a duplicate-subscription error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for duplicate-subscription error")
	}

	if err := client.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := server.Stop(context.Background()); err != nil {
		t.Fatalf("server.Stop: %v", err)
	}
}

func TestClient_SubscribeWithContext_RespectsTimeout(t *testing.T) {
	client, err := NewClient("https://example.com", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	// Fill the request queue to capacity so the next call blocks.
	for i := 0; i < clientRequestQueueSize; i++ {
		client.Subscribe(ChannelID("/fill/"+string(rune('a'+i))), nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)

	if err := client.SubscribeWithContext(ctx, "/foo/bar", nil); err != context.DeadlineExceeded {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestClient_UnsubscribeWithContext_RespectsTimeout(t *testing.T) {
	client, err := NewClient("https://example.com", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	for i := 0; i < clientRequestQueueSize; i++ {
		client.Unsubscribe(ChannelID("/fill/" + string(rune('a'+i))))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)

	if err := client.UnsubscribeWithContext(ctx, "/foo/bar"); err != context.DeadlineExceeded {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestClient_HandshakeErrorSurfacesOnStart(t *testing.T) {
	server := gobayeuxtest.NewServer(t, gobayeuxtest.WithHandshakeError(true))
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("server.Start: %v", err)
	}

	client, err := NewClient("https://example.com", WithHTTPTransport(server))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errs := client.Start(ctx)
	defer client.Disconnect(context.Background())
	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected a handshake error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for handshake error")
	}

	if err := server.Stop(context.Background()); err != nil {
		t.Fatalf("server.Stop: %v", err)
	}
}

type errAssertf string

func (e errAssertf) Error() string { return string(e) }
