package transcriber

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// startedAdapter builds an adapter in the started state with no
// connection, the shape Close leaves behind while buffers are still in
// flight. maxRetries 0 keeps reconnect from dialing out.
func startedAdapter() *DeepgramAdapter {
	a := NewDeepgramAdapter(Config{APIKey: "key", Model: "nova-3"})
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.started = true
	a.maxRetries = 0
	return a
}

func TestSendChunkWithoutConnection(t *testing.T) {
	a := startedAdapter()
	defer a.cancel()

	err := a.SendChunk([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("SendChunk with no connection should return an error")
	}
	if !errors.Is(err, errNoConnection) {
		t.Errorf("SendChunk error = %v, want wrapped no-connection error", err)
	}
}

func TestFinalizeWithoutConnection(t *testing.T) {
	a := startedAdapter()
	defer a.cancel()

	if err := a.Finalize(context.Background()); err != nil {
		t.Errorf("Finalize with no connection = %v, want nil", err)
	}
}

func startEchoServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// Buffers keep arriving through the capture dispatch goroutine while the
// session tears the adapter down; the writes must fail cleanly instead
// of dereferencing a dropped connection.
func TestCloseDuringSendChunk(t *testing.T) {
	srv, wsURL := startEchoServer(t)
	defer srv.Close()

	a := NewDeepgramAdapter(Config{APIKey: "key", Model: "nova-3", Endpoint: wsURL})
	a.maxRetries = 0
	if err := a.Start(context.Background(), "en"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		chunk := make([]byte, 320)
		for i := 0; i < 200; i++ {
			_ = a.SendChunk(chunk)
		}
	}()

	time.Sleep(2 * time.Millisecond)
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	wg.Wait()
}
