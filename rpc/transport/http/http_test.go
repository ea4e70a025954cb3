package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dCache/rpc/common"
)

// newTestServer serves an echo handler that prefixes the body with the shard id
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := &httpServerTransport{}
	st.RegisterHandler(func(shardId uint64, req []byte) []byte {
		return []byte(fmt.Sprintf("%d:%s", shardId, req))
	})
	ts := httptest.NewServer(st.newEcho())
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, endpoints ...string) *httpClientTransport {
	t.Helper()
	ct := &httpClientTransport{}
	if err := ct.Connect(common.ClientConfig{Endpoints: endpoints, TimeoutSecond: 5, RetryCount: 1}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = ct.Close() })
	return ct
}

func TestRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ct := newTestClient(t, ts.URL)

	resp, err := ct.Send(100, []byte("hello"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp) != "100:hello" {
		t.Errorf("expected 100:hello, got %q", resp)
	}

	// an empty body is passed through as well
	resp, err = ct.Send(7, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp) != "7:" {
		t.Errorf("expected 7:, got %q", resp)
	}
}

func TestRoundRobin(t *testing.T) {
	var hits [2]atomic.Int32
	servers := make([]string, 2)
	for i := range servers {
		i := i
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits[i].Add(1)
			_, _ = w.Write([]byte("ok"))
		}))
		t.Cleanup(ts.Close)
		servers[i] = ts.URL
	}

	ct := newTestClient(t, servers...)
	for i := 0; i < 10; i++ {
		if _, err := ct.Send(1, []byte("x")); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if hits[0].Load() != 5 || hits[1].Load() != 5 {
		t.Errorf("expected requests to be spread evenly, got %d and %d", hits[0].Load(), hits[1].Load())
	}
}

func TestInvalidShardID(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/not-a-number", "application/octet-stream", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}

	// the client reports non 200 responses as errors
	ct := newTestClient(t, ts.URL+"/nested")
	if _, err := ct.Send(1, []byte("x")); err == nil {
		t.Error("expected error for unknown route")
	}
}

func TestRetryOnlyUnsentRequests(t *testing.T) {
	var hits atomic.Int32
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(1500 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(slow.Close)

	ct := &httpClientTransport{}
	if err := ct.Connect(common.ClientConfig{Endpoints: []string{slow.URL}, TimeoutSecond: 1, RetryCount: 3}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = ct.Close() })

	if _, err := ct.Send(1, []byte("incr")); err == nil {
		t.Fatal("expected timeout error")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("a timed out request must not be resent, server saw %d requests", n)
	}

	// a refused connection never reached a server and may be retried
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	_, dialErr := http.Get("http://" + addr)
	if dialErr == nil {
		t.Fatal("expected connection error")
	}
	if !retryOnDialError(nil, dialErr) {
		t.Errorf("expected dial error to be retried: %v", dialErr)
	}
	if retryOnDialError(nil, nil) {
		t.Error("successful requests must not be retried")
	}
}

func TestClientNotConnected(t *testing.T) {
	ct := &httpClientTransport{}
	if _, err := ct.Send(1, nil); err == nil {
		t.Error("expected error before Connect")
	}
	if err := ct.Connect(common.ClientConfig{}); err == nil {
		t.Error("expected error without endpoints")
	}
}

func TestListenShutsDownOnCancel(t *testing.T) {
	// reserve a free port
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	st := NewHttpServerTransport()
	st.RegisterHandler(func(shardId uint64, req []byte) []byte { return req })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- st.Listen(ctx, common.ServerConfig{Endpoint: addr})
	}()

	ct := newTestClient(t, addr)
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := ct.Send(1, []byte("ping"))
		if err == nil {
			if string(resp) != "ping" {
				t.Errorf("expected ping, got %q", resp)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected graceful shutdown, got %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}
