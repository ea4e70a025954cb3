package http

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dCache/rpc/common"
	"github.com/ValentinKolb/dCache/rpc/transport"
	"github.com/go-resty/resty/v2"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	endpoints []string
	client    *resty.Client
	counter   atomic.Uint32
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("http transport needs at least one endpoint")
	}

	endpoints := make([]string, 0, len(config.Endpoints))
	for _, endpoint := range config.Endpoints {
		endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
		if endpoint == "" {
			continue
		}
		if !strings.Contains(endpoint, "://") {
			endpoint = "http://" + endpoint
		}
		endpoints = append(endpoints, endpoint)
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("http transport needs at least one endpoint")
	}

	client := resty.New().
		SetHeader("Content-Type", "application/octet-stream").
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(50 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(retryOnDialError)
	if config.TimeoutSecond > 0 {
		client.SetTimeout(time.Duration(config.TimeoutSecond) * time.Second)
	}

	t.client = client
	t.endpoints = endpoints
	t.counter.Store(0)
	return nil
}

func (t *httpClientTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	if t.client == nil {
		return nil, fmt.Errorf("http transport not initialized")
	}

	// Select the next server via round-robin
	idx := t.counter.Add(1) % uint32(len(t.endpoints))
	requestURL := fmt.Sprintf("%s/%d", t.endpoints[idx], shardId)

	if req == nil {
		req = []byte{}
	}

	resp, err := t.client.R().
		SetBody(req).
		Post(requestURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("http error: %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}
	return resp.Body(), nil
}

func (t *httpClientTransport) Close() error {
	if t.client != nil {
		t.client.GetClient().CloseIdleConnections()
	}
	t.client = nil
	t.endpoints = nil
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// retryOnDialError only retries requests that never reached a server.
// Messages are not idempotent (incr, add, ...), so a request that may have been
// applied is never sent a second time.
func retryOnDialError(_ *resty.Response, err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
