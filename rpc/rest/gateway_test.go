package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/lib/db/engines/maple"
	"github.com/ValentinKolb/dCache/lib/registry"
	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/ValentinKolb/dCache/lib/store/lstore"
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func newTestModule(t *testing.T) Module {
	t.Helper()
	factory := func() db.KVDB {
		return maple.NewMapleDB(&maple.DBOptions{NumShards: 4, GCInterval: -1})
	}
	reg := registry.NewRegistry(func(string) store.IStore { return lstore.NewLocalStore(factory) }, registry.Plain())
	if err := reg.Declare("noupdate", registry.AddOnly()); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if err := reg.Declare("expiring", registry.FixedTTL(50*time.Millisecond)); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	m := Module{Store: lstore.NewLocalStore(factory), Registry: reg}
	t.Cleanup(func() {
		_ = m.Store.Close()
		_ = m.Registry.Close()
	})
	return m
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	return NewGateway(map[string]Module{
		"default":  newTestModule(t),
		"module-a": newTestModule(t),
	}, "default", nil)
}

// do sends the parameters as form body for POST and as query otherwise
func do(t *testing.T, g *Gateway, method, path string, params url.Values) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if method == http.MethodPost {
		req = httptest.NewRequest(method, path, strings.NewReader(params.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		target := path
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
		req = httptest.NewRequest(method, target, nil)
	}

	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s %s: invalid json %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, body
}

func expectSuccess(t *testing.T, code int, body map[string]any, want bool) {
	t.Helper()
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", code, body)
	}
	if body["success"] != want {
		t.Errorf("expected success=%v, got %v", want, body)
	}
}

func expectValue(t *testing.T, g *Gateway, path, key, want string) {
	t.Helper()
	code, body := do(t, g, http.MethodGet, path, url.Values{"key": {key}})
	if code != http.StatusOK {
		t.Fatalf("expected 200 for %q, got %d", key, code)
	}
	if body["value"] != want {
		t.Errorf("expected value %q, got %v", want, body["value"])
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestAddAndSet(t *testing.T) {
	g := newTestGateway(t)
	key := "key with /.,';l][/!@#$%^\n&*()_+-= chars"

	code, body := do(t, g, http.MethodPost, "/memcache", url.Values{"key": {key}, "value": {"v1"}})
	expectSuccess(t, code, body, true)
	expectValue(t, g, "/memcache", key, "v1")

	// add on a live key reports false and keeps the value
	code, body = do(t, g, http.MethodPost, "/memcache", url.Values{"key": {key}, "value": {"foo"}, "async": {"true"}})
	expectSuccess(t, code, body, false)
	expectValue(t, g, "/memcache", key, "v1")

	// update=true overwrites
	code, body = do(t, g, http.MethodPost, "/memcache", url.Values{"key": {key}, "value": {"foo"}, "update": {"true"}})
	expectSuccess(t, code, body, true)
	expectValue(t, g, "/memcache", key, "foo")
}

func TestExpiry(t *testing.T) {
	g := newTestGateway(t)

	code, body := do(t, g, http.MethodPost, "/memcache", url.Values{"key": {"k"}, "value": {"v"}, "timeout": {"0.05"}})
	expectSuccess(t, code, body, true)
	expectValue(t, g, "/memcache", "k", "v")

	time.Sleep(100 * time.Millisecond)
	if code, _ := do(t, g, http.MethodGet, "/memcache", url.Values{"key": {"k"}}); code != http.StatusNotFound {
		t.Errorf("expected 404 after expiry, got %d", code)
	}

	// timeouts beyond the representable range behave like a very distant deadline
	for _, timeout := range []string{"9000000000", "1e300"} {
		code, body = do(t, g, http.MethodPost, "/memcache", url.Values{"key": {"far-" + timeout}, "value": {"v"}, "timeout": {timeout}})
		expectSuccess(t, code, body, true)
		expectValue(t, g, "/memcache", "far-"+timeout, "v")

		code, body = do(t, g, http.MethodPost, "/memcache", url.Values{"key": {"far-" + timeout}, "value": {"other"}})
		expectSuccess(t, code, body, false)
	}
}

func TestDelete(t *testing.T) {
	g := newTestGateway(t)
	do(t, g, http.MethodPost, "/memcache", url.Values{"key": {"k"}, "value": {"v"}})

	code, body := do(t, g, http.MethodDelete, "/memcache", url.Values{"key": {"k"}})
	expectSuccess(t, code, body, true)

	if code, _ := do(t, g, http.MethodGet, "/memcache", url.Values{"key": {"k"}}); code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", code)
	}
	if code, _ := do(t, g, http.MethodDelete, "/memcache", url.Values{"key": {"k"}}); code != http.StatusNotFound {
		t.Errorf("expected 404 for second delete, got %d", code)
	}
}

func TestMulti(t *testing.T) {
	g := newTestGateway(t)
	keys := url.Values{"keys": {"a,b"}}

	code, body := do(t, g, http.MethodPost, "/memcache/multi", url.Values{"keys": {"a,b"}, "values": {"1,2"}})
	expectSuccess(t, code, body, true)

	code, body = do(t, g, http.MethodGet, "/memcache/multi", keys)
	if code != http.StatusOK || body["a"] != "1" || body["b"] != "2" {
		t.Fatalf("unexpected multi get %d %v", code, body)
	}

	// all or nothing add
	code, body = do(t, g, http.MethodPost, "/memcache/multi", url.Values{"keys": {"b,c"}, "values": {"x,y"}})
	expectSuccess(t, code, body, false)
	if code, _ := do(t, g, http.MethodGet, "/memcache", url.Values{"key": {"c"}}); code != http.StatusNotFound {
		t.Errorf("failed multi add must not write c, got %d", code)
	}

	code, body = do(t, g, http.MethodPost, "/memcache/multi", url.Values{"keys": {"a,b"}, "values": {"foo,bar"}, "update": {"true"}})
	expectSuccess(t, code, body, true)
	code, body = do(t, g, http.MethodGet, "/memcache/multi", keys)
	if body["a"] != "foo" || body["b"] != "bar" {
		t.Errorf("unexpected values after multi set %v", body)
	}

	code, body = do(t, g, http.MethodDelete, "/memcache/multi", keys)
	expectSuccess(t, code, body, true)
	code, body = do(t, g, http.MethodGet, "/memcache/multi", keys)
	if code != http.StatusOK || len(body) != 0 {
		t.Errorf("expected empty result after multi delete, got %d %v", code, body)
	}

	// mismatched lengths
	if code, _ := do(t, g, http.MethodPost, "/memcache/multi", url.Values{"keys": {"a,b"}, "values": {"1"}}); code != http.StatusBadRequest {
		t.Errorf("expected 400 for mismatched lengths, got %d", code)
	}
}

func TestIncrement(t *testing.T) {
	g := newTestGateway(t)

	code, body := do(t, g, http.MethodGet, "/memcache/incr", url.Values{"key": {"n"}, "value": {"10"}})
	expectSuccess(t, code, body, true)
	expectValue(t, g, "/memcache", "n", "10")

	code, body = do(t, g, http.MethodPost, "/memcache/incr", url.Values{"key": {"n"}, "delta": {"5"}, "async": {"false"}})
	expectSuccess(t, code, body, true)
	if body["value"] != float64(15) {
		t.Errorf("expected 15, got %v", body["value"])
	}

	// clamped at zero
	do(t, g, http.MethodPost, "/memcache/incr", url.Values{"key": {"n"}, "delta": {"-100"}})
	expectValue(t, g, "/memcache", "n", "0")

	// initial value
	do(t, g, http.MethodPost, "/memcache/incr", url.Values{"key": {"m"}, "delta": {"1"}, "initial": {"7"}})
	expectValue(t, g, "/memcache", "m", "8")

	// non numeric value
	do(t, g, http.MethodPost, "/memcache", url.Values{"key": {"s"}, "value": {"abc"}})
	if code, _ := do(t, g, http.MethodPost, "/memcache/incr", url.Values{"key": {"s"}, "delta": {"1"}}); code != http.StatusConflict {
		t.Errorf("expected 409 for non numeric value, got %d", code)
	}
}

func TestCAS(t *testing.T) {
	g := newTestGateway(t)

	code, body := do(t, g, http.MethodGet, "/memcache/cas", nil)
	expectSuccess(t, code, body, true)

	do(t, g, http.MethodPost, "/memcache", url.Values{"key": {"k"}, "value": {"v1"}})
	code, body = do(t, g, http.MethodGet, "/memcache/cas", url.Values{"key": {"k"}})
	if code != http.StatusOK || body["value"] != "v1" {
		t.Fatalf("unexpected gets %d %v", code, body)
	}
	v, _ := body["version"].(float64)
	version := strconv.FormatUint(uint64(v), 10)

	code, body = do(t, g, http.MethodPost, "/memcache/cas", url.Values{"key": {"k"}, "version": {version}, "value": {"v2"}})
	expectSuccess(t, code, body, true)
	code, body = do(t, g, http.MethodPost, "/memcache/cas", url.Values{"key": {"k"}, "version": {version}, "value": {"v3"}})
	expectSuccess(t, code, body, false)
	expectValue(t, g, "/memcache", "k", "v2")

	if code, _ := do(t, g, http.MethodPost, "/memcache/cas", url.Values{"key": {"absent"}, "version": {"1"}, "value": {"x"}}); code != http.StatusNotFound {
		t.Errorf("expected 404 for absent key, got %d", code)
	}
}

func TestCounters(t *testing.T) {
	g := newTestGateway(t)

	code, body := do(t, g, http.MethodPost, "/memcache/counter", url.Values{"key": {"intCounter"}, "initialValue": {"5"}, "type": {"int"}})
	expectSuccess(t, code, body, true)
	code, body = do(t, g, http.MethodGet, "/memcache/counter", url.Values{"key": {"intCounter"}})
	if code != http.StatusOK || body["type"] != "int" || body["value"] != float64(6) {
		t.Errorf("unexpected int counter %d %v", code, body)
	}

	code, body = do(t, g, http.MethodPost, "/memcache/counter", url.Values{"key": {"longCounter"}, "initialValue": {"10"}, "type": {"long"}})
	expectSuccess(t, code, body, true)
	code, body = do(t, g, http.MethodGet, "/memcache/counter", url.Values{"key": {"longCounter"}})
	if code != http.StatusOK || body["type"] != "long" || body["value"] != float64(11) {
		t.Errorf("unexpected long counter %d %v", code, body)
	}

	// second create does not reset
	code, body = do(t, g, http.MethodPost, "/memcache/counter", url.Values{"key": {"intCounter"}, "initialValue": {"0"}, "type": {"int"}})
	expectSuccess(t, code, body, false)

	code, body = do(t, g, http.MethodDelete, "/memcache/counter", url.Values{"key": {"intCounter"}})
	expectSuccess(t, code, body, true)
	if code, _ := do(t, g, http.MethodGet, "/memcache/counter", url.Values{"key": {"intCounter"}}); code != http.StatusNotFound {
		t.Errorf("expected 404 for deleted counter, got %d", code)
	}

	if code, _ := do(t, g, http.MethodPost, "/memcache/counter", url.Values{"key": {"x"}, "type": {"float"}}); code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown type, got %d", code)
	}
}

func TestNamedCaches(t *testing.T) {
	g := newTestGateway(t)
	params := func(cache, key, value string) url.Values {
		return url.Values{"cache": {cache}, "key": {key}, "value": {value}}
	}

	t.Run("Simple", func(t *testing.T) {
		code, body := do(t, g, http.MethodPost, "/memcache/jcache", params("simple", "k", "v"))
		expectSuccess(t, code, body, true)

		code, body = do(t, g, http.MethodGet, "/memcache/jcache", url.Values{"cache": {"simple"}, "key": {"k"}})
		if code != http.StatusOK || body["k"] != "v" {
			t.Errorf("unexpected read %d %v", code, body)
		}
		if code, _ := do(t, g, http.MethodGet, "/memcache/jcache", url.Values{"cache": {"simple"}, "key": {"bogus"}}); code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", code)
		}

		code, body = do(t, g, http.MethodDelete, "/memcache/jcache", url.Values{"cache": {"simple"}, "key": {"k"}})
		if code != http.StatusOK || body["k"] != "v" {
			t.Errorf("unexpected remove %d %v", code, body)
		}
		if code, _ := do(t, g, http.MethodDelete, "/memcache/jcache", url.Values{"cache": {"simple"}, "key": {"k"}}); code != http.StatusNotFound {
			t.Errorf("expected 404 for second remove, got %d", code)
		}
	})

	t.Run("AddOnly", func(t *testing.T) {
		do(t, g, http.MethodPost, "/memcache/jcache", params("noupdate", "k", "v"))
		code, body := do(t, g, http.MethodPost, "/memcache/jcache", params("noupdate", "k", "foo"))
		expectSuccess(t, code, body, true)

		_, body = do(t, g, http.MethodGet, "/memcache/jcache", url.Values{"cache": {"noupdate"}, "key": {"k"}})
		if body["k"] != "v" {
			t.Errorf("add-only cache must keep the first value, got %v", body)
		}
	})

	t.Run("Expiring", func(t *testing.T) {
		do(t, g, http.MethodPost, "/memcache/jcache", params("expiring", "k", "v"))
		if code, _ := do(t, g, http.MethodGet, "/memcache/jcache", url.Values{"cache": {"expiring"}, "key": {"k"}}); code != http.StatusOK {
			t.Fatalf("expected 200 before expiry, got %d", code)
		}
		time.Sleep(100 * time.Millisecond)
		if code, _ := do(t, g, http.MethodGet, "/memcache/jcache", url.Values{"cache": {"expiring"}, "key": {"k"}}); code != http.StatusNotFound {
			t.Errorf("expected 404 after expiry, got %d", code)
		}
	})
}

func TestModuleIsolation(t *testing.T) {
	g := newTestGateway(t)

	do(t, g, http.MethodPost, "/modules/module-a/memcache", url.Values{"key": {"k"}, "value": {"a"}})
	expectValue(t, g, "/modules/module-a/memcache", "k", "a")

	if code, _ := do(t, g, http.MethodGet, "/memcache", url.Values{"key": {"k"}}); code != http.StatusNotFound {
		t.Errorf("default module must not see module-a keys, got %d", code)
	}

	// the explicit default module is the same as /memcache
	do(t, g, http.MethodPost, "/modules/default/memcache", url.Values{"key": {"k"}, "value": {"d"}})
	expectValue(t, g, "/memcache", "k", "d")

	if code, _ := do(t, g, http.MethodGet, "/modules/nope/memcache", url.Values{"key": {"k"}}); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown module, got %d", code)
	}

	code, body := do(t, g, http.MethodGet, "/modules", nil)
	if code != http.StatusOK || body["default_module"] != "default" {
		t.Errorf("unexpected module listing %d %v", code, body)
	}
	if modules, _ := body["modules"].([]any); len(modules) != 2 {
		t.Errorf("expected two modules, got %v", body["modules"])
	}
}

func TestMissingParameters(t *testing.T) {
	g := newTestGateway(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/memcache"},
		{http.MethodPost, "/memcache"},
		{http.MethodGet, "/memcache/multi"},
		{http.MethodPost, "/memcache/incr"},
		{http.MethodPost, "/memcache/cas"},
		{http.MethodGet, "/memcache/jcache"},
	} {
		code, body := do(t, g, tc.method, tc.path, nil)
		if code != http.StatusBadRequest {
			t.Errorf("%s %s: expected 400, got %d", tc.method, tc.path, code)
		}
		if _, ok := body["error"]; !ok {
			t.Errorf("%s %s: expected error body, got %v", tc.method, tc.path, body)
		}
	}
}

func TestMetrics(t *testing.T) {
	g := newTestGateway(t)
	do(t, g, http.MethodGet, "/memcache", url.Values{"key": {"absent"}})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `dcache_rest_requests_total{method="GET",route="/memcache",status="404"} 1`) {
		t.Errorf("expected request counter in output:\n%s", rec.Body.String())
	}
}
