package rest

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/labstack/echo/v4"
)

// --------------------------------------------------------------------------
// Parameters
// --------------------------------------------------------------------------

// requireParam returns a form or query parameter that must not be empty
func requireParam(c echo.Context, name string) (string, error) {
	v := c.FormValue(name)
	if v == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "missing parameter "+name)
	}
	return v, nil
}

func boolParam(c echo.Context, name string) (bool, error) {
	v := c.FormValue(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "invalid boolean "+name)
	}
	return b, nil
}

func intParam(c echo.Context, name string, def int64) (int64, error) {
	v := c.FormValue(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid integer "+name)
	}
	return n, nil
}

// ttlParam reads the timeout parameter in seconds. Missing or non-positive values mean no expiry.
func ttlParam(c echo.Context) (time.Duration, error) {
	v := c.FormValue("timeout")
	if v == "" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid timeout")
	}
	if secs <= 0 {
		return 0, nil
	}
	if d := secs * float64(time.Second); d < float64(math.MaxInt64) {
		return time.Duration(d), nil
	}
	return time.Duration(math.MaxInt64), nil
}

// listParam splits a comma separated parameter
func listParam(c echo.Context, name string) ([]string, error) {
	v, err := requireParam(c, name)
	if err != nil {
		return nil, err
	}
	return strings.Split(v, ","), nil
}

// logAsync notes requests that asked for asynchronous handling, they are applied before the response
func logAsync(c echo.Context) {
	if async, _ := boolParam(c, "async"); async {
		Logger.Debugf("async %s %s applied synchronously", c.Request().Method, c.Path())
	}
}

func success(c echo.Context, ok bool) error {
	return c.JSON(http.StatusOK, map[string]bool{"success": ok})
}

// --------------------------------------------------------------------------
// Single entries
// --------------------------------------------------------------------------

// putEntry adds the value, or sets it when update=true
func putEntry(c echo.Context) error {
	key, err := requireParam(c, "key")
	if err != nil {
		return err
	}
	update, err := boolParam(c, "update")
	if err != nil {
		return err
	}
	ttl, err := ttlParam(c)
	if err != nil {
		return err
	}
	logAsync(c)

	value := []byte(c.FormValue("value"))
	s := moduleOf(c).Store
	if update {
		if err := s.Set(key, value, ttl); err != nil {
			return err
		}
		return success(c, true)
	}
	added, err := s.Add(key, value, ttl)
	if err != nil {
		return err
	}
	return success(c, added)
}

func getEntry(c echo.Context) error {
	key, err := requireParam(c, "key")
	if err != nil {
		return err
	}
	value, ok, err := moduleOf(c).Store.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound
	}
	return c.JSON(http.StatusOK, map[string]string{"value": string(value)})
}

func deleteEntry(c echo.Context) error {
	key, err := requireParam(c, "key")
	if err != nil {
		return err
	}
	logAsync(c)
	deleted, err := moduleOf(c).Store.Delete(key)
	if err != nil {
		return err
	}
	if !deleted {
		return errNotFound
	}
	return success(c, true)
}

// --------------------------------------------------------------------------
// Batches
// --------------------------------------------------------------------------

// putEntries adds all values (all or nothing), or sets them when update=true
func putEntries(c echo.Context) error {
	keys, err := listParam(c, "keys")
	if err != nil {
		return err
	}
	values, err := listParam(c, "values")
	if err != nil {
		return err
	}
	update, err := boolParam(c, "update")
	if err != nil {
		return err
	}
	ttl, err := ttlParam(c)
	if err != nil {
		return err
	}
	logAsync(c)

	raw := make([][]byte, len(values))
	for i, v := range values {
		raw[i] = []byte(v)
	}

	s := moduleOf(c).Store
	if update {
		if err := s.MultiSet(keys, raw, ttl); err != nil {
			return err
		}
		return success(c, true)
	}
	added, err := s.MultiAdd(keys, raw, ttl)
	if err != nil {
		return err
	}
	return success(c, added)
}

// getEntries returns the live entries as key -> value, absent keys are omitted
func getEntries(c echo.Context) error {
	keys, err := listParam(c, "keys")
	if err != nil {
		return err
	}
	entries, err := moduleOf(c).Store.MultiGet(keys)
	if err != nil {
		return err
	}
	out := make(map[string]string, len(entries))
	for k, v := range entries {
		out[k] = string(v)
	}
	return c.JSON(http.StatusOK, out)
}

func deleteEntries(c echo.Context) error {
	keys, err := listParam(c, "keys")
	if err != nil {
		return err
	}
	logAsync(c)
	if err := moduleOf(c).Store.MultiDelete(keys); err != nil {
		return err
	}
	return success(c, true)
}

// --------------------------------------------------------------------------
// Counters
// --------------------------------------------------------------------------

// increment applies delta (or value, for older clients) to key, creating it from initial
func increment(c echo.Context) error {
	key, err := requireParam(c, "key")
	if err != nil {
		return err
	}
	deltaName := "delta"
	if c.FormValue(deltaName) == "" {
		deltaName = "value"
	}
	delta, err := intParam(c, deltaName, 1)
	if err != nil {
		return err
	}
	initial, err := intParam(c, "initial", 0)
	if err != nil {
		return err
	}
	logAsync(c)

	n, err := moduleOf(c).Store.Increment(key, delta, initial)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "value": n})
}

// createCounter creates a typed counter if the key is absent
func createCounter(c echo.Context) error {
	key, err := requireParam(c, "key")
	if err != nil {
		return err
	}
	initial, err := intParam(c, "initialValue", 0)
	if err != nil {
		return err
	}
	width, err := store.ParseCounterWidth(c.FormValue("type"))
	if err != nil {
		return err
	}
	created, err := moduleOf(c).Store.CreateCounter(key, initial, width)
	if err != nil {
		return err
	}
	return success(c, created)
}

// incrementCounter increments the counter by one and returns its value and type.
// The type is the width name as accepted on creation, "int" or "long".
func incrementCounter(c echo.Context) error {
	key, err := requireParam(c, "key")
	if err != nil {
		return err
	}
	counter, ok, err := moduleOf(c).Store.IncrementCounter(key, 1)
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound
	}
	return c.JSON(http.StatusOK, map[string]any{"type": counter.Width.String(), "value": counter.Value})
}

func deleteCounter(c echo.Context) error {
	key, err := requireParam(c, "key")
	if err != nil {
		return err
	}
	deleted, err := moduleOf(c).Store.Delete(key)
	if err != nil {
		return err
	}
	return success(c, deleted)
}

// --------------------------------------------------------------------------
// CAS
// --------------------------------------------------------------------------

// gets returns value and version of key. Without a key it runs a CAS round trip on a
// scratch key and reports whether all steps behaved as expected.
func gets(c echo.Context) error {
	s := moduleOf(c).Store
	key := c.FormValue("key")
	if key == "" {
		ok, err := casSelfCheck(s)
		if err != nil {
			return err
		}
		return success(c, ok)
	}

	value, version, ok, err := s.Gets(key)
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound
	}
	return c.JSON(http.StatusOK, map[string]any{"value": string(value), "version": version})
}

func compareAndSwap(c echo.Context) error {
	key, err := requireParam(c, "key")
	if err != nil {
		return err
	}
	raw, err := requireParam(c, "version")
	if err != nil {
		return err
	}
	version, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version")
	}
	ttl, err := ttlParam(c)
	if err != nil {
		return err
	}

	swapped, found, err := moduleOf(c).Store.CompareAndSwap(key, version, []byte(c.FormValue("value")), ttl)
	if err != nil {
		return err
	}
	if !found {
		return errNotFound
	}
	return success(c, swapped)
}

// casSelfCheck writes a scratch key, swaps it with the current version, verifies that the
// stale version is rejected and removes the key again.
func casSelfCheck(s store.IStore) (bool, error) {
	key := "__cas_check_" + strconv.FormatInt(time.Now().UnixNano(), 36)
	defer func() { _, _ = s.Delete(key) }()

	if err := s.Set(key, []byte("a"), time.Minute); err != nil {
		return false, err
	}
	_, version, ok, err := s.Gets(key)
	if err != nil || !ok {
		return false, err
	}
	swapped, _, err := s.CompareAndSwap(key, version, []byte("b"), time.Minute)
	if err != nil || !swapped {
		return false, err
	}
	stale, _, err := s.CompareAndSwap(key, version, []byte("c"), time.Minute)
	if err != nil || stale {
		return false, err
	}
	value, _, err := s.Get(key)
	if err != nil {
		return false, err
	}
	return string(value) == "b", nil
}

// --------------------------------------------------------------------------
// Named caches
// --------------------------------------------------------------------------

func writeCache(c echo.Context) error {
	name, err := requireParam(c, "cache")
	if err != nil {
		return err
	}
	key, err := requireParam(c, "key")
	if err != nil {
		return err
	}
	logAsync(c)
	if err := moduleOf(c).Registry.Write(name, key, []byte(c.FormValue("value"))); err != nil {
		return err
	}
	return success(c, true)
}

func readCache(c echo.Context) error {
	name, err := requireParam(c, "cache")
	if err != nil {
		return err
	}
	key, err := requireParam(c, "key")
	if err != nil {
		return err
	}
	value, ok, err := moduleOf(c).Registry.Read(name, key)
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound
	}
	return c.JSON(http.StatusOK, map[string]string{key: string(value)})
}

func removeCache(c echo.Context) error {
	name, err := requireParam(c, "cache")
	if err != nil {
		return err
	}
	key, err := requireParam(c, "key")
	if err != nil {
		return err
	}
	value, ok, err := moduleOf(c).Registry.Remove(name, key)
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound
	}
	return c.JSON(http.StatusOK, map[string]string{key: string(value)})
}
