package store

import (
	"math"
	"strconv"
	"strings"
)

// CounterWidth is the declared integer width of a counter.
// It is fixed when the counter is created and echoed on every read.
type CounterWidth uint32

const (
	WidthUnset CounterWidth = 0  // plain decimal value, arithmetic uses 64 bit
	Width32    CounterWidth = 32 // "int"
	Width64    CounterWidth = 64 // "long"
)

// ParseCounterWidth accepts the type names used by clients: int, int32, 32, long, int64, 64.
// An empty string selects Width64.
func ParseCounterWidth(s string) (CounterWidth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "int32", "integer", "32":
		return Width32, nil
	case "", "long", "int64", "64":
		return Width64, nil
	default:
		return WidthUnset, Errorf(RetCInvalidArgument, "unknown counter type %q", s)
	}
}

// Effective resolves WidthUnset to Width64
func (w CounterWidth) Effective() CounterWidth {
	if w == Width32 {
		return Width32
	}
	return Width64
}

// Max returns the largest value a counter of this width can hold
func (w CounterWidth) Max() int64 {
	if w == Width32 {
		return math.MaxInt32
	}
	return math.MaxInt64
}

func (w CounterWidth) String() string {
	if w.Effective() == Width32 {
		return "int"
	}
	return "long"
}

// Counter is the result of a typed counter operation
type Counter struct {
	Value int64        `json:"value"`
	Width CounterWidth `json:"width"`
}

// ApplyDelta adds delta to current, clamping the result to [0, w.Max()].
func (w CounterWidth) ApplyDelta(current, delta int64) int64 {
	limit := w.Max()
	if current < 0 {
		current = 0
	}
	if current > limit {
		current = limit
	}

	switch {
	case delta > 0 && current > limit-delta:
		return limit
	case delta < 0 && current+delta < 0:
		// current >= 0 here, so current+delta cannot overflow
		return 0
	default:
		return current + delta
	}
}

// ParseCounterValue decodes a stored counter value.
func ParseCounterValue(raw []byte) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, Errorf(RetCTypeMismatch, "value %q is not an integer", truncate(raw, 32))
	}
	return n, nil
}

// FormatCounterValue encodes a counter value the way plain Get returns it.
func FormatCounterValue(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
