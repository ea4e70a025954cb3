package store

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestParseCounterWidth(t *testing.T) {
	tests := []struct {
		in      string
		want    CounterWidth
		wantErr bool
	}{
		{"int", Width32, false},
		{"INT32", Width32, false},
		{"long", Width64, false},
		{"int64", Width64, false},
		{"", Width64, false},
		{"float", WidthUnset, true},
	}
	for _, tt := range tests {
		got, err := ParseCounterWidth(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCounterWidth(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCounterWidth(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestApplyDelta(t *testing.T) {
	tests := []struct {
		width          CounterWidth
		current, delta int64
		want           int64
	}{
		{Width64, 5, 3, 8},
		{Width64, 5, -10, 0},
		{Width64, math.MaxInt64 - 1, 5, math.MaxInt64},
		{Width64, 0, math.MinInt64, 0},
		{Width32, math.MaxInt32, 1, math.MaxInt32},
		{Width32, math.MaxInt64, 0, math.MaxInt32},
		{WidthUnset, -4, 1, 1},
	}
	for _, tt := range tests {
		if got := tt.width.ApplyDelta(tt.current, tt.delta); got != tt.want {
			t.Errorf("%s.ApplyDelta(%d, %d) = %d, want %d", tt.width, tt.current, tt.delta, got, tt.want)
		}
	}
}

func TestParseCounterValue(t *testing.T) {
	if n, err := ParseCounterValue([]byte("42")); err != nil || n != 42 {
		t.Errorf("expected 42, got %d (%v)", n, err)
	}
	_, err := ParseCounterValue([]byte("forty-two"))
	if CodeOf(err) != RetCTypeMismatch {
		t.Errorf("expected type mismatch, got %v", err)
	}
	if string(FormatCounterValue(-7)) != "-7" {
		t.Errorf("unexpected format")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != RetCSuccess {
		t.Errorf("nil should map to success")
	}
	wrapped := fmt.Errorf("context: %w", NewError(RetCNotFound, "gone"))
	if CodeOf(wrapped) != RetCNotFound {
		t.Errorf("wrapped store error should keep its code")
	}
	if CodeOf(errors.New("boom")) != RetCInternalError {
		t.Errorf("foreign errors should map to internal error")
	}
	if NewError(RetCConflict, "x").Error() != "store error (Conflict): x" {
		t.Errorf("unexpected error text %q", NewError(RetCConflict, "x").Error())
	}
}
