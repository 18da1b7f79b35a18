package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]error{
		"invalid_id":         InvalidID,
		"config_conflict":    ConfigConflict,
		"released":           Released,
		"oversized_transfer": Oversized,
		"empty_transfer":     EmptyTransfer,
		"hardware_failure":   HardwareFailure,
		"timeout":            Timeout,
		"invalid_params":     InvalidParams,
		"unsupported":        Unsupported,
		"error":              Error,
	}
	for want, e := range cases {
		if e == nil || e.Error() != want {
			t.Fatalf("error %q mismatch: got %#v", want, e)
		}
	}
}

func TestOf(t *testing.T) {
	cause := errors.New("nack")
	wrapped := fmt.Errorf("send uart1: %w", &E{C: HardwareFailure, Op: "send", Err: cause})

	tests := []struct {
		err  error
		want Code
	}{
		{nil, OK},
		{InvalidID, InvalidID},
		{fmt.Errorf("get: %w", ConfigConflict), ConfigConflict},
		{wrapped, HardwareFailure},
		{cause, Error},
		{&E{C: HardwareFailure, Err: Released}, HardwareFailure},
		{fmt.Errorf("recv: %w", &E{C: Timeout, Err: &E{C: InvalidParams}}), Timeout},
	}
	for _, tc := range tests {
		if got := Of(tc.err); got != tc.want {
			t.Errorf("Of(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error lost its cause")
	}
	if !errors.Is(wrapped, HardwareFailure) {
		t.Error("errors.Is did not match the wrapped code")
	}
}

func TestWrapAndMapDriverErr(t *testing.T) {
	if Wrap(HardwareFailure, "send", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	err := Wrap(HardwareFailure, "send", errors.New("bus stuck"))
	if got, want := err.Error(), "send: hardware_failure: bus stuck"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if got := MapDriverErr(nil); got != OK {
		t.Errorf("MapDriverErr(nil) = %q", got)
	}
	if got := MapDriverErr(errors.New("boom")); got != HardwareFailure {
		t.Errorf("MapDriverErr(plain) = %q", got)
	}
	for _, err := range []error{Timeout, Wrap(Timeout, "recv", errors.New("idle line"))} {
		if got := MapDriverErr(err); got != Timeout {
			t.Errorf("MapDriverErr(%v) = %q, want timeout", err, got)
		}
	}
	for _, err := range []error{Released, InvalidID, InvalidParams, &E{C: Unsupported, Op: "init"}} {
		if got := MapDriverErr(err); got != HardwareFailure {
			t.Errorf("MapDriverErr(%v) = %q, want hardware_failure", err, got)
		}
	}
}
