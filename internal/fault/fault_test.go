package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf_Sentinels(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{ErrRejected, Rejected},
		{ErrRateLimited, RateLimited},
		{fmt.Errorf("call refused: %w", ErrRejected), Rejected},
		{fmt.Errorf("shed: %w", ErrRateLimited), RateLimited},
		{errors.New("unrelated"), ""},
		{&ConfigError{Field: "attempts", Reason: "must be positive"}, Config},
		{&TimerStateError{Name: "call", Op: "stop"}, TimerState},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Errorf("CodeOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestConfigError_Message(t *testing.T) {
	err := &ConfigError{Field: "capacity", Reason: "must be positive"}
	want := "invalid configuration: capacity: must be positive"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTimerStateError_Message(t *testing.T) {
	err := &TimerStateError{Name: "render", Op: "start"}
	if err.Error() != `timer "render": illegal start` {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestCodeOf_WrappedTypedError(t *testing.T) {
	inner := &ConfigError{Field: "attempts", Reason: "must be positive"}
	wrapped := fmt.Errorf("building executor: %w", inner)
	if got := CodeOf(wrapped); got != Config {
		t.Fatalf("CodeOf(wrapped) = %q, want %q", got, Config)
	}

	var ce *ConfigError
	if !errors.As(wrapped, &ce) {
		t.Fatal("expected errors.As to find ConfigError")
	}
}
