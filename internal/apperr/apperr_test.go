package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesKindSentinel(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		target error
	}{
		{"validation", Validation("bad %s", "input"), ErrValidation},
		{"notFound", NotFound("user %q", "u1"), ErrNotFound},
		{"conflict", Conflict("already friends"), ErrConflict},
		{"store", Store("insert message", errors.New("db down")), ErrStore},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("handler: %w", tc.err)
			if !errors.Is(wrapped, tc.target) {
				t.Fatalf("expected %v to match %v", wrapped, tc.target)
			}
			for _, other := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrStore} {
				if other != tc.target && errors.Is(wrapped, other) {
					t.Fatalf("did not expect %v to match %v", wrapped, other)
				}
			}
		})
	}
}

func TestStoreUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Store("accept request", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected store error to unwrap to its cause")
	}
	if err.Error() != "accept request failed: connection reset" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestKindAndMessageOf(t *testing.T) {
	if got := KindOf(Conflict("dup")); got != KindConflict {
		t.Fatalf("expected conflict kind got %s", got)
	}
	if got := KindOf(errors.New("raw")); got != KindStore {
		t.Fatalf("expected unclassified errors to be store kind got %s", got)
	}
	if got := MessageOf(NotFound("user %s not found", "u1")); got != "user u1 not found" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := MessageOf(errors.New("pq: password authentication failed")); got != "internal error" {
		t.Fatalf("expected driver details hidden got %q", got)
	}
}
