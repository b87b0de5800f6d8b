package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{Conflict("taken"), KindConflict},
		{Unauthorized("nope"), KindUnauthorized},
		{Forbidden("no"), KindForbidden},
		{NotFound("gone"), KindNotFound},
		{BadRequest("bad"), KindBadRequest},
		{Corrupt("mangled", errors.New("cause")), KindCorrupt},
		{Internal("boom", errors.New("cause")), KindInternal},
		{errors.New("plain"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("while saving: %w", Conflict("taken"))
	if KindOf(err) != KindConflict {
		t.Fatalf("wrapped kind lost: %v", KindOf(err))
	}
	if MessageOf(err) != "taken" {
		t.Fatalf("wrapped message lost: %q", MessageOf(err))
	}
}

func TestMessageOfPlainError(t *testing.T) {
	if got := MessageOf(errors.New("raw db failure")); got != "internal error" {
		t.Fatalf("plain error message leaked: %q", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal("save", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable through Unwrap")
	}
}
