package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrConflict, "agreement changed concurrently").
		WithCause(root).
		WithHTTPStatus(http.StatusConflict)

	if GetErrorCode(err) != ErrConflict {
		t.Fatalf("expected code %s, got %s", ErrConflict, GetErrorCode(err))
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}

	wrapped := fmt.Errorf("approve: %w", err)
	if !IsErrorCode(wrapped, ErrConflict) {
		t.Fatalf("expected wrapped error to keep its code")
	}
	if IsErrorCode(root, ErrConflict) {
		t.Fatalf("plain error must not match a code")
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]int{
		ErrAuthentication: http.StatusUnauthorized,
		ErrForbidden:      http.StatusForbidden,
		ErrNotFound:       http.StatusNotFound,
		ErrInvalidState:   http.StatusConflict,
		ErrConflict:       http.StatusConflict,
		ErrRateLimited:    http.StatusTooManyRequests,
		ErrInternalError:  http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := StatusFor(code); got != want {
			t.Fatalf("StatusFor(%s) = %d, want %d", code, got, want)
		}
	}
}
