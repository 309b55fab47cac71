package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("assign employee: %w", New(KindConflict, "AssignEmployee", "employee e1 is booked"))

	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Expected %v to match ErrConflict", err)
	}
	if errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected %v not to match ErrInvalidTransition", err)
	}
	if KindOf(err) != KindConflict {
		t.Errorf("Expected kind %s, got %s", KindConflict, KindOf(err))
	}
	if MessageOf(err) != "employee e1 is booked" {
		t.Errorf("Unexpected message %q", MessageOf(err))
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if KindOf(nil) != "" {
		t.Errorf("Expected empty kind for nil")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Errorf("Expected internal kind for a plain error")
	}
}

func TestHTTPStatusRoundTrip(t *testing.T) {
	kinds := []Kind{
		KindInvalidTransition, KindValidationFailed, KindUnauthorized,
		KindForbidden, KindNotFound, KindTransportUnavailable, KindUnknown,
	}
	for _, kind := range kinds {
		if got := KindFromStatus(HTTPStatus(kind)); got != kind {
			t.Errorf("Kind %s: expected round trip, got %s", kind, got)
		}
	}
	if HTTPStatus(KindDuplicateRequest) != http.StatusConflict {
		t.Errorf("Expected duplicate request to map to 409")
	}
}
