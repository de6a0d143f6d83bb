package realtime

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsKindMatchesWrappedErrors(t *testing.T) {
	base := notFoundError("conversation not found")
	wrapped := fmt.Errorf("dispatch: %w", base)

	if !IsKind(wrapped, KindNotFound) {
		t.Error("IsKind must see through wrapping")
	}
	if IsKind(wrapped, KindValidation) {
		t.Error("IsKind matched the wrong kind")
	}
	if IsKind(errors.New("plain"), KindInternal) {
		t.Error("IsKind matched a non-realtime error")
	}
}

func TestErrorPublicHidesCause(t *testing.T) {
	err := internalError("failed to store message", errors.New("pq: connection refused"))
	if err.Public() != "failed to store message" {
		t.Errorf("Public() = %q", err.Public())
	}
	if err.Unwrap() == nil {
		t.Error("cause lost")
	}
}
