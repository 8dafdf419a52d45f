package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[string]int{
		CodeProviderMismatch: http.StatusBadRequest,
		CodeInvalidModel:     http.StatusBadRequest,
		CodeInvalidRequest:   http.StatusBadRequest,
		CodeTokenExpired:     http.StatusUnauthorized,
		CodeSessionNotFound:  http.StatusNotFound,
		CodeProviderNotFound: http.StatusNotFound,
		CodeSessionExpired:   http.StatusGone,
		CodeRateLimited:      http.StatusTooManyRequests,
		CodeProviderError:    http.StatusBadGateway,
		CodeProviderTimeout:  http.StatusGatewayTimeout,
		"SOMETHING_ELSE":     http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := HTTPStatus(code); got != want {
			t.Fatalf("%s: got %d want %d", code, got, want)
		}
	}
}

func TestAsThroughWrapping(t *testing.T) {
	base := errors.New("exit status 1")
	err := fmt.Errorf("chat: %w", ProviderError("claude", "CLI failed", base))
	e, ok := As(err)
	if !ok || e.Code != CodeProviderError {
		t.Fatalf("expected provider error, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("cause should be reachable")
	}
	if CodeOf(errors.New("plain")) != CodeInternal {
		t.Fatalf("plain errors map to internal")
	}
}

func TestDetails(t *testing.T) {
	e := ProviderTimeout("gemini", 90*time.Second)
	if e.Details["timeout_seconds"] != 90 {
		t.Fatalf("details = %v", e.Details)
	}
	if InvalidRequest("x").Details == nil {
		t.Fatalf("details should never be nil")
	}
}
