package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSONBase(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrNotFound.WriteJSON(rec)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}

	var decoded BridgeError
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if decoded.Code != http.StatusNotFound || decoded.Message != "Not Found" {
		t.Errorf("unexpected body: %+v", decoded)
	}
}

func TestWriteJSONWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrBadRequest.WithDetails("missing groupId").WriteJSON(rec)

	var decoded BridgeError
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if decoded.Details != "missing groupId" {
		t.Errorf("expected details to survive serialization, got %+v", decoded)
	}
}

func TestWrapUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	wrapped := Wrap(inner, http.StatusInternalServerError, "store query failed")

	if !errors.Is(wrapped, inner) {
		t.Error("expected errors.Is to find the wrapped error")
	}
	if wrapped.Error() != "store query failed: connection refused" {
		t.Errorf("unexpected Error(): %s", wrapped.Error())
	}
}

func TestIsBridgeError(t *testing.T) {
	if _, ok := IsBridgeError(errors.New("plain")); ok {
		t.Error("plain error should not be a BridgeError")
	}
	if be, ok := IsBridgeError(ErrUnauthorized); !ok || be.Code != http.StatusUnauthorized {
		t.Error("expected ErrUnauthorized to be recognized")
	}
}
