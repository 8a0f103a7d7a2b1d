package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{name: "message only", err: &AppError{Code: ErrCodeNotFound, Message: "export not found"}, want: "export not found"},
		{
			name: "with cause",
			err:  &AppError{Code: ErrCodeInternal, Message: "upload failed", Cause: errors.New("connection reset")},
			want: "upload failed: connection reset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(cause, ErrCodeInternal, "wrapped")
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestWrap_NilError(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "nothing"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		wantCode ErrorCode
		wantMsg  string
	}{
		{name: "not found", err: NotFoundf("export %s not found", "csv-1"), wantCode: ErrCodeNotFound, wantMsg: "export csv-1 not found"},
		{name: "validation", err: Validation("bad email"), wantCode: ErrCodeValidation, wantMsg: "bad email"},
		{name: "unprocessable", err: Unprocessablef("format %q is not supported", "pdf"), wantCode: ErrCodeUnprocessable, wantMsg: `format "pdf" is not supported`},
		{name: "internal", err: Internalf("boom %d", 1), wantCode: ErrCodeInternal, wantMsg: "boom 1"},
		{name: "wrapf", err: Wrapf(errors.New("x"), ErrCodeUnavailable, "redis %s", "down"), wantCode: ErrCodeUnavailable, wantMsg: "redis down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("code = %v, want %v", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", tt.err.Message, tt.wantMsg)
			}
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("email", "invalid address")
	if err.Field != "email" || !IsValidation(err) {
		t.Errorf("ValidationField() = %+v", err)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NotFoundf("x"), http.StatusNotFound},
		{Validation("x"), http.StatusBadRequest},
		{Unprocessablef("x"), http.StatusUnprocessableEntity},
		{&AppError{Code: ErrCodeConflict}, http.StatusConflict},
		{&AppError{Code: ErrCodeForeignKey}, http.StatusConflict},
		{&AppError{Code: ErrCodeUnavailable}, http.StatusServiceUnavailable},
		{&AppError{Code: ErrCodeTimeout}, http.StatusGatewayTimeout},
		{&AppError{Code: ErrCodeUpstream}, http.StatusBadGateway},
		{Upstream(http.StatusForbidden, "application/json", []byte(`{}`)), http.StatusForbidden},
		{Internalf("x"), http.StatusInternalServerError},
		{&AppError{Code: "mystery"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err.Code, got, tt.want)
		}
	}
}

func TestUpstream(t *testing.T) {
	err := Upstream(http.StatusBadRequest, "application/json", []byte(`{"error":"bad filter"}`))
	if err.Code != ErrCodeUpstream || string(err.Body) != `{"error":"bad filter"}` || err.ContentType != "application/json" {
		t.Errorf("Upstream() = %+v", err)
	}
}

func TestPredicatesAndGetCode(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", NotFoundf("export missing"))
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should see through wrapping")
	}
	if IsValidation(wrapped) || IsUnprocessable(wrapped) {
		t.Error("wrong predicate matched")
	}
	if GetCode(wrapped) != ErrCodeNotFound {
		t.Errorf("GetCode() = %v", GetCode(wrapped))
	}
	if GetCode(errors.New("plain")) != "" {
		t.Error("GetCode(plain) should be empty")
	}
	if _, ok := As(nil); ok {
		t.Error("As(nil) should be false")
	}
}
