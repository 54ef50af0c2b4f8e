package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/services/prefsvc/api"
)

func TestErrorHandlingMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		expectedCode int
		expectedType string
		expectedMsg  string
	}{
		{
			name: "kerror",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic(kerror.Create("TestError", "test error message").
					WithErrorCode(kerror.EC_INVALID_PARAMETER))
			},
			expectedCode: http.StatusBadRequest,
			expectedType: "TestError",
			expectedMsg:  "test error message",
		},
		{
			name: "plain error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic(fmt.Errorf("some error"))
			},
			expectedCode: http.StatusInternalServerError,
			expectedType: "InternalServerError",
			expectedMsg:  "an unexpected error occurred",
		},
		{
			name: "string panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("some panic message")
			},
			expectedCode: http.StatusInternalServerError,
			expectedType: "UnknownPanic",
			expectedMsg:  "unexpected panic with non-error value",
		},
		{
			name: "ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			expectedCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			rr := httptest.NewRecorder()
			ErrorHandlingMiddleware(tt.handler).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedCode, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			if tt.expectedType != "" {
				var resp api.ErrorResponse
				assert.Nil(t, json.NewDecoder(rr.Body).Decode(&resp))
				assert.Equal(t, tt.expectedType, resp.Error)
				assert.Equal(t, tt.expectedMsg, resp.Msg)
			}
		})
	}
}

func TestErrorHandlingMiddleware_ErrorCodeMapping(t *testing.T) {
	tests := []struct {
		errorCode    kerror.ErrorCode
		expectedHTTP int
	}{
		{kerror.EC_INVALID_PARAMETER, http.StatusBadRequest},
		{kerror.EC_NOT_FOUND, http.StatusNotFound},
		{kerror.EC_CONFLICT, http.StatusConflict},
		{kerror.EC_INTERNAL_ERROR, http.StatusServiceUnavailable},
		{kerror.EC_RETRYABLE, http.StatusTooManyRequests},
		{kerror.EC_UNAVAILABLE, http.StatusServiceUnavailable},
		{kerror.EC_TIMEOUT, http.StatusRequestTimeout},
		{kerror.EC_UNKNOWN, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorCode), func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(kerror.Create("TestError", "test error").WithErrorCode(tt.errorCode))
			})
			rr := httptest.NewRecorder()
			ErrorHandlingMiddleware(handler).ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))
			assert.Equal(t, tt.expectedHTTP, rr.Code)
		})
	}
}
