package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{name: "valid token", header: "Bearer secret-token", wantCode: http.StatusOK},
		{name: "wrong token", header: "Bearer wrong-token", wantCode: http.StatusUnauthorized},
		{name: "missing header", header: "", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic secret-token", wantCode: http.StatusUnauthorized},
		{name: "bare scheme without token", header: "Bearer ", wantCode: http.StatusUnauthorized},
		{name: "lowercase scheme", header: "bearer secret-token", wantCode: http.StatusUnauthorized},
		{name: "token with trailing garbage", header: "Bearer secret-token-extra", wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reached bool
			handler := bearerAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			}), "secret-token")

			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantCode == http.StatusOK, reached)
		})
	}
}
