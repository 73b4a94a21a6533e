package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSMiddleware_Disabled(t *testing.T) {
	handler := CORSMiddleware(CORSConfig{Enabled: false})(okHandler())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/grid/posts", nil)
	req.Header.Set("Origin", "http://example.com")
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_Origins(t *testing.T) {
	tests := []struct {
		name      string
		cfg       CORSConfig
		origin    string
		wantAllow string
		wantVary  string
		wantCreds string
	}{
		{
			name:      "exact match",
			cfg:       CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
			origin:    "http://localhost:3000",
			wantAllow: "http://localhost:3000",
			wantVary:  "Origin",
		},
		{
			name:   "not listed",
			cfg:    CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
			origin: "http://malicious.com",
		},
		{
			name:      "wildcard",
			cfg:       CORSConfig{AllowedOrigins: []string{"*"}},
			origin:    "http://any-origin.com",
			wantAllow: "*",
		},
		{
			name:      "wildcard with credentials echoes origin",
			cfg:       CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true},
			origin:    "http://any-origin.com",
			wantAllow: "http://any-origin.com",
			wantVary:  "Origin",
			wantCreds: "true",
		},
		{
			name:      "subdomain pattern",
			cfg:       CORSConfig{AllowedOrigins: []string{"https://*.example.com"}},
			origin:    "https://admin.example.com",
			wantAllow: "https://admin.example.com",
			wantVary:  "Origin",
		},
		{
			name:   "subdomain pattern wrong scheme",
			cfg:    CORSConfig{AllowedOrigins: []string{"https://*.example.com"}},
			origin: "http://admin.example.com",
		},
		{
			name:   "subdomain pattern needs a subdomain",
			cfg:    CORSConfig{AllowedOrigins: []string{"https://*.example.com"}},
			origin: "https://.example.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Enabled = true
			handler := CORSMiddleware(tt.cfg)(okHandler())

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/grid/posts", nil)
			req.Header.Set("Origin", tt.origin)
			handler.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.wantAllow, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantVary, rr.Header().Get("Vary"))
			assert.Equal(t, tt.wantCreds, rr.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestCORSMiddleware_PreflightDefaults(t *testing.T) {
	handler := CORSMiddleware(CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:3000"},
		MaxAge:         3600,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for preflight")
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/grid/posts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization, X-Request-ID", rr.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "3600", rr.Header().Get("Access-Control-Max-Age"))
}

func TestCORSMiddleware_DisallowedPreflight(t *testing.T) {
	handler := CORSMiddleware(CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:3000"},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for disallowed preflight")
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/grid/posts", nil)
	req.Header.Set("Origin", "http://malicious.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORSMiddleware_PlainOptionsReachesHandler(t *testing.T) {
	handler := CORSMiddleware(CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}})(okHandler())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/grid/posts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORSMiddleware_ExposeHeaders(t *testing.T) {
	handler := CORSMiddleware(CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:3000"},
		ExposeHeaders:  []string{"X-Request-ID", "Retry-After"},
	})(okHandler())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/grid/posts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "X-Request-ID, Retry-After", rr.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORSMiddleware_OriginAbsent(t *testing.T) {
	handler := CORSMiddleware(CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}})(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/grid/posts", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
