package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func signToken(t *testing.T, secret []byte, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": "gridquery-test",
		"aud": []string{"gridquery"},
		"sub": "editor-1",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

func TestWriteAuthMiddleware_Disabled(t *testing.T) {
	mw, err := WriteAuthMiddleware(WriteAuthConfig{Enabled: false}, nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/grid/posts?action=edit", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWriteAuthMiddleware_RejectsShortSecret(t *testing.T) {
	_, err := WriteAuthMiddleware(WriteAuthConfig{Enabled: true, Secret: []byte("short")}, nil)
	require.Error(t, err)
}

func TestWriteAuthMiddleware(t *testing.T) {
	cfg := WriteAuthConfig{Enabled: true, Secret: testSecret, Issuer: "gridquery-test", Audience: "gridquery"}

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongAudience := validClaims()
	wrongAudience["aud"] = "someone-else"
	noExpiry := validClaims()
	delete(noExpiry, "exp")

	tests := []struct {
		name        string
		action      string
		token       string
		wantStatus  int
		wantSubject string
	}{
		{name: "list passes without token", action: "request", wantStatus: http.StatusOK},
		{name: "write without token", action: "edit", wantStatus: http.StatusUnauthorized},
		{name: "valid token", action: "del", token: signToken(t, testSecret, jwt.SigningMethodHS256, validClaims()),
			wantStatus: http.StatusOK, wantSubject: "editor-1"},
		{name: "wrong secret", action: "add", token: signToken(t, []byte("another-secret-another-secret-xx"), jwt.SigningMethodHS256, validClaims()),
			wantStatus: http.StatusUnauthorized},
		{name: "wrong algorithm", action: "add", token: signToken(t, testSecret, jwt.SigningMethodHS512, validClaims()),
			wantStatus: http.StatusUnauthorized},
		{name: "expired", action: "edit", token: signToken(t, testSecret, jwt.SigningMethodHS256, expired),
			wantStatus: http.StatusUnauthorized},
		{name: "wrong audience", action: "edit", token: signToken(t, testSecret, jwt.SigningMethodHS256, wrongAudience),
			wantStatus: http.StatusUnauthorized},
		{name: "missing expiry", action: "edit", token: signToken(t, testSecret, jwt.SigningMethodHS256, noExpiry),
			wantStatus: http.StatusUnauthorized},
		{name: "garbage", action: "edit", token: "not-a-jwt", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, err := WriteAuthMiddleware(cfg, nil)
			require.NoError(t, err)

			var subject string
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if auth, ok := AuthFromContext(r.Context()); ok {
					subject = auth.Subject
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/grid/posts?action="+tt.action, strings.NewReader("id=1"))
			req.SetPathValue("name", "posts")
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantSubject, subject)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestTokenErrorReason(t *testing.T) {
	assert.Equal(t, "expired", tokenErrorReason(jwt.ErrTokenExpired))
	assert.Equal(t, "audience_mismatch", tokenErrorReason(jwt.ErrTokenInvalidAudience))
	assert.Equal(t, "malformed", tokenErrorReason(jwt.ErrTokenMalformed))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken("abc"))
}
