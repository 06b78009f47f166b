package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func scopeHandler(t *testing.T, want string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scopes := ScopesFromContext(r.Context())
		if want != "" && (len(scopes) == 0 || scopes[0] != want) {
			t.Errorf("scopes = %v, want %s first", scopes, want)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewAuthenticatorWithoutSecretPassesThrough(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	if auth != nil {
		t.Fatalf("expected nil authenticator without secret")
	}
	handler := auth.Middleware("actions")(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/actions/lend", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestAuthenticatorValidatesTokens(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "nftlend-ops", Audience: "nftlend"}, nil)
	handler := auth.Middleware("actions")(scopeHandler(t, "actions"))
	future := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{
			name:   "valid",
			header: "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"iss": "nftlend-ops", "aud": "nftlend", "exp": future, "scope": "actions reads"}),
			want:   http.StatusOK,
		},
		{
			name:   "scope list",
			header: "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS512, jwt.MapClaims{"iss": "nftlend-ops", "aud": []string{"nftlend"}, "exp": future, "scope": []string{"actions"}}),
			want:   http.StatusOK,
		},
		{
			name:   "wrong secret",
			header: "Bearer " + signToken(t, "another-secret-another-secret-00", jwt.SigningMethodHS256, jwt.MapClaims{"iss": "nftlend-ops", "aud": "nftlend", "exp": future, "scope": "actions"}),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "expired",
			header: "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"iss": "nftlend-ops", "aud": "nftlend", "exp": time.Now().Add(-time.Hour).Unix(), "scope": "actions"}),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "no expiry",
			header: "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"iss": "nftlend-ops", "aud": "nftlend", "scope": "actions"}),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "wrong issuer",
			header: "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"iss": "someone", "aud": "nftlend", "exp": future, "scope": "actions"}),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "wrong audience",
			header: "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"iss": "nftlend-ops", "aud": "other", "exp": future, "scope": "actions"}),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "missing scope",
			header: "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"iss": "nftlend-ops", "aud": "nftlend", "exp": future, "scope": "reads"}),
			want:   http.StatusForbidden,
		},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/actions/lend", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
}
