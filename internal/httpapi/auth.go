package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

func parseBearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// openPaths are reachable without a token.
func openPath(p string) bool {
	switch p {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return strings.HasPrefix(p, "/v1/dictionary/")
}

// authJWTFromEnv returns a middleware that enforces Authorization: Bearer JWT
// (HS256) when JWT_HS256_SECRET is set. Optional checks: JWT_ISSUER,
// JWT_AUDIENCE. Returns nil when no secret is configured, leaving the API
// open for local development.
func authJWTFromEnv() func(http.Handler) http.Handler {
	secret := strings.TrimSpace(os.Getenv("JWT_HS256_SECRET"))
	if secret == "" {
		return nil
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if iss := strings.TrimSpace(os.Getenv("JWT_ISSUER")); iss != "" {
		opts = append(opts, jwt.WithIssuer(iss))
	}
	if aud := strings.TrimSpace(os.Getenv("JWT_AUDIENCE")); aud != "" {
		opts = append(opts, jwt.WithAudience(aud))
	}
	parser := jwt.NewParser(opts...)
	keyFn := func(t *jwt.Token) (any, error) { return []byte(secret), nil }
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if openPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			tok, ok := parseBearerToken(r)
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if _, err := parser.ParseWithClaims(tok, &jwt.RegisteredClaims{}, keyFn); err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
