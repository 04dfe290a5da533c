package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const adminRole = "admin"

// IssueAdminToken signs an HS256 token carrying the admin role.
func IssueAdminToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("admin secret not set")
	}
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": adminRole,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// RequireAdmin lets a request through only with a valid, unexpired HS256
// bearer token whose role claim is admin. With no secret every request is
// refused.
func RequireAdmin(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secret) == 0 {
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", "admin access is disabled", nil)
				return
			}
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="recenzija"`)
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required", nil)
				return
			}

			token, err := jwt.Parse(strings.TrimSpace(raw), func(t *jwt.Token) (any, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				log.Warn().Err(err).Str("remote", remoteIP(r)).Msg("admin token rejected")
				w.Header().Set("WWW-Authenticate", `Bearer realm="recenzija", error="invalid_token"`)
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid token", nil)
				return
			}

			claims, _ := token.Claims.(jwt.MapClaims)
			if role, _ := claims["role"].(string); role != adminRole {
				writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
