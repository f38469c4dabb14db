package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/EmpoweredVote/mp-sync/internal/utils"
)

// OperatorHeader names the person acting on an admin request. It is recorded
// on merge history.
const OperatorHeader = "X-Operator"

func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Echo the origin back only if it's on our allow-list
			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods",
					"GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers",
					"Content-Type, Authorization, "+OperatorHeader)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminMiddleware requires "Authorization: Bearer <token>". The token is
// checked against tokenHash with bcrypt when one is configured, else compared
// with token. With neither configured every admin request is refused.
func AdminMiddleware(token, tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" && tokenHash == "" {
				http.Error(w, "Forbidden: admin access disabled", http.StatusForbidden)
				return
			}

			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || got == "" {
				http.Error(w, "Unauthorized: missing bearer token", http.StatusUnauthorized)
				return
			}
			if !validToken(got, token, tokenHash) {
				http.Error(w, "Forbidden: invalid admin token", http.StatusForbidden)
				return
			}

			operator := strings.TrimSpace(r.Header.Get(OperatorHeader))
			if operator == "" {
				operator = "admin"
			}
			ctx := utils.WithOperator(r.Context(), operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validToken(got, token, tokenHash string) bool {
	if tokenHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(got)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
