package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Token scopes. Agent runtimes execute turns; operators may additionally
// read the audit trail.
const (
	ScopeAgent    = "agent"
	ScopeOperator = "operator"
)

type scopedClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// requireScope authenticates an HS256 bearer token and checks its scope
// claim. Operator tokens satisfy agent-scoped endpoints; the reverse never
// holds, so an agent credential can never read audit records.
func requireScope(secret []byte, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenScope, err := authenticate(secret, r)
			if err != nil {
				writeErr(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
			if !scopeAllows(tokenScope, scope) {
				writeErr(w, http.StatusForbidden, fmt.Sprintf("scope %q required", scope))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(secret []byte, r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", fmt.Errorf("missing bearer token")
	}

	claims := &scopedClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Scope, nil
}

func scopeAllows(tokenScope, required string) bool {
	if tokenScope == required {
		return true
	}
	return tokenScope == ScopeOperator && required == ScopeAgent
}
