package http

import (
	"context"
	"net/http"

	"github.com/zoeplatform/zoefinan/internal/auth"
	"github.com/zoeplatform/zoefinan/internal/log"
)

type contextKey int

const (
	userKey contextKey = iota
	tokenKey
)

// requireAuth verifies the bearer token and stores the user in the context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, r, auth.ErrInvalidToken)
			return
		}
		user, err := s.auth.Verify(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, tokenKey, token)
		ctx = context.WithValue(ctx, log.LoggerContextKey, log.FromContext(ctx).With(log.FieldUserID, user.UID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser is only valid behind requireAuth.
func currentUser(ctx context.Context) auth.User {
	u, _ := ctx.Value(userKey).(auth.User)
	return u
}

func currentToken(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}
