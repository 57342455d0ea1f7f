package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/tokenpair/internal/apperrors"
	"github.com/nkiryanov/tokenpair/internal/handlers/render"
	"github.com/nkiryanov/tokenpair/internal/handlers/userctx"
	"github.com/nkiryanov/tokenpair/internal/models"
)

const (
	authHeaderName = "Authorization"
	authScheme     = "Bearer"
)

type authService interface {
	Authenticate(ctx context.Context, access string) (models.User, error)
}

// Read access token from 'Authorization: Bearer <token>' header
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get(authHeaderName), " ")
	if !ok || !strings.EqualFold(scheme, authScheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", authScheme)
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := as.Authenticate(r.Context(), token)
			switch {
			case errors.Is(err, apperrors.ErrInvalidToken):
				w.Header().Set("WWW-Authenticate", authScheme)
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			case err != nil:
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
