package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/tokenpair/internal/handlers/middleware"
	"github.com/nkiryanov/tokenpair/internal/logger"
	"github.com/nkiryanov/tokenpair/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	userService userService,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)

	authmux := http.NewServeMux()
	authmux.Handle("POST /sign-up", handleSignUp(authService, logger))
	authmux.Handle("POST /sign-in", handleSignIn(authService, logger))
	authmux.Handle("POST /refresh-token", handleRefreshToken(authService, logger))

	usersmux := http.NewServeMux()
	usersmux.Handle("GET /me", withAuth(handleUserMe(userService, logger)))

	root := http.NewServeMux()
	root.Handle("/auth/", http.StripPrefix("/auth", authmux))
	root.Handle("/users/", http.StripPrefix("/users", usersmux))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user and issue first token pair
	// Has to return apperrors.ErrEmailExists if email is taken
	SignUp(ctx context.Context, email string, password string, role models.Role) (models.AuthResult, error)

	// Has to return apperrors.ErrUserNotFound or apperrors.ErrInvalidCredentials
	SignIn(ctx context.Context, email string, password string) (models.AuthResult, error)

	// Exchange refresh token for new pair
	// Has to return apperrors.ErrInvalidToken if token is not valid or not current
	RefreshTokens(ctx context.Context, refresh string) (models.TokenPair, error)

	// Return user the access token issued for
	Authenticate(ctx context.Context, access string) (models.User, error)
}

type userService interface {
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
}
