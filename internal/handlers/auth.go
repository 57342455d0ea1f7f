package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/tokenpair/internal/apperrors"
	"github.com/nkiryanov/tokenpair/internal/handlers/render"
	"github.com/nkiryanov/tokenpair/internal/logger"
	"github.com/nkiryanov/tokenpair/internal/models"
)

type userResponse struct {
	ID        uuid.UUID   `json:"id"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
}

type tokensResponse struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

type authResponse struct {
	User   userResponse   `json:"user"`
	Tokens tokensResponse `json:"tokens"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

func newTokensResponse(p models.TokenPair) tokensResponse {
	return tokensResponse{
		AccessToken:           p.Access.Value,
		AccessTokenExpiresAt:  p.Access.ExpiresAt,
		RefreshToken:          p.Refresh.Value,
		RefreshTokenExpiresAt: p.Refresh.ExpiresAt,
	}
}

func newAuthResponse(res models.AuthResult) authResponse {
	return authResponse{User: newUserResponse(res.User), Tokens: newTokensResponse(res.Tokens)}
}

// Render service error with status matching its kind
func renderError(w http.ResponseWriter, err error, l logger.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrEmailExists):
		render.ServiceError(w, "User with this email already exists", http.StatusConflict)
	case errors.Is(err, apperrors.ErrUserNotFound):
		render.ServiceError(w, "User not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrInvalidToken):
		render.ServiceError(w, "Invalid token", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrValidation):
		render.ServiceError(w, err.Error(), http.StatusBadRequest)
	default:
		l.Error("Request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func handleSignUp(s authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string      `json:"email" validate:"required,email"`
		Password string      `json:"password" validate:"notblank,min=8"`
		Role     models.Role `json:"role" validate:"omitempty,oneof=user admin"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := s.SignUp(r.Context(), data.Email, data.Password, data.Role)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newAuthResponse(res), http.StatusCreated)
	})
}

func handleSignIn(s authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := s.SignIn(r.Context(), data.Email, data.Password)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newAuthResponse(res), http.StatusCreated)
	})
}

func handleRefreshToken(s authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := s.RefreshTokens(r.Context(), data.RefreshToken)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newTokensResponse(pair))
	})
}
