package handlers

import (
	"net/http"

	"github.com/nkiryanov/tokenpair/internal/handlers/render"
	"github.com/nkiryanov/tokenpair/internal/handlers/userctx"
	"github.com/nkiryanov/tokenpair/internal/logger"
)

func handleUserMe(s userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authenticated, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		user, err := s.GetUser(r.Context(), authenticated.ID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newUserResponse(user))
	})
}
