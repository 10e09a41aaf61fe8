package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clubhub-app/clubhub/backend/internal/handler/chatview"
	middlewarePkg "github.com/clubhub-app/clubhub/backend/internal/middleware"
	"github.com/clubhub-app/clubhub/backend/internal/service/session"
	"github.com/clubhub-app/clubhub/backend/pkg/utils"
)

// NewRouter wires the local UI routes to the chat session controller.
func NewRouter(ctrl *session.Controller) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chatview.New(ctrl)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)

		api.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
