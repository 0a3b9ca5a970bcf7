package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"quiz-ranking-service/internal/logging"
)

// NewRouter wires the HTTP routes. Attempt routes need a bearer token;
// leaderboards are public and only use one to resolve the caller's rank.
func NewRouter(h *Handler, auth *Authenticator) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)

		r.Post("/quizzes/{quizID}/start", h.StartAttempt)
		r.Post("/quizzes/{quizID}/submit", h.SubmitAttempt)
		r.Get("/attempts", h.ListAttempts)
		r.Get("/attempts/{attemptID}", h.GetAttempt)
		r.Get("/users/me/stats", h.Statistics)
	})

	r.Route("/leaderboard", func(r chi.Router) {
		r.Use(auth.OptionalUser)

		r.Get("/quiz/{quizID}", h.QuizLeaderboard)
		r.Get("/global", h.GlobalLeaderboard)
	})
	return r
}

// requestLogger stores a request-scoped entry in the context and logs each
// request once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		entry := logging.WithContext(r.Context())
		ctx := logging.NewContext(r.Context(), entry)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		entry.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
		}).Info("request handled")
	})
}
