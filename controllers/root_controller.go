package controllers

import (
	"context"
	"net/http"
	"time"

	"blogapp/middlewares"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Check reports whether a backing service is reachable.
type Check func(ctx context.Context) error

// SetupHealthRoute registers GET /healthz, which runs every check.
func SetupHealthRoute(router *mux.Router, log *logrus.Logger, checks map[string]Check) {
	router.HandleFunc("/healthz", healthHandler(log, checks)).Methods(http.MethodGet)
}

func healthHandler(log *logrus.Logger, checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				middlewares.HttpError(log.WithField("dependency", name), w, r, name+" unavailable", http.StatusServiceUnavailable, err)
				return
			}
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			log.WithError(err).Debug("health response not written")
		}
	}
}
