package routes

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"blogapp/controllers"
	"blogapp/middlewares"

	"github.com/gorilla/mux"
)

// Options tunes the router beyond the handlers themselves.
type Options struct {
	// RateLimit is the number of POSTs to /login and /signup a client may
	// make per minute.
	RateLimit int
	// TrustedProxies may report the client address in X-Forwarded-For.
	TrustedProxies []*net.IPNet
	// DebugToken, when set, mounts /debug/pprof/ behind bearer authentication.
	DebugToken string
	// Checks are run by GET /healthz.
	Checks map[string]controllers.Check
}

// SetupRoutes sets up the application routes and middlewares. Background
// work started here stops when ctx is cancelled.
func SetupRoutes(ctx context.Context, app *controllers.App, opts Options) http.Handler {
	router := mux.NewRouter()

	// Apply global middlewares
	router.Use(middlewares.Recover(app.Log))
	router.Use(middlewares.LoggingMiddleware(app.Log))
	router.Use(middlewares.SecurityHeaders)

	rateLimiter := middlewares.NewRateLimiter(ctx, opts.RateLimit, time.Minute, 2*time.Minute, app.Log)
	rateLimiter.SetTrustedProxies(opts.TrustedProxies)

	app.SetupPostRoutes(router)
	app.SetupUserRoutes(router, rateLimiter.Limit)
	controllers.SetupHealthRoute(router, app.Log, opts.Checks)

	if opts.DebugToken != "" {
		debug := router.PathPrefix("/debug/pprof").Subrouter()
		debug.Use(middlewares.ValidateBearerToken(opts.DebugToken))
		debug.HandleFunc("/cmdline", pprof.Cmdline)
		debug.HandleFunc("/profile", pprof.Profile)
		debug.HandleFunc("/symbol", pprof.Symbol)
		debug.HandleFunc("/trace", pprof.Trace)
		debug.PathPrefix("/").HandlerFunc(pprof.Index)
	}

	return router
}
