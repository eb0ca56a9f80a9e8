package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"blogapp/config"
	"blogapp/controllers"
	"blogapp/db"
	"blogapp/routes"
	"blogapp/session"
	"blogapp/store"
	"blogapp/views"

	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Error loading config: %v", err)
	}
	log := cfg.NewLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := db.Open(ctx, cfg.DBURL, log)
	if err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}
	defer conn.Close()

	// Migrate the database
	if err := db.Migrate(conn, log); err != nil {
		log.Fatalf("Error migrating database: %v", err)
	}

	// Initialize Redis
	rdb, err := db.NewRedisClient(ctx, db.DefaultRedisConfig(cfg.RedisURL), log)
	if err != nil {
		log.Fatalf("Error initializing Redis: %v", err)
	}
	defer rdb.Close()

	sessions, err := session.NewManager(rdb, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction(), log)
	if err != nil {
		log.Fatalf("Error creating session manager: %v", err)
	}

	renderer, err := views.New()
	if err != nil {
		log.Fatalf("Error parsing templates: %v", err)
	}

	app := &controllers.App{
		Posts:    store.NewPostStore(conn, rdb, cfg.Location, log),
		Users:    store.NewUserStore(conn),
		Sessions: sessions,
		Views:    renderer,
		Log:      log,
	}

	// Set up routes and middlewares
	handler := routes.SetupRoutes(ctx, app, routes.Options{
		RateLimit:      cfg.RateLimit,
		TrustedProxies: cfg.TrustedProxies,
		DebugToken:     cfg.DebugToken,
		Checks: map[string]controllers.Check{
			"postgres": conn.PingContext,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		MaxHeaderBytes:    7500,
		IdleTimeout:       120 * time.Second,
	}

	// Use a wait group to manage graceful shutdown
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe error: %v", err)
		}
	}()
	log.WithFields(logrus.Fields{"addr": cfg.Addr, "env": cfg.AppEnv}).Info("Server started")

	// Wait for interrupt signal to gracefully shut down the server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %+v", err)
	}

	wg.Wait()
	log.Info("Server exited gracefully")
}
