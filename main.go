package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/mp-sync/internal/app"
	"github.com/EmpoweredVote/mp-sync/internal/config"
	"github.com/EmpoweredVote/mp-sync/internal/logging"
	"github.com/EmpoweredVote/mp-sync/internal/members"
	"github.com/EmpoweredVote/mp-sync/internal/middleware"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	response := "Server is up!"
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, response)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer p.Close()

	h := &members.Handler{
		Store:         p.Store,
		Jobs:          members.NewJobs(p.Importer, log),
		Reconciler:    p.Reconciler,
		Directory:     p.Client,
		Term:          p.Term(),
		NearThreshold: cfg.Reconcile.NearDuplicateThreshold,
		Log:           log,
	}
	if cfg.AdminToken == "" && cfg.AdminTokenHash == "" {
		log.Warn("ADMIN_TOKEN and ADMIN_TOKEN_HASH not set, admin routes are disabled")
	} else if cfg.AdminTokenHash == "" {
		log.Warn("admin token configured in plain text, prefer ADMIN_TOKEN_HASH")
	}

	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Get("/", RootHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/members", members.SetupRoutes(h, middleware.AdminMiddleware(cfg.AdminToken, cfg.AdminTokenHash)))

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("server listening", zap.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", zap.Error(err))
	}
}
