package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/mkrv/chesscoach/internal/config"
	"github.com/mkrv/chesscoach/internal/coachbuilder"
	"github.com/mkrv/chesscoach/internal/gateway"
	"github.com/mkrv/chesscoach/internal/obslog"
)

const (
	sweepInterval  = time.Minute
	sessionMaxIdle = 30 * time.Minute
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	deps, err := coachbuilder.New(cfg, logger)
	if err != nil {
		logger.Fatal("coach init error", zap.Error(err))
	}

	router, err := gateway.NewRouter(deps.Service, deps.Messages, logger)
	if err != nil {
		logger.Fatal("router init error", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Periodically drop sessions nobody has touched. Their replay position
	// survives in Redis, so a returning client resumes where it left off.
	sweepDone := make(chan struct{})
	go func() {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if n := deps.Service.SweepIdle(sessionMaxIdle); n > 0 {
					logger.Info("idle sessions evicted", zap.Int("count", n))
				}
			case <-sweepDone:
				return
			}
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("coachd listening", zap.String("addr", cfg.ListenAddr))
		serveErr <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}

	close(sweepDone)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	_ = deps.Cache.Close()
	if deps.DB != nil {
		_ = deps.DB.Close()
	}
}
