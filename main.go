package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"pairpad-server/config"
	"pairpad-server/handlers/websocket"
	ratelimit "pairpad-server/middleware"
	hub "pairpad-server/rooms"
	"pairpad-server/stores"
)

const shutdownTimeout = 10 * time.Second

func setupLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)

	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}
	cfg := config.Load()

	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", cfg.ListenAddr, "Set the server listen address")
	flag.Parse()

	if err := setupLogging(*logLevel, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	defer stop()

	store, err := stores.GetStore(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialise storage")
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	broadcaster := hub.NewBroadcaster(hub.NewTable())
	ws := websocket.NewHandler(store, broadcaster, websocket.Options{
		SendTimeout:    cfg.SendTimeout,
		PongWait:       cfg.PongWait,
		StoreTimeout:   cfg.StoreTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
		AllowedOrigins: cfg.CORSOrigins,
	})
	limiter := ratelimit.NewRateLimiter(cfg.WSRateLimit)
	defer limiter.Stop()

	srv := &http.Server{
		Addr:              *listenAddr,
		Handler:           setupRouter(cfg, store, broadcaster, ws, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Hijacked WebSocket connections are not tracked by Shutdown.
	srv.RegisterOnShutdown(ws.Shutdown)

	errC := make(chan error, 1)
	go func() {
		logrus.WithField("addr", *listenAddr).Info("Starting server")
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		if !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	case <-ctx.Done():
		logrus.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}
	// Sessions may still touch the store until they return.
	ws.Shutdown()
	if err := ws.Wait(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("WebSocket sessions did not finish before timeout")
	}
}
