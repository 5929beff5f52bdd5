// Command graphserver is the thin HTTP adapter over pkg/graphdb. It
// owns no domain logic of its own: every handler decodes a request,
// calls into *graphdb.Graph, and encodes the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/r3e-network/graphdb/infrastructure/ratelimit"
	"github.com/r3e-network/graphdb/internal/graph/txn"
	"github.com/r3e-network/graphdb/pkg/config"
	"github.com/r3e-network/graphdb/pkg/graphdb"
	"github.com/r3e-network/graphdb/pkg/logger"
)

const (
	exitOK = iota
	exitBindFailure
	exitBadConfig
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad configuration: %v\n", err)
		return exitBadConfig
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	g, err := graphdb.New(context.Background(), cfg, log)
	if err != nil {
		log.WithField("error", err).Error("failed to build graph")
		return exitBadConfig
	}
	defer g.Close()

	router := mux.NewRouter()
	s := &server{g: g}

	var rl *ratelimit.RateLimiter
	if cfg.Stream.RateLimitPerSec > 0 {
		rl = ratelimit.New(ratelimit.RateLimitConfig{
			RequestsPerSecond: cfg.Stream.RateLimitPerSec,
		})
	}
	registerRoutes(router, s, log, rl)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.WithField("error", err).Error("failed to bind listening port")
		return exitBindFailure
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("graphserver starting")
		serveErr <- httpServer.Serve(listener)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithField("error", err).Error("server error")
			return exitBindFailure
		}
	case <-sigCh:
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithField("error", err).Warn("graceful shutdown error")
		}
	}
	return exitOK
}

// txnOptions returns the default transaction options handlers use for
// explicit-transaction endpoints (node and relationship updates): manager defaults for
// isolation and timeout, no snapshot retention (the HTTP adapter never
// offers a rollback-to-snapshot surface).
func txnOptions() txn.Options {
	return txn.Options{}
}
