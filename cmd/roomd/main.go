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

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/five82/roomboard/internal/devserver"
	"github.com/five82/roomboard/internal/logging"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	addr := pflag.String("addr", ":8000", "listen address")
	logLevel := pflag.String("log-level", "info", "debug, info, warn or error")
	logFile := pflag.String("log-file", "stderr", "log destination (file path, stderr or stdout)")
	pflag.Parse()

	log, err := logging.New("roomd", *logLevel, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomd: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv, err := devserver.New(log, devserver.DefaultRooms())
	if err != nil {
		log.Error("seed rooms", zap.Error(err))
		return 1
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("roomd listening", zap.String("addr", *addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("serve", zap.Error(err))
			return 1
		}
	case <-ctx.Done():
	}

	srv.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
		return 1
	}
	log.Info("roomd stopped")
	return 0
}
