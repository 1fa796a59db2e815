// Command trackingd serves a SQLite tracking and model-registry store over
// HTTP for pipeline steps that run on separate machines.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/tracking"
	"github.com/georgeannie/mlops-framework/internal/trackingapi"
)

func main() {
	addr := flag.String("addr", envOr("TRACKINGD_ADDR", ":5000"), "listen address")
	dbPath := flag.String("db", envOr("TRACKINGD_DB", "tracking.db"), "path to the SQLite tracking store")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "json", "log format: text or json")
	flag.Parse()

	logging.Init(logging.ParseLevel(*logLevel), *logFormat)
	log := logging.New("trackingd")

	store, err := tracking.NewStore(*dbPath)
	if err != nil {
		log.Error("open store", "db", *dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server := trackingapi.NewServer(store)
	ch := make(chan error, 1)
	go func() {
		if err := server.Start(*addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ch <- err
			return
		}
		ch <- nil
	}()
	log.Info("listening", "addr", *addr, "db", *dbPath)

	exit := 0
	select {
	case <-ctx.Done():
	case err := <-ch:
		if err != nil {
			log.Error("server stopped", "error", err)
			exit = 1
		}
	}

	log.Info("shutting down")
	qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer qcancel()
	if err := server.Shutdown(qctx); err != nil {
		log.Error("shutdown", "error", err)
		exit = 1
	}
	if exit != 0 {
		store.Close()
		os.Exit(exit)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

