// Command registryd serves the component registry over gRPC, backed by a
// SQLite database.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/georgeannie/mlops-framework/internal/components"
	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/registryrpc"
	"github.com/georgeannie/mlops-framework/internal/tracking"
	"google.golang.org/grpc"
)

func main() {
	addr := flag.String("addr", envOr("REGISTRYD_ADDR", ":50051"), "listen address")
	dbPath := flag.String("db", envOr("REGISTRYD_DB", "components.db"), "path to the SQLite component registry")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "json", "log format: text or json")
	flag.Parse()

	logging.Init(logging.ParseLevel(*logLevel), *logFormat)
	log := logging.New("registryd")

	if err := run(*addr, *dbPath); err != nil {
		log.Error("registryd failed", "error", err)
		os.Exit(1)
	}
}

func run(addr, dbPath string) error {
	log := logging.New("registryd")
	db, err := tracking.OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	registry, err := components.NewSQLRegistry(db)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := grpc.NewServer()
	registryrpc.RegisterComponentRegistryServer(srv, registryrpc.NewServer(registry))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		srv.GracefulStop()
	}()

	log.Info("listening", "addr", lis.Addr().String(), "db", dbPath)
	return srv.Serve(lis)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
