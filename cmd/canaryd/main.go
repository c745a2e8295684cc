package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carvectf/canary/config"
	"github.com/carvectf/canary/eventlog"
	"github.com/carvectf/canary/supervisor"
	"github.com/carvectf/canary/target"
)

var ProgramVersion = "dev"

const ProgramName = "canaryd"

const (
	healthCheckBootTimeout = 5 * time.Second
	httpShutdownTimeout    = 5 * time.Second
)

func main() {
	configFile := flag.String("config", "competition.yaml", "Path to competition configuration YAML")
	flag.Parse()

	competitions, err := config.LoadCompetitions(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load --config=%s: %v\n", *configFile, err)
		os.Exit(1)
	}

	comp, err := config.SelectCompetition(competitions, os.Getenv("COMPETITION_NAME"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot select competition: %v\n", err)
		os.Exit(1)
	}

	logClient := eventlog.New(comp.LogEndpoint)
	defer logClient.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), healthCheckBootTimeout)
	defer bootCancel()
	if err := logClient.Health(bootCtx); err != nil {
		fmt.Fprintf(os.Stderr, "log store unreachable at boot: %v\n", err)
		os.Exit(1)
	}

	sup := supervisor.New(comp, logClient, target.NoCredentials{}, prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go sup.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", sup.HealthHandler())

	server := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Starting %s v%s on %s for competition %q\n", ProgramName, ProgramVersion, server.Addr, comp.Name)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "cannot start server: %v\n", err)
		os.Exit(1)
	}
}
