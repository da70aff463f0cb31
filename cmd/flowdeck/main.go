package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/flowdeck/flowdeck/pkg/authflow"
	"github.com/flowdeck/flowdeck/pkg/config"
	"github.com/flowdeck/flowdeck/pkg/httputil"
	"github.com/flowdeck/flowdeck/pkg/observability"
)

const version = "0.3.0"

func main() {
	port := flag.String("port", "", "Port to listen on (overrides FLOWDECK_PORT)")
	flag.Parse()

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	manager, err := authflow.NewManager(context.Background(), cfg.Auth, logger)
	if err != nil {
		if errors.Is(err, config.ErrAuthNotConfigured) {
			// Serve unauthenticated rather than crash on a half-configured
			// provider. The warning makes the degradation visible.
			log.Warnf("Authentication disabled: %v", err)
		} else {
			log.Fatalf("Failed to initialize authentication: %v", err)
		}
	}
	defer manager.Close()

	router := mux.NewRouter()
	manager.RegisterRoutes(router)

	router.HandleFunc("/server_info", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, map[string]interface{}{
			"name":         "flowdeck",
			"version":      version,
			"auth_enabled": manager.Enabled(),
		})
	}).Methods("GET")

	if cfg.Observability.MetricsEnabled {
		if h := manager.MetricsHandler(); h != nil {
			router.Handle("/metrics", h).Methods("GET")
		}
	}

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		manager.Middleware(),
	)(router)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":         server.Addr,
			"auth_enabled": manager.Enabled(),
		}).Info("Starting flowdeck server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Shutdown error: %v", err)
	}
}
