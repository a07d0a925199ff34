package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/storefront-auth/backend"
	"github.com/jrsteele09/storefront-auth/internal/config"
	"github.com/jrsteele09/storefront-auth/internal/logging"
	"github.com/jrsteele09/storefront-auth/server"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return fmt.Errorf("config.New: %w", err)
	}
	logger := logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	// Missing backend settings are reported per request, not fatal at start-up.
	if err := config.ValidateBackend(c); err != nil {
		logger.Warn().Err(err).Msg("backend is not configured")
	}

	var opts []server.Option
	if jwksURL := c.GetBackendJWKSURL(); jwksURL != "" {
		verifier := backend.NewRemoteTokenVerifier(context.Background(), c.GetBackendURL()+"/auth/v1", jwksURL)
		opts = append(opts, server.WithBackendOptions(backend.WithVerifier(verifier)))
	}

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           server.New(c, opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(srv) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
