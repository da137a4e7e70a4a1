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
	"github.com/jrsteele09/ops-portal/auth"
	"github.com/jrsteele09/ops-portal/internal/config"
	"github.com/jrsteele09/ops-portal/internal/logging"
	"github.com/jrsteele09/ops-portal/internal/metrics"
	"github.com/jrsteele09/ops-portal/provider/gotrue"
	"github.com/jrsteele09/ops-portal/provider/tokenendpoint"
	"github.com/jrsteele09/ops-portal/server"
	"github.com/jrsteele09/ops-portal/sessionstore"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	displayAppname(c.GetAppName())

	ctx := context.Background()
	store, closeStore, err := newStore(ctx, c)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()
	factory := gotrue.NewFactory(c.GetAuthorityURL(), c.GetAuthorityAnonKey(),
		gotrue.WithTimeout(c.GetAuthorityTimeout()),
		gotrue.WithProfileTable(c.GetProfileTable()),
		gotrue.WithObserver(m.ObserveAuthorityCall),
	)

	var opts []auth.Option
	if tokenURL := c.GetTokenEndpointURL(); tokenURL != "" {
		httpClient := &http.Client{Timeout: c.GetAuthorityTimeout()}
		opts = append(opts, auth.WithCodeFallback(
			tokenendpoint.New(tokenURL, c.GetOAuthClientID(), c.GetSiteURL(), c.GetAuthorityAnonKey(), httpClient),
		))
		log.Info().Str("token_endpoint", tokenURL).Msg("Token endpoint code exchange enabled")
	}

	handler, err := server.New(c, store, factory, m, opts...)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(httpServer) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// newStore builds the session store SESSION_BACKEND selects.
func newStore(ctx context.Context, c config.Config) (sessionstore.Store, func(), error) {
	switch c.GetSessionBackend() {
	case config.BackendRedis:
		client, err := sessionstore.NewRedisClient(ctx, c.GetRedisURL())
		if err != nil {
			return nil, nil, err
		}
		log.Info().Dur("ttl", c.GetSessionTTL()).Msg("Using redis session store")
		return sessionstore.NewRedisStore(client, c.GetSessionTTL()), func() { _ = client.Close() }, nil
	default:
		log.Info().Dur("ttl", c.GetSessionTTL()).Msg("Using in-memory session store")
		return sessionstore.NewInMemoryStore(c.GetSessionTTL()), func() {}, nil
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
