package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/ops-portal/auth"
	"github.com/jrsteele09/ops-portal/internal/config"
	"github.com/jrsteele09/ops-portal/internal/metrics"
	"github.com/jrsteele09/ops-portal/provider"
	"github.com/jrsteele09/ops-portal/sessionstore"
	"github.com/rs/zerolog/log"
)

// HealthChecker is implemented by session stores with a remote backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	store      sessionstore.Store
	metrics    *metrics.Metrics
	gate       *auth.Gate
	accounts   *auth.Accounts
	rehydrator *auth.Rehydrator
}

// New wires the auth components over store and factory. opts are applied after the
// ones derived from config.
func New(cfg config.Config, store sessionstore.Store, factory provider.Factory, m *metrics.Metrics, opts ...auth.Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if store == nil {
		return nil, errors.New("[Server New] session store is required")
	}

	opts = append([]auth.Option{
		auth.WithTimeout(cfg.GetAuthorityTimeout()),
		auth.WithMinPasswordLength(cfg.GetMinPasswordLength()),
		auth.WithSiteURL(cfg.GetSiteURL()),
		auth.WithRecorder(m),
	}, opts...)

	rehydrator, err := auth.NewRehydrator(factory, opts...)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create rehydrator: %w", err)
	}
	establisher := auth.NewEstablisher(opts...)
	gate, err := auth.NewGate(establisher, rehydrator, opts...)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create gate: %w", err)
	}
	accounts, err := auth.NewAccounts(establisher, rehydrator, opts...)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create accounts: %w", err)
	}

	s := &Server{
		env:        cfg.GetEnv(),
		mux:        http.NewServeMux(),
		config:     cfg,
		store:      store,
		metrics:    m,
		gate:       gate,
		accounts:   accounts,
		rehydrator: rehydrator,
	}
	if err := s.initRoutes(); err != nil {
		return nil, fmt.Errorf("[Server New] %w", err)
	}
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
