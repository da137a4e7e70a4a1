package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// The rerun view; the authority redirects back here
	RouteIndex = "/"

	// Auth Routes
	RouteAuthLogin      = "/auth/login"
	RouteAuthLogout     = "/auth/logout"
	RouteForgotPassword = "/auth/forgot-password"
	RouteRecover        = "/auth/recover"

	// Operational Routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteStatic = "/static/{file}"
)
