package mockapi

// Route path constants
const (
	RouteLogin                    = "/api/auth/login"
	RouteRefresh                  = "/api/auth/refresh"
	RouteRequestEmailVerification = "/api/auth/request-email-verification"
	RouteVerifyEmail              = "/api/auth/verify-email"
	RouteForgotPassword           = "/api/auth/forgot-password"
	RouteResetPassword            = "/api/auth/reset-password"
	RouteMe                       = "/api/users/me"
	RouteResource                 = "/api/{resource}"
	RouteResourceItem             = "/api/{resource}/{id}"
)

func (s *Server) initRoutes() {
	// Auth endpoints never require a bearer token
	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteRequestEmailVerification, ChainMiddleware(s.RequestEmailVerificationHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteVerifyEmail, ChainMiddleware(s.VerifyEmailHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteForgotPassword, ChainMiddleware(s.ForgotPasswordHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteResetPassword, ChainMiddleware(s.ResetPasswordHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireAuth())...))

	// Everything else the dashboard calls: students, classes, results...
	s.RegisterRouteFunc(RouteResource, ChainMiddleware(s.ResourceHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteFunc(RouteResourceItem, ChainMiddleware(s.ResourceHandler(), s.APIMiddleware(s.RequireAuth())...))
}
