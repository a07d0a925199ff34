package server

import "net/http"

func (s *Server) initRoutes() {
	// Relay
	s.RegisterRouteHandler("POST "+RouteAPISignIn, ChainMiddleware(s.SignInHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPISignUp, ChainMiddleware(s.SignUpHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIVerifyOTP, ChainMiddleware(s.VerifyOTPHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteConfigCheck, ChainMiddleware(s.ConfigCheckHandler(), s.APIMiddleware()...))

	// CORS preflight for every API route
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(preflightHandler, s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteAuthCallback, ChainMiddleware(s.AuthCallbackHandler(), s.PageMiddleware()...))
}

// CorsMiddleware answers OPTIONS itself and never calls through.
func preflightHandler(http.ResponseWriter, *http.Request) {}
