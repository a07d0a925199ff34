package server

import "github.com/jrsteele09/storefront-auth/relayclient"

// Route path constants
const (
	// Relay routes, called by relayclient
	RouteAPISignIn    = relayclient.SignInPath
	RouteAPISignUp    = relayclient.SignUpPath
	RouteAPIVerifyOTP = relayclient.VerifyOTPPath

	// Email links and PKCE redirects land here
	RouteAuthCallback = "/auth/callback"

	// Diagnostics
	RouteConfigCheck = "/api/config-check"

	// Storefront page the callback sends failures to
	RouteSignInPage = "/signin"
)
