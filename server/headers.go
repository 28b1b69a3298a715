package server

// HTTP header names not provided by echo.
const (
	// HeaderXResponseTime reports request processing duration.
	HeaderXResponseTime = "X-Response-Time"

	// HeaderXForwardedHost carries the original host when behind a proxy.
	HeaderXForwardedHost = "X-Forwarded-Host"
)
