// Package middleware provides the gin middleware shared by the HTTP API:
// bearer-token authentication, CORS and panic recovery.
package middleware
