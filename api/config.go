// Package api provides the HTTP API server exposing the controller's
// database info and every route declared by loaded plug-ins.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":5000")
	ListenAddr string
}
