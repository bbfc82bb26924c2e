package httpserver

import (
	"net/http"
	"time"
)

// ShutdownTimeout bounds the drain on SIGTERM. Registration requests hold a
// row lock for well under this, so in-flight work always finishes.
const ShutdownTimeout = 10 * time.Second

// New builds the API server. Header reads are bounded to shed slow-loris
// connections; idle keep-alives are recycled so check-in scanners that poll
// all day do not pin connections.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
