package core

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"stockwatch/internal/types"
)

// requestIDHeader carries the correlation ID in both directions: an inbound
// value is reused, and the final value is echoed on the response.
const requestIDHeader = "X-Request-ID"

// defaultRedactedHeaders lists header names whose values are masked in
// request logs to keep credentials out of the log stream.
var defaultRedactedHeaders = []string{
	"Authorization",
	"X-Api-Key",
}

// MountRoutes registers the global middleware chain, the public health
// endpoint and the authenticated /v1 group.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Get("/healthz", s.HandleHealth)

	s.router.Route("/v1", s.mountV1)
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering:
//  1. Recoverer       - outermost, catches panics from everything below.
//  2. RequestID       - correlation ID for logs and error envelopes.
//  3. SecurityHeaders - present on every response, including errors.
//  4. RequestLogger   - logs with the request ID already in context.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
}

// mountV1 places every v1 endpoint behind the API-key check and hands the
// group to the registrars populated by the entry point.
func (s *Server) mountV1(r chi.Router) {
	r.Use(s.APIKeyMiddleware)
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

// RequestIDMiddleware generates or propagates a unique request ID for
// correlation across logs and error responses. An inbound X-Request-ID is
// reused; otherwise a fresh uuid4 is generated. The ID is stored in the
// context via types.WithRequestID and echoed as a response header.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
