package core

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"stockwatch/internal/types"
)

// apiKeyHeader carries the management API key on every /v1 request.
const apiKeyHeader = "X-API-Key"

// APIKeyMiddleware guards the management surface. It compares the X-API-Key
// header against the configured bcrypt hash, so the plaintext key exists
// only on the operator's side.
//
// Distinct error codes on the 401:
//   - auth_api_key_missing: no X-API-Key header.
//   - auth_api_key_invalid: the key does not match the hash.
func (s *Server) APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthKeyMissing, "X-API-Key header is required")
			return
		}

		hash := s.Config.Server.APIKeyHash.Unmask()
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			s.Logger.Warn("management API key rejected",
				"method", r.Method,
				"path", r.URL.Path,
			)
			s.writeAuthError(w, r, types.ErrCodeAuthKeyInvalid, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeAuthError writes a 401 envelope with the given error code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}
