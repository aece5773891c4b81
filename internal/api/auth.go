package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// requireAuth wraps handlers that need a valid session token. With no
// panel password configured the middleware lets everything through.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !r.auth.Enabled() {
			next(w, req)
			return
		}

		token := bearerToken(req)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}
		if _, err := r.auth.ValidateToken(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, req)
	}
}

func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	// WebSocket clients can't set headers from the browser, so allow
	// the token as a query parameter there.
	return req.URL.Query().Get("token")
}

// LoginRequest is the request body for login
type LoginRequest struct {
	Password string `json:"password"`
}

// handleLogin checks the panel password and issues a token
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if !r.auth.Enabled() {
		writeError(w, http.StatusBadRequest, "authentication is not configured")
		return
	}

	var body LoginRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := r.auth.Login(body.Password)
	if err != nil {
		r.logger.Warnf("api", "failed login attempt from %s", getClientIP(req))
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleAuthCheck reports whether auth is required and whether the
// presented token (if any) is valid
func (r *Router) handleAuthCheck(w http.ResponseWriter, req *http.Request) {
	if !r.auth.Enabled() {
		writeJSON(w, http.StatusOK, map[string]bool{"auth_required": false, "valid": true})
		return
	}

	valid := false
	if token := bearerToken(req); token != "" {
		_, err := r.auth.ValidateToken(token)
		valid = err == nil
	}
	writeJSON(w, http.StatusOK, map[string]bool{"auth_required": true, "valid": valid})
}
