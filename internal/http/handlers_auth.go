package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zoeplatform/zoefinan/internal/auth"
	"github.com/zoeplatform/zoefinan/internal/log"
)

type signUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := s.auth.CreateUser(r.Context(), sanitizeInput(req.Email), req.Password, req.ConfirmPassword)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := s.auth.SignIn(r.Context(), sanitizeInput(req.Email), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context(), currentToken(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type authStateEvent struct {
	SignedIn bool       `json:"signedIn"`
	User     *auth.User `json:"user,omitempty"`
	At       time.Time  `json:"at"`
}

// handleAuthState streams the caller's auth state as server-sent events,
// starting with the current state. The stream ends after a sign out or when
// the client goes away.
func (s *Server) handleAuthState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := currentUser(ctx)
	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut long-lived streams.
	_ = rc.SetWriteDeadline(time.Time{})

	states, cancel := s.auth.OnAuthStateChanged(ctx, user.UID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for state := range states {
		data, err := json.Marshal(authStateEvent{SignedIn: state.SignedIn(), User: state.User, At: state.At})
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "event: auth\ndata: %s\n\n", data); err != nil {
			log.FromContext(ctx).DebugContext(ctx, "Auth state stream closed", log.FieldError, err)
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
		if !state.SignedIn() {
			return
		}
	}
}
