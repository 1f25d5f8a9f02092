package server

import (
	"net/http"

	"lexdocs/pkg/domain"
)

type authResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	user, token, err := s.app.RegisterUser(body.Email, body.Name, body.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, authResponse{User: user, Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	user, token, err := s.app.Login(body.Email, body.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, authResponse{User: user, Token: token})
}

// handleClerk exchanges the external identity headers for a local session
// token, provisioning the user on first sight.
func (s *Server) handleClerk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	clerkID := r.Header.Get("X-Clerk-User-Id")
	email := r.Header.Get("X-Clerk-User-Email")
	name := r.Header.Get("X-Clerk-User-Name")
	if clerkID == "" || email == "" {
		writeError(w, http.StatusBadRequest, "external identity headers are required")
		return
	}
	user, token, err := s.app.ClerkExchange(clerkID, email, name)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, authResponse{User: user, Token: token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		writeData(w, http.StatusOK, user)
	case http.MethodPut:
		var body struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		updated, err := s.app.UpdateProfile(user, body.Name, body.Phone)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w)
	}
}

// handleLogout is stateless: tokens expire on their own, the endpoint exists
// so clients have a uniform sign-out call.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	writeMessage(w, http.StatusOK, "logged out", nil)
}
