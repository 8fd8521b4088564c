package handlers

import (
	"net/http"

	"bayou-chat/internal/models"
	"bayou-chat/internal/store"
	"bayou-chat/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegisterRequest represents a request to register a new user.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest represents a request to log in a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token and the user it belongs to.
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// HandleRegister creates a new user and issues a token for it.
func (s *Server) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !s.decodeBody(w, r, &req) {
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			s.respondError(w, err)
			return
		}

		user, err := s.Users.CreateUser(r.Context(), &models.User{
			ID:             uuid.New(),
			Username:       req.Username,
			Email:          req.Email,
			HashedPassword: string(hashed),
		})
		if err == store.ErrDuplicate {
			s.respondError(w, utils.NewAppError(utils.ErrDuplicate, "email already registered", nil))
			return
		}
		if err != nil {
			s.respondError(w, err)
			return
		}

		token, err := s.Auth.GenerateToken(user.ID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, LoginResponse{Token: token, User: user})
	}
}

// HandleLogin verifies credentials and issues a token.
func (s *Server) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !s.decodeBody(w, r, &req) {
			return
		}

		user, err := s.Users.GetUserByEmail(r.Context(), req.Email)
		if err == store.ErrNotFound {
			s.respondError(w, utils.NewUnauthenticatedError("invalid credentials"))
			return
		}
		if err != nil {
			s.respondError(w, err)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)) != nil {
			s.respondError(w, utils.NewUnauthenticatedError("invalid credentials"))
			return
		}

		token, err := s.Auth.GenerateToken(user.ID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
	}
}
