package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"bayou-chat/internal/chat"
	"bayou-chat/internal/middleware"
	"bayou-chat/internal/store"
	"bayou-chat/internal/utils"
	"bayou-chat/internal/websocket"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Server holds the presentation layer's dependencies.
type Server struct {
	Service  *chat.Service
	Users    store.UserStore
	Hub      *websocket.Hub
	Auth     *middleware.Authenticator
	Metrics  *utils.MetricsCollector
	Log      *slog.Logger
	validate *validator.Validate

	allowedOrigins []string
}

func NewServer(
	service *chat.Service,
	users store.UserStore,
	hub *websocket.Hub,
	auth *middleware.Authenticator,
	metrics *utils.MetricsCollector,
	log *slog.Logger,
	allowedOrigins []string,
) *Server {
	return &Server{
		Service:        service,
		Users:          users,
		Hub:            hub,
		Auth:           auth,
		Metrics:        metrics,
		Log:            log,
		validate:       validator.New(),
		allowedOrigins: allowedOrigins,
	}
}

// Routes wires every endpoint into a handler with auth and CORS applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.HandleHealth())
	mux.Handle("GET /metrics", s.Metrics.Handler())

	mux.HandleFunc("POST /auth/register", s.HandleRegister())
	mux.HandleFunc("POST /auth/login", s.HandleLogin())

	authed := func(h http.HandlerFunc) http.Handler { return s.Auth.RequireAuth(h) }
	mux.Handle("GET /messages/users", authed(s.HandleGetUsers()))
	mux.Handle("GET /messages/{id}", authed(s.HandleGetConversation()))
	mux.Handle("POST /messages/send/{id}", authed(s.HandleSendMessage()))
	mux.Handle("POST /messages/reply/{messageId}", authed(s.HandleReplyMessage()))
	mux.Handle("PUT /messages/edit/{messageId}", authed(s.HandleEditMessage()))
	mux.Handle("DELETE /messages/delete/{messageId}", authed(s.HandleDeleteMessage()))
	mux.Handle("PUT /messages/read/{messageId}", authed(s.HandleMarkMessageRead()))

	mux.HandleFunc("GET /ws", s.HandleWebSocket())

	cors := middleware.CORSMiddleware(middleware.DefaultCORSConfig(s.allowedOrigins))
	return cors(mux)
}

// HandleHealth reports liveness.
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Log.Error("failed to encode response", "error", err)
	}
}

// respondError maps service errors onto HTTP statuses, hiding internals
// behind the error code.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*utils.AppError)
	if !ok {
		appErr = utils.NewAppError(utils.ErrStoreUnavailable, "internal error", err)
	}
	if appErr.Origin != nil {
		s.Log.Error("request failed", "code", appErr.Code, "error", appErr.Origin)
	}
	s.respondJSON(w, utils.AppErrorToHTTPStatus(appErr.Code), map[string]string{
		"code":    appErr.Code,
		"message": appErr.Message,
	})
}

// actorID pulls the verified acting user from the request context.
func (s *Server) actorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		s.respondError(w, utils.NewUnauthenticatedError("no verified actor"))
		return uuid.Nil, false
	}
	return userID, true
}

// pathID parses a UUID path parameter.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		s.respondError(w, utils.NewInvalidInputError("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes and validates a JSON request body.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, utils.NewInvalidInputError("invalid request body"))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.respondError(w, utils.NewInvalidInputError(err.Error()))
		return false
	}
	return true
}
