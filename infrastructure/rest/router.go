// Package rest exposes the durable side of the relay over HTTP: message
// send and history, accounts and contacts, health and the websocket upgrade.
package rest

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/api"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

const maxBodySize = 1 << 20

var validate = validator.New()

// NewRouter mounts every route. socket is the websocket upgrade handler and
// authn the token middleware guarding it, the message routes and the contacts
// route. connections reports the number of live connections for the health route.
func NewRouter(log *slog.Logger, messages *MessageHandler, accounts *AuthHandler,
	socket http.Handler, authn func(http.Handler) http.Handler,
	connections func() int, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Connections: connections()})
	})

	// No timeout on the upgrade, the connection outlives the request
	r.With(authn).Get("/socket", socket.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))
		r.Route("/api/messages", func(r chi.Router) {
			r.Use(authn)
			messages.RegisterRoutes(r)
		})
		r.Route("/api/auth", func(r chi.Router) {
			accounts.RegisterRoutes(r, authn)
		})
	})
	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"request_id", chimiddleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}

// actingAs rejects a request made on behalf of another identity than the
// token subject. Anonymous requests only get here when tokens are optional.
func actingAs(r *http.Request, identity string) error {
	subject := auth.SubjectFromContext(r.Context())
	if subject != "" && subject != domain.UserIdentity(identity) {
		return fmt.Errorf("%w: token was issued to another identity", errors.ErrUnauthorized)
	}
	return nil
}

// decode reads a JSON body into T and validates it.
func decode[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var body T
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err != nil {
		return body, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(body); err != nil {
		return body, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errors.MapToHTTPStatus(err), api.ErrorResponse{Error: err.Error()})
}
