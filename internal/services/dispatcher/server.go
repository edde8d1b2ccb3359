package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Trigger interface {
	RunOnce(ctx context.Context) (*Summary, error)
	SendTest(ctx context.Context, userID string) (*Summary, error)
}

type ServerConfig struct {
	PublicKey string
	// TokenHash is a bcrypt hash of the trigger bearer token. Empty disables
	// the trigger routes.
	TokenHash  string
	RatePerMin int
}

type Server struct {
	log     *zap.Logger
	trigger Trigger
	health  func(context.Context) error
	cfg     ServerConfig
}

func NewServer(log *zap.Logger, trigger Trigger, health func(context.Context) error, cfg ServerConfig) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log:     log.With(zap.String("component", "dispatcher.http")),
		trigger: trigger,
		health:  health,
		cfg:     cfg,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/vapid/public-key", s.handlePublicKey)

	if s.cfg.TokenHash != "" {
		r.Group(func(r chi.Router) {
			if s.cfg.RatePerMin > 0 {
				r.Use(httprate.LimitByIP(s.cfg.RatePerMin, time.Minute))
			}
			r.Use(s.requireToken)
			r.Post("/v1/dispatch", s.handleDispatch)
			r.Post("/v1/sellers/{userID}/test-push", s.handleTestPush)
		})
	}

	return otelhttp.NewHandler(r, "dispatcher.http")
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" ||
			bcrypt.CompareHashAndPassword([]byte(s.cfg.TokenHash), []byte(token)) != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if s.health != nil {
		if err := s.health(ctx); err != nil {
			http.Error(w, "unhealthy: db", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handlePublicKey(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": s.cfg.PublicKey})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	sum, err := s.trigger.RunOnce(r.Context())
	if errors.Is(err, ErrLocked) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.log.Error("dispatch", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleTestPush(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}
	sum, err := s.trigger.SendTest(r.Context(), userID)
	if err != nil {
		s.log.Error("test push", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
