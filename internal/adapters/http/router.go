package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/kirillkom/property-desk/internal/config"
	"github.com/kirillkom/property-desk/internal/core/ports"
	"github.com/kirillkom/property-desk/internal/observability/metrics"
)

const serviceName = "api"

// Services are the inbound ports the router dispatches to. Metrics is
// optional.
type Services struct {
	Templates ports.TemplateService
	Locator   ports.LocatorIndex
	Documents ports.DocumentLifecycle
	Chat      ports.ChatRelayService
	Media     ports.ObjectStorage
	Tokens    *TokenVerifier
	Metrics   *metrics.HTTPServerMetrics
}

type Router struct {
	cfg       config.Config
	svc       Services
	validator *openAPIValidator
}

func NewRouter(cfg config.Config, svc Services) *Router {
	if svc.Tokens == nil {
		svc.Tokens = NewTokenVerifier(cfg.JWTSecret, nil)
	}
	validator, err := newOpenAPIValidator()
	if err != nil {
		slog.Error("openapi_disabled", "error", err)
	}
	return &Router{cfg: cfg, svc: svc, validator: validator}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeadersMiddleware)
	r.Use(corsMiddleware(rt.cfg.CORSAllowedOrigins))
	if rt.svc.Metrics != nil {
		r.Use(rt.svc.Metrics.Middleware(serviceName))
	}

	r.Get("/healthz", rt.healthz)
	if rt.svc.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.svc.Metrics.Handler())
	}
	if rt.validator != nil {
		r.Get("/openapi.json", rt.validator.serveSpec)
	}
	r.Get("/media/*", rt.serveMedia)

	trafficControl := rt.trafficControl()
	r.Group(func(r chi.Router) {
		r.Use(trafficControl)
		r.Use(authMiddleware(rt.svc.Tokens))
		if rt.validator != nil {
			r.Use(rt.validator.Middleware)
		}

		r.Route("/v1/templates", func(r chi.Router) {
			r.Get("/", rt.listTemplates)
			r.With(requireAdmin).Post("/", rt.createTemplate)
			r.Get("/{templateID}", rt.getTemplate)
			r.Get("/{templateID}/pages/{page}/locations", rt.pageLocations)
			r.Get("/{templateID}/pages/{page}/text", rt.pageText)
		})
		r.Get("/v1/questions/{questionID}/locations", rt.questionLocations)

		r.Route("/v1/documents", func(r chi.Router) {
			r.Get("/", rt.listDocuments)
			r.Post("/fill", rt.requestFill)
			r.Get("/{documentID}", rt.getDocument)
			r.Get("/{documentID}/answers", rt.listAnswers)
			r.Post("/{documentID}/answers", rt.submitAnswer)
			r.Post("/{documentID}/answers/batch", rt.submitAnswers)
			r.Get("/{documentID}/answers.xlsx", rt.exportAnswers)
		})

		r.Route("/v1/chats", func(r chi.Router) {
			r.Get("/", rt.listConversations)
			r.Post("/messages", rt.sendMessage)
			r.Get("/{conversationID}/messages", rt.listMessages)
		})
	})
	return r
}

// trafficControl builds the rate limiter and in-flight gate once so every
// protected route shares them.
func (rt *Router) trafficControl() func(http.Handler) http.Handler {
	var limiter *rate.Limiter
	if rt.cfg.APIRateLimitRPS > 0 {
		burst := rt.cfg.APIRateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), burst)
	}
	gate := backpressureGate(rt.cfg.APIBackpressureMaxInFlight, rt.cfg.APIBackpressureWait)
	return func(next http.Handler) http.Handler {
		return rateLimitMiddleware(gate(next), limiter)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
