package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/accentcoach/internal/api/handlers"
	"github.com/nikhilbhutani/accentcoach/internal/api/middleware"
	"github.com/nikhilbhutani/accentcoach/internal/auth"
	"github.com/nikhilbhutani/accentcoach/internal/config"
	"github.com/nikhilbhutani/accentcoach/internal/multimodal/tts"
	"github.com/nikhilbhutani/accentcoach/internal/observe"
	"github.com/nikhilbhutani/accentcoach/internal/queue"
)

// Services are the collaborators the router exposes. Detector, Translator
// and TTS are required; the rest switch optional endpoints on.
type Services struct {
	Detector   handlers.Detector
	Translator handlers.Translator
	TTS        tts.Provider

	// Pronunciation serves transcription and pronunciation assessment.
	Pronunciation handlers.Pronunciation

	History  handlers.HistoryStore
	Jobs     *queue.JobStore
	Enqueuer handlers.JobEnqueuer

	// Readiness maps dependency names to pingers. Only add non-nil values.
	Readiness map[string]handlers.Pinger

	Metrics        *observe.Metrics
	MetricsHandler http.Handler
}

type Router struct {
	mux *chi.Mux
	cfg *config.Config
	svc Services
	jwt *auth.JWTMiddleware
	rl  *middleware.RateLimiter
}

func NewRouter(cfg *config.Config, svc Services) *Router {
	return &Router{
		mux: chi.NewRouter(),
		cfg: cfg,
		svc: svc,
		jwt: auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		rl:  middleware.NewRateLimiter(100, 200),
	}
}

// Close stops background work started by the router.
func (rt *Router) Close() {
	rt.rl.Stop()
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if rt.svc.Metrics != nil {
		r.Use(middleware.Observe(rt.svc.Metrics))
	} else {
		r.Use(middleware.Logging)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))
	r.Use(rt.rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.svc.Readiness)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.svc.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", rt.svc.MetricsHandler)
	}

	accentOpts := []handlers.AccentOption{}
	if rt.svc.History != nil {
		accentOpts = append(accentOpts, handlers.WithHistory(rt.svc.History))
	}
	if rt.svc.Jobs != nil && rt.svc.Enqueuer != nil {
		accentOpts = append(accentOpts, handlers.WithJobs(rt.svc.Jobs, rt.svc.Enqueuer))
	}
	accentH := handlers.NewAccentHandler(rt.svc.Detector, rt.cfg.Audio.MaxUploadBytes, accentOpts...)

	var translationMetrics handlers.TranslationRecorder
	if rt.svc.Metrics != nil {
		translationMetrics = rt.svc.Metrics
	}
	translationH := handlers.NewTranslationHandler(rt.svc.Translator, translationMetrics)
	speechH := handlers.NewSpeechHandler(rt.svc.TTS)

	var pronunciationH *handlers.PronunciationHandler
	if rt.svc.Pronunciation != nil {
		var pronunciationMetrics handlers.PronunciationRecorder
		if rt.svc.Metrics != nil {
			pronunciationMetrics = rt.svc.Metrics
		}
		pronunciationH = handlers.NewPronunciationHandler(rt.svc.Pronunciation, rt.cfg.Audio.MaxUploadBytes, pronunciationMetrics)
	}

	// Unversioned route kept for existing frontends; never behind auth.
	r.Post("/detect-accent", accentH.Detect)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		r.Route("/accent", func(r chi.Router) {
			r.Post("/detect", accentH.Detect)
			r.Post("/jobs", accentH.CreateJob)
			r.Get("/jobs/{id}", accentH.GetJob)
			r.Get("/candidates", accentH.Candidates)
			r.Get("/history", accentH.History)
		})

		r.Post("/translation/translate", translationH.Translate)
		r.Route("/speech", func(r chi.Router) {
			r.Post("/synthesize", speechH.Synthesize)
			if pronunciationH != nil {
				r.Post("/transcribe", pronunciationH.Transcribe)
				r.Post("/pronunciation", pronunciationH.Assess)
			}
		})
	})

	return r
}
