package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	appanalyses "github.com/bryanwahyu/research-market/internal/application/analyses"
	"github.com/bryanwahyu/research-market/internal/application/checkpoint"
	appdeals "github.com/bryanwahyu/research-market/internal/application/deals"
	applistings "github.com/bryanwahyu/research-market/internal/application/listings"
	"github.com/bryanwahyu/research-market/internal/domain/analyses"
	"github.com/bryanwahyu/research-market/internal/domain/errs"
	"github.com/bryanwahyu/research-market/internal/domain/papers"
	"github.com/bryanwahyu/research-market/internal/domain/payment"
	"github.com/bryanwahyu/research-market/internal/middleware"
)

// Deps is everything the router needs.
type Deps struct {
	Analyses   *appanalyses.Service
	Checkpoint *checkpoint.Service
	Listings   *applistings.Service
	Deals      *appdeals.Service
	Log        *zap.Logger

	JWTSecret   []byte
	EngineToken string
	CORSOrigins []string
	Limiter     *middleware.RateLimiter

	// Health checkers reported on /health; Ready gates /healthz/ready.
	Health map[string]middleware.HealthChecker
	Ready  middleware.HealthChecker
}

type Router struct {
	analyses   *appanalyses.Service
	checkpoint *checkpoint.Service
	listings   *applistings.Service
	deals      *appdeals.Service
	log        *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	r := &Router{
		analyses:   d.Analyses,
		checkpoint: d.Checkpoint,
		listings:   d.Listings,
		deals:      d.Deals,
		log:        d.Log,
	}
	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(d.Log))
	mux.Use(middleware.Metrics)

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Get("/healthz/live", middleware.LivenessHandler)
	if d.Ready != nil {
		mux.Get("/healthz/ready", middleware.ReadinessHandler(d.Ready))
	}
	mux.Handle("/metrics", promhttp.Handler())

	mux.Post("/webhooks/stripe", r.wrap(r.handleStripeWebhook))

	mux.Route("/v1", func(v1 chi.Router) {
		// dipanggil balik oleh workflow engine
		v1.Route("/engine/analyses", func(rt chi.Router) {
			rt.Use(middleware.EngineToken(d.EngineToken))
			rt.Get("/resumable", r.wrap(r.handleEngineResumable))
			rt.Post("/{analysisId}/candidates", r.wrap(r.handleEngineCandidates))
			rt.Post("/{analysisId}/activity", r.wrap(r.handleEngineActivity))
			rt.Post("/{analysisId}/complete", r.wrap(r.handleEngineComplete))
			rt.Post("/{analysisId}/fail", r.wrap(r.handleEngineFail))
			rt.Post("/{analysisId}/technical-report", r.wrap(r.handleEngineTechnicalReport))
		})

		v1.Group(func(rt chi.Router) {
			rt.Use(middleware.JWTAuth(d.JWTSecret))
			if d.Limiter != nil {
				rt.Use(middleware.RateLimit(d.Limiter))
			}

			rt.Post("/analyses", r.wrap(r.handleSubmit))
			rt.Get("/analyses", r.wrap(r.handleList))
			rt.Get("/analyses/{id}", r.wrap(r.handleGet))
			rt.Delete("/analyses/{id}", r.wrap(r.handleDelete))
			rt.Get("/analyses/{id}/progress", r.wrap(r.handleProgress))
			rt.Get("/analyses/{id}/checkpoint", r.wrap(r.handleCheckpoint))
			rt.Post("/analyses/{id}/checkpoint", r.wrap(r.handleConfirm))
			rt.Get("/analyses/{id}/technical-report", r.wrap(r.handleTechnicalReport))
			rt.Get("/analyses/{id}/cvs-report", r.wrap(r.handleCVSReport))
			rt.Post("/analyses/{id}/listing", r.wrap(r.handlePublish))

			rt.Get("/listings", r.wrap(r.handleBrowse))
			rt.Get("/listings/{id}", r.wrap(r.handleListing))
			rt.Post("/listings/{id}/deals", r.wrap(r.handleCommit))

			rt.Get("/deals", r.wrap(r.handleDeals))
			rt.Get("/deals/{id}", r.wrap(r.handleDeal))
			rt.Post("/deals/{id}/status", r.wrap(r.handleDealStatus))
			rt.Get("/deals/{id}/invoice", r.wrap(r.handleInvoice))
			rt.Post("/deals/{id}/payment", r.wrap(r.handlePayment))
			rt.Post("/deals/{id}/documents", r.wrap(r.handleUpload))
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps use-case errors to status codes in one place.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, analyses.ErrReportNotReady):
			http.Error(w, "report not ready", http.StatusNotFound)
		case errors.Is(err, errs.ErrValidation), errors.Is(err, papers.ErrNoSelection):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, payment.ErrInvalidSignature):
			http.Error(w, "invalid signature", http.StatusBadRequest)
		case errors.Is(err, errs.ErrUnauthorized):
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		case errors.Is(err, errs.ErrNotFoundOrForbidden),
			errors.Is(err, analyses.ErrAnalysisNotFound),
			errors.Is(err, sql.ErrNoRows):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, errs.ErrInvalidState), errors.Is(err, errs.ErrConflict):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, errs.ErrUnavailable):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			r.log.Error("request failed",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("request_id", chimw.GetReqID(req.Context())),
				zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

const maxJSONBody = 1 << 20

func decodeJSON(req *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errs.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, body string) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := io.WriteString(w, body)
	return err
}

// caller returns the request-scoped identity set by JWTAuth.
func caller(req *http.Request) (middleware.Identity, error) {
	id, ok := middleware.IdentityFrom(req.Context())
	if !ok {
		return middleware.Identity{}, errs.ErrUnauthorized
	}
	return id, nil
}

// pathID reads a UUID path parameter; malformed ids look like missing ones.
func pathID(req *http.Request, name string) (string, error) {
	raw := chi.URLParam(req, name)
	if err := middleware.ValidateID(name, raw); err != nil {
		return "", errs.ErrNotFoundOrForbidden
	}
	return raw, nil
}

func now() time.Time { return time.Now().UTC() }
