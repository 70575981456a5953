// Package http contains the chi HTTP transport for the license registry:
// the public registry surface, the admin surface and the health probe.
// Handlers translate between JSON and the service layer and render failures
// as RFC 7807 problems.
package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "licbind/internal/errors"
	"licbind/internal/infrastructure"
	"licbind/internal/services"
	v1 "licbind/pkg/contracts/api/v1"
)

const tracerName = "registry-handler"

// RegistryHandler serves the public registry surface.
type RegistryHandler struct {
	service services.RegistryService
	logger  *slog.Logger
}

// NewRegistryHandler creates a registry handler.
func NewRegistryHandler(service services.RegistryService, logger *slog.Logger) *RegistryHandler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &RegistryHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "registry")),
	}
}

// Routes returns the public registry routes.
func (h *RegistryHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/status", h.GetStatus)

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.CreateAccount)
		r.Post("/derive", h.GetAccount)
	})

	r.Route("/mint", func(r chi.Router) {
		r.Post("/allowlist", h.MintAllowlist)
		r.Post("/offer", h.MintOffer)
		r.Post("/open", h.MintOpen)
	})

	r.Route("/tokens", func(r chi.Router) {
		r.Get("/{id}", h.GetToken)
		r.Get("/{id}/terms", h.GetTerms)
	})

	r.Route("/offers", func(r chi.Router) {
		r.Get("/", h.ListOffers)
		r.Get("/{id}", h.GetOffer)
	})

	return r
}

// renderError maps a failure to its RFC 7807 problem and renders it.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	problem := apperrors.ToProblem(err, r.URL.Path)
	problem.WithExtension("trace_id", infrastructure.TraceIDFromContext(r.Context()))
	render.Render(w, r, problem)
}

// startSpan opens a handler span with the common attributes.
func startSpan(r *http.Request, operation string) (*http.Request, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), operation,
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		),
	)
	return r.WithContext(ctx), span
}

func (h *RegistryHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "registry.status")
	defer span.End()

	resp, err := h.service.Status(r.Context())
	if err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

func (h *RegistryHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "registry.create_account")
	defer span.End()

	var req v1.AccountCreateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, badPayload(err))
		return
	}

	resp, err := h.service.CreateAccount(r.Context(), req)
	if err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "account created",
		slog.String("account", resp.Account))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

func (h *RegistryHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "registry.derive_account")
	defer span.End()

	var req v1.AssetRefRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, badPayload(err))
		return
	}

	resp, err := h.service.GetAccount(r.Context(), req)
	if err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

func (h *RegistryHandler) MintAllowlist(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "registry.mint_allowlist")
	defer span.End()

	var req v1.AllowlistMintRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, badPayload(err))
		return
	}

	resp, err := h.service.MintAllowlist(r.Context(), req)
	if err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "allowlist mint completed",
		slog.Uint64("token_id", resp.TokenID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

func (h *RegistryHandler) MintOffer(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "registry.mint_offer")
	defer span.End()

	var req v1.OfferMintRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, badPayload(err))
		return
	}

	resp, err := h.service.MintOffer(r.Context(), req)
	if err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "offer mint completed",
		slog.Uint64("token_id", resp.TokenID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

func (h *RegistryHandler) MintOpen(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "registry.mint_open")
	defer span.End()

	var req v1.OpenMintRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, badPayload(err))
		return
	}

	resp, err := h.service.MintOpen(r.Context(), req)
	if err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "open mint completed",
		slog.Uint64("token_id", resp.TokenID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

func (h *RegistryHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "registry.get_token")
	defer span.End()

	id, err := parseTokenID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	resp, err := h.service.GetToken(r.Context(), id)
	if err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

func (h *RegistryHandler) GetTerms(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "registry.get_terms")
	defer span.End()

	id, err := parseTokenID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	resp, err := h.service.GetTerms(r.Context(), id)
	if err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

func (h *RegistryHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "registry.list_offers")
	defer span.End()

	resp, err := h.service.ListOffers(r.Context())
	if err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

func (h *RegistryHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "registry.get_offer")
	defer span.End()

	resp, err := h.service.GetOffer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

func parseTokenID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperrors.NewProblemDetails(
			http.StatusBadRequest,
			apperrors.TypeValidation,
			"Validation Failed",
			"token id must be a decimal integer",
			r.URL.Path,
		)
	}
	return id, nil
}

func badPayload(err error) error {
	return apperrors.NewProblemDetails(
		http.StatusBadRequest,
		apperrors.TypeValidation,
		"Malformed Request Body",
		err.Error(),
		"",
	)
}
