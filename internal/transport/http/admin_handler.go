package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"licbind/internal/infrastructure"
	"licbind/internal/services"
	v1 "licbind/pkg/contracts/api/v1"
)

// AdminHandler serves the single-owner administrative surface: allowlist root
// rotation, offer creation and revocation, the open-minting toggle and the
// metadata base pointer. The router mounts it behind bearer authentication.
type AdminHandler struct {
	service services.RegistryService
	logger  *slog.Logger
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(service services.RegistryService, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &AdminHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "admin")),
	}
}

// Routes returns the administrative routes.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Put("/allowlist/root", h.SetRoot)
	r.Post("/offers", h.CreateOffer)
	r.Delete("/offers/{id}", h.RevokeOffer)
	r.Put("/open", h.SetOpenMinting)
	r.Put("/metadata/base", h.SetMetadataBase)

	return r
}

func (h *AdminHandler) SetRoot(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "admin.set_root")
	defer span.End()

	var req v1.SetRootRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, badPayload(err))
		return
	}

	if err := h.service.SetAllowlistRoot(r.Context(), req); err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "allowlist root updated",
		slog.String("root", req.Root))
	render.NoContent(w, r)
}

func (h *AdminHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "admin.create_offer")
	defer span.End()

	var req v1.OfferCreateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, badPayload(err))
		return
	}

	resp, err := h.service.CreateOffer(r.Context(), req)
	if err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "offer created",
		slog.String("offer_id", resp.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

func (h *AdminHandler) RevokeOffer(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "admin.revoke_offer")
	defer span.End()

	id := chi.URLParam(r, "id")
	if err := h.service.RevokeOffer(r.Context(), id); err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "offer revoked",
		slog.String("offer_id", id))
	render.NoContent(w, r)
}

func (h *AdminHandler) SetOpenMinting(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "admin.set_open_minting")
	defer span.End()

	var req v1.OpenToggleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, badPayload(err))
		return
	}

	if err := h.service.SetOpenMinting(r.Context(), req); err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "open minting toggled",
		slog.Bool("enabled", req.Enabled))
	render.NoContent(w, r)
}

func (h *AdminHandler) SetMetadataBase(w http.ResponseWriter, r *http.Request) {
	r, span := startSpan(r, "admin.set_metadata_base")
	defer span.End()

	var req v1.SetMetadataBaseRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, badPayload(err))
		return
	}

	if err := h.service.SetMetadataBase(r.Context(), req); err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "metadata base updated",
		slog.String("base", req.Base))
	render.NoContent(w, r)
}
