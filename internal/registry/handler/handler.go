package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"petregistry/internal/registry/models"
	"petregistry/internal/registry/service"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	"petregistry/pkg/platform/httputil"
	"petregistry/pkg/platform/middleware/auth"
	"petregistry/pkg/requestcontext"
)

// Service defines the registry operations the HTTP layer needs.
type Service interface {
	RegisterOrRefresh(ctx context.Context, id models.Identity, initial *models.State) (*models.Entry, bool, error)
	GetByPetCode(ctx context.Context, code domain.PetCode) (*models.Entry, error)
	GetByOwner(ctx context.Context, owner domain.OwnerID) ([]*models.Entry, error)
	Search(ctx context.Context, f models.Filters) (*models.SearchResult, error)
	GetHistory(ctx context.Context, code domain.PetCode) ([]models.HistoryRecord, error)
	Summary(ctx context.Context, code domain.PetCode) (*models.OwnershipSummary, error)
	RefreshDescriptive(ctx context.Context, code domain.PetCode, actor string) (*models.Entry, error)
	UpdateState(ctx context.Context, code domain.PetCode, state models.State, actor string) (*service.UpdateResult, error)
	ValidateCode(ctx context.Context, raw string) (*service.CodeStatus, error)
	GenerateCodes(ctx context.Context, n int) ([]string, error)
}

// Handler serves the registry endpoints.
type Handler struct {
	registry Service
	logger   *slog.Logger
}

func New(registry Service, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Register mounts the registry routes. r must already authenticate the actor.
func (h *Handler) Register(r chi.Router) {
	staff := auth.RequireRole(h.logger, auth.RoleStaff, auth.RoleManager, auth.RoleSystem)

	r.Route("/registry", func(r chi.Router) {
		r.With(staff).Post("/pets", h.HandleRegister)
		r.With(staff).Get("/pets", h.HandleSearch)
		r.Get("/pets/{code}", h.HandleGet)
		r.Get("/pets/{code}/history", h.HandleHistory)
		r.Get("/pets/{code}/summary", h.HandleSummary)
		r.With(staff).Post("/pets/{code}/refresh", h.HandleRefresh)
		r.With(staff).Patch("/pets/{code}/state", h.HandleUpdateState)
		r.Get("/owners/{ownerID}/pets", h.HandleListByOwner)
		r.Get("/codes/{code}/validate", h.HandleValidateCode)
	})
}

// RegisterAdmin mounts the admin-token routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/codes", h.HandleGenerateCodes)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RegisterRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, "invalid register request", err)
		return
	}
	id := req.identity
	id.AddedBy = requestcontext.ActorID(ctx)

	entry, created, err := h.registry.RegisterOrRefresh(ctx, id, req.state)
	if err != nil {
		h.writeError(ctx, w, "failed to register pet", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, FromEntry(entry))
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filters, err := parseFilters(r.URL.Query())
	if err != nil {
		h.writeError(ctx, w, "invalid search filters", err)
		return
	}
	filters = filters.Normalize()
	res, err := h.registry.Search(ctx, filters)
	if err != nil {
		h.writeError(ctx, w, "failed to search registry", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &SearchResponse{
		Pets:   fromEntries(res.Entries),
		Total:  res.Total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, ok := h.petCode(w, r)
	if !ok {
		return
	}
	entry, err := h.registry.GetByPetCode(ctx, code)
	if err != nil {
		h.writeError(ctx, w, "failed to load pet", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEntry(entry))
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, ok := h.petCode(w, r)
	if !ok {
		return
	}
	history, err := h.registry.GetHistory(ctx, code)
	if err != nil {
		h.writeError(ctx, w, "failed to load history", err)
		return
	}
	resp := &HistoryResponse{PetCode: string(code), History: make([]HistoryRecordResponse, 0, len(history))}
	for _, rec := range history {
		resp.History = append(resp.History, FromHistoryRecord(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, ok := h.petCode(w, r)
	if !ok {
		return
	}
	summary, err := h.registry.Summary(ctx, code)
	if err != nil {
		h.writeError(ctx, w, "failed to summarize ownership", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromSummary(summary))
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, ok := h.petCode(w, r)
	if !ok {
		return
	}
	entry, err := h.registry.RefreshDescriptive(ctx, code, requestcontext.ActorID(ctx))
	if err != nil {
		h.writeError(ctx, w, "failed to refresh pet", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEntry(entry))
}

// HandleUpdateState moves a pet between locations and statuses. Owner
// changes are rejected here; they belong to the transfer endpoints.
func (h *Handler) HandleUpdateState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, ok := h.petCode(w, r)
	if !ok {
		return
	}
	var req StateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, "invalid state request", err)
		return
	}
	entry, err := h.registry.GetByPetCode(ctx, code)
	if err != nil {
		h.writeError(ctx, w, "failed to load pet", err)
		return
	}
	state, err := req.toState(entry.OriginSource, false)
	if err != nil {
		h.writeError(ctx, w, "invalid state request", err)
		return
	}
	res, err := h.registry.UpdateState(ctx, code, *state, requestcontext.ActorID(ctx))
	if err != nil {
		h.writeError(ctx, w, "failed to update pet state", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEntry(res.Entry))
}

// HandleListByOwner lets customers list only their own pets.
func (h *Handler) HandleListByOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := domain.ParseOwnerID(chi.URLParam(r, "ownerID"))
	if err != nil {
		h.writeError(ctx, w, "invalid owner id", err)
		return
	}
	if requestcontext.ActorRole(ctx) == auth.RoleCustomer && string(owner) != requestcontext.ActorID(ctx) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "customers may only list their own pets"))
		return
	}
	entries, err := h.registry.GetByOwner(ctx, owner)
	if err != nil {
		h.writeError(ctx, w, "failed to list pets by owner", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &SearchResponse{
		Pets:  fromEntries(entries),
		Total: len(entries),
		Limit: models.MaxSearchLimit,
	})
}

func (h *Handler) HandleValidateCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.registry.ValidateCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, "failed to validate code", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromCodeStatus(status))
}

func (h *Handler) HandleGenerateCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req GenerateCodesRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, "invalid generate codes request", err)
		return
	}
	codes, err := h.registry.GenerateCodes(ctx, req.Count)
	if err != nil {
		h.writeError(ctx, w, "failed to generate codes", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, &GenerateCodesResponse{Codes: codes})
}

func (h *Handler) petCode(w http.ResponseWriter, r *http.Request) (domain.PetCode, bool) {
	code, err := domain.ParsePetCode(chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(r.Context(), w, "invalid pet code", err)
		return "", false
	}
	return code, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	httputil.LogAndWriteError(ctx, h.logger, w, msg, err)
}
