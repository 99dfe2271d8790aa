package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	reghandler "petregistry/internal/registry/handler"
	"petregistry/internal/transfer"
	"petregistry/pkg/domain"
	"petregistry/pkg/platform/httputil"
	"petregistry/pkg/platform/middleware/auth"
	"petregistry/pkg/requestcontext"
)

// IdempotencyKeyHeader lets clients retry a transfer safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// Service defines the transfer operations the HTTP layer needs.
type Service interface {
	RecordManualTransfer(ctx context.Context, code domain.PetCode, newOwner domain.OwnerID, reason, performedBy, idempotencyKey string) (*transfer.Result, error)
	MarkDeceased(ctx context.Context, code domain.PetCode, reason, performedBy string) (*transfer.Result, error)
}

type Handler struct {
	transfers Service
	logger    *slog.Logger
}

func New(transfers Service, logger *slog.Logger) *Handler {
	return &Handler{transfers: transfers, logger: logger}
}

// Register mounts the staff-only transfer routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/transfers", func(r chi.Router) {
		r.Use(auth.RequireRole(h.logger, auth.RoleStaff, auth.RoleManager, auth.RoleSystem))
		r.Post("/", h.HandleManualTransfer)
		r.Post("/deceased", h.HandleMarkDeceased)
	})
}

type ManualTransferRequest struct {
	PetCode    string `json:"pet_code" validate:"required"`
	NewOwnerID string `json:"new_owner_id" validate:"required,max=64"`
	Reason     string `json:"reason" validate:"max=500"`
}

type DeceasedRequest struct {
	PetCode string `json:"pet_code" validate:"required"`
	Reason  string `json:"reason" validate:"required,max=500"`
}

// TransferResponse is the entry after the change plus the history record.
type TransferResponse struct {
	Pet      *reghandler.EntryResponse         `json:"pet"`
	Record   *reghandler.HistoryRecordResponse `json:"record,omitempty"`
	Replayed bool                              `json:"replayed"`
}

func (h *Handler) HandleManualTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ManualTransferRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, "invalid transfer request", err)
		return
	}
	code, err := domain.ParsePetCode(req.PetCode)
	if err != nil {
		h.writeError(ctx, w, "invalid transfer request", err)
		return
	}
	owner, err := domain.ParseOwnerID(req.NewOwnerID)
	if err != nil {
		h.writeError(ctx, w, "invalid transfer request", err)
		return
	}
	res, err := h.transfers.RecordManualTransfer(ctx, code, owner, req.Reason,
		requestcontext.ActorID(ctx), r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		h.writeError(ctx, w, "failed to record transfer", err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, toResponse(res))
}

func (h *Handler) HandleMarkDeceased(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req DeceasedRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, "invalid deceased request", err)
		return
	}
	code, err := domain.ParsePetCode(req.PetCode)
	if err != nil {
		h.writeError(ctx, w, "invalid deceased request", err)
		return
	}
	res, err := h.transfers.MarkDeceased(ctx, code, req.Reason, requestcontext.ActorID(ctx))
	if err != nil {
		h.writeError(ctx, w, "failed to mark pet deceased", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(res))
}

func toResponse(res *transfer.Result) *TransferResponse {
	resp := &TransferResponse{Pet: reghandler.FromEntry(res.Entry), Replayed: res.Replayed}
	if res.Record != nil {
		rec := reghandler.FromHistoryRecord(*res.Record)
		resp.Record = &rec
	}
	return resp
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	httputil.LogAndWriteError(ctx, h.logger, w, msg, err)
}
