package refunds

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/httpx"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Handler manages refund workflow endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers refund routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{refundID}", h.get)
	r.Get("/transactions/{transactionID}", h.listByTransaction)
	r.Post("/{refundID}/approve", h.approve)
	r.Post("/{refundID}/reject", h.reject)
	r.Post("/{refundID}/cancel", h.cancel)
	r.Post("/{refundID}/complete", h.complete)
}

type createRequest struct {
	TransactionID int64  `json:"transaction_id" validate:"required,gt=0"`
	Amount        string `json:"amount" validate:"required"`
	Method        string `json:"method" validate:"required"`
	Reason        string `json:"reason"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := shared.ParseMoney(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	out, err := h.service.Create(r.Context(), CreateInput{
		TransactionID: req.TransactionID,
		Amount:        amount,
		Method:        Method(req.Method),
		Reason:        req.Reason,
		Actor:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, refundResponse(out))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.refundID(w, r)
	if !ok {
		return
	}
	out, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, refundResponse(out))
}

func (h *Handler) listByTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID, err := strconv.ParseInt(chi.URLParam(r, "transactionID"), 10, 64)
	if err != nil || transactionID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	reqs, err := h.service.ListByTransaction(r.Context(), transactionID)
	if err != nil {
		h.logger.Error("list refunds", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, refundResponse(req))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type decisionRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.refundID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	_ = httpx.DecodeJSON(r, &req)
	out, err := h.service.Approve(r.Context(), id, req.Notes, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, refundResponse(out))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.refundID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	out, err := h.service.Reject(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, refundResponse(out))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.refundID(w, r)
	if !ok {
		return
	}
	out, err := h.service.Cancel(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, refundResponse(out))
}

type completeRequest struct {
	ProviderRef string `json:"provider_ref"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.refundID(w, r)
	if !ok {
		return
	}
	var req completeRequest
	_ = httpx.DecodeJSON(r, &req)
	out, err := h.service.MarkCompleted(r.Context(), id, req.ProviderRef, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, refundResponse(out))
}

func (h *Handler) refundID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "refundID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid refund id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Workflow State", err.Error())
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrExceedsRefundable),
		errors.Is(err, ErrCustomerRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrProcessorFailed):
		httpx.Problem(w, http.StatusBadGateway, "Processor Failed", err.Error())
	default:
		h.logger.Error("refund request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func refundResponse(req RefundRequest) map[string]any {
	out := map[string]any{
		"id":             req.ID,
		"transaction_id": req.TransactionID,
		"customer_id":    req.CustomerID,
		"amount":         req.Amount.String(),
		"method":         req.Method,
		"reason":         req.Reason,
		"status":         req.Status,
		"required_level": req.RequiredLevel,
		"notes":          req.Notes,
		"requested_at":   req.RequestedAt,
	}
	if req.ReturnID != nil {
		out["return_id"] = *req.ReturnID
	}
	if req.CreditNoteID != nil {
		out["credit_note_id"] = *req.CreditNoteID
	}
	if req.ProviderRef != nil {
		out["provider_ref"] = *req.ProviderRef
	}
	if req.CompletedAt != nil {
		out["completed_at"] = *req.CompletedAt
	}
	return out
}
