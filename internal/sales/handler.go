package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/inventory"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/httpx"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Handler manages lifecycle endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers lifecycle routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.get)
	r.Get("/{id}/status-logs", h.statusLogs)
	r.Post("/{id}/status", h.changeStatus)
	r.Post("/{id}/shipment", h.assignShipment)
	r.Post("/bulk-status", h.bulkChangeStatus)
}

type changeStatusRequest struct {
	To   string         `json:"to" validate:"required"`
	Note string         `json:"note"`
	Meta map[string]any `json:"meta"`
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	var req changeStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err = h.service.ChangeStatus(r.Context(), ChangeInput{
		TransactionID: id,
		To:            Status(req.To),
		Note:          req.Note,
		Meta:          req.Meta,
		Actor:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transaction_id": id, "status": req.To})
}

type bulkStatusRequest struct {
	IDs  []int64 `json:"ids" validate:"required,min=1"`
	To   string  `json:"to" validate:"required"`
	Note string  `json:"note"`
}

func (h *Handler) bulkChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	results := h.service.BulkChangeStatus(r.Context(), req.IDs, Status(req.To), req.Note, shared.ActorFromContext(r.Context()))
	httpx.JSON(w, http.StatusOK, map[string]any{"results": results})
}

type shipmentRequest struct {
	AWB     string `json:"awb" validate:"required"`
	Courier string `json:"courier"`
}

func (h *Handler) assignShipment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	var req shipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err = h.service.AssignShipment(r.Context(), ShipmentInput{
		TransactionID: id,
		AWB:           req.AWB,
		Courier:       req.Courier,
		Actor:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transaction_id": id, "awb": req.AWB})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	txn, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) statusLogs(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	logs, err := h.service.StatusLogs(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTransactionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrShipmentNotAssignable):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Illegal Transition", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	default:
		h.logger.Error("sales request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
