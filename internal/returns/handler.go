package returns

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/inventory"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/httpx"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/sales"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Handler manages return endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers return routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.process)
	r.Get("/{returnID}", h.get)
	r.Get("/transactions/{transactionID}", h.listByTransaction)
}

type processRequest struct {
	TransactionID int64         `json:"transaction_id" validate:"required,gt=0"`
	Reason        string        `json:"reason"`
	Lines         []processLine `json:"lines" validate:"required,min=1,dive"`
}

type processLine struct {
	LineItemID int64 `json:"line_item_id" validate:"required,gt=0"`
	Quantity   int64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ProcessInput{
		TransactionID: req.TransactionID,
		Reason:        req.Reason,
		Actor:         shared.ActorFromContext(r.Context()),
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, RequestedLine{LineItemID: l.LineItemID, Quantity: l.Quantity})
	}
	result, err := h.service.Process(r.Context(), input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	out := map[string]any{
		"return":             returnResponse(result.Record),
		"transaction_status": result.TransactionStatus,
	}
	if result.RefundRequest != nil {
		out["refund_request_id"] = result.RefundRequest.ID
		out["refund_status"] = result.RefundRequest.Status
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "returnID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid return id")
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, returnResponse(rec))
}

func (h *Handler) listByTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID, err := strconv.ParseInt(chi.URLParam(r, "transactionID"), 10, 64)
	if err != nil || transactionID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	recs, err := h.service.ListByTransaction(r.Context(), transactionID)
	if err != nil {
		h.logger.Error("list returns", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, returnResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrReturnNotFound), errors.Is(err, sales.ErrTransactionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotReturnable), errors.Is(err, ErrWindowClosed):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Not Returnable", err.Error())
	case errors.Is(err, ErrCustomerRequired),
		errors.Is(err, ErrNothingToReturn),
		errors.Is(err, ErrUnknownLineItem),
		errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, inventory.ErrUnitNotFound):
		httpx.Problem(w, http.StatusConflict, "Stock Unit Missing", err.Error())
	default:
		h.logger.Error("process return", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func returnResponse(rec ReturnRecord) map[string]any {
	lines := make([]map[string]any, 0, len(rec.Lines))
	for _, l := range rec.Lines {
		lines = append(lines, map[string]any{
			"line_item_id": l.LineItemID,
			"unit_id":      l.UnitID,
			"quantity":     l.Quantity,
			"unit_price":   l.UnitPrice.String(),
			"amount":       l.Amount.String(),
		})
	}
	return map[string]any{
		"id":             rec.ID,
		"transaction_id": rec.TransactionID,
		"customer_id":    rec.CustomerID,
		"refund_total":   rec.RefundTotal.String(),
		"reason":         rec.Reason,
		"created_at":     rec.CreatedAt,
		"lines":          lines,
	}
}
