package checkout

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/creditnote"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/inventory"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/httpx"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/sales"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Handler manages checkout endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers checkout routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.checkout)
}

type checkoutRequest struct {
	Kind       string           `json:"kind" validate:"required,oneof=ORDER SALE"`
	CustomerID *int64           `json:"customer_id"`
	Lines      []checkoutLine   `json:"lines" validate:"required,min=1,dive"`
	Tenders    []checkoutTender `json:"tenders" validate:"required,min=1,dive"`
}

type checkoutLine struct {
	UnitID int64 `json:"unit_id" validate:"required,gt=0"`
	Qty    int64 `json:"qty" validate:"required,gt=0"`
}

type checkoutTender struct {
	Method string `json:"method" validate:"required"`
	Amount string `json:"amount" validate:"required"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := Input{
		Kind:           sales.Kind(req.Kind),
		CustomerID:     req.CustomerID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Actor:          shared.ActorFromContext(r.Context()),
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, CartLine{UnitID: l.UnitID, Qty: l.Qty})
	}
	for _, t := range req.Tenders {
		amount, err := shared.ParseMoney(t.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		input.Tenders = append(input.Tenders, Tender{Method: TenderMethod(t.Method), Amount: amount})
	}

	result, err := h.service.Checkout(r.Context(), input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	payments := make([]map[string]any, 0, len(result.Payments))
	for _, p := range result.Payments {
		payments = append(payments, map[string]any{
			"method": p.Method,
			"amount": p.Amount.String(),
		})
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"transaction_id": result.Transaction.ID,
		"code":           result.Transaction.Code,
		"status":         result.Transaction.Status,
		"payment_status": result.Transaction.PaymentStatus,
		"total":          result.Transaction.TotalAmount.String(),
		"paid_total":     result.Transaction.PaidTotal.String(),
		"payments":       payments,
	})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPaymentShortfall), errors.Is(err, ErrOverpayment):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Payment Mismatch", err.Error())
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrNoTenders),
		errors.Is(err, ErrInvalidTender),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrCustomerRequired),
		errors.Is(err, creditnote.ErrPartialUseDisabled):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	default:
		h.logger.Error("checkout", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
