package creditnote

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/httpx"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Handler manages credit note endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers credit note routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.issue)
	r.Get("/customers/{customerID}", h.listByCustomer)
}

type issueRequest struct {
	CustomerID int64  `json:"customer_id" validate:"required,gt=0"`
	Amount     string `json:"amount" validate:"required"`
	Reference  string `json:"reference"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
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
	note, err := h.service.Issue(r.Context(), req.CustomerID, amount, req.Reference, shared.ActorFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrCustomerRequired):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("issue credit note", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, noteResponse(note))
}

func (h *Handler) listByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
	if err != nil || customerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer id")
		return
	}
	notes, err := h.service.ListByCustomer(r.Context(), customerID)
	if err != nil {
		h.logger.Error("list credit notes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		out = append(out, noteResponse(note))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func noteResponse(note CreditNote) map[string]any {
	return map[string]any{
		"id":          note.ID,
		"customer_id": note.CustomerID,
		"amount":      note.Amount.String(),
		"remaining":   note.Remaining.String(),
		"status":      note.Status,
		"reference":   note.Reference,
		"created_at":  note.CreatedAt,
		"expires_at":  note.ExpiresAt,
	}
}
