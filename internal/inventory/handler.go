package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/httpx"
)

// Handler exposes read access to the stock ledger. Mutations flow through
// checkout, lifecycle transitions and returns, never through this surface.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/units/{unitID}", h.getUnit)
	r.Get("/units/{unitID}/movements", h.listMovements)
}

func (h *Handler) getUnit(w http.ResponseWriter, r *http.Request) {
	unitID, err := strconv.ParseInt(chi.URLParam(r, "unitID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid unit id")
		return
	}
	unit, err := h.service.GetUnit(r.Context(), unitID)
	if err != nil {
		if errors.Is(err, ErrUnitNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get stock unit", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":         unit.ID,
		"product_id": unit.ProductID,
		"variant_id": unit.VariantID,
		"quantity":   unit.Quantity,
		"reserved":   unit.Reserved,
		"available":  unit.Available(),
	})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	unitID, err := strconv.ParseInt(chi.URLParam(r, "unitID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid unit id")
		return
	}
	filter := MovementFilter{UnitID: unitID}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = t
		}
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}
