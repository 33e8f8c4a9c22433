package counts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stocknest/stocknest/internal/catalog"
	"github.com/stocknest/stocknest/internal/platform/httpx"
	"github.com/stocknest/stocknest/internal/shared"
)

// Handler exposes the count batch endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers count batch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/count-batches", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Post("/{id}/close", h.close)
		r.Post("/{id}/lines", h.addLine)
		r.Put("/{id}/lines/{lineID}", h.updateLine)
		r.Delete("/{id}/lines/{lineID}", h.deleteLine)
	})
}

type lineRequest struct {
	ItemID         string `json:"item_id"`
	ItemIdentifier string `json:"item_identifier"`
	AllowCreate    bool   `json:"allow_create"`
	QtyExpected    int64  `json:"qty_expected" validate:"gte=0"`
	QtyCounted     int64  `json:"qty_counted" validate:"gte=0"`
	Note           string `json:"note"`
}

type createRequest struct {
	LocationID string        `json:"location_id" validate:"required,uuid"`
	Note       string        `json:"note" validate:"max=500"`
	Lines      []lineRequest `json:"lines" validate:"dive"`
}

type batchResponse struct {
	CountBatch
	Lines []Line `json:"lines"`
}

func (r lineRequest) toInput() (LineInput, error) {
	ref := catalog.Ref{Identifier: r.ItemIdentifier, AllowCreate: r.AllowCreate}
	if r.ItemID != "" {
		id, err := uuid.Parse(r.ItemID)
		if err != nil {
			return LineInput{}, shared.Validationf("invalid item_id")
		}
		ref.ID = id
	}
	return LineInput{Item: ref, QtyExpected: r.QtyExpected, QtyCounted: r.QtyCounted, Note: r.Note}, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	locationID, _ := uuid.Parse(req.LocationID)
	input := CreateInput{LocationID: locationID, Note: req.Note}
	for _, lr := range req.Lines {
		in, err := lr.toInput()
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Lines = append(input.Lines, in)
	}
	cb, lines, err := h.service.Create(r.Context(), tenant, input)
	if err != nil {
		h.logger.Error("create count batch", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batchResponse{CountBatch: cb, Lines: lines})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	cb, lines, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batchResponse{CountBatch: cb, Lines: lines})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	batches, pagination, err := h.service.List(r.Context(), tenant, ListFilter{
		Status:  Status(r.URL.Query().Get("status")),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.logger.Error("list count batches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": batches, "pagination": pagination})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	if err := h.service.Close(r.Context(), tenant, id); err != nil {
		h.logger.Error("close count batch", slog.Any("error", err), slog.String("id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	var req lineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.AddLine(r.Context(), tenant, id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid line id")
		return
	}
	var req struct {
		QtyExpected int64  `json:"qty_expected" validate:"gte=0"`
		QtyCounted  int64  `json:"qty_counted" validate:"gte=0"`
		Note        string `json:"note"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := h.service.UpdateLine(r.Context(), tenant, id, lineID, UpdateLineInput{
		QtyExpected: req.QtyExpected,
		QtyCounted:  req.QtyCounted,
		Note:        req.Note,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) deleteLine(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid line id")
		return
	}
	if err := h.service.DeleteLine(r.Context(), tenant, id, lineID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
