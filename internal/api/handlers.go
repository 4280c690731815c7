package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"freight/internal/catalog"
	"freight/internal/domain/shipment"
	"freight/internal/usecase"

	"github.com/go-chi/chi/v5"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
	roleStaff      = "staff"
)

type Handlers struct {
	createShipmentUC *usecase.CreateShipment
	getShipmentUC    *usecase.GetShipment
	updateStatusUC   *usecase.UpdateStatus
	assignDriverUC   *usecase.AssignDriver
	cancelShipmentUC *usecase.CancelShipment
	getTimelineUC    *usecase.GetTimeline
	getCargoUC       *usecase.GetCargo
	listClaimsUC     *usecase.ListClaims
	logger           *slog.Logger
}

type UseCases struct {
	CreateShipment *usecase.CreateShipment
	GetShipment    *usecase.GetShipment
	UpdateStatus   *usecase.UpdateStatus
	AssignDriver   *usecase.AssignDriver
	CancelShipment *usecase.CancelShipment
	GetTimeline    *usecase.GetTimeline
	GetCargo       *usecase.GetCargo
	ListClaims     *usecase.ListClaims
}

func NewHandlers(uc UseCases, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		createShipmentUC: uc.CreateShipment,
		getShipmentUC:    uc.GetShipment,
		updateStatusUC:   uc.UpdateStatus,
		assignDriverUC:   uc.AssignDriver,
		cancelShipmentUC: uc.CancelShipment,
		getTimelineUC:    uc.GetTimeline,
		getCargoUC:       uc.GetCargo,
		listClaimsUC:     uc.ListClaims,
		logger:           logger,
	}
}

// requester is the caller identity forwarded by the gateway in front of
// the API.
type requester struct {
	ID    string
	Staff bool
}

func requesterFrom(r *http.Request) (requester, bool) {
	id := strings.TrimSpace(r.Header.Get(headerUserID))
	if id == "" {
		return requester{}, false
	}
	return requester{
		ID:    id,
		Staff: strings.EqualFold(r.Header.Get(headerUserRole), roleStaff),
	}, true
}

func (h *Handlers) CreateShipment(w http.ResponseWriter, r *http.Request) {
	who, ok := requesterFrom(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing "+headerUserID+" header")
		return
	}

	var req struct {
		Client string               `json:"client"`
		Ports  []*shipment.Location `json:"port"`
		Cargo  []shipment.CargoItem `json:"cargo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.createShipmentUC.Execute(r.Context(), usecase.CreateShipmentParams{
		UserID: who.ID,
		Client: req.Client,
		Ports:  req.Ports,
		Cargo:  req.Cargo,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) GetShipment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "missing shipment id")
		return
	}

	s, err := h.getShipmentUC.Execute(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) GetTimeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "missing shipment id")
		return
	}

	timeline, err := h.getTimelineUC.Execute(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, timeline)
}

func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	who, ok := requesterFrom(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing "+headerUserID+" header")
		return
	}

	var req struct {
		Status   shipment.Status `json:"status"`
		Override bool            `json:"override"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.updateStatusUC.Execute(r.Context(), usecase.UpdateStatusParams{
		ShipmentID:  chi.URLParam(r, "id"),
		RequesterID: who.ID,
		Staff:       who.Staff,
		Status:      req.Status,
		Override:    req.Override,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) AssignDriver(w http.ResponseWriter, r *http.Request) {
	who, ok := requesterFrom(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing "+headerUserID+" header")
		return
	}

	var req struct {
		DriverID   string `json:"driver_id"`
		DriverName string `json:"driver_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DriverID == "" {
		req.DriverID = who.ID
	}

	updated, err := h.assignDriverUC.Execute(r.Context(), usecase.AssignDriverParams{
		ShipmentID:  chi.URLParam(r, "id"),
		RequesterID: who.ID,
		Staff:       who.Staff,
		DriverID:    req.DriverID,
		DriverName:  req.DriverName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) CancelShipment(w http.ResponseWriter, r *http.Request) {
	who, ok := requesterFrom(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing "+headerUserID+" header")
		return
	}

	if _, err := h.cancelShipmentUC.Execute(r.Context(), chi.URLParam(r, "id"), who.ID); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Shipment cancelled successfully"})
}

func (h *Handlers) GetCargo(w http.ResponseWriter, r *http.Request) {
	list, err := h.getCargoUC.Execute(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handlers) ListClaims(w http.ResponseWriter, r *http.Request) {
	list, err := h.listClaimsUC.Execute(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shipment.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shipment.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shipment.ErrInvalidShipment),
		errors.Is(err, shipment.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, shipment.ErrInvalidTransition),
		errors.Is(err, shipment.ErrDriverAssigned):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusBadGateway {
		h.logger.Error("upstream request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSONError(w, status, "upstream catalogue unavailable")
		return
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSONError(w, status, "internal server error")
		return
	}
	writeJSONError(w, status, err.Error())
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
