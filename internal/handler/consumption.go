package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/auth"
	"github.com/ecopower/ecopower/internal/metering"
	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/push"
	"github.com/ecopower/ecopower/internal/store"
)

type ConsumptionHandler struct {
	consumptions *store.ConsumptionStore
	houses       *store.HouseStore
	users        *store.UserStore
	dispatcher   *push.Dispatcher
	logger       *slog.Logger
}

func NewConsumptionHandler(consumptions *store.ConsumptionStore, houses *store.HouseStore, users *store.UserStore, dispatcher *push.Dispatcher, logger *slog.Logger) *ConsumptionHandler {
	return &ConsumptionHandler{
		consumptions: consumptions,
		houses:       houses,
		users:        users,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

type recordConsumptionRequest struct {
	ResidentID    int64    `json:"resident_id"`
	HouseID       int64    `json:"house_id"`
	Month         int      `json:"month"`
	Year          int      `json:"year"`
	PreviousIndex *float64 `json:"previous_index"`
	CurrentIndex  *float64 `json:"current_index"`
	KWh           *float64 `json:"kwh"`
	Comment       string   `json:"comment"`
}

type recordConsumptionResponse struct {
	Consumption *model.Consumption `json:"consumption"`
	Anomalous   bool               `json:"anomalous"`
	Average     float64            `json:"average,omitempty"`
}

// Record handles POST /api/consumptions. The previous index may be supplied
// with the reading; when absent it is seeded from the latest reading for the
// same resident and house. Either a new meter index or a direct kWh delta
// must be supplied. A reading well above the resident's recent average
// triggers an alert to the resident.
func (h *ConsumptionHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordConsumptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	callerID := auth.UserID(r.Context())
	if auth.RoleOf(r.Context()) == auth.RoleResident {
		req.ResidentID = callerID
	}
	if req.ResidentID == 0 {
		writeError(w, h.logger, apperror.Validation("resident_id is required"))
		return
	}

	resident, err := h.users.GetByID(req.ResidentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if resident == nil || resident.Role != model.RoleResident {
		writeError(w, h.logger, apperror.NotFound("resident"))
		return
	}
	if req.HouseID == 0 && resident.HouseID != nil {
		req.HouseID = *resident.HouseID
	}
	if req.HouseID == 0 {
		writeError(w, h.logger, apperror.Validation("resident has no house; house_id is required"))
		return
	}

	house, err := h.houses.GetByID(req.HouseID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if house == nil {
		writeError(w, h.logger, apperror.NotFound("house"))
		return
	}
	if !h.canRecord(r, resident, house) {
		writeError(w, h.logger, apperror.Forbidden("reading does not belong to you"))
		return
	}

	if req.Month < 1 || req.Month > 12 || req.Year < 2000 {
		writeError(w, h.logger, apperror.Validation("month must be 1-12 and year must be plausible"))
		return
	}

	tariff := house.TariffKWh
	if tariff == 0 {
		tariff = metering.DefaultTariffPerKWh
	}

	var previousIndex float64
	if req.PreviousIndex != nil {
		previousIndex = *req.PreviousIndex
	} else {
		latest, err := h.consumptions.Latest(req.ResidentID, req.HouseID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if latest != nil {
			previousIndex = latest.CurrentIndex
		}
	}

	var usage metering.Usage
	var currentIndex float64
	switch {
	case req.CurrentIndex != nil:
		currentIndex = *req.CurrentIndex
		usage, err = metering.ComputeUsage(previousIndex, currentIndex, tariff)
	case req.KWh != nil:
		usage, err = metering.ComputeDirect(*req.KWh, tariff)
		currentIndex = previousIndex + usage.KWh
	default:
		err = apperror.Validation("either current_index or kwh is required")
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	c, err := h.consumptions.Create(req.ResidentID, req.HouseID, req.Month, req.Year, previousIndex, currentIndex, usage.KWh, usage.Amount, req.Comment)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// The reading is committed; the anomaly check is advisory and must not
	// turn a persisted write into an error response.
	var average float64
	var anomalous bool
	priors, err := h.consumptions.ListPriors(req.ResidentID, c.ID, metering.AnomalyWindow)
	if err != nil {
		h.logger.Error("anomaly check skipped", "consumption_id", c.ID, "error", err)
	} else {
		average, anomalous = metering.CheckAnomaly(c.KWh, priors)
	}
	if anomalous {
		h.logger.Warn("anomalous consumption",
			"consumption_id", c.ID,
			"resident_id", req.ResidentID,
			"kwh", c.KWh,
			"average", average)
		h.dispatcher.NotifyAnomalousConsumption(resident, c.KWh, average)
	}

	writeJSON(w, http.StatusCreated, recordConsumptionResponse{
		Consumption: c,
		Anomalous:   anomalous,
		Average:     average,
	})
}

// List handles GET /api/consumptions. Owners see readings across their
// houses, optionally filtered by month and year; residents see their own.
func (h *ConsumptionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var (
		readings []model.Consumption
		err      error
	)
	if auth.RoleOf(r.Context()) == auth.RoleResident {
		readings, err = h.consumptions.ListByResident(userID)
	} else if month, year, ok := periodQuery(r); ok {
		readings, err = h.consumptions.ListByPeriod(userID, month, year)
	} else {
		readings, err = h.consumptions.ListByOwner(userID)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if readings == nil {
		readings = []model.Consumption{}
	}
	writeJSON(w, http.StatusOK, readings)
}

// ListByHouse handles GET /api/houses/{id}/consumptions
func (h *ConsumptionHandler) ListByHouse(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	house, err := h.houses.GetOwned(auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if house == nil {
		writeError(w, h.logger, apperror.NotFound("house"))
		return
	}

	readings, err := h.consumptions.ListByHouse(house.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if readings == nil {
		readings = []model.Consumption{}
	}
	writeJSON(w, http.StatusOK, readings)
}

// Get handles GET /api/consumptions/{id}
func (h *ConsumptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.accessible(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type updateConsumptionRequest struct {
	PreviousIndex float64 `json:"previous_index"`
	CurrentIndex  float64 `json:"current_index"`
	Comment       string  `json:"comment"`
}

// Update handles PUT /api/consumptions/{id}. Billed readings are immutable.
func (h *ConsumptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, err := h.accessible(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req updateConsumptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	house, err := h.houses.GetByID(c.HouseID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	tariff := metering.DefaultTariffPerKWh
	if house != nil && house.TariffKWh > 0 {
		tariff = house.TariffKWh
	}

	usage, err := metering.ComputeUsage(req.PreviousIndex, req.CurrentIndex, tariff)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	updated, err := h.consumptions.Update(c.ID, req.PreviousIndex, req.CurrentIndex, usage.KWh, usage.Amount, req.Comment)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/consumptions/{id}. Billed readings cannot be
// removed.
func (h *ConsumptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, err := h.accessible(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.consumptions.Delete(c.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConsumptionHandler) canRecord(r *http.Request, resident *model.User, house *model.House) bool {
	callerID := auth.UserID(r.Context())
	if auth.RoleOf(r.Context()) == auth.RoleResident {
		return resident.ID == callerID
	}
	return house.OwnerID == callerID
}

// accessible loads a reading and checks the caller may see it: the resident
// it belongs to, or the owner of its house.
func (h *ConsumptionHandler) accessible(r *http.Request) (*model.Consumption, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, err
	}
	c, err := h.consumptions.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperror.NotFound("consumption")
	}

	callerID := auth.UserID(r.Context())
	if c.ResidentID == callerID {
		return c, nil
	}
	house, err := h.houses.GetByID(c.HouseID)
	if err != nil {
		return nil, err
	}
	if house == nil || house.OwnerID != callerID {
		return nil, apperror.NotFound("consumption")
	}
	return c, nil
}

func periodQuery(r *http.Request) (month, year int, ok bool) {
	m, errM := strconv.Atoi(r.URL.Query().Get("month"))
	y, errY := strconv.Atoi(r.URL.Query().Get("year"))
	if errM != nil || errY != nil {
		return 0, 0, false
	}
	return m, y, true
}
