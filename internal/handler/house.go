package handler

import (
	"log/slog"
	"net/http"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/auth"
	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/store"
)

type HouseHandler struct {
	houses *store.HouseStore
	logger *slog.Logger
}

func NewHouseHandler(houses *store.HouseStore, logger *slog.Logger) *HouseHandler {
	return &HouseHandler{houses: houses, logger: logger}
}

type houseRequest struct {
	Name        string  `json:"name"`
	Street      string  `json:"street"`
	City        string  `json:"city"`
	PostalCode  string  `json:"postal_code"`
	Country     string  `json:"country"`
	Description string  `json:"description"`
	TariffKWh   float64 `json:"tariff_kwh"`
	Status      string  `json:"status"`
}

func (req *houseRequest) validate() error {
	if req.Name == "" || req.Street == "" {
		return apperror.Validation("name and street are required")
	}
	if req.TariffKWh < 0 {
		return apperror.Validation("tariff_kwh must be non-negative")
	}
	return nil
}

// Create handles POST /api/houses
func (h *HouseHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	var req houseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, h.logger, err)
		return
	}

	house, err := h.houses.Create(ownerID, req.Name, req.Street, req.City, req.PostalCode, req.Country, req.Description, req.TariffKWh)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("house created", "house_id", house.ID, "owner_id", ownerID)
	writeJSON(w, http.StatusCreated, house)
}

// List handles GET /api/houses
func (h *HouseHandler) List(w http.ResponseWriter, r *http.Request) {
	houses, err := h.houses.ListByOwner(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if houses == nil {
		houses = []model.House{}
	}
	writeJSON(w, http.StatusOK, houses)
}

// Get handles GET /api/houses/{id}
func (h *HouseHandler) Get(w http.ResponseWriter, r *http.Request) {
	house, err := h.owned(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, house)
}

// Update handles PUT /api/houses/{id}
func (h *HouseHandler) Update(w http.ResponseWriter, r *http.Request) {
	house, err := h.owned(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req houseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Status == "" {
		req.Status = house.Status
	}

	updated, err := h.houses.Update(house.ID, req.Name, req.Street, req.City, req.PostalCode, req.Country, req.Description, req.TariffKWh, req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type tariffRequest struct {
	TariffKWh float64 `json:"tariff_kwh"`
}

// SetTariff handles PUT /api/houses/{id}/tariff. The new rate applies to
// readings recorded after the change; existing readings keep their amounts.
func (h *HouseHandler) SetTariff(w http.ResponseWriter, r *http.Request) {
	house, err := h.owned(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req tariffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.TariffKWh < 0 {
		writeError(w, h.logger, apperror.Validation("tariff_kwh must be non-negative"))
		return
	}

	updated, err := h.houses.SetTariff(house.ID, req.TariffKWh)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("tariff changed", "house_id", house.ID, "tariff_kwh", req.TariffKWh)
	writeJSON(w, http.StatusOK, updated)
}

// Members handles GET /api/houses/{id}/members
func (h *HouseHandler) Members(w http.ResponseWriter, r *http.Request) {
	house, err := h.owned(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	members, err := h.houses.ListMembers(house.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if members == nil {
		members = []model.User{}
	}
	writeJSON(w, http.StatusOK, members)
}

// Delete handles DELETE /api/houses/{id}. Occupied houses cannot be removed.
func (h *HouseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	house, err := h.owned(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.houses.Delete(house.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("house deleted", "house_id", house.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *HouseHandler) owned(r *http.Request) (*model.House, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, err
	}
	house, err := h.houses.GetOwned(auth.UserID(r.Context()), id)
	if err != nil {
		return nil, err
	}
	if house == nil {
		return nil, apperror.NotFound("house")
	}
	return house, nil
}
