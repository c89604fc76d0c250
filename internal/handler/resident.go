package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/auth"
	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/store"
	"github.com/ecopower/ecopower/internal/subscription"
)

type ResidentHandler struct {
	users  *store.UserStore
	houses *store.HouseStore
	subs   *subscription.Service
	logger *slog.Logger
}

func NewResidentHandler(users *store.UserStore, houses *store.HouseStore, subs *subscription.Service, logger *slog.Logger) *ResidentHandler {
	return &ResidentHandler{users: users, houses: houses, subs: subs, logger: logger}
}

type createResidentRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	HouseID   *int64 `json:"house_id"`
}

type createResidentResponse struct {
	Resident          *model.User `json:"resident"`
	TemporaryPassword string      `json:"temporary_password"`
}

// Create handles POST /api/residents. The resident count is checked against
// the subscription quota before the account is created. The generated
// temporary password is returned once and never stored in clear.
func (h *ResidentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	var req createResidentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.FirstName == "" || req.LastName == "" || req.Email == "" {
		writeError(w, h.logger, apperror.Validation("first_name, last_name and email are required"))
		return
	}

	if err := h.subs.CheckQuota(ownerID, time.Now()); err != nil {
		writeError(w, h.logger, err)
		return
	}

	exists, err := h.users.EmailExists(req.Email, 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if exists {
		writeError(w, h.logger, apperror.Conflict("email is already registered"))
		return
	}

	if req.HouseID != nil {
		house, err := h.houses.GetOwned(ownerID, *req.HouseID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if house == nil {
			writeError(w, h.logger, apperror.NotFound("house"))
			return
		}
	}

	tempPassword, err := auth.GenerateTemporaryPassword()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	hash, err := auth.HashPassword(tempPassword)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resident, err := h.users.CreateResident(ownerID, req.FirstName, req.LastName, req.Email, req.Phone, hash)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.HouseID != nil {
		if err := h.users.SetHouse(resident.ID, req.HouseID); err != nil {
			writeError(w, h.logger, err)
			return
		}
		resident.HouseID = req.HouseID
	}

	h.logger.Info("resident created", "resident_id", resident.ID, "owner_id", ownerID)
	writeJSON(w, http.StatusCreated, createResidentResponse{
		Resident:          resident,
		TemporaryPassword: tempPassword,
	})
}

// List handles GET /api/residents
func (h *ResidentHandler) List(w http.ResponseWriter, r *http.Request) {
	residents, err := h.users.ListResidents(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if residents == nil {
		residents = []model.User{}
	}
	writeJSON(w, http.StatusOK, residents)
}

// Get handles GET /api/residents/{id}
func (h *ResidentHandler) Get(w http.ResponseWriter, r *http.Request) {
	resident, err := h.owned(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resident)
}

type updateResidentRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Update handles PUT /api/residents/{id}
func (h *ResidentHandler) Update(w http.ResponseWriter, r *http.Request) {
	resident, err := h.owned(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req updateResidentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.FirstName == "" || req.LastName == "" || req.Email == "" {
		writeError(w, h.logger, apperror.Validation("first_name, last_name and email are required"))
		return
	}

	exists, err := h.users.EmailExists(req.Email, resident.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if exists {
		writeError(w, h.logger, apperror.Conflict("email is already registered"))
		return
	}

	updated, err := h.users.Update(resident.ID, req.FirstName, req.LastName, req.Email, req.Phone)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type assignHouseRequest struct {
	HouseID *int64 `json:"house_id"`
}

// AssignHouse handles PUT /api/residents/{id}/house. A null house_id
// detaches the resident.
func (h *ResidentHandler) AssignHouse(w http.ResponseWriter, r *http.Request) {
	resident, err := h.owned(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req assignHouseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if req.HouseID != nil {
		house, err := h.houses.GetOwned(auth.UserID(r.Context()), *req.HouseID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if house == nil {
			writeError(w, h.logger, apperror.NotFound("house"))
			return
		}
	}

	if err := h.users.SetHouse(resident.ID, req.HouseID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	resident.HouseID = req.HouseID

	h.logger.Info("resident house changed", "resident_id", resident.ID, "house_id", req.HouseID)
	writeJSON(w, http.StatusOK, resident)
}

// Delete handles DELETE /api/residents/{id}
func (h *ResidentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	resident, err := h.owned(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.users.DeleteResident(resident.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("resident deleted", "resident_id", resident.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ResidentHandler) owned(r *http.Request) (*model.User, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, err
	}
	resident, err := h.users.GetResident(auth.UserID(r.Context()), id)
	if err != nil {
		return nil, err
	}
	if resident == nil {
		return nil, apperror.NotFound("resident")
	}
	return resident, nil
}
