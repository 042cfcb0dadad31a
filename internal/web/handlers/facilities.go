package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/store"
)

// FacilityHandler serves facility lookups.
type FacilityHandler struct {
	Stores store.Stores
	Log    *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// FacilitiesResponse lists facilities holding a building on a date.
type FacilitiesResponse struct {
	BuildingID int64            `json:"building_id"`
	Date       string           `json:"date"`
	Facilities []model.Facility `json:"facilities"`
}

// GetFacility returns one facility with its buildings and parties.
func (h *FacilityHandler) GetFacility(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid facility id")
		return
	}
	f, err := h.Stores.Facilities.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Facility not found")
		return
	}
	if err != nil {
		internalError(w, h.Log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// ListDependents returns the records bound to a facility.
func (h *FacilityHandler) ListDependents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid facility id")
		return
	}
	if _, err := h.Stores.Facilities.Get(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Facility not found")
		return
	} else if err != nil {
		internalError(w, h.Log, r, err)
		return
	}
	records, err := h.Stores.Dependents.ListByFacilities(r.Context(), []int64{id})
	if err != nil {
		internalError(w, h.Log, r, err)
		return
	}
	if records == nil {
		records = []model.DependentRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// BuildingFacilities returns the facilities holding a building on the date
// given as ?date=YYYY-MM-DD, today when absent.
func (h *FacilityHandler) BuildingFacilities(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid building id")
		return
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	day := model.Day(now())
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
			return
		}
		day = model.Day(d)
	}

	fs, err := h.Stores.Facilities.FindOverlapping(r.Context(), []int64{id}, model.Period{Start: day, End: &day})
	if err != nil {
		internalError(w, h.Log, r, err)
		return
	}
	if fs == nil {
		fs = []model.Facility{}
	}
	writeJSON(w, http.StatusOK, FacilitiesResponse{
		BuildingID: id,
		Date:       day.Format(time.DateOnly),
		Facilities: fs,
	})
}
