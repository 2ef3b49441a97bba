package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Dosada05/city-competitions/models"
	"github.com/Dosada05/city-competitions/services"
)

type CityHandler struct {
	cityService services.CityService
}

func NewCityHandler(cs services.CityService) *CityHandler {
	return &CityHandler{cityService: cs}
}

func (h *CityHandler) CreateCity(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name string `json:"name"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	city, err := h.cityService.CreateCity(r.Context(), input.Name)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusCreated, jsonResponse{"city": city})
}

func (h *CityHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	var status *models.CityStatus
	if s := strings.TrimSpace(r.URL.Query().Get("status")); s != "" {
		st := models.CityStatus(strings.ToUpper(s))
		status = &st
	}

	cities, err := h.cityService.ListCities(r.Context(), status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"cities": cities})
}

func (h *CityHandler) SetCityStatus(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "cityID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Status models.CityStatus `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	city, err := h.cityService.SetCityStatus(r.Context(), id, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"city": city})
}

func (h *CityHandler) AddCityToCompetition(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.AddCityInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.CityID <= 0 {
		badRequestResponse(w, r, errors.New("city_id is required"))
		return
	}

	branch, err := h.cityService.AddCityToCompetition(r.Context(), competitionID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusCreated, jsonResponse{"competition_city": branch})
}

func (h *CityHandler) ListCompetitionCities(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	branches, err := h.cityService.ListCompetitionCities(r.Context(), competitionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"competition_cities": branches})
}

func (h *CityHandler) UpdateCompetitionCity(w http.ResponseWriter, r *http.Request) {
	competitionID, cityID, err := getBranchFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		EventDate *time.Time `json:"event_date"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	branch, err := h.cityService.UpdateCompetitionCity(r.Context(), competitionID, cityID, input.EventDate)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"competition_city": branch})
}

func (h *CityHandler) ToggleCityRegistration(w http.ResponseWriter, r *http.Request) {
	competitionID, cityID, err := getBranchFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		IsOpen *bool `json:"is_open"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.IsOpen == nil {
		badRequestResponse(w, r, errors.New("is_open is required"))
		return
	}

	branch, err := h.cityService.ToggleCityRegistration(r.Context(), competitionID, cityID, *input.IsOpen)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"competition_city": branch})
}

func (h *CityHandler) RemoveCityFromCompetition(w http.ResponseWriter, r *http.Request) {
	competitionID, cityID, err := getBranchFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.cityService.RemoveCityFromCompetition(r.Context(), competitionID, cityID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
