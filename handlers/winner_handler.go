package handlers

import (
	"net/http"

	"github.com/Dosada05/city-competitions/services"
)

type WinnerHandler struct {
	winnerService services.WinnerService
}

func NewWinnerHandler(ws services.WinnerService) *WinnerHandler {
	return &WinnerHandler{winnerService: ws}
}

func (h *WinnerHandler) SelectWinners(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	userID, ok := operatorID(w, r)
	if !ok {
		return
	}

	var input struct {
		Winners []services.WinnerEntry `json:"winners"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.winnerService.SelectWinners(r.Context(), roundID, input.Winners, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"selection": result})
}

func (h *WinnerHandler) CityStatus(w http.ResponseWriter, r *http.Request) {
	competitionID, cityID, err := getBranchFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	status, err := h.winnerService.CompetitionCityStatus(r.Context(), competitionID, cityID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"status": status})
}

func (h *WinnerHandler) MarkCityFinished(w http.ResponseWriter, r *http.Request) {
	competitionID, cityID, err := getBranchFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	status, err := h.winnerService.MarkCompetitionCityFinished(r.Context(), competitionID, cityID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"status": status})
}

func (h *WinnerHandler) ReopenCity(w http.ResponseWriter, r *http.Request) {
	competitionID, cityID, err := getBranchFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	status, err := h.winnerService.ReopenCompetitionCity(r.Context(), competitionID, cityID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"status": status})
}
