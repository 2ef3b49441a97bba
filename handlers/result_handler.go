package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Dosada05/city-competitions/models"
	"github.com/Dosada05/city-competitions/services"
)

type ResultHandler struct {
	resultService services.ResultService
}

func NewResultHandler(rs services.ResultService) *ResultHandler {
	return &ResultHandler{resultService: rs}
}

func (h *ResultHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	var filter services.ListResultsFilter
	var err error

	if filter.CompetitionID, err = optionalIntQuery(r, "competition_id"); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if filter.CityID, err = optionalIntQuery(r, "city_id"); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if s := strings.TrimSpace(r.URL.Query().Get("status")); s != "" {
		status := models.ResultStatus(strings.ToUpper(s))
		filter.Status = &status
	}

	results, err := h.resultService.ListResults(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"results": results})
}

func (h *ResultHandler) AssignResult(w http.ResponseWriter, r *http.Request) {
	participationID, err := getIDFromURL(r, "participationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Status   models.ResultStatus `json:"result_status"`
		Position *int                `json:"position"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.resultService.AssignResult(r.Context(), services.AssignResultInput{
		ParticipationID: participationID,
		Status:          input.Status,
		Position:        input.Position,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"result": result})
}

func (h *ResultHandler) BulkAssignResults(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Results []services.AssignResultInput `json:"results"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(input.Results) == 0 {
		badRequestResponse(w, r, errors.New("results must not be empty"))
		return
	}

	report, err := h.resultService.BulkAssignResults(r.Context(), input.Results)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"report": report})
}

func (h *ResultHandler) LockResult(w http.ResponseWriter, r *http.Request) {
	participationID, err := getIDFromURL(r, "participationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.resultService.LockResult(r.Context(), participationID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"result": result})
}

func (h *ResultHandler) UnlockResult(w http.ResponseWriter, r *http.Request) {
	participationID, err := getIDFromURL(r, "participationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.resultService.UnlockResult(r.Context(), participationID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"result": result})
}
