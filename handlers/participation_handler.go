package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/city-competitions/services"
)

type ParticipationHandler struct {
	participationService services.ParticipationService
}

func NewParticipationHandler(ps services.ParticipationService) *ParticipationHandler {
	return &ParticipationHandler{participationService: ps}
}

// Register записывает текущего пользователя в город соревнования.
func (h *ParticipationHandler) Register(w http.ResponseWriter, r *http.Request) {
	competitionID, cityID, err := getBranchFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	userID, ok := operatorID(w, r)
	if !ok {
		return
	}

	participation, err := h.participationService.Register(r.Context(), userID, competitionID, cityID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusCreated, jsonResponse{"participation": participation})
}

func (h *ParticipationHandler) AdminAdd(w http.ResponseWriter, r *http.Request) {
	competitionID, cityID, err := getBranchFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		UserID int `json:"user_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.UserID <= 0 {
		badRequestResponse(w, r, errors.New("user_id is required"))
		return
	}

	participation, err := h.participationService.AdminAdd(r.Context(), input.UserID, competitionID, cityID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusCreated, jsonResponse{"participation": participation})
}

func (h *ParticipationHandler) ListParticipations(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	cityID, err := optionalIntQuery(r, "city_id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participations, err := h.participationService.ListParticipations(r.Context(), competitionID, cityID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"participations": participations})
}
