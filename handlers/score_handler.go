package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/city-competitions/services"
)

type ScoreHandler struct {
	scoreService services.ScoreService
}

func NewScoreHandler(ss services.ScoreService) *ScoreHandler {
	return &ScoreHandler{scoreService: ss}
}

func (h *ScoreHandler) UploadScores(w http.ResponseWriter, r *http.Request) {
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
		Records []services.ScoreRecord `json:"records"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(input.Records) == 0 {
		badRequestResponse(w, r, errors.New("records must not be empty"))
		return
	}

	report, err := h.scoreService.UploadScores(r.Context(), roundID, input.Records, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"report": report})
}

func (h *ScoreHandler) ClearScores(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	cleared, err := h.scoreService.ClearScores(r.Context(), roundID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"round_id": roundID, "cleared": cleared})
}

func (h *ScoreHandler) UpdateScore(w http.ResponseWriter, r *http.Request) {
	rpID, err := getIDFromURL(r, "rpID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	userID, ok := operatorID(w, r)
	if !ok {
		return
	}

	var input struct {
		Score *float64 `json:"score"`
		Notes *string  `json:"notes"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	score, err := h.scoreService.UpdateScore(r.Context(), rpID, input.Score, input.Notes, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{"score": score})
}
