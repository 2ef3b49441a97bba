package services

import (
	"fmt"
	"strings"

	"github.com/Dosada05/city-competitions/models"
)

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// isValidStatusTransition проверяет переход по фиксированному графу статусов.
// Переход в тот же статус запрещен.
func isValidStatusTransition(current, next models.CompetitionStatus) bool {
	allowedTransitions := map[models.CompetitionStatus][]models.CompetitionStatus{
		models.CompetitionDraft:     {models.CompetitionActive, models.CompetitionCancelled},
		models.CompetitionActive:    {models.CompetitionCompleted, models.CompetitionCancelled},
		models.CompetitionCompleted: {models.CompetitionArchived},
		models.CompetitionCancelled: {},
		models.CompetitionArchived:  {},
	}
	for _, allowedNextStatus := range allowedTransitions[current] {
		if next == allowedNextStatus {
			return true
		}
	}
	return false
}

func registrationToggleAllowed(status models.CompetitionStatus) bool {
	return status == models.CompetitionDraft || status == models.CompetitionActive
}

// operatorRef converts an operator id into a nullable column value.
func operatorRef(operatorID int) *int {
	if operatorID <= 0 {
		return nil
	}
	return &operatorID
}

func competitionLockKey(competitionID int) string {
	return fmt.Sprintf("competition:%d", competitionID)
}

func branchLockKey(competitionID, cityID int) string {
	return fmt.Sprintf("branch:%d:%d", competitionID, cityID)
}

func roundLockKey(roundID int) string {
	return fmt.Sprintf("round:%d", roundID)
}

func resultLockKey(participationID int) string {
	return fmt.Sprintf("result:%d", participationID)
}
