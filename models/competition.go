package models

import "time"

// CompetitionStatus представляет фазу жизненного цикла соревнования.
type CompetitionStatus string

const (
	CompetitionDraft     CompetitionStatus = "DRAFT"
	CompetitionActive    CompetitionStatus = "ACTIVE"
	CompetitionCompleted CompetitionStatus = "COMPLETED"
	CompetitionCancelled CompetitionStatus = "CANCELLED"
	CompetitionArchived  CompetitionStatus = "ARCHIVED"
)

func (s CompetitionStatus) Valid() bool {
	switch s {
	case CompetitionDraft, CompetitionActive, CompetitionCompleted, CompetitionCancelled, CompetitionArchived:
		return true
	}
	return false
}

// Competition представляет соревнование, проводимое в нескольких городах.
type Competition struct {
	ID               int               `json:"id" db:"id"`
	Name             string            `json:"name" db:"name"`
	Description      *string           `json:"description,omitempty" db:"description"`
	RegistrationOpen bool              `json:"registration_open" db:"registration_open"`
	Status           CompetitionStatus `json:"status" db:"status"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}
