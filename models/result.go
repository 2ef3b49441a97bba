package models

import "time"

type ResultStatus string

const (
	ResultParticipated ResultStatus = "PARTICIPATED"
	ResultWinner       ResultStatus = "WINNER"
	ResultFinalist     ResultStatus = "FINALIST"
)

func (s ResultStatus) Valid() bool {
	switch s {
	case ResultParticipated, ResultWinner, ResultFinalist:
		return true
	}
	return false
}

// Result - итоговый результат участия, по которому выдаются сертификаты.
type Result struct {
	ID              int          `json:"id" db:"id"`
	ParticipationID int          `json:"participation_id" db:"participation_id"`
	CompetitionID   int          `json:"competition_id" db:"competition_id"`
	CityID          int          `json:"city_id" db:"city_id"`
	Status          ResultStatus `json:"result_status" db:"result_status"`
	Position        *int         `json:"position,omitempty" db:"position"`
	Locked          bool         `json:"locked" db:"locked"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}
