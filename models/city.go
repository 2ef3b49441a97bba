package models

import "time"

type CityStatus string

const (
	CityActive   CityStatus = "ACTIVE"
	CityInactive CityStatus = "INACTIVE"
)

func (s CityStatus) Valid() bool {
	return s == CityActive || s == CityInactive
}

// City is an entry of the global city catalog.
type City struct {
	ID     int        `json:"id" db:"id"`
	Name   string     `json:"name" db:"name"`
	Status CityStatus `json:"status" db:"status"`
}

// CompetitionCity is a competition branch held in one city.
type CompetitionCity struct {
	ID               int        `json:"id" db:"id"`
	CompetitionID    int        `json:"competition_id" db:"competition_id"`
	CityID           int        `json:"city_id" db:"city_id"`
	EventDate        *time.Time `json:"event_date,omitempty" db:"event_date"`
	RegistrationOpen bool       `json:"registration_open" db:"registration_open"`
	FinishedAt       *time.Time `json:"finished_at,omitempty" db:"finished_at"`

	City *City `json:"city,omitempty" db:"-"`
}

func (cc *CompetitionCity) IsFinished() bool {
	return cc.FinishedAt != nil
}
