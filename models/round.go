package models

import "time"

type RoundStatus string

const (
	RoundPending    RoundStatus = "PENDING"
	RoundInProgress RoundStatus = "IN_PROGRESS"
	RoundCompleted  RoundStatus = "COMPLETED"
	RoundArchived   RoundStatus = "ARCHIVED"
)

type QualifiedBy string

const (
	QualifiedAutomatic QualifiedBy = "AUTOMATIC"
	QualifiedManual    QualifiedBy = "MANUAL"
)

// Round belongs to exactly one competition branch.
type Round struct {
	ID             int          `json:"id" db:"id"`
	CompetitionID  int          `json:"competition_id" db:"competition_id"`
	CityID         int          `json:"city_id" db:"city_id"`
	RoundNumber    int          `json:"round_number" db:"round_number"`
	Name           string       `json:"name" db:"name"`
	RoundDate      *time.Time   `json:"round_date,omitempty" db:"round_date"`
	IsFinale       bool         `json:"is_finale" db:"is_finale"`
	Status         RoundStatus  `json:"status" db:"status"`
	PreviousStatus *RoundStatus `json:"-" db:"previous_status"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

func (r *Round) IsArchived() bool {
	return r.Status == RoundArchived
}

type RoundParticipation struct {
	ID              int         `json:"id" db:"id"`
	RoundID         int         `json:"round_id" db:"round_id"`
	ParticipationID int         `json:"participation_id" db:"participation_id"`
	QualifiedBy     QualifiedBy `json:"qualified_by" db:"qualified_by"`
	AddedBy         *int        `json:"added_by,omitempty" db:"added_by"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

type RoundScore struct {
	ID                   int       `json:"id" db:"id"`
	RoundParticipationID int       `json:"round_participation_id" db:"round_participation_id"`
	Score                *float64  `json:"score" db:"score"`
	Notes                *string   `json:"notes,omitempty" db:"notes"`
	RankInRound          *int      `json:"rank_in_round" db:"rank_in_round"`
	IsWinner             bool      `json:"is_winner" db:"is_winner"`
	WinnerPosition       *int      `json:"winner_position,omitempty" db:"winner_position"`
	UpdatedBy            *int      `json:"updated_by,omitempty" db:"updated_by"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// RoundEntry - участник раунда вместе с пользователем и результатом (для деталей и лидерборда).
type RoundEntry struct {
	RoundParticipationID int         `json:"round_participation_id"`
	ParticipationID      int         `json:"participation_id"`
	QualifiedBy          QualifiedBy `json:"qualified_by"`
	UserID               int         `json:"user_id"`
	UserName             string      `json:"user_name"`
	Email                string      `json:"email"`
	MiID                 *string     `json:"mi_id,omitempty"`
	CityID               int         `json:"city_id"`
	Score                *float64    `json:"score"`
	Notes                *string     `json:"notes,omitempty"`
	RankInRound          *int        `json:"rank_in_round"`
	IsWinner             bool        `json:"is_winner"`
	WinnerPosition       *int        `json:"winner_position,omitempty"`
}

// EligibleParticipant is a participation that can be added to a round manually.
type EligibleParticipant struct {
	ParticipationID int    `json:"participation_id"`
	UserID          int    `json:"user_id"`
	UserName        string `json:"user_name"`
	Email           string `json:"email"`
	CityID          int    `json:"city_id"`
	BestRank        *int   `json:"best_rank,omitempty"`
	WasWinner       bool   `json:"was_winner"`
}
