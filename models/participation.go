package models

import "time"

type ParticipationSource string

const (
	SourceUserSelf   ParticipationSource = "USER_SELF"
	SourceAdminAdded ParticipationSource = "ADMIN_ADDED"
)

// Participation - присутствие пользователя в конкретном городе соревнования.
type Participation struct {
	ID            int                 `json:"id" db:"id"`
	UserID        int                 `json:"user_id" db:"user_id"`
	CompetitionID int                 `json:"competition_id" db:"competition_id"`
	CityID        int                 `json:"city_id" db:"city_id"`
	Source        ParticipationSource `json:"source" db:"source"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`

	User *User `json:"user,omitempty" db:"-"`
}
