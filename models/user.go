package models

import "time"

// User is read from the identity tables; the engine never manages accounts.
type User struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	MiID      *string   `json:"mi_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
