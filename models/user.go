package models

import (
	"time"
)

// User is a wallet holder. Identity is owned by the upstream gateway; ID is its user id.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Balance   int64     `db:"balance" json:"balance"` // minor currency units
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
