package model

import (
	"time"

	"github.com/google/uuid"
)

// Campaign is owned by the dashboard; the engine only reads it to resolve the owner.
type Campaign struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
