package models

import "time"

// User is a registered student. Record numbers are assigned once at
// registration and never change.
type User struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	Name         string    `bson:"name" json:"name"`
	PasswordHash string    `bson:"passwordHash" json:"-"`
	Program      string    `bson:"program" json:"program"`
	RecordNumber string    `bson:"recordNumber" json:"recordNumber"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}
