package model

import (
	"time"
)

// User is an authenticated caller, keyed by the JWT subject.
type User struct {
	ID          string    `json:"id" gorm:"primaryKey;size:128"`
	DisplayName string    `json:"display_name,omitempty" gorm:"size:100"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName pins the table name.
func (User) TableName() string {
	return "users"
}
