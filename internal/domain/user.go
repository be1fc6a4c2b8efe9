package domain

import "time"

// User is an account able to rate, review, like and log watches.
type User struct {
	ID          int64
	Email       string
	Username    string
	IsSuperuser bool
	CreatedAt   time.Time
}
