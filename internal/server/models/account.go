package models

import "time"

// Account is a registered forum user. PasswordDigest never leaves the server.
type Account struct {
	ID             int64      `json:"id"`
	Username       string     `json:"username"`
	PasswordDigest string     `json:"-"`
	CreatedAt      time.Time  `json:"-"`
	LastLoginAt    *time.Time `json:"-"`
}
