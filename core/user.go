package core

import "time"

type (
	// OnlineUser is a user currently present in a template's editor room.
	OnlineUser struct {
		UserID    string    `json:"user_id"`
		UserEmail string    `json:"user_email,omitempty"`
		UserName  string    `json:"user_name,omitempty"`
		OnlineAt  time.Time `json:"online_at"`
	}
)
