package domain

import "time"

// User represents a Telegram user registered with the bot. Rows are upserted on
// every inbound event and never hard-deleted.
type User struct {
	UserID       int64     `bson:"user_id" json:"user_id"`
	FirstName    string    `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName     string    `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Username     string    `bson:"username,omitempty" json:"username,omitempty"`
	LanguageCode string    `bson:"language_code,omitempty" json:"language_code,omitempty"`
	IsAdmin      bool      `bson:"is_admin" json:"is_admin"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
	LastSeenAt   time.Time `bson:"last_seen_at" json:"last_seen_at"`
}

// Profile carries the optional display fields from an inbound Telegram event.
type Profile struct {
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
}
