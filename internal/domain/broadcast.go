package domain

import "time"

// BroadcastLog is the append-only audit record of one broadcast run. It is
// written after the run and never read back by the bot.
type BroadcastLog struct {
	Description string    `bson:"description" json:"description"`
	Total       int64     `bson:"total" json:"total"`
	Success     int64     `bson:"success" json:"success"`
	Failed      int64     `bson:"failed" json:"failed"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}
