package domain

import "time"

// UsageRecord is the billed duration of one room, written when it closes.
type UsageRecord struct {
	RoomID          RoomID
	ProjectID       ProjectID
	DurationSeconds int64
	CreatedAt       time.Time
}
