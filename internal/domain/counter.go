package domain

import "time"

// Counter is the high-water mark of a ticket series.
type Counter struct {
	SeriesName   Series
	CurrentValue int64
	UpdatedAt    time.Time
}
