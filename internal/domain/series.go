package domain

import (
	"fmt"
	"strings"
)

// Series is an independent namespace for ticket numbers.
type Series string

const (
	SeriesStandard Series = "standard"
	SeriesGPON     Series = "gpon"
)

// TicketNumberWidth is the zero-padded width of the numeric part.
const TicketNumberWidth = 6

var seriesPrefixes = map[Series]string{
	SeriesStandard: "IM",
	SeriesGPON:     "GIM",
}

// Valid reports whether the series is one the system issues tickets for.
func (s Series) Valid() bool {
	_, ok := seriesPrefixes[s]
	return ok
}

// Prefix returns the short code placed in front of ticket numbers.
func (s Series) Prefix() string {
	return seriesPrefixes[s]
}

// AllSeries lists the supported series in a stable order.
func AllSeries() []Series {
	return []Series{SeriesStandard, SeriesGPON}
}

// ParseSeries normalizes raw input into a Series.
func ParseSeries(raw string) (Series, error) {
	s := Series(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown series %q", raw)
	}
	return s, nil
}

// FormatTicketNumber renders n for the series, e.g. IM000123.
func FormatTicketNumber(series Series, n int64) string {
	return fmt.Sprintf("%s%0*d", series.Prefix(), TicketNumberWidth, n)
}
