package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTicketNumber(t *testing.T) {
	cases := []struct {
		series Series
		n      int64
		want   string
	}{
		{SeriesStandard, 123, "IM000123"},
		{SeriesStandard, 1, "IM000001"},
		{SeriesGPON, 45, "GIM000045"},
		{SeriesGPON, 999999, "GIM999999"},
		{SeriesStandard, 1234567, "IM1234567"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatTicketNumber(tc.series, tc.n))
	}
}

func TestParseSeries(t *testing.T) {
	s, err := ParseSeries(" GPON ")
	require.NoError(t, err)
	assert.Equal(t, SeriesGPON, s)

	_, err = ParseSeries("fiber")
	assert.Error(t, err)
}
