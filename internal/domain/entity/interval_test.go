package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{Hourly, 60},
		{Daily, 1440},
		{Weekly, 10080},
		{Monthly, 43800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, err := ParseInterval(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.name, i.Name)
			assert.Equal(t, tt.want, i.ReadingsPerCycle)
		})
	}
}

func TestParseIntervalUnknown(t *testing.T) {
	_, err := ParseInterval("bogus")
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "bogus", cfgErr.Interval)
	assert.Contains(t, err.Error(), "hourly")
}

func TestIntervalCycleDuration(t *testing.T) {
	i, err := ParseInterval(Hourly)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, i.CycleDuration())
}

func TestIntervalsIsCopy(t *testing.T) {
	all := Intervals()
	all[0].ReadingsPerCycle = 1

	i, err := ParseInterval(Hourly)
	require.NoError(t, err)
	assert.Equal(t, 60, i.ReadingsPerCycle)
}
