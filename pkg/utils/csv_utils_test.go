package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	data, err := WriteCSV([][]string{
		{"PM2.5", "3.2", "Sat Oct 17 09:41:07 2026"},
		{"PM10", "7", "Sat Oct 17 09:41:07 2026"},
	})
	require.NoError(t, err)
	assert.Equal(t, "PM2.5,3.2,Sat Oct 17 09:41:07 2026\nPM10,7,Sat Oct 17 09:41:07 2026\n", string(data))
}

func TestReadCSV(t *testing.T) {
	in := "PM2.5,3.2,Sat Oct 17 09:41:07 2026\nbogus\nPM10,7,Sat Oct 17 09:41:07 2026\n"

	var lines []int
	var widths []int
	err := ReadCSV(strings.NewReader(in), func(line int, record []string) error {
		lines = append(lines, line)
		widths = append(widths, len(record))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, lines)
	assert.Equal(t, []int{3, 1, 3}, widths)
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{3.2, "3.2"},
		{15, "15"},
		{0, "0"},
		{12.345, "12.345"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFloat(tt.in))
	}
}
