package utils

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
)

func WriteCSV(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.WriteAll(records); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ReadCSV streams records to fn with their zero-based line number. A record
// with a field count different from the first one is still delivered.
func ReadCSV(r io.Reader, fn func(line int, record []string) error) error {
	csvReader := csv.NewReader(r)
	csvReader.FieldsPerRecord = -1

	for line := 0; ; line++ {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := fn(line, record); err != nil {
			return err
		}
	}
}

// FormatFloat renders the shortest decimal that round-trips.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
