package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ToRawMessage encodes an event body for a publisher.
func ToRawMessage(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}

// DecodeMessage decodes an event body. Unknown fields are rejected so a
// message meant for another queue is not half-read.
func DecodeMessage[T any](body []byte) (*T, error) {
	var out T
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %T: %w", out, err)
	}
	return &out, nil
}
