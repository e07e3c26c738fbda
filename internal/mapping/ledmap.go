package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// LedMap is the JSON document stored on the controller as ledmap.json.
type LedMap struct {
	Map Persisted `json:"map"`
}

// ParseLedMap decodes a ledmap document, requiring a non-empty array of
// integers under "map".
func ParseLedMap(data []byte) (Persisted, error) {
	var raw struct {
		Map []any `json:"map"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected extra data after ledmap document")
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	if len(raw.Map) == 0 {
		return nil, fmt.Errorf("%w: map must be a non-empty array", ErrInvalidMapping)
	}

	out := make(Persisted, len(raw.Map))
	for i, v := range raw.Map {
		num, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%w: map[%d] is not a number", ErrInvalidMapping, i)
		}
		n, err := num.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: map[%d] is not an integer", ErrInvalidMapping, i)
		}
		out[i] = int(n)
	}
	return out, nil
}
