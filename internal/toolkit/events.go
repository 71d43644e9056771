package toolkit

import (
	"encoding/json"
	"fmt"
)

// ToEvents converts a slice of records into correlation events via their JSON form.
func ToEvents[T any](records []T) ([]Event, error) {
	out := make([]Event, 0, len(records))
	for i, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}
		out = append(out, event)
	}
	return out, nil
}
