package reader

import (
	"encoding/json"
	"math"
	"time"
)

// decodeValue converts a cell value from its wire form.
// Dates, errors and empty cells arrive as tagged arrays, everything else is already a JSON scalar.
func decodeValue(raw json.RawMessage, loc *time.Location) (any, error) {
	var v any
	if len(raw) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	tagged, ok := v.([]any)
	if !ok || len(tagged) == 0 {
		return v, nil
	}
	tag, ok := tagged[0].(string)
	if !ok {
		return v, nil
	}

	switch tag {
	case "date":
		if t, ok := decodeDate(tagged[1:], loc); ok {
			return t, nil
		}
	case "error":
		if len(tagged) > 1 {
			if code, ok := tagged[1].(string); ok {
				return &CellError{Code: code}, nil
			}
		}
	case "empty":
		return nil, nil
	}
	return v, nil
}

// decodeDate builds a time from year, month (1-based), day, hour, minute and second.
// Missing time components default to zero. Fractional seconds are kept.
func decodeDate(parts []any, loc *time.Location) (time.Time, bool) {
	if len(parts) < 3 {
		return time.Time{}, false
	}
	var nums [6]float64
	for i := 0; i < len(parts) && i < len(nums); i++ {
		n, ok := parts[i].(float64)
		if !ok {
			return time.Time{}, false
		}
		nums[i] = n
	}
	sec, frac := math.Modf(nums[5])
	return time.Date(
		int(nums[0]), time.Month(int(nums[1])), int(nums[2]),
		int(nums[3]), int(nums[4]), int(sec), int(math.Round(frac*1e9)),
		loc,
	), true
}
