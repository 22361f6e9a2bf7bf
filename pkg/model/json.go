package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONMap is a gorm-compatible jsonb column backed by a plain Go map,
// used for the free-form evaluation payload on AlertEvent and the
// condition_json on AlertSubscription.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return errors.New("model: JSONMap.Scan: unsupported type")
		}
		b = []byte(s)
	}
	return json.Unmarshal(b, m)
}

// StringSlice is a gorm-compatible jsonb column for a []string, used
// for DailySummary.TopTickers.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return json.Marshal([]string(s))
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("model: StringSlice.Scan: unsupported type")
		}
		b = []byte(str)
	}
	return json.Unmarshal(b, s)
}
