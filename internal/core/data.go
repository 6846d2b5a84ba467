// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"encoding/json"
	"slices"

	"github.com/sapcc/go-bits/must"

	"github.com/sapcc/parkhaus/internal/db"
)

// RateCard holds the parking charges for one vehicle class.
type RateCard struct {
	BaseRatePerHour float64 `json:"baseRatePerHour" yaml:"base_rate_per_hour"`
	MinimumCharge   float64 `json:"minimumCharge" yaml:"minimum_charge"`
}

// TimeWindow is a wall-clock interval in "HH:MM" notation.
type TimeWindow struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Pricing describes the parking charges of a site or machine. Machine-level
// pricing overrides site-level pricing which overrides the configured default.
type Pricing struct {
	Rates          map[db.VehicleType]RateCard `json:"rates" yaml:"rates"`
	PeakMultiplier float64                     `json:"peakMultiplier" yaml:"peak_multiplier"`
	PeakWindow     *TimeWindow                 `json:"peakWindow,omitempty" yaml:"peak_window"`
}

// DayHours holds the opening hours for one weekday.
type DayHours struct {
	Open      bool   `json:"open" yaml:"open"`
	OpenTime  string `json:"openTime,omitempty" yaml:"open_time"`
	CloseTime string `json:"closeTime,omitempty" yaml:"close_time"`
}

// WeeklyHours maps lowercase weekday names ("monday" etc.) to opening hours.
type WeeklyHours map[string]DayHours

// ParseJSONColumn deserializes a JSON-typed TEXT column. The empty string
// reads as the zero value, so that columns can default to ''.
func ParseJSONColumn[T any](buf string) (T, error) {
	var result T
	if buf == "" {
		return result, nil
	}
	err := json.Unmarshal([]byte(buf), &result)
	return result, err
}

// RenderJSONColumn serializes a value into a JSON-typed TEXT column.
// The value types stored in such columns cannot fail to marshal.
func RenderJSONColumn(value any) string {
	return string(must.Return(json.Marshal(value)))
}

// VehicleTypesFromJSON deserializes a vehicle class list column.
func VehicleTypesFromJSON(buf string) ([]db.VehicleType, error) {
	return ParseJSONColumn[[]db.VehicleType](buf)
}

// CoversVehicleType reports whether the given class list contains this class.
func CoversVehicleType(types []db.VehicleType, vt db.VehicleType) bool {
	return slices.Contains(types, vt)
}
