package alerting

import (
	"github.com/leafwatch/leafwatch/internal/datastore/entities"
)

// Match is a device condition satisfied by a reading, before duplicate
// suppression.
type Match struct {
	ConditionID uint
	Sensor      SensorType
	Condition   Condition
	Value       float64
}

// Evaluate returns the conditions the reading satisfies. Deleted conditions,
// conditions of other devices, sensors absent from the reading and
// unparseable conditions are skipped.
func Evaluate(conditions []entities.UserDeviceCondition, reading *Reading) []Match {
	if reading == nil {
		return nil
	}
	var matches []Match
	for i := range conditions {
		if m, ok := evaluateCondition(&conditions[i], reading); ok {
			matches = append(matches, m)
		}
	}
	return matches
}

func evaluateCondition(cond *entities.UserDeviceCondition, reading *Reading) (Match, bool) {
	if cond.Deleted || cond.UserDeviceID != reading.DeviceID {
		return Match{}, false
	}
	sensor, ok := ParseSensorType(cond.SensorType)
	if !ok {
		return Match{}, false
	}
	value, ok := sensor.Value(reading)
	if !ok {
		return Match{}, false
	}
	parsed, err := ParseCondition(cond.Condition)
	if err != nil {
		return Match{}, false
	}
	if !parsed.Matches(value) {
		return Match{}, false
	}
	return Match{
		ConditionID: cond.ID,
		Sensor:      sensor,
		Condition:   parsed,
		Value:       value,
	}, true
}
