// Package alerting evaluates sensor readings and scheduled plant checks
// against user conditions, suppresses repeats, persists alerts and
// publishes them to realtime subscribers.
package alerting

// SensorType identifies a measured quantity a device condition can watch.
type SensorType int

// Supported sensor types. The zero value is invalid.
const (
	SensorUnknown SensorType = iota
	SensorTemperature
	SensorHumidity
	SensorAirPressure
	SensorAirQuality
)

// sensorInfo ties a sensor type to its stored name, display unit and the
// reading field it is measured by.
type sensorInfo struct {
	name  string
	label string
	unit  string
	read  func(*Reading) *float64
}

var sensorTable = map[SensorType]sensorInfo{
	SensorTemperature: {
		name: "Temperature", label: "Temperature", unit: "°C",
		read: func(r *Reading) *float64 { return r.Temperature },
	},
	SensorHumidity: {
		name: "Humidity", label: "Humidity", unit: "%",
		read: func(r *Reading) *float64 { return r.Humidity },
	},
	SensorAirPressure: {
		name: "AirPressure", label: "Air Pressure", unit: "hPa",
		read: func(r *Reading) *float64 { return r.AirPressure },
	},
	SensorAirQuality: {
		name: "AirQuality", label: "Air Quality", unit: "ppm",
		read: func(r *Reading) *float64 { return r.AirQuality },
	},
}

// AllSensorTypes lists the valid sensor types in display order.
var AllSensorTypes = []SensorType{SensorTemperature, SensorHumidity, SensorAirPressure, SensorAirQuality}

// ParseSensorType maps a stored sensor name to its type.
func ParseSensorType(name string) (SensorType, bool) {
	for st, info := range sensorTable {
		if info.name == name {
			return st, true
		}
	}
	return SensorUnknown, false
}

// String returns the stored name, e.g. "AirPressure".
func (s SensorType) String() string {
	if info, ok := sensorTable[s]; ok {
		return info.name
	}
	return "Unknown"
}

// Unit returns the default display unit.
func (s SensorType) Unit() string {
	return sensorTable[s].unit
}

// Value returns the reading's value for this sensor, or false if the
// reading does not carry it.
func (s SensorType) Value(r *Reading) (float64, bool) {
	info, ok := sensorTable[s]
	if !ok || r == nil {
		return 0, false
	}
	v := info.read(r)
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Operator is a threshold comparison.
type Operator string

// Supported operators. Both are inclusive.
const (
	OperatorLessOrEqual    Operator = "<="
	OperatorGreaterOrEqual Operator = ">="
)

// Broadcast event types and alert names.
const (
	EventTypeLiveAlert = "ServerBroadcastsLiveAlertToAlertView"

	ScheduledWaterAlertName = "Scheduled Water Alert"

	userAlertTopicPrefix = "alerts-"
)

// UserAlertTopic returns the realtime topic carrying a user's live alerts.
func UserAlertTopic(userID string) string {
	return userAlertTopicPrefix + userID
}

// alertName is the name given to alerts fired by a device condition.
func alertName(s SensorType) string {
	return sensorTable[s].label + " Alert"
}
