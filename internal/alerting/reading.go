package alerting

import "time"

// Reading is one sensor sample from a device. Absent fields are nil.
type Reading struct {
	DeviceID    uint      `json:"deviceId"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	AirPressure *float64  `json:"airPressure,omitempty"`
	AirQuality  *float64  `json:"airQuality,omitempty"`
	Time        time.Time `json:"time"`
}
