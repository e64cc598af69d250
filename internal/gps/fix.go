package gps

import (
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

const metresPerSecondPerKnot = 1852.0 / 3600.0

// Fix represents a single combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	Time       string    `json:"time"`        // e.g. "12:34:56.0000"
	Date       string    `json:"date"`        // DD/MM/YY as sent by the receiver
	Latitude   float64   `json:"lat"`         // decimal degrees
	Longitude  float64   `json:"lon"`         // decimal degrees
	SpeedKnots float64   `json:"speed_knots"` // speed over ground
	CourseDeg  float64   `json:"course_deg"`  // course over ground
	Validity   string    `json:"validity"`    // "A" (valid) / "V" (void)
	ReceivedAt time.Time `json:"received_at"`
}

// Valid reports whether the receiver flagged the fix as usable.
func (f Fix) Valid() bool { return f.Validity == nmea.ValidRMC }

// SpeedMPS returns the ground speed in metres per second.
func (f Fix) SpeedMPS() float64 { return f.SpeedKnots * metresPerSecondPerKnot }

// FromRMC fills a Fix from an RMC sentence.
func FromRMC(m nmea.RMC, received time.Time) Fix {
	return Fix{
		Time:       m.Time.String(),
		Date:       m.Date.String(),
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		SpeedKnots: m.Speed,
		CourseDeg:  m.Course,
		Validity:   m.Validity,
		ReceivedAt: received,
	}
}
