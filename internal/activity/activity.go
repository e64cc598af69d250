// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package activity defines the transportation modes the classifier can report.
package activity

import (
	"fmt"
	"strings"
)

// Type is a transportation mode. The zero value is Unknown.
type Type int

const (
	Unknown Type = iota
	Walking
	Running
	Cycling
	Automotive
	Bus
	Rail
	Stationary
	Aviation
)

// All lists every Type in declaration order.
var All = []Type{Unknown, Walking, Running, Cycling, Automotive, Bus, Rail, Stationary, Aviation}

var names = [...]string{
	Unknown:    "unknown",
	Walking:    "walking",
	Running:    "running",
	Cycling:    "cycling",
	Automotive: "automotive",
	Bus:        "bus",
	Rail:       "rail",
	Stationary: "stationary",
	Aviation:   "aviation",
}

var glyphs = [...]string{
	Unknown:    "❓",
	Walking:    "🚶",
	Running:    "🏃",
	Cycling:    "🚲",
	Automotive: "🚗",
	Bus:        "🚌",
	Rail:       "🚆",
	Stationary: "🧍",
	Aviation:   "✈️",
}

// Valid reports whether t is one of the declared modes.
func (t Type) Valid() bool {
	return t >= Unknown && t <= Aviation
}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("activity(%d)", int(t))
	}
	return names[t]
}

// Glyph returns a single display symbol for the mode.
func (t Type) Glyph() string {
	if !t.Valid() {
		return glyphs[Unknown]
	}
	return glyphs[t]
}

// IsMotorized reports whether the mode is powered by an engine.
func (t Type) IsMotorized() bool {
	switch t {
	case Automotive, Bus, Rail, Aviation:
		return true
	}
	return false
}

// Parse returns the Type named by s (case-insensitive).
func Parse(s string) (Type, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == key {
			return Type(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown activity type %q", s)
}

// MarshalText encodes the mode as its lower-case name.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid activity type %d", int(t))
	}
	return []byte(names[t]), nil
}

// UnmarshalText decodes a lower-case mode name.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Predicted pairs a mode with the confidence assigned to it.
type Predicted struct {
	Type       Type    `json:"activity"`
	Confidence float64 `json:"confidence"` // 0..1
}

// Valid reports whether the confidence lies in [0,1] and the type is declared.
func (p Predicted) Valid() bool {
	return p.Type.Valid() && p.Confidence >= 0 && p.Confidence <= 1
}

func (p Predicted) String() string {
	return fmt.Sprintf("%s %.2f", p.Type, p.Confidence)
}
