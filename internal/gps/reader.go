// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gps reads NMEA fixes from a serial receiver and tracks the latest
// ground speed.
package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/activity_classifier/internal/timeutil"
)

// SerialConfig names the receiver's port.
type SerialConfig struct {
	PortName string // /dev/serial0, /dev/ttyAMA0, /dev/ttyUSB0, ...
	BaudRate uint
}

// OpenSerial opens the receiver with 8N1 framing.
func OpenSerial(cfg SerialConfig) (io.ReadWriteCloser, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:              cfg.PortName,
		BaudRate:              cfg.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("gps: open %s: %w", cfg.PortName, err)
	}
	return port, nil
}

// ParseLine returns the fix carried by an RMC sentence. Other sentence
// types, partial lines and checksum failures report false.
func ParseLine(line string, clock timeutil.Clock) (Fix, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Fix{}, false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false
	}
	if sentence.DataType() != nmea.TypeRMC {
		return Fix{}, false
	}
	return FromRMC(sentence.(nmea.RMC), clock.Now()), true
}

// Scan reads NMEA lines from r and calls fn for every RMC fix until r is
// exhausted or ctx is done.
func Scan(ctx context.Context, r io.Reader, clock timeutil.Clock, fn func(Fix)) error {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	reader := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadString('\n')
		if fix, ok := ParseLine(line, clock); ok {
			fn(fix)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gps: read: %w", err)
		}
	}
}
