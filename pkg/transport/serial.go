// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Serial wraps a serial port opened 8N1
type Serial struct {
	port serial.Port
	name string
}

// OpenSerial opens portName at baudRate with 8 data bits, no parity, one stop bit
func OpenSerial(portName string, baudRate int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &Serial{port: port, name: portName}, nil
}

func (s *Serial) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *Serial) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *Serial) Close() error {
	return s.port.Close()
}

// SetReadTimeout bounds the next reads. A non-positive value blocks.
func (s *Serial) SetReadTimeout(t time.Duration) error {
	if t <= 0 {
		return s.port.SetReadTimeout(serial.NoTimeout)
	}
	return s.port.SetReadTimeout(t)
}

// ResetInput discards bytes received but not yet read
func (s *Serial) ResetInput() error {
	return s.port.ResetInputBuffer()
}

// String describes the port for status output
func (s *Serial) String() string {
	return s.name
}

// ListPorts returns the serial ports present on the host
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}
