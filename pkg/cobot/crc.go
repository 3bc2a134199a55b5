// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cobot

import "github.com/sigurn/crc8"

// CRC-8 (poly 0x07, init 0x00, no reflection)
var crcTable = crc8.MakeTable(crc8.CRC8)

// CalculateCRC computes the frame checksum over a body
func CalculateCRC(data []byte) uint8 {
	return crc8.Checksum(data, crcTable)
}

// CheckCRC reports whether data matches the expected checksum
func CheckCRC(data []byte, expected uint8) bool {
	return CalculateCRC(data) == expected
}
