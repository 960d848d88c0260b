// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tracklink

// CalculateCRC computes the CRC-16-CCITT checksum of a frame body
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 == 0 {
				crc <<= 1
				continue
			}
			crc = (crc << 1) ^ crcPolynomial
		}
	}
	return crc
}
