// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

// Checksum computes the frame checksum of id followed by body:
// the byte sum modulo 256.
func Checksum(id CommandID, body []byte) uint8 {
	sum := uint8(id)
	for _, b := range body {
		sum += b
	}
	return sum
}
