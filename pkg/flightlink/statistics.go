// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

import (
	"fmt"
	"time"
)

// Statistics tracks link counters and rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	BytesReceived  uint64
	FramesReceived uint64
	FramesSent     uint64
	InvalidFrames  uint64
	Unregistered   uint64
	DecodeErrors   uint64
	SkippedBytes   uint64
	Resets         uint64
	Overflows      uint64
	PerCommand     [CommandCount]uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() Statistics {
	now := time.Now()
	return Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

func (s *Statistics) touch() {
	s.LastUpdateTime = time.Now()
}

// Errors returns the number of frames lost to corruption or missing handlers
func (s *Statistics) Errors() uint64 {
	return s.InvalidFrames + s.Unregistered + s.DecodeErrors + s.Resets
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.FramesReceived) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	total := s.FramesReceived + s.Errors()
	var validPercent float64
	if total > 0 {
		validPercent = float64(s.FramesReceived) * 100.0 / float64(total)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Bytes Received:  %8d\n", s.BytesReceived)
	result += fmt.Sprintf("Frames Received: %8d (%.1f%%)\n", s.FramesReceived, validPercent)
	result += fmt.Sprintf("Frames Sent:     %8d\n", s.FramesSent)

	if s.InvalidFrames > 0 {
		result += fmt.Sprintf("Invalid Frames:  %8d\n", s.InvalidFrames)
	}
	if s.Unregistered > 0 {
		result += fmt.Sprintf("Unregistered:    %8d\n", s.Unregistered)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.SkippedBytes > 0 {
		result += fmt.Sprintf("Skipped Bytes:   %8d\n", s.SkippedBytes)
	}
	if s.Resets > 0 || s.Overflows > 0 {
		result += fmt.Sprintf("Resets:          %8d\n", s.Resets)
		result += fmt.Sprintf("Overflows:       %8d\n", s.Overflows)
	}
	for id, n := range s.PerCommand {
		if n > 0 {
			result += fmt.Sprintf("  %-22s %6d\n", FormatCommand(CommandID(id))+":", n)
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = NewStatistics()
}
