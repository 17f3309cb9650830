// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package flightlink provides the link-layer framing protocol used between
// flight controllers and ground stations in the Thermoquad ecosystem.
//
// A frame is START | ID | BODY | CHECKSUM | STOP. The body length is fixed per
// command identifier and is never carried on the wire. This package provides
// the frame codec, the stream reassembler, the command registry and the
// binary payload codecs for every command.
package flightlink

// Protocol framing bytes
const (
	StartByte = 's'
	StopByte  = 'e'
)

// FrameOverhead is START + ID + CHECKSUM + STOP
const FrameOverhead = 4

// CommandID identifies a command on the wire. The ordinal is the wire value.
type CommandID uint8

// Command identifiers. Values must stay contiguous from zero.
const (
	CmdConnectionCheck CommandID = iota
	CmdSensorStatus
	CmdRequest
	CmdGoal
	CmdAltitude
	CmdMode
	CmdAbsoluteNavigation
	CmdRelativeNavigation
	CmdServoParachuteLeft
	CmdServoParachuteRight
	CmdServoStabilizer
	CmdGPS
	CmdIMU

	// CommandCount is the number of defined commands
	CommandCount = iota
)

// CmdNone means "no command": nothing dispatched, or no reply requested
const CmdNone CommandID = CommandCount

// Body lengths per command
const (
	ConnectionCheckLen    = 1
	SensorStatusLen       = 1
	RequestLen            = 1
	GoalLen               = 16
	AltitudeLen           = 10
	ModeLen               = 1
	AbsoluteNavigationLen = 10
	RelativeNavigationLen = 13
	ServoConfigLen        = 7
	GPSLen                = 17
	IMULen                = 36
)

var bodyLens = [CommandCount]uint8{
	CmdConnectionCheck:     ConnectionCheckLen,
	CmdSensorStatus:        SensorStatusLen,
	CmdRequest:             RequestLen,
	CmdGoal:                GoalLen,
	CmdAltitude:            AltitudeLen,
	CmdMode:                ModeLen,
	CmdAbsoluteNavigation:  AbsoluteNavigationLen,
	CmdRelativeNavigation:  RelativeNavigationLen,
	CmdServoParachuteLeft:  ServoConfigLen,
	CmdServoParachuteRight: ServoConfigLen,
	CmdServoStabilizer:     ServoConfigLen,
	CmdGPS:                 GPSLen,
	CmdIMU:                 IMULen,
}

// Size limits derived from the body length table
const (
	MaxBodyLen  = IMULen
	MaxFrameLen = MaxBodyLen + FrameOverhead

	// RingCapacity holds two maximum frames so one can never be bisected
	// beyond recovery.
	RingCapacity = 2 * MaxFrameLen
)

// Valid reports whether id is a defined command
func (id CommandID) Valid() bool {
	return id < CommandCount
}

// BodyLen returns the fixed body length for id, or -1 if id is not defined
func BodyLen(id CommandID) int {
	if !id.Valid() {
		return -1
	}
	return int(bodyLens[id])
}

// FrameLen returns the total frame length for id, or -1 if id is not defined
func FrameLen(id CommandID) int {
	if !id.Valid() {
		return -1
	}
	return int(bodyLens[id]) + FrameOverhead
}

// ServoState is the commanded position of a servo
type ServoState uint8

// Servo state values
const (
	ServoDisabled ServoState = iota
	ServoOpen
	ServoCenter
	ServoClose
)
