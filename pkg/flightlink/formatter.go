// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

import (
	"fmt"
	"strings"
	"time"
)

var commandNames = [CommandCount]string{
	CmdConnectionCheck:     "CONNECTION_CHECK",
	CmdSensorStatus:        "SENSOR_STATUS",
	CmdRequest:             "REQUEST",
	CmdGoal:                "GOAL",
	CmdAltitude:            "ALTITUDE",
	CmdMode:                "MODE",
	CmdAbsoluteNavigation:  "ABSOLUTE_NAVIGATION",
	CmdRelativeNavigation:  "RELATIVE_NAVIGATION",
	CmdServoParachuteLeft:  "SERVO_PARACHUTE_LEFT",
	CmdServoParachuteRight: "SERVO_PARACHUTE_RIGHT",
	CmdServoStabilizer:     "SERVO_STABILIZER",
	CmdGPS:                 "GPS",
	CmdIMU:                 "IMU",
}

// FormatCommand returns the human-readable name for a command identifier
func FormatCommand(id CommandID) string {
	if id == CmdNone {
		return "NONE"
	}
	if !id.Valid() {
		return "UNKNOWN"
	}
	return commandNames[id]
}

// ParseCommand looks up a command by name (case-insensitive, '-' or '_')
func ParseCommand(name string) (CommandID, bool) {
	name = strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	for id, n := range commandNames {
		if n == name {
			return CommandID(id), true
		}
	}
	return CmdNone, false
}

func (id CommandID) String() string {
	return FormatCommand(id)
}

// FormatServoState returns a human-readable servo state
func FormatServoState(s ServoState) string {
	switch s {
	case ServoDisabled:
		return "DISABLED"
	case ServoOpen:
		return "OPEN"
	case ServoCenter:
		return "CENTER"
	case ServoClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

func (s ServoState) String() string {
	return FormatServoState(s)
}

// FormatFrame formats one received frame into a human-readable string
func FormatFrame(ts time.Time, id CommandID, body []byte) string {
	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", ts.Format("15:04:05.000"), FormatCommand(id), uint8(id), len(body))

	p, err := DecodeBody(id, body)
	if err != nil {
		return result + fmt.Sprintf("  Decode error: %v\n  Raw: %s\n", err, FormatHex(body))
	}
	return result + FormatPayload(p)
}

// FormatPayload formats a decoded payload
func FormatPayload(p Payload) string {
	switch v := p.(type) {
	case *ConnectionCheck:
		return fmt.Sprintf("  Value: %d, Loopback: %s\n", v.Value, yesNo(v.Loopback))

	case *SensorStatus:
		return fmt.Sprintf("  ToF: %s, Camera: %s, Barometer: %s, Magnetometer: %s, IMU: %s, GPS: %s\n",
			okMissing(v.ToF), okMissing(v.Camera), okMissing(v.Barometer),
			okMissing(v.Magnetometer), okMissing(v.IMU), okMissing(v.GPS))

	case *Request:
		return fmt.Sprintf("  Requested: %s (0x%02X)\n", FormatCommand(v.ID), uint8(v.ID))

	case *Coordinates:
		return fmt.Sprintf("  Latitude: %.7f, Longitude: %.7f\n", v.Latitude, v.Longitude)

	case *Altitude:
		return fmt.Sprintf("  Altitude: %d, Pressure: %.2f hPa, Temperature: %.2f°C\n",
			v.Altitude, v.Pressure, v.Temperature)

	case *Mode:
		return fmt.Sprintf("  Mode: 0x%02X\n", uint8(*v))

	case *AbsoluteNavigation:
		return formatNavigation(v)

	case *RelativeNavigation:
		return formatNavigation(&v.AbsoluteNavigation) +
			fmt.Sprintf("  Goal: camera=%s tof=%s, ToF Distance: %d, Goal Direction: %d\n",
				yesNo(v.GoalOnCamera), yesNo(v.GoalOnToF), v.ToFDistance, v.GoalDirection)

	case *ServoConfig:
		return fmt.Sprintf("  State: %s (%d), Open: %d, Center: %d, Close: %d\n",
			FormatServoState(v.State), v.State, v.OpenCount, v.CenterCount, v.CloseCount)

	case *GPS:
		return fmt.Sprintf("  Latitude: %.7f, Longitude: %.7f, Fix: %d\n", v.Latitude, v.Longitude, v.FixStatus)

	case *IMU:
		return fmt.Sprintf("  Accel: %s\n  Gyro:  %s\n  Mag:   %s\n",
			formatAxes(v.Accel), formatAxes(v.Gyro), formatAxes(v.Magnet))
	}
	return fmt.Sprintf("  Payload: %+v\n", p)
}

func formatNavigation(n *AbsoluteNavigation) string {
	return fmt.Sprintf("  North: %d, East: %d, Heading: %d, Motors: L=%d R=%d\n",
		n.North, n.East, n.Heading, n.LeftMotorPower, n.RightMotorPower)
}

func formatAxes(a [3]float32) string {
	return fmt.Sprintf("x=%.3f y=%.3f z=%.3f", a[0], a[1], a[2])
}

// FormatHex formats bytes as space-separated hex
func FormatHex(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func okMissing(v bool) string {
	if v {
		return "OK"
	}
	return "--"
}
