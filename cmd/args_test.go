// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"strings"
	"testing"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modePayload(v uint8) *flightlink.Mode {
	m := flightlink.Mode(v)
	return &m
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name string
		id   flightlink.CommandID
		args []string
		want flightlink.Payload
	}{
		{"connection check default", flightlink.CmdConnectionCheck, nil,
			&flightlink.ConnectionCheck{}},
		{"connection check loopback", flightlink.CmdConnectionCheck, []string{"0x15", "true"},
			&flightlink.ConnectionCheck{Value: 0x15, Loopback: true}},
		{"sensors", flightlink.CmdSensorStatus, []string{"tof,gps", "IMU"},
			&flightlink.SensorStatus{ToF: true, GPS: true, IMU: true}},
		{"sensors none", flightlink.CmdSensorStatus, nil,
			&flightlink.SensorStatus{}},
		{"sensors all", flightlink.CmdSensorStatus, []string{"all"},
			&flightlink.SensorStatus{ToF: true, Camera: true, Barometer: true, Magnetometer: true, IMU: true, GPS: true}},
		{"request by name", flightlink.CmdRequest, []string{"gps"},
			&flightlink.Request{ID: flightlink.CmdGPS}},
		{"request by number", flightlink.CmdRequest, []string{"5"},
			&flightlink.Request{ID: flightlink.CmdMode}},
		{"goal", flightlink.CmdGoal, []string{"52.52", "13.405"},
			&flightlink.Coordinates{Latitude: 52.52, Longitude: 13.405}},
		{"altitude", flightlink.CmdAltitude, []string{"-120", "1013.25", "21.5"},
			&flightlink.Altitude{Altitude: -120, Pressure: 1013.25, Temperature: 21.5}},
		{"mode", flightlink.CmdMode, []string{"0x5A"}, modePayload(0x5A)},
		{"absolute navigation", flightlink.CmdAbsoluteNavigation, []string{"-8388608", "8388607", "-90", "-100", "100"},
			&flightlink.AbsoluteNavigation{North: -8388608, East: 8388607, Heading: -90, LeftMotorPower: -100, RightMotorPower: 100}},
		{"relative navigation", flightlink.CmdRelativeNavigation,
			[]string{"10", "-20", "45", "5", "6", "true", "false", "8191", "-3"},
			&flightlink.RelativeNavigation{
				AbsoluteNavigation: flightlink.AbsoluteNavigation{North: 10, East: -20, Heading: 45, LeftMotorPower: 5, RightMotorPower: 6},
				GoalOnCamera:       true,
				ToFDistance:        8191,
				GoalDirection:      -3,
			}},
		{"servo by name", flightlink.CmdServoStabilizer, []string{"Center", "1000", "1500", "2000"},
			&flightlink.ServoConfig{State: flightlink.ServoCenter, OpenCount: 1000, CenterCount: 1500, CloseCount: 2000}},
		{"servo by number", flightlink.CmdServoParachuteLeft, []string{"1", "0", "0", "65535"},
			&flightlink.ServoConfig{State: flightlink.ServoOpen, CloseCount: 65535}},
		{"gps", flightlink.CmdGPS, []string{"-33.8688", "151.2093", "3"},
			&flightlink.GPS{Latitude: -33.8688, Longitude: 151.2093, FixStatus: 3}},
		{"imu", flightlink.CmdIMU, []string{"0", "0", "9.81", "0.1", "0.2", "0.3", "-1", "-2", "-3"},
			&flightlink.IMU{
				Accel:  [3]float32{0, 0, 9.81},
				Gyro:   [3]float32{0.1, 0.2, 0.3},
				Magnet: [3]float32{-1, -2, -3},
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayload(tt.id, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got.AppendBody(nil), flightlink.BodyLen(tt.id))
		})
	}
}

func TestParsePayload_Errors(t *testing.T) {
	tests := []struct {
		name    string
		id      flightlink.CommandID
		args    []string
		wantErr string
	}{
		{"check value too wide", flightlink.CmdConnectionCheck, []string{"64"}, "<value>"},
		{"check bad loopback", flightlink.CmdConnectionCheck, []string{"1", "maybe"}, "<loopback>"},
		{"unknown sensor", flightlink.CmdSensorStatus, []string{"lidar"}, "unknown sensor"},
		{"request missing", flightlink.CmdRequest, nil, "missing argument <command>"},
		{"request unknown", flightlink.CmdRequest, []string{"warp"}, "unknown command"},
		{"goal missing longitude", flightlink.CmdGoal, []string{"52.5"}, "<longitude>"},
		{"goal not a number", flightlink.CmdGoal, []string{"north", "13"}, "<latitude>"},
		{"mode too large", flightlink.CmdMode, []string{"256"}, "<mode>"},
		{"mode extra argument", flightlink.CmdMode, []string{"1", "2"}, "unexpected argument"},
		{"north out of range", flightlink.CmdAbsoluteNavigation, []string{"8388608", "0", "0", "0", "0"}, "24-bit"},
		{"motor out of range", flightlink.CmdAbsoluteNavigation, []string{"0", "0", "0", "128", "0"}, "<left>"},
		{"distance too far", flightlink.CmdRelativeNavigation,
			[]string{"0", "0", "0", "0", "0", "true", "true", "8192", "0"}, "maximum is 8191"},
		{"servo bad state", flightlink.CmdServoStabilizer, []string{"sideways", "0", "0", "0"}, "<state>"},
		{"gps missing fix", flightlink.CmdGPS, []string{"1", "2"}, "<fix>"},
		{"imu short", flightlink.CmdIMU, []string{"1", "2", "3"}, "<gx>"},
		{"undefined command", flightlink.CmdNone, nil, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload(tt.id, tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseCommandArgs(t *testing.T) {
	id, p, err := parseCommandArgs([]string{"SERVO-STABILIZER", "close", "1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, flightlink.CmdServoStabilizer, id)
	assert.Equal(t, &flightlink.ServoConfig{State: flightlink.ServoClose, OpenCount: 1, CenterCount: 2, CloseCount: 3}, p)

	_, _, err = parseCommandArgs([]string{"teleport"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection_check")
}

func TestUsageTable(t *testing.T) {
	table := usageTable()
	lines := strings.Split(strings.TrimRight(table, "\n"), "\n")
	require.Len(t, lines, flightlink.CommandCount)
	for id := flightlink.CommandID(0); id < flightlink.CommandCount; id++ {
		assert.Contains(t, lines[id], strings.ToLower(flightlink.FormatCommand(id)))
		assert.NotEmpty(t, commandUsage[id], "usage for %s", flightlink.FormatCommand(id))
	}
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{"spaced", "73 05 5A 5F 65", []byte{0x73, 0x05, 0x5A, 0x5F, 0x65}},
		{"packed", "73055a5f65", []byte{0x73, 0x05, 0x5A, 0x5F, 0x65}},
		{"colons", "73:05:5a", []byte{0x73, 0x05, 0x5A}},
		{"prefixed", "0x73,0x05, 0X5A", []byte{0x73, 0x05, 0x5A}},
		{"multiline", "73 05\n5a\r\n", []byte{0x73, 0x05, 0x5A}},
		{"empty", "", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHex(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHex_Invalid(t *testing.T) {
	for _, input := range []string{"7", "73 0", "zz", "73 g5"} {
		_, err := ParseHex(input)
		assert.Error(t, err, "input %q", input)
	}
}
