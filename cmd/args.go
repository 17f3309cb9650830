// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
)

// commandUsage lists the positional arguments each command takes
var commandUsage = map[flightlink.CommandID]string{
	flightlink.CmdConnectionCheck:     "[value] [loopback]",
	flightlink.CmdSensorStatus:        "[sensor,...]  (tof camera barometer magnetometer imu gps)",
	flightlink.CmdRequest:             "<command>",
	flightlink.CmdGoal:                "<latitude> <longitude>",
	flightlink.CmdAltitude:            "<altitude> <pressure> <temperature>",
	flightlink.CmdMode:                "<mode>",
	flightlink.CmdAbsoluteNavigation:  "<north> <east> <heading> <left> <right>",
	flightlink.CmdRelativeNavigation:  "<north> <east> <heading> <left> <right> <camera> <tof> <distance> <direction>",
	flightlink.CmdServoParachuteLeft:  "<state> <open> <center> <close>",
	flightlink.CmdServoParachuteRight: "<state> <open> <center> <close>",
	flightlink.CmdServoStabilizer:     "<state> <open> <center> <close>",
	flightlink.CmdGPS:                 "<latitude> <longitude> <fix>",
	flightlink.CmdIMU:                 "<ax> <ay> <az> <gx> <gy> <gz> <mx> <my> <mz>",
}

// usageTable renders commandUsage for command help text
func usageTable() string {
	var b strings.Builder
	for id := flightlink.CommandID(0); id < flightlink.CommandCount; id++ {
		fmt.Fprintf(&b, "  %-22s %s\n", strings.ToLower(flightlink.FormatCommand(id)), commandUsage[id])
	}
	return b.String()
}

// argParser consumes positional arguments, keeping the first error
type argParser struct {
	args []string
	pos  int
	err  error
}

func (p *argParser) next(name string) string {
	if p.err != nil {
		return ""
	}
	if p.pos >= len(p.args) {
		p.err = fmt.Errorf("missing argument <%s>", name)
		return ""
	}
	s := p.args[p.pos]
	p.pos++
	return s
}

func (p *argParser) optional() (string, bool) {
	if p.err != nil || p.pos >= len(p.args) {
		return "", false
	}
	s := p.args[p.pos]
	p.pos++
	return s, true
}

func (p *argParser) fail(name, s string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid <%s> %q: %w", name, s, err)
	}
}

func (p *argParser) intArg(name string, bits int) int64 {
	s := p.next(name)
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(s, 0, bits)
	if err != nil {
		p.fail(name, s, err)
	}
	return v
}

func (p *argParser) uintArg(name string, bits int) uint64 {
	s := p.next(name)
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		p.fail(name, s, err)
	}
	return v
}

func (p *argParser) floatArg(name string, bits int) float64 {
	s := p.next(name)
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, bits)
	if err != nil {
		p.fail(name, s, err)
	}
	return v
}

func (p *argParser) boolArg(name string) bool {
	s := p.next(name)
	if p.err != nil {
		return false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(name, s, err)
	}
	return v
}

// int24 parses a value that must fit the 24-bit signed wire field
func (p *argParser) int24(name string) int32 {
	v := p.intArg(name, 32)
	if p.err == nil && (v < -0x800000 || v > 0x7FFFFF) {
		p.err = fmt.Errorf("invalid <%s> %d: out of 24-bit range", name, v)
	}
	return int32(v)
}

func (p *argParser) command(name string) flightlink.CommandID {
	s := p.next(name)
	if p.err != nil {
		return flightlink.CmdNone
	}
	if id, ok := flightlink.ParseCommand(s); ok {
		return id
	}
	if v, err := strconv.ParseUint(s, 0, 8); err == nil {
		return flightlink.CommandID(v)
	}
	p.fail(name, s, fmt.Errorf("unknown command"))
	return flightlink.CmdNone
}

func (p *argParser) servoState(name string) flightlink.ServoState {
	s := p.next(name)
	if p.err != nil {
		return flightlink.ServoDisabled
	}
	for st := flightlink.ServoDisabled; st <= flightlink.ServoClose; st++ {
		if strings.EqualFold(s, st.String()) {
			return st
		}
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		p.fail(name, s, fmt.Errorf("expected disabled, open, center, close or a number"))
	}
	return flightlink.ServoState(v)
}

func (p *argParser) done() error {
	if p.err == nil && p.pos < len(p.args) {
		p.err = fmt.Errorf("unexpected argument %q", p.args[p.pos])
	}
	return p.err
}

func parseSensors(list []string) (*flightlink.SensorStatus, error) {
	s := &flightlink.SensorStatus{}
	for _, arg := range list {
		for _, name := range strings.Split(arg, ",") {
			switch strings.ToLower(strings.TrimSpace(name)) {
			case "":
			case "tof":
				s.ToF = true
			case "camera":
				s.Camera = true
			case "barometer", "baro":
				s.Barometer = true
			case "magnetometer", "mag":
				s.Magnetometer = true
			case "imu":
				s.IMU = true
			case "gps":
				s.GPS = true
			case "all":
				*s = flightlink.SensorStatus{ToF: true, Camera: true, Barometer: true, Magnetometer: true, IMU: true, GPS: true}
			default:
				return nil, fmt.Errorf("unknown sensor %q", name)
			}
		}
	}
	return s, nil
}

func parseNavigation(p *argParser) flightlink.AbsoluteNavigation {
	return flightlink.AbsoluteNavigation{
		North:           p.int24("north"),
		East:            p.int24("east"),
		Heading:         int16(p.intArg("heading", 16)),
		LeftMotorPower:  int8(p.intArg("left", 8)),
		RightMotorPower: int8(p.intArg("right", 8)),
	}
}

// ParsePayload builds the payload for id from command line arguments
func ParsePayload(id flightlink.CommandID, args []string) (flightlink.Payload, error) {
	p := &argParser{args: args}
	var out flightlink.Payload

	switch id {
	case flightlink.CmdConnectionCheck:
		c := &flightlink.ConnectionCheck{}
		if s, ok := p.optional(); ok {
			v, err := strconv.ParseUint(s, 0, 6)
			if err != nil {
				p.fail("value", s, err)
			}
			c.Value = uint8(v)
		}
		if s, ok := p.optional(); ok {
			v, err := strconv.ParseBool(s)
			if err != nil {
				p.fail("loopback", s, err)
			}
			c.Loopback = v
		}
		out = c

	case flightlink.CmdSensorStatus:
		s, err := parseSensors(args)
		if err != nil {
			return nil, err
		}
		return s, nil

	case flightlink.CmdRequest:
		out = &flightlink.Request{ID: p.command("command")}

	case flightlink.CmdGoal:
		out = &flightlink.Coordinates{
			Latitude:  p.floatArg("latitude", 64),
			Longitude: p.floatArg("longitude", 64),
		}

	case flightlink.CmdAltitude:
		out = &flightlink.Altitude{
			Altitude:    int16(p.intArg("altitude", 16)),
			Pressure:    float32(p.floatArg("pressure", 32)),
			Temperature: float32(p.floatArg("temperature", 32)),
		}

	case flightlink.CmdMode:
		m := flightlink.Mode(p.uintArg("mode", 8))
		out = &m

	case flightlink.CmdAbsoluteNavigation:
		nav := parseNavigation(p)
		out = &nav

	case flightlink.CmdRelativeNavigation:
		rel := &flightlink.RelativeNavigation{AbsoluteNavigation: parseNavigation(p)}
		rel.GoalOnCamera = p.boolArg("camera")
		rel.GoalOnToF = p.boolArg("tof")
		rel.ToFDistance = uint16(p.uintArg("distance", 16))
		if p.err == nil && rel.ToFDistance > flightlink.ToFDistanceMax {
			p.err = fmt.Errorf("invalid <distance> %d: maximum is %d", rel.ToFDistance, flightlink.ToFDistanceMax)
		}
		rel.GoalDirection = int8(p.intArg("direction", 8))
		out = rel

	case flightlink.CmdServoParachuteLeft, flightlink.CmdServoParachuteRight, flightlink.CmdServoStabilizer:
		out = &flightlink.ServoConfig{
			State:       p.servoState("state"),
			OpenCount:   uint16(p.uintArg("open", 16)),
			CenterCount: uint16(p.uintArg("center", 16)),
			CloseCount:  uint16(p.uintArg("close", 16)),
		}

	case flightlink.CmdGPS:
		out = &flightlink.GPS{
			Latitude:  p.floatArg("latitude", 64),
			Longitude: p.floatArg("longitude", 64),
			FixStatus: uint8(p.uintArg("fix", 8)),
		}

	case flightlink.CmdIMU:
		imu := &flightlink.IMU{}
		for _, axes := range []struct {
			name string
			v    *[3]float32
		}{{"a", &imu.Accel}, {"g", &imu.Gyro}, {"m", &imu.Magnet}} {
			for i, axis := range []string{"x", "y", "z"} {
				axes.v[i] = float32(p.floatArg(axes.name+axis, 32))
			}
		}
		out = imu

	default:
		return nil, fmt.Errorf("%w: 0x%02X", flightlink.ErrUnknownCommand, uint8(id))
	}

	if err := p.done(); err != nil {
		return nil, fmt.Errorf("%s: %w", strings.ToLower(flightlink.FormatCommand(id)), err)
	}
	return out, nil
}

// ParseHex decodes hex text into bytes. Whitespace, colons, commas and 0x
// prefixes are ignored, so "73 05 5A", "73:05:5a" and "0x73,0x05" all work.
func ParseHex(s string) ([]byte, error) {
	s = strings.NewReplacer("0x", "", "0X", "").Replace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':', ',', '-':
			return -1
		}
		return r
	}, s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return data, nil
}
