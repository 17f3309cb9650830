// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Payload is the typed body of one command.
//
// AppendBody appends exactly the command's body length to dst.
// UnmarshalBody decodes src into the receiver and returns ErrBodyLength,
// leaving the receiver untouched, when len(src) is not the body length.
type Payload interface {
	AppendBody(dst []byte) []byte
	UnmarshalBody(src []byte) error
}

// Bit offsets inside packed bytes
const (
	connLoopbackBit = 7
	connValueMask   = 0x3F

	sensorToFBit          = 5
	sensorCameraBit       = 4
	sensorBarometerBit    = 3
	sensorMagnetometerBit = 2
	sensorIMUBit          = 1
	sensorGPSBit          = 0

	relCameraBit   = 7
	relToFBit      = 6
	relToFHighMask = 0x1F

	// Bits with no assigned field, kept so a decoded body re-encodes unchanged
	connReservedMask   = 0x40
	sensorReservedMask = 0xC0
	relReservedMask    = 0x20

	// ToFDistanceMax is the largest distance representable in 13 bits
	ToFDistanceMax = 0x1FFF

	// ConnectionCheckValueMask selects the 6-bit connection check value
	ConnectionCheckValueMask = connValueMask
)

func checkLen(src []byte, want int) error {
	if len(src) != want {
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrBodyLength, len(src), want)
	}
	return nil
}

func bit(v bool, pos uint) byte {
	if v {
		return 1 << pos
	}
	return 0
}

func isSet(b byte, pos uint) bool {
	return b&(1<<pos) != 0
}

// appendInt24 appends the low 24 bits of v, most significant byte first
func appendInt24(dst []byte, v int32) []byte {
	return append(dst, byte(v>>16), byte(v>>8), byte(v))
}

// int24 reads a 24-bit two's complement value, sign-extending bit 23
func int24(b []byte) int32 {
	return int32(uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8) >> 8
}

func appendFloat32(dst []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
}

func float32At(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func appendFloat64(dst []byte, f float64) []byte {
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(f))
}

func float64At(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// ConnectionCheck is a link liveness probe.
// Value is 6 bits wide. Loopback marks the echo of a received check.
type ConnectionCheck struct {
	Value    uint8 `yaml:"value"`
	Loopback bool  `yaml:"loopback"`

	reserved byte
}

func (c *ConnectionCheck) AppendBody(dst []byte) []byte {
	return append(dst, bit(c.Loopback, connLoopbackBit)|(c.Value&connValueMask)|c.reserved)
}

func (c *ConnectionCheck) UnmarshalBody(src []byte) error {
	if err := checkLen(src, ConnectionCheckLen); err != nil {
		return err
	}
	c.Loopback = isSet(src[0], connLoopbackBit)
	c.Value = src[0] & connValueMask
	c.reserved = src[0] & connReservedMask
	return nil
}

// SensorStatus reports which sensors are present and healthy
type SensorStatus struct {
	ToF          bool `yaml:"tof"`
	Camera       bool `yaml:"camera"`
	Barometer    bool `yaml:"barometer"`
	Magnetometer bool `yaml:"magnetometer"`
	IMU          bool `yaml:"imu"`
	GPS          bool `yaml:"gps"`

	reserved byte
}

func (s *SensorStatus) AppendBody(dst []byte) []byte {
	var b byte
	b |= bit(s.ToF, sensorToFBit)
	b |= bit(s.Camera, sensorCameraBit)
	b |= bit(s.Barometer, sensorBarometerBit)
	b |= bit(s.Magnetometer, sensorMagnetometerBit)
	b |= bit(s.IMU, sensorIMUBit)
	b |= bit(s.GPS, sensorGPSBit)
	b |= s.reserved
	return append(dst, b)
}

func (s *SensorStatus) UnmarshalBody(src []byte) error {
	if err := checkLen(src, SensorStatusLen); err != nil {
		return err
	}
	b := src[0]
	s.ToF = isSet(b, sensorToFBit)
	s.Camera = isSet(b, sensorCameraBit)
	s.Barometer = isSet(b, sensorBarometerBit)
	s.Magnetometer = isSet(b, sensorMagnetometerBit)
	s.IMU = isSet(b, sensorIMUBit)
	s.GPS = isSet(b, sensorGPSBit)
	s.reserved = b & sensorReservedMask
	return nil
}

// Request asks the peer to transmit the current value of ID
type Request struct {
	ID CommandID `yaml:"id"`
}

func (r *Request) AppendBody(dst []byte) []byte {
	return append(dst, byte(r.ID))
}

func (r *Request) UnmarshalBody(src []byte) error {
	if err := checkLen(src, RequestLen); err != nil {
		return err
	}
	r.ID = CommandID(src[0])
	return nil
}

// Coordinates is a latitude/longitude pair in degrees (GOAL body)
type Coordinates struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

func (c *Coordinates) AppendBody(dst []byte) []byte {
	dst = appendFloat64(dst, c.Latitude)
	return appendFloat64(dst, c.Longitude)
}

func (c *Coordinates) UnmarshalBody(src []byte) error {
	if err := checkLen(src, GoalLen); err != nil {
		return err
	}
	c.Latitude = float64At(src[0:8])
	c.Longitude = float64At(src[8:16])
	return nil
}

// Altitude carries barometer output
type Altitude struct {
	Altitude    int16   `yaml:"altitude"`
	Pressure    float32 `yaml:"pressure"`
	Temperature float32 `yaml:"temperature"`
}

func (a *Altitude) AppendBody(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(a.Altitude))
	dst = appendFloat32(dst, a.Pressure)
	return appendFloat32(dst, a.Temperature)
}

func (a *Altitude) UnmarshalBody(src []byte) error {
	if err := checkLen(src, AltitudeLen); err != nil {
		return err
	}
	a.Altitude = int16(binary.BigEndian.Uint16(src[0:2]))
	a.Pressure = float32At(src[2:6])
	a.Temperature = float32At(src[6:10])
	return nil
}

// Mode is the raw flight mode byte
type Mode uint8

func (m *Mode) AppendBody(dst []byte) []byte {
	return append(dst, byte(*m))
}

func (m *Mode) UnmarshalBody(src []byte) error {
	if err := checkLen(src, ModeLen); err != nil {
		return err
	}
	*m = Mode(src[0])
	return nil
}

// AbsoluteNavigation is one navigation log entry.
// North and East are 24-bit signed on the wire; values outside
// [-0x800000, 0x7FFFFF] wrap.
type AbsoluteNavigation struct {
	North           int32 `yaml:"north"`
	East            int32 `yaml:"east"`
	Heading         int16 `yaml:"heading"`
	LeftMotorPower  int8  `yaml:"left_motor_power"`
	RightMotorPower int8  `yaml:"right_motor_power"`
}

func (n *AbsoluteNavigation) AppendBody(dst []byte) []byte {
	dst = appendInt24(dst, n.North)
	dst = appendInt24(dst, n.East)
	dst = binary.BigEndian.AppendUint16(dst, uint16(n.Heading))
	return append(dst, byte(n.LeftMotorPower), byte(n.RightMotorPower))
}

func (n *AbsoluteNavigation) UnmarshalBody(src []byte) error {
	if err := checkLen(src, AbsoluteNavigationLen); err != nil {
		return err
	}
	n.decode(src)
	return nil
}

func (n *AbsoluteNavigation) decode(src []byte) {
	n.North = int24(src[0:3])
	n.East = int24(src[3:6])
	n.Heading = int16(binary.BigEndian.Uint16(src[6:8]))
	n.LeftMotorPower = int8(src[8])
	n.RightMotorPower = int8(src[9])
}

// RelativeNavigation extends AbsoluteNavigation with goal tracking.
// ToFDistance is 13 bits wide.
type RelativeNavigation struct {
	AbsoluteNavigation `yaml:",inline"`
	GoalOnCamera       bool   `yaml:"goal_on_camera"`
	GoalOnToF          bool   `yaml:"goal_on_tof"`
	ToFDistance        uint16 `yaml:"tof_distance"`
	GoalDirection      int8   `yaml:"goal_direction"`

	reserved byte
}

func (n *RelativeNavigation) AppendBody(dst []byte) []byte {
	dst = n.AbsoluteNavigation.AppendBody(dst)
	dist := n.ToFDistance & ToFDistanceMax
	status := bit(n.GoalOnCamera, relCameraBit) |
		bit(n.GoalOnToF, relToFBit) |
		byte(dist>>8)&relToFHighMask |
		n.reserved
	return append(dst, status, byte(dist), byte(n.GoalDirection))
}

func (n *RelativeNavigation) UnmarshalBody(src []byte) error {
	if err := checkLen(src, RelativeNavigationLen); err != nil {
		return err
	}
	n.AbsoluteNavigation.decode(src[:AbsoluteNavigationLen])
	status := src[10]
	n.GoalOnCamera = isSet(status, relCameraBit)
	n.GoalOnToF = isSet(status, relToFBit)
	n.reserved = status & relReservedMask
	n.ToFDistance = uint16(status&relToFHighMask)<<8 | uint16(src[11])
	n.GoalDirection = int8(src[12])
	return nil
}

// ServoConfig sets a servo's state and its PWM counts per position
type ServoConfig struct {
	State       ServoState `yaml:"state"`
	OpenCount   uint16     `yaml:"open_count"`
	CenterCount uint16     `yaml:"center_count"`
	CloseCount  uint16     `yaml:"close_count"`
}

func (s *ServoConfig) AppendBody(dst []byte) []byte {
	dst = append(dst, byte(s.State))
	dst = binary.LittleEndian.AppendUint16(dst, s.OpenCount)
	dst = binary.LittleEndian.AppendUint16(dst, s.CenterCount)
	return binary.LittleEndian.AppendUint16(dst, s.CloseCount)
}

func (s *ServoConfig) UnmarshalBody(src []byte) error {
	if err := checkLen(src, ServoConfigLen); err != nil {
		return err
	}
	s.State = ServoState(src[0])
	s.OpenCount = binary.LittleEndian.Uint16(src[1:3])
	s.CenterCount = binary.LittleEndian.Uint16(src[3:5])
	s.CloseCount = binary.LittleEndian.Uint16(src[5:7])
	return nil
}

// GPS is a position fix
type GPS struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	FixStatus uint8   `yaml:"fix_status"`
}

func (g *GPS) AppendBody(dst []byte) []byte {
	dst = appendFloat64(dst, g.Latitude)
	dst = appendFloat64(dst, g.Longitude)
	return append(dst, g.FixStatus)
}

func (g *GPS) UnmarshalBody(src []byte) error {
	if err := checkLen(src, GPSLen); err != nil {
		return err
	}
	g.Latitude = float64At(src[0:8])
	g.Longitude = float64At(src[8:16])
	g.FixStatus = src[16]
	return nil
}

// IMU holds one accelerometer, gyroscope and magnetometer sample (x, y, z)
type IMU struct {
	Accel  [3]float32 `yaml:"accel,flow"`
	Gyro   [3]float32 `yaml:"gyro,flow"`
	Magnet [3]float32 `yaml:"magnet,flow"`
}

func (m *IMU) AppendBody(dst []byte) []byte {
	for _, axes := range [...]*[3]float32{&m.Accel, &m.Gyro, &m.Magnet} {
		for _, v := range axes {
			dst = appendFloat32(dst, v)
		}
	}
	return dst
}

func (m *IMU) UnmarshalBody(src []byte) error {
	if err := checkLen(src, IMULen); err != nil {
		return err
	}
	off := 0
	for _, axes := range [...]*[3]float32{&m.Accel, &m.Gyro, &m.Magnet} {
		for i := range axes {
			axes[i] = float32At(src[off : off+4])
			off += 4
		}
	}
	return nil
}

// NewPayload returns a zero payload of the type carried by id,
// or nil if id is not defined.
func NewPayload(id CommandID) Payload {
	switch id {
	case CmdConnectionCheck:
		return &ConnectionCheck{}
	case CmdSensorStatus:
		return &SensorStatus{}
	case CmdRequest:
		return &Request{ID: CmdNone}
	case CmdGoal:
		return &Coordinates{}
	case CmdAltitude:
		return &Altitude{}
	case CmdMode:
		return new(Mode)
	case CmdAbsoluteNavigation:
		return &AbsoluteNavigation{}
	case CmdRelativeNavigation:
		return &RelativeNavigation{}
	case CmdServoParachuteLeft, CmdServoParachuteRight, CmdServoStabilizer:
		return &ServoConfig{}
	case CmdGPS:
		return &GPS{}
	case CmdIMU:
		return &IMU{}
	}
	return nil
}

// DecodeBody decodes body as the payload type carried by id
func DecodeBody(id CommandID, body []byte) (Payload, error) {
	p := NewPayload(id)
	if p == nil {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, uint8(id))
	}
	if err := p.UnmarshalBody(body); err != nil {
		return nil, err
	}
	return p, nil
}
