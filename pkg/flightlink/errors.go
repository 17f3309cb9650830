// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

import "errors"

var (
	ErrInvalidFrame   = errors.New("flightlink: invalid frame")
	ErrUnregistered   = errors.New("flightlink: command not registered")
	ErrOversizedInput = errors.New("flightlink: input larger than receive buffer")
	ErrUnknownCommand = errors.New("flightlink: unknown command")
	ErrBodyLength     = errors.New("flightlink: body length mismatch")
	ErrSlotTaken      = errors.New("flightlink: command already registered")
	ErrNoSink         = errors.New("flightlink: no transmit sink")
)
