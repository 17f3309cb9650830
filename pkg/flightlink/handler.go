// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

// CommandHandler is the registry's view of a handler
type CommandHandler interface {
	// ID returns the command identifier this handler serves
	ID() CommandID

	// BodyLen returns the fixed body length for ID
	BodyLen() int

	// Receive decodes body into the live value and invokes the receive
	// callback. The returned identifier is CmdNone, or the command the peer
	// wants transmitted in reply.
	Receive(body []byte) (CommandID, error)

	// Transmit invokes the update hook and appends the encoded body to dst
	Transmit(dst []byte) []byte
}

// Handler owns the live value of one command and its application hooks.
// T is a pointer to one of the payload types.
type Handler[T Payload] struct {
	id       CommandID
	value    T
	callback func(T)
	update   func(T)
	reply    func(T) CommandID
}

// HandlerOption configures a Handler at construction
type HandlerOption[T Payload] func(*Handler[T])

// WithCallback sets the hook invoked with each freshly decoded value.
// The hook may modify the value before it is kept.
func WithCallback[T Payload](fn func(T)) HandlerOption[T] {
	return func(h *Handler[T]) { h.callback = fn }
}

// WithUpdate sets the hook invoked to refresh the value right before it is
// encoded for transmission.
func WithUpdate[T Payload](fn func(T)) HandlerOption[T] {
	return func(h *Handler[T]) { h.update = fn }
}

// NewHandler creates a handler for id around the live value v
func NewHandler[T Payload](id CommandID, v T, opts ...HandlerOption[T]) *Handler[T] {
	h := &Handler[T]{id: id, value: v}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler[T]) ID() CommandID {
	return h.id
}

func (h *Handler[T]) BodyLen() int {
	return BodyLen(h.id)
}

// Value returns the live value. Callers running the link from another
// goroutine must provide their own exclusion.
func (h *Handler[T]) Value() T {
	return h.value
}

// Payload returns the live value as a Payload, for callers that only hold a
// CommandHandler
func (h *Handler[T]) Payload() Payload {
	return h.value
}

// SetCallback replaces the receive hook
func (h *Handler[T]) SetCallback(fn func(T)) {
	h.callback = fn
}

// SetUpdate replaces the transmit hook
func (h *Handler[T]) SetUpdate(fn func(T)) {
	h.update = fn
}

// Receive implements CommandHandler. On a body length mismatch the value is
// left unchanged, the callback still runs and no reply is requested.
func (h *Handler[T]) Receive(body []byte) (CommandID, error) {
	err := h.value.UnmarshalBody(body)
	if h.callback != nil {
		h.callback(h.value)
	}
	if err != nil {
		return CmdNone, err
	}
	if h.reply != nil {
		return h.reply(h.value), nil
	}
	return CmdNone, nil
}

// Transmit implements CommandHandler
func (h *Handler[T]) Transmit(dst []byte) []byte {
	if h.update != nil {
		h.update(h.value)
	}
	return h.value.AppendBody(dst)
}

// Constructors for every command

// NewConnectionCheckHandler answers a received check with the same value and
// the loopback bit set. A check that already carries the bit is an echo and
// is not answered.
func NewConnectionCheckHandler(opts ...HandlerOption[*ConnectionCheck]) *Handler[*ConnectionCheck] {
	h := NewHandler(CmdConnectionCheck, &ConnectionCheck{}, opts...)
	h.reply = func(c *ConnectionCheck) CommandID {
		if c.Loopback {
			return CmdNone
		}
		c.Loopback = true
		return CmdConnectionCheck
	}
	return h
}

func NewSensorStatusHandler(opts ...HandlerOption[*SensorStatus]) *Handler[*SensorStatus] {
	return NewHandler(CmdSensorStatus, &SensorStatus{}, opts...)
}

// NewRequestHandler replies to a received request by transmitting the
// requested command. target is the identifier sent by Transmit(CmdRequest)
// until a request arrives. A received request replaces the live value like
// any other command, so callbacks see the requested id and a later
// Transmit(CmdRequest) repeats it. Set Value().ID again before transmitting
// to ask for something else.
// A request for CmdRequest itself is not answered: two peers would otherwise
// trade requests forever.
func NewRequestHandler(target CommandID, opts ...HandlerOption[*Request]) *Handler[*Request] {
	h := NewHandler(CmdRequest, &Request{ID: target}, opts...)
	h.reply = func(r *Request) CommandID {
		if !r.ID.Valid() || r.ID == CmdRequest {
			return CmdNone
		}
		return r.ID
	}
	return h
}

func NewGoalHandler(opts ...HandlerOption[*Coordinates]) *Handler[*Coordinates] {
	return NewHandler(CmdGoal, &Coordinates{}, opts...)
}

func NewAltitudeHandler(opts ...HandlerOption[*Altitude]) *Handler[*Altitude] {
	return NewHandler(CmdAltitude, &Altitude{}, opts...)
}

func NewModeHandler(opts ...HandlerOption[*Mode]) *Handler[*Mode] {
	return NewHandler(CmdMode, new(Mode), opts...)
}

func NewAbsoluteNavigationHandler(opts ...HandlerOption[*AbsoluteNavigation]) *Handler[*AbsoluteNavigation] {
	return NewHandler(CmdAbsoluteNavigation, &AbsoluteNavigation{}, opts...)
}

func NewRelativeNavigationHandler(opts ...HandlerOption[*RelativeNavigation]) *Handler[*RelativeNavigation] {
	return NewHandler(CmdRelativeNavigation, &RelativeNavigation{}, opts...)
}

// NewServoConfigHandler creates a handler for one of the three servo
// commands (CmdServoParachuteLeft, CmdServoParachuteRight, CmdServoStabilizer).
func NewServoConfigHandler(id CommandID, opts ...HandlerOption[*ServoConfig]) *Handler[*ServoConfig] {
	return NewHandler(id, &ServoConfig{}, opts...)
}

func NewGPSHandler(opts ...HandlerOption[*GPS]) *Handler[*GPS] {
	return NewHandler(CmdGPS, &GPS{}, opts...)
}

func NewIMUHandler(opts ...HandlerOption[*IMU]) *Handler[*IMU] {
	return NewHandler(CmdIMU, &IMU{}, opts...)
}

// NewDefaultHandlers returns one handler per command with no hooks set
func NewDefaultHandlers() []CommandHandler {
	return []CommandHandler{
		NewConnectionCheckHandler(),
		NewSensorStatusHandler(),
		NewRequestHandler(CmdNone),
		NewGoalHandler(),
		NewAltitudeHandler(),
		NewModeHandler(),
		NewAbsoluteNavigationHandler(),
		NewRelativeNavigationHandler(),
		NewServoConfigHandler(CmdServoParachuteLeft),
		NewServoConfigHandler(CmdServoParachuteRight),
		NewServoConfigHandler(CmdServoStabilizer),
		NewGPSHandler(),
		NewIMUHandler(),
	}
}
