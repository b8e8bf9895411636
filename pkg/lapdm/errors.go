package lapdm

import "errors"

var (
	ErrUnknownSAPI      = errors.New("unknown SAPI")
	ErrUnknownPrimitive = errors.New("unknown primitive")
	ErrUnknownMessage   = errors.New("unsupported layer 3 message")
	ErrShortPrimitive   = errors.New("primitive too short")
	ErrMessageTooLong   = errors.New("message exceeds N201")
	ErrNoLayer1         = errors.New("no layer 1 bound")
	ErrChannelExists    = errors.New("channel already exists")
	ErrChannelNotFound  = errors.New("channel not found")
)
