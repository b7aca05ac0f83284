package transceiver

import "errors"

// ErrClosed is returned by Send/Receive once Close has been called.
var ErrClosed = errors.New("transceiver: closed")

// ErrFrameTooLarge is returned when a backend cannot carry a frame's
// payload at all (for example, the classic-CAN socketcan backend asked to
// carry more than 8 bytes).
var ErrFrameTooLarge = errors.New("transceiver: frame payload exceeds backend capacity")
