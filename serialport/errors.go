package serialport

import "errors"

var (
	ErrUnsupportedBaud = errors.New("serialport: unsupported baud rate")
	ErrClosed          = errors.New("serialport: port closed")
	ErrPortLost        = errors.New("serialport: device lost")
)
