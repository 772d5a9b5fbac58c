package zkclient

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("zkclient: not connected")
	ErrAlreadyConnected = errors.New("zkclient: already connected")
	ErrUnauthorized     = errors.New("zkclient: unauthorized")
	// ErrLogTooLarge is returned when PREPARE_DATA announces more than the
	// configured maximum log size.
	ErrLogTooLarge      = errors.New("zkclient: attendance log too large")
)

// SocketCreateError means the socket to the terminal could not be opened.
type SocketCreateError struct {
	Endpoint Endpoint
	Err      error
}

func (e *SocketCreateError) Error() string {
	return fmt.Sprintf("create socket %s: %v", e.Endpoint, e.Err)
}

func (e *SocketCreateError) Unwrap() error { return e.Err }

// TransportTimeout means a send or receive did not complete in its window.
type TransportTimeout struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportTimeout) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s timed out after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s timed out after %d attempt(s)", e.Op, e.Attempts)
}

func (e *TransportTimeout) Unwrap() error { return e.Err }

func (e *TransportTimeout) Timeout() bool { return true }

// ProtocolError is a reply whose command code does not fit the request.
type ProtocolError struct {
	Request  uint16
	Expected uint16
	Got      uint16
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("command %s: expected %s, got %d(%s)",
		commandName(e.Request), commandName(e.Expected), e.Got, commandName(e.Got))
}

// FramingError is a buffer too short to hold what it claims to hold.
type FramingError struct {
	Need int
	Got  int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("short frame: need %d bytes, got %d", e.Need, e.Got)
}

// MalformedRecord describes one attendance record skipped by the parser.
type MalformedRecord struct {
	Offset int
	Reason string
}

func (e *MalformedRecord) Error() string {
	return fmt.Sprintf("malformed record at offset %d: %s", e.Offset, e.Reason)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
