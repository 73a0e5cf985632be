package api

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxMessageSize is the maximum allowed message size (50MB).
const MaxMessageSize = 50 * 1024 * 1024

// Response status bytes.
const (
	StatusOK    byte = 0
	StatusError byte = 1
)

// ErrMessageTooLarge is returned when a message exceeds MaxMessageSize.
var ErrMessageTooLarge = errors.New("message size exceeds maximum allowed size")

// ErrMalformedResponse is returned for a response frame without a known status byte.
var ErrMalformedResponse = errors.New("malformed response frame")

// ServerError is an error reported by the server in a StatusError frame.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server: " + e.Message
}

// ReadMessage reads a length-prefixed message from the reader.
// Format: [4 bytes length (BigEndian)] [N bytes payload]
func ReadMessage(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, length, MaxMessageSize)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	return buf, nil
}

// WriteMessage writes a length-prefixed message to the writer.
// Format: [4 bytes length (BigEndian)] [N bytes payload]
func WriteMessage(w io.Writer, data []byte) error {
	if len(data) > math.MaxUint32 {
		return fmt.Errorf("%w: data length %d exceeds uint32 max", ErrMessageTooLarge, len(data))
	}

	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, len(data), MaxMessageSize)
	}

	length := uint32(len(data)) // #nosec G115 - bounds checked above
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}

	return nil
}

// WriteResponse writes an ok frame carrying payload.
func WriteResponse(w io.Writer, payload []byte) error {
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, StatusOK)
	return WriteMessage(w, append(frame, payload...))
}

// WriteError writes an error frame carrying the message text.
func WriteError(w io.Writer, msg string) error {
	return WriteMessage(w, append([]byte{StatusError}, msg...))
}

// ReadResponse reads one response frame. A StatusError frame is returned as *ServerError.
func ReadResponse(r io.Reader) ([]byte, error) {
	frame, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}
	if len(frame) == 0 {
		return nil, ErrMalformedResponse
	}
	switch frame[0] {
	case StatusOK:
		return frame[1:], nil
	case StatusError:
		return nil, &ServerError{Message: string(frame[1:])}
	default:
		return nil, fmt.Errorf("%w: status %d", ErrMalformedResponse, frame[0])
	}
}
