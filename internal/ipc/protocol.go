// Package ipc is the control channel between lapserecd and lapserecctl:
// length-prefixed JSON frames over a unix domain socket, restricted to
// the owning user.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const (
	// Magic prefixes every frame so a stray client talking to the
	// socket fails fast instead of hanging.
	Magic = "LRPC"

	// Version is the protocol version. Mismatched peers are rejected.
	Version = 1

	// MaxFrameSize bounds a single frame body.
	MaxFrameSize = 1 << 20
)

// Operation names accepted by the daemon.
const (
	OpStart         = "start"
	OpPause         = "pause"
	OpResume        = "resume"
	OpStop          = "stop"
	OpEmergencyStop = "emergency-stop"
	OpStatus        = "status"
	OpRecoverable   = "recoverable"
	OpRecover       = "recover"
	OpDiscard       = "discard-recovery"
	OpSessions      = "sessions"
)

// Request is a single control operation.
type Request struct {
	Op            string `json:"op"`
	SourceID      string `json:"sourceId,omitempty"`
	SessionFolder string `json:"sessionFolder,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// Response carries the operation outcome. Payload holds the
// operation-specific result document.
type Response struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Errorf builds a failed response.
func Errorf(format string, args ...any) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}

// Result builds a successful response around a payload document.
func Result(v any) Response {
	raw, err := json.Marshal(v)
	if err != nil {
		return Errorf("encode payload: %v", err)
	}
	return Response{OK: true, Payload: raw}
}

// WriteFrame writes one frame: magic, version byte, big-endian length,
// JSON body.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(body))
	}

	header := make([]byte, 0, len(Magic)+1+4)
	header = append(header, Magic...)
	header = append(header, Version)
	header = binary.BigEndian.AppendUint32(header, uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one frame into v. It returns io.EOF unchanged when
// the peer closed the connection cleanly.
func ReadFrame(r io.Reader, v any) error {
	header := make([]byte, len(Magic)+1+4)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("read frame header: %w", err)
	}
	if string(header[:len(Magic)]) != Magic {
		return fmt.Errorf("bad magic %q", header[:len(Magic)])
	}
	if header[len(Magic)] != Version {
		return fmt.Errorf("protocol version mismatch: got %d, want %d", header[len(Magic)], Version)
	}
	size := binary.BigEndian.Uint32(header[len(Magic)+1:])
	if size > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}
