package infra

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/trackzen/trackd/internal/domain"
)

// maxFrameSize is a sanity cap on inbound frames. Host events are tiny;
// anything bigger is a corrupted stream.
const maxFrameSize = 1 << 20

// envelope is the wire form of a host message: Chrome native-messaging
// framing (4-byte little-endian length prefix) around a JSON object.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type tabPayload struct {
	TabID      int    `json:"tabId"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	URLChanged bool   `json:"urlChanged"`
}

type idlePayload struct {
	State string `json:"state"`
}

type ackMessage struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// StdioEventSource implements domain.EventSource over the browser shim's
// native-messaging stream, normally stdin/stdout of this process.
type StdioEventSource struct {
	r  *bufio.Reader
	w  io.Writer
	mu sync.Mutex // serializes outbound frames
}

// NewStdioEventSource creates an event source reading frames from r and
// writing acknowledgements to w.
func NewStdioEventSource(r io.Reader, w io.Writer) *StdioEventSource {
	return &StdioEventSource{
		r: bufio.NewReader(r),
		w: w,
	}
}

// Next blocks for the next decodable host event. Frames that carry malformed
// JSON or an unknown type are skipped; the stream itself stays usable.
// Returns io.EOF when the host closes its end.
func (s *StdioEventSource) Next() (domain.HostEvent, error) {
	for {
		frame, err := s.readFrame()
		if err != nil {
			return domain.HostEvent{}, err
		}

		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			continue
		}

		ev, err := decodeEvent(env)
		if err != nil {
			continue
		}
		return ev, nil
	}
}

// Ack answers an inbound command on the outbound frame stream.
func (s *StdioEventSource) Ack(status string) error {
	return s.writeFrame(ackMessage{Type: "ACK", Status: status})
}

func (s *StdioEventSource) readFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(s.r, header[:]); err != nil {
		return nil, err
	}

	size := binary.LittleEndian.Uint32(header[:])
	if size == 0 || size > maxFrameSize {
		return nil, fmt.Errorf("invalid frame size %d", size)
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(s.r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (s *StdioEventSource) writeFrame(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(data)))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(header[:]); err != nil {
		return err
	}
	_, err = s.w.Write(data)
	return err
}

// decodeEvent maps one envelope to a typed host event.
func decodeEvent(env envelope) (domain.HostEvent, error) {
	ev := domain.HostEvent{Type: domain.HostEventType(env.Type)}

	switch ev.Type {
	case domain.EventTabActivated, domain.EventTabUpdated:
		var p tabPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ev, fmt.Errorf("bad tab payload: %w", err)
		}
		ev.TabID = p.TabID
		ev.URL = p.URL
		ev.Title = p.Title
		ev.Status = p.Status
		ev.URLChanged = p.URLChanged

	case domain.EventIdleChanged:
		var p idlePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ev, fmt.Errorf("bad idle payload: %w", err)
		}
		ev.State = domain.IdleState(p.State)

	case domain.EventSetTracking:
		// The popup sends the flag as a bare boolean payload.
		var enabled bool
		if err := json.Unmarshal(env.Payload, &enabled); err != nil {
			return ev, fmt.Errorf("bad tracking payload: %w", err)
		}
		ev.Enabled = enabled

	case domain.EventStartup, domain.EventInstalled:
		// No payload.

	default:
		return ev, fmt.Errorf("unknown event type %q", env.Type)
	}

	return ev, nil
}

// Ensure StdioEventSource implements domain.EventSource.
var _ domain.EventSource = (*StdioEventSource)(nil)
