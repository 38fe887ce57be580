package signalr

import (
	"encoding/json"
	"fmt"
)

const (
	// HubName is the streaming hub both sides address.
	HubName = "Streaming"

	// HeartbeatTopic is the keep-alive topic; its deltas carry no data.
	HeartbeatTopic = "Heartbeat"

	// ClientProtocol is the wire protocol version declared during
	// negotiation.
	ClientProtocol = "1.5"
)

// Frame is one envelope received over the socket. A reference frame
// carries R (topic name to full snapshot); a delta frame carries M
// (hub messages with incremental updates). One frame may carry both.
// Anything else is a keep-alive or control shape and is ignored.
type Frame struct {
	R map[string]json.RawMessage `json:"R"`
	M []HubMessage               `json:"M"`
}

// HubMessage is one record inside a delta frame: a hub name, a method
// and its arguments. For feed updates A holds [topic, partial-update].
type HubMessage struct {
	Hub  string            `json:"H"`
	Meth string            `json:"M"`
	Args []json.RawMessage `json:"A"`
}

// Topic decodes the topic name argument of a feed update record.
func (m *HubMessage) Topic() (string, error) {
	if len(m.Args) < 2 {
		return "", fmt.Errorf("hub message has %d args, want 2", len(m.Args))
	}
	var topic string
	if err := json.Unmarshal(m.Args[0], &topic); err != nil {
		return "", fmt.Errorf("decoding topic argument: %w", err)
	}
	return topic, nil
}

// Payload returns the raw partial-update argument of a feed update
// record. For compressed topics this is a JSON string of base64 text.
func (m *HubMessage) Payload() (json.RawMessage, error) {
	if len(m.Args) < 2 {
		return nil, fmt.Errorf("hub message has %d args, want 2", len(m.Args))
	}
	return m.Args[1], nil
}

// ParseFrame decodes one socket message into a frame envelope.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing frame: %w", err)
	}
	return &f, nil
}

// Empty reports whether the frame carries neither snapshots nor deltas.
func (f *Frame) Empty() bool {
	return len(f.R) == 0 && len(f.M) == 0
}

// subscribeRequest is the single control frame sent after connecting.
type subscribeRequest struct {
	Hub    string     `json:"H"`
	Meth   string     `json:"M"`
	Args   [][]string `json:"A"`
	Invoke int        `json:"I"`
}

func newSubscribeRequest(topics []string) subscribeRequest {
	return subscribeRequest{
		Hub:    HubName,
		Meth:   "Subscribe",
		Args:   [][]string{topics},
		Invoke: 1,
	}
}
