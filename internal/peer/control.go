package peer

import "github.com/vmihailenco/msgpack/v5"

// controlLabel names the data channel the initiator opens on every link.
const controlLabel = "control"

const MessageTypeTrackState = "track_state"

// ControlMessage is the envelope of every frame on the control channel.
type ControlMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// TrackStatePayload announces whether the sender's tracks are enabled.
type TrackStatePayload struct {
	Audio bool `msgpack:"audio"`
	Video bool `msgpack:"video"`
}

func (m ControlMessage) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

func newControlMessage(t string, payload any) (ControlMessage, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return ControlMessage{}, err
	}
	return ControlMessage{Type: t, Payload: b}, nil
}

func encodeControl(t string, payload any) ([]byte, error) {
	msg, err := newControlMessage(t, payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(msg)
}

func parseControl(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	err := msgpack.Unmarshal(data, &msg)
	return msg, err
}
