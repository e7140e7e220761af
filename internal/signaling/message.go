package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pion/webrtc/v4"
)

// MessageType is the `type` discriminant of every signaling frame.
type MessageType string

const (
	TypeJoin         MessageType = "join"
	TypeRoomUsers    MessageType = "room_users"
	TypeUserJoined   MessageType = "user_joined"
	TypeUserLeft     MessageType = "user_left"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice_candidate"
	TypeChatMessage  MessageType = "chat_message"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

// Message is the closed set of frames exchanged with the signaling server.
type Message interface {
	MessageType() MessageType
}

type User struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

// Description is a session description as carried on the wire.
type Description struct {
	Type string `json:"type" validate:"oneof=offer answer pranswer rollback"`
	SDP  string `json:"sdp" validate:"required"`
}

func NewDescription(d webrtc.SessionDescription) Description {
	return Description{Type: d.Type.String(), SDP: d.SDP}
}

func (d Description) SessionDescription() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type), SDP: d.SDP}
}

// Candidate mirrors webrtc.ICECandidateInit with validation tags.
type Candidate struct {
	Candidate        string  `json:"candidate" validate:"required"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func NewCandidate(c webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func (c Candidate) ICECandidateInit() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// Join registers the sender in the room of the connection.
type Join struct {
	Name     string `json:"name" validate:"required"`
	ClientID string `json:"clientId" validate:"required"`
}

// RoomUsers is the full roster sent to a participant after it joins.
type RoomUsers struct {
	Users []User `json:"users" validate:"dive"`
}

type UserJoined struct {
	UserID string `json:"userId" validate:"required"`
	Name   string `json:"name"`
}

type UserLeft struct {
	UserID string `json:"userId" validate:"required"`
}

// Offer, Answer and ICECandidate are addressed with Target when sent and
// carry From when relayed by the server.
type Offer struct {
	Target   string      `json:"target,omitempty" validate:"required_without=From"`
	From     string      `json:"from,omitempty" validate:"required_without=Target"`
	FromName string      `json:"fromName,omitempty"`
	Offer    Description `json:"offer"`
}

type Answer struct {
	Target string      `json:"target,omitempty" validate:"required_without=From"`
	From   string      `json:"from,omitempty" validate:"required_without=Target"`
	Answer Description `json:"answer"`
}

type ICECandidate struct {
	Target    string    `json:"target,omitempty" validate:"required_without=From"`
	From      string    `json:"from,omitempty" validate:"required_without=Target"`
	Candidate Candidate `json:"candidate"`
}

// ChatMessage is broadcast to the whole room, sender included.
type ChatMessage struct {
	Message   string    `json:"message" validate:"required"`
	Sender    string    `json:"sender" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
}

func (Join) MessageType() MessageType         { return TypeJoin }
func (RoomUsers) MessageType() MessageType    { return TypeRoomUsers }
func (UserJoined) MessageType() MessageType   { return TypeUserJoined }
func (UserLeft) MessageType() MessageType     { return TypeUserLeft }
func (Offer) MessageType() MessageType        { return TypeOffer }
func (Answer) MessageType() MessageType       { return TypeAnswer }
func (ICECandidate) MessageType() MessageType { return TypeICECandidate }
func (ChatMessage) MessageType() MessageType  { return TypeChatMessage }

var validate = validator.New()

// Decode parses one frame into its concrete Message type.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var msg Message
	switch envelope.Type {
	case TypeJoin:
		msg = decodeAs[Join](data)
	case TypeRoomUsers:
		msg = decodeAs[RoomUsers](data)
	case TypeUserJoined:
		msg = decodeAs[UserJoined](data)
	case TypeUserLeft:
		msg = decodeAs[UserLeft](data)
	case TypeOffer:
		msg = decodeAs[Offer](data)
	case TypeAnswer:
		msg = decodeAs[Answer](data)
	case TypeICECandidate:
		msg = decodeAs[ICECandidate](data)
	case TypeChatMessage:
		msg = decodeAs[ChatMessage](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type)
	}

	if d, ok := msg.(decodeError); ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, envelope.Type, d.err)
	}
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, envelope.Type, err)
	}
	return msg, nil
}

type decodeError struct{ err error }

func (decodeError) MessageType() MessageType { return "" }

func decodeAs[T Message](data []byte) Message {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return decodeError{err: err}
	}
	return v
}

// Encode renders msg as a JSON object with its type discriminant.
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, err := json.Marshal(msg.MessageType())
	if err != nil {
		return nil, err
	}
	fields["type"] = kind
	return json.Marshal(fields)
}
