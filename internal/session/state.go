package session

import (
	"time"

	"github.com/BioHazard786/Warpcall/internal/chat"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/room"
)

// Phase is the lifecycle position of a room session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseJoining
	PhaseJoined
	PhaseLeft
)

func (p Phase) String() string {
	switch p {
	case PhaseJoining:
		return "joining"
	case PhaseJoined:
		return "joined"
	case PhaseLeft:
		return "left"
	default:
		return "idle"
	}
}

// Active reports whether the session holds a signaling channel.
func (p Phase) Active() bool {
	return p == PhaseJoining || p == PhaseJoined
}

// RoomSession identifies one membership of one room. Generation changes on
// every join so events belonging to an earlier session can be recognised.
type RoomSession struct {
	RoomID     string
	LocalID    string
	LocalName  string
	Phase      Phase
	Generation uint64
	StartedAt  time.Time
}

// State is an immutable snapshot of the coordinator, published after every
// event it processes.
type State struct {
	RoomID    string
	LocalID   string
	LocalName string
	Phase     Phase

	Local        room.Participant
	Participants []room.Participant
	Streams      map[string]peer.RemoteStream
	Chat         []chat.Entry

	LocalAudioEnabled bool
	LocalVideoEnabled bool
	Total             int

	StartedAt time.Time
	// Seen lists the display names of every remote participant met in this session.
	Seen []string
	// Err is the fault that ended the session, if any.
	Err error
}
