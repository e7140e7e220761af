package peer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/pion/rtcp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// Role is the side a link plays in its offer/answer exchange.
type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// State is the connectivity of a single link.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "new"
	}
}

func stateFromPion(s webrtc.PeerConnectionState) State {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}

// RemoteStream is the media received from the other side of a link.
type RemoteStream struct {
	ID     string
	Tracks []*webrtc.TrackRemote
}

func (r RemoteStream) HasAudio() bool { return r.hasKind(webrtc.RTPCodecTypeAudio) }
func (r RemoteStream) HasVideo() bool { return r.hasKind(webrtc.RTPCodecTypeVideo) }

func (r RemoteStream) hasKind(kind webrtc.RTPCodecType) bool {
	for _, t := range r.Tracks {
		if t.Kind() == kind {
			return true
		}
	}
	return false
}

// Events are the callbacks a link reports through. They are registered at
// creation so nothing emitted during negotiation is lost. Any may be nil.
type Events struct {
	// OnLocalDescription fires once, after ICE gathering has completed.
	OnLocalDescription func(webrtc.SessionDescription)
	OnRemoteMedia      func(RemoteStream)
	OnStateChange      func(State)
	OnTrackState       func(audio, video bool)
	// OnError reports a negotiation failure that happened off the caller's goroutine.
	OnError func(error)
}

// Handle is a single peer link as seen by the session coordinator.
type Handle interface {
	Role() Role
	// ApplyRemoteDescription accepts the remote offer or answer. It succeeds
	// at most once per link.
	ApplyRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	SendTrackState(audio, video bool) error
	// Destroy releases the link. Repeated calls are no-ops.
	Destroy() error
}

type link struct {
	log    *slog.Logger
	role   Role
	pc     *webrtc.PeerConnection
	events Events

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	remoteApplied bool
	destroyed     bool
	control       *webrtc.DataChannel
	remote        RemoteStream

	localOnce sync.Once
}

func newLink(log *slog.Logger, role Role, pc *webrtc.PeerConnection, events Events) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		log:    log.With(slog.String("role", role.String())),
		role:   role,
		pc:     pc,
		events: events,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (l *link) Role() Role { return l.role }

// negotiate creates the local description, waits for gathering to finish and
// emits the complete description.
func (l *link) negotiate(create func() (webrtc.SessionDescription, error)) {
	desc, err := create()
	if err != nil {
		l.fail(callerr.Negotiation("create description", "", err))
		return
	}

	gathered := webrtc.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(desc); err != nil {
		l.fail(callerr.Negotiation("set local description", "", err))
		return
	}

	select {
	case <-gathered:
	case <-l.ctx.Done():
		return
	}

	local := l.pc.LocalDescription()
	if local == nil {
		l.fail(callerr.Negotiation("set local description", "", errors.New("no local description after gathering")))
		return
	}
	if l.ctx.Err() != nil {
		return
	}

	l.localOnce.Do(func() {
		l.log.Debug("local description ready", slog.String("type", local.Type.String()))
		if l.events.OnLocalDescription != nil {
			l.events.OnLocalDescription(*local)
		}
	})
}

func (l *link) fail(err error) {
	if l.ctx.Err() != nil {
		return
	}
	l.log.Warn("negotiation failed", slog.Any("error", err))
	if l.events.OnError != nil {
		l.events.OnError(err)
	}
}

func (l *link) ApplyRemoteDescription(desc webrtc.SessionDescription) error {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return callerr.ErrLinkClosed
	}
	if l.remoteApplied {
		l.mu.Unlock()
		return callerr.Negotiation("apply remote description", "", errors.New("remote description already applied"))
	}

	want := webrtc.SDPTypeAnswer
	if l.role == Responder {
		want = webrtc.SDPTypeOffer
	}
	if desc.Type != want {
		l.mu.Unlock()
		return callerr.Negotiation("apply remote description", "", errors.New("expected "+want.String()+", got "+desc.Type.String()))
	}

	if err := validateSDP(desc.SDP); err != nil {
		l.mu.Unlock()
		return callerr.Negotiation("apply remote description", "", err)
	}
	l.remoteApplied = true
	l.mu.Unlock()

	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return callerr.Negotiation("apply remote description", "", err)
	}

	if l.role == Responder {
		go l.negotiate(func() (webrtc.SessionDescription, error) {
			return l.pc.CreateAnswer(nil)
		})
	}
	return nil
}

// validateSDP rejects descriptions that do not parse or carry no media.
func validateSDP(raw string) error {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(raw)); err != nil {
		return err
	}
	if len(parsed.MediaDescriptions) == 0 {
		return errors.New("description has no media sections")
	}
	return nil
}

func (l *link) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	l.mu.Lock()
	destroyed := l.destroyed
	l.mu.Unlock()
	if destroyed {
		return callerr.ErrLinkClosed
	}
	if err := l.pc.AddICECandidate(candidate); err != nil {
		return callerr.Negotiation("add ice candidate", "", err)
	}
	return nil
}

func (l *link) SendTrackState(audio, video bool) error {
	l.mu.Lock()
	dc := l.control
	destroyed := l.destroyed
	l.mu.Unlock()

	if destroyed {
		return callerr.ErrLinkClosed
	}
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return callerr.NewError("send track state", callerr.ErrNotReady)
	}

	data, err := encodeControl(MessageTypeTrackState, TrackStatePayload{Audio: audio, Video: video})
	if err != nil {
		return err
	}
	return dc.Send(data)
}

func (l *link) Destroy() error {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return nil
	}
	l.destroyed = true
	l.mu.Unlock()

	l.cancel()
	return l.pc.Close()
}

func (l *link) isDestroyed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.destroyed
}

func (l *link) handleState(s webrtc.PeerConnectionState) {
	l.log.Debug("peer connection state", slog.String("state", s.String()))
	if l.isDestroyed() || l.events.OnStateChange == nil {
		return
	}
	l.events.OnStateChange(stateFromPion(s))
}

func (l *link) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		l.requestKeyframe(track)
	}

	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return
	}
	l.remote.ID = track.StreamID()
	l.remote.Tracks = append(l.remote.Tracks, track)
	snapshot := RemoteStream{ID: l.remote.ID, Tracks: append([]*webrtc.TrackRemote(nil), l.remote.Tracks...)}
	l.mu.Unlock()

	if l.events.OnRemoteMedia != nil {
		l.events.OnRemoteMedia(snapshot)
	}
}

// requestKeyframe asks the sender for a fresh keyframe so video renders
// without waiting for the next periodic one.
func (l *link) requestKeyframe(track *webrtc.TrackRemote) {
	pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}}
	if err := l.pc.WriteRTCP(pli); err != nil {
		l.log.Debug("keyframe request failed", slog.Any("error", err))
	}
}

func (l *link) bindControl(dc *webrtc.DataChannel) {
	l.mu.Lock()
	l.control = dc
	l.mu.Unlock()

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		ctrl, err := parseControl(msg.Data)
		if err != nil {
			l.log.Debug("dropping malformed control frame", slog.Any("error", err))
			return
		}

		switch ctrl.Type {
		case MessageTypeTrackState:
			var payload TrackStatePayload
			if err := ctrl.DecodePayload(&payload); err != nil {
				l.log.Debug("dropping malformed track state", slog.Any("error", err))
				return
			}
			if l.events.OnTrackState != nil && !l.isDestroyed() {
				l.events.OnTrackState(payload.Audio, payload.Video)
			}
		default:
			l.log.Debug("ignoring control frame", slog.String("type", ctrl.Type))
		}
	})
}
