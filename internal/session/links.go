package session

import (
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/room"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// peerLink is the coordinator's record of one peer connection. Events from a
// link are applied only while the same record is still registered.
type peerLink struct {
	id       string
	role     peer.Role
	handle   peer.Handle
	answered bool
	remote   *peer.RemoteStream
}

// ensureInitiator opens an initiator link to id unless one already exists.
func (c *Coordinator) ensureInitiator(id string) {
	if _, ok := c.links[id]; ok {
		return
	}
	c.createLink(id, peer.Initiator)
}

func (c *Coordinator) createLink(id string, role peer.Role) *peerLink {
	l := &peerLink{id: id, role: role}
	handle, err := c.peers.CreateLink(role, c.stream, c.linkEvents(c.session.Generation, l))
	if err != nil {
		c.log.Error("failed to create peer link", slog.String("peer", id), slog.Any("error", callerr.ForPeer(err, id)))
		c.table.SetState(id, room.Disconnected)
		return nil
	}
	l.handle = handle
	c.links[id] = l

	c.log.Debug("peer link created", slog.String("peer", id), slog.String("role", role.String()))
	return l
}

// linkEvents routes callbacks from a handle back onto the coordinator goroutine.
func (c *Coordinator) linkEvents(gen uint64, l *peerLink) peer.Events {
	return peer.Events{
		OnLocalDescription: func(desc webrtc.SessionDescription) {
			c.post(func() { c.onLocalDescription(gen, l, desc) })
		},
		OnRemoteMedia: func(stream peer.RemoteStream) {
			c.post(func() {
				if c.owns(gen, l) {
					l.remote = &stream
					c.table.SetMediaFlags(l.id, stream.HasAudio(), stream.HasVideo())
					c.publish()
				}
			})
		},
		OnStateChange: func(state peer.State) {
			c.post(func() {
				if c.owns(gen, l) {
					c.table.SetState(l.id, connectionState(state))
					c.publish()
				}
			})
		},
		OnTrackState: func(audio, video bool) {
			c.post(func() {
				if c.owns(gen, l) {
					c.table.SetMediaFlags(l.id, audio, video)
					c.publish()
				}
			})
		},
		OnError: func(err error) {
			c.post(func() {
				if c.owns(gen, l) {
					c.log.Warn("discarding peer link", slog.String("peer", l.id), slog.Any("error", callerr.ForPeer(err, l.id)))
					c.dropLink(l.id)
					c.table.SetState(l.id, room.Disconnected)
					c.publish()
				}
			})
		},
	}
}

// owns reports whether l is still the registered link of the active session.
func (c *Coordinator) owns(gen uint64, l *peerLink) bool {
	return c.current(gen) && c.links[l.id] == l
}

func (c *Coordinator) onLocalDescription(gen uint64, l *peerLink, desc webrtc.SessionDescription) {
	if !c.owns(gen, l) {
		return
	}

	var msg signaling.Message
	if l.role == peer.Initiator {
		msg = signaling.Offer{
			Target:   l.id,
			From:     c.session.LocalID,
			FromName: c.session.LocalName,
			Offer:    signaling.NewDescription(desc),
		}
	} else {
		msg = signaling.Answer{
			Target: l.id,
			From:   c.session.LocalID,
			Answer: signaling.NewDescription(desc),
		}
	}

	if err := c.transport.Send(msg); err != nil {
		c.log.Warn("failed to send description", slog.String("peer", l.id), slog.Any("error", err))
	}
}

func (c *Coordinator) handleOffer(m signaling.Offer) {
	from := m.From
	if from == "" || from == c.session.LocalID {
		return
	}

	if existing, ok := c.links[from]; ok {
		// Glare: both sides initiated. The smaller ID yields and answers.
		glare := existing.role == peer.Initiator && !existing.answered
		switch {
		case glare && c.session.LocalID < from:
			c.log.Debug("offer collision, yielding", slog.String("peer", from))
			c.dropLink(from)
		case glare:
			c.log.Debug("offer collision, keeping ours", slog.String("peer", from))
			return
		default:
			c.log.Warn("rejecting offer",
				slog.String("role", existing.role.String()),
				slog.Any("error", callerr.NewPeerError("handle offer", from, callerr.ErrDuplicateLink)))
			return
		}
	}

	c.upsertParticipant(from, m.FromName)
	l := c.createLink(from, peer.Responder)
	if l == nil {
		return
	}

	if err := l.handle.ApplyRemoteDescription(m.Offer.SessionDescription()); err != nil {
		c.log.Warn("invalid offer, discarding link", slog.String("peer", from), slog.Any("error", callerr.ForPeer(err, from)))
		c.dropLink(from)
		c.table.SetState(from, room.Disconnected)
		return
	}
	l.answered = true
}

func (c *Coordinator) handleAnswer(m signaling.Answer) {
	l, ok := c.links[m.From]
	if !ok || l.role != peer.Initiator || l.answered {
		c.log.Warn("unexpected answer", slog.String("peer", m.From))
		return
	}

	if err := l.handle.ApplyRemoteDescription(m.Answer.SessionDescription()); err != nil {
		c.log.Warn("invalid answer, discarding link", slog.String("peer", m.From), slog.Any("error", callerr.ForPeer(err, m.From)))
		c.dropLink(m.From)
		c.table.SetState(m.From, room.Disconnected)
		return
	}
	l.answered = true
}

func (c *Coordinator) handleCandidate(m signaling.ICECandidate) {
	l, ok := c.links[m.From]
	if !ok {
		c.log.Debug("dropping candidate for unknown link", slog.String("peer", m.From))
		return
	}
	if err := l.handle.AddICECandidate(m.Candidate.ICECandidateInit()); err != nil {
		c.log.Debug("candidate rejected", slog.String("peer", m.From), slog.Any("error", callerr.ForPeer(err, m.From)))
	}
}

func (c *Coordinator) dropLink(id string) {
	l, ok := c.links[id]
	if !ok {
		return
	}
	delete(c.links, id)
	if err := l.handle.Destroy(); err != nil {
		c.log.Debug("peer link destroy", slog.String("peer", id), slog.Any("error", err))
	}
}

func (c *Coordinator) destroyLinks() {
	for id := range c.links {
		c.dropLink(id)
	}
}

func connectionState(s peer.State) room.ConnectionState {
	switch s {
	case peer.StateConnected:
		return room.Connected
	case peer.StateDisconnected, peer.StateFailed, peer.StateClosed:
		return room.Disconnected
	default:
		return room.Connecting
	}
}
