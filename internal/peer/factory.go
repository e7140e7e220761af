package peer

import (
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
)

// Settings carries the ICE configuration shared by every link.
type Settings struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string
	// ForceRelay restricts candidates to TURN relays.
	ForceRelay bool
	// AutoRelay switches to relay-only when a VPN or CGNAT address is detected.
	AutoRelay bool
}

// Factory creates peer links sharing one ICE configuration.
type Factory struct {
	log    *slog.Logger
	config webrtc.Configuration
}

// NewFactory builds the ICE server list from settings.
// TURN servers are used only when present; relay-only mode needs at least one.
func NewFactory(log *slog.Logger, settings Settings) *Factory {
	var iceServers []webrtc.ICEServer
	if stun := lo.Compact(settings.STUNServers); len(stun) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}

	turn := lo.Compact(settings.TURNServers)
	if len(turn) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turn,
			Username:   settings.TURNUser,
			Credential: settings.TURNPass,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if len(turn) > 0 && (settings.ForceRelay || (settings.AutoRelay && behindRestrictiveNetwork())) {
		policy = webrtc.ICETransportPolicyRelay
	}

	log.Debug("peer factory configured",
		slog.Int("ice_servers", len(iceServers)),
		slog.String("policy", policy.String()))

	return &Factory{
		log: log,
		config: webrtc.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: policy,
		},
	}
}

// Configuration returns a copy of the configuration handed to new links.
func (f *Factory) Configuration() webrtc.Configuration {
	return f.config
}

// CreateLink opens a peer connection carrying the local stream's tracks.
// An initiator starts negotiating immediately and reports its offer through
// events.OnLocalDescription once gathering completes. A responder waits for
// ApplyRemoteDescription.
func (f *Factory) CreateLink(role Role, local *media.Stream, events Events) (Handle, error) {
	pc, err := webrtc.NewPeerConnection(f.config)
	if err != nil {
		return nil, callerr.Negotiation("create peer connection", "", err)
	}

	l := newLink(f.log, role, pc, events)

	if local != nil {
		for _, track := range local.Tracks() {
			sender, err := pc.AddTrack(track)
			if err != nil {
				_ = pc.Close()
				return nil, callerr.Negotiation("add track", "", err)
			}
			go drainRTCP(sender)
		}
	}

	pc.OnConnectionStateChange(l.handleState)
	pc.OnTrack(l.handleTrack)

	if role == Initiator {
		dc, err := pc.CreateDataChannel(controlLabel, nil)
		if err != nil {
			_ = pc.Close()
			return nil, callerr.Negotiation("create control channel", "", err)
		}
		l.bindControl(dc)
		go l.negotiate(func() (webrtc.SessionDescription, error) {
			return pc.CreateOffer(nil)
		})
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() == controlLabel {
				l.bindControl(dc)
			}
		})
	}

	return l, nil
}

// drainRTCP reads sender reports so interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
