package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/chat"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/mocks"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/room"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	// Participant IDs on either side of any generated UUID in byte order.
	lowID  = "!low"
	highID = "~high"
)

type harness struct {
	c          *Coordinator
	factory    *fakeFactory
	transports []*fakeTransport
	logs       *logRecorder
}

func newHarness(t *testing.T, opts Options, capturer media.Capturer) *harness {
	t.Helper()
	h := &harness{factory: &fakeFactory{}, logs: &logRecorder{}}
	if capturer == nil {
		capturer = media.DeviceCapturer{Microphone: true, Camera: true}
	}
	if opts.Constraints == (media.Constraints{}) {
		opts.Constraints = media.Constraints{Audio: true, Video: true}
	}

	newTransport := func() Transport {
		tr := &fakeTransport{}
		h.transports = append(h.transports, tr)
		return tr
	}
	h.c = NewCoordinator(slog.New(h.logs), opts, newTransport, h.factory, capturer)

	ctx, cancel := context.WithCancel(context.Background())
	go h.c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.c.Done()
	})
	return h
}

// sync waits until every event posted so far has been processed.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.call(func() error { return nil }))
}

func (h *harness) transport() *fakeTransport {
	return h.transports[len(h.transports)-1]
}

func (h *harness) join(t *testing.T, name, roomID string) *fakeTransport {
	t.Helper()
	require.NoError(t, h.c.JoinRoom(context.Background(), name, roomID))
	h.sync(t)
	tr := h.transport()
	tr.open(false)
	h.sync(t)
	return tr
}

func (h *harness) handle(i int) *fakeHandle {
	return h.factory.handles[i]
}

func offerDesc() signaling.Description {
	return signaling.Description{Type: "offer", SDP: "v=0 offer"}
}

func answerDesc() signaling.Description {
	return signaling.Description{Type: "answer", SDP: "v=0 answer"}
}

func TestJoinRoom_SendsJoinOnOpen(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{Endpoint: func(id string) string { return "ws://test/" + id }}, nil)

	// Given a join request
	req.NoError(h.c.JoinRoom(context.Background(), "Alice", "r1"))
	h.sync(t)
	tr := h.transport()
	req.Equal("ws://test/r1", tr.endpoint)
	req.Equal(PhaseJoining, h.c.Snapshot().Phase)

	// When the signaling channel opens
	tr.open(false)
	h.sync(t)

	// Then join is sent and the session is joined
	joins := sentOf[signaling.Join](tr)
	req.Len(joins, 1)
	state := h.c.Snapshot()
	req.Equal("Alice", joins[0].Name)
	req.Equal(state.LocalID, joins[0].ClientID)
	req.Equal(PhaseJoined, state.Phase)
	req.Equal(1, state.Total)
	req.True(state.LocalAudioEnabled)
	req.True(state.LocalVideoEnabled)
}

func TestJoinRoom_DefaultsEmptyName(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)

	tr := h.join(t, "  ", "r1")

	req.Equal(defaultName, sentOf[signaling.Join](tr)[0].Name)
	req.Equal("ws://localhost:8080/ws/signaling/r1/", tr.endpoint)
}

func TestRoomUsers_CreatesInitiatorAndSendsOffer(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")
	localID := h.c.Snapshot().LocalID

	// Given a roster containing Bob and ourselves
	tr.deliver(signaling.RoomUsers{Users: []signaling.User{{ID: localID, Name: "Alice"}, {ID: "u2", Name: "Bob"}}})
	h.sync(t)

	// Then one initiator link exists and Bob is listed
	req.Len(h.factory.handles, 1)
	req.Equal(peer.Initiator, h.handle(0).role)
	state := h.c.Snapshot()
	req.Equal(2, state.Total)
	req.Len(state.Participants, 1)
	req.Equal("Bob", state.Participants[0].DisplayName)
	req.Equal(room.Connecting, state.Participants[0].State)

	// When the link finishes gathering
	h.handle(0).events.OnLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 local"})
	h.sync(t)

	// Then the offer is addressed to Bob
	offers := sentOf[signaling.Offer](tr)
	req.Len(offers, 1)
	req.Equal("u2", offers[0].Target)
	req.Equal(localID, offers[0].From)
	req.Equal("Alice", offers[0].FromName)
	req.Equal("offer", offers[0].Offer.Type)
	req.Equal("v=0 local", offers[0].Offer.SDP)
}

func TestOffer_CreatesResponderAndSendsAnswer(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Bob", "r1")

	// Given an offer from an unlinked participant
	tr.deliver(signaling.Offer{From: "u3", FromName: "Carol", Offer: offerDesc()})
	h.sync(t)

	// Then a responder link applied the offer
	req.Len(h.factory.handles, 1)
	link := h.handle(0)
	req.Equal(peer.Responder, link.role)
	req.Equal(1, link.appliedCount())
	req.Equal(webrtc.SDPTypeOffer, link.applied[0].Type)

	state := h.c.Snapshot()
	req.Len(state.Participants, 1)
	req.Equal("Carol", state.Participants[0].DisplayName)

	// When the answer is ready
	link.events.OnLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 reply"})
	h.sync(t)

	answers := sentOf[signaling.Answer](tr)
	req.Len(answers, 1)
	req.Equal("u3", answers[0].Target)
	req.Equal("answer", answers[0].Answer.Type)
}

func TestAtMostOneLinkPerParticipant(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	// Given repeated announcements of the same participant
	tr.deliver(signaling.UserJoined{UserID: "u2", Name: "Bob"})
	tr.deliver(signaling.UserJoined{UserID: "u2", Name: "Bob"})
	tr.deliver(signaling.RoomUsers{Users: []signaling.User{{ID: "u2", Name: "Bob"}}})
	h.sync(t)
	req.Len(h.factory.handles, 1)

	// When the link has been answered and another offer arrives
	tr.deliver(signaling.Answer{From: "u2", Answer: answerDesc()})
	tr.deliver(signaling.Offer{From: "u2", FromName: "Bob", Offer: offerDesc()})
	h.sync(t)

	// Then the offer is rejected without creating a second link
	req.Len(h.factory.handles, 1)
	req.False(h.handle(0).isDestroyed())
	req.Equal(1, h.handle(0).appliedCount())
	req.Len(h.c.Snapshot().Participants, 1)

	// And the rejection is reported as a fault against that participant
	rejected := h.logs.find("rejecting offer")
	req.Len(rejected, 1)
	req.Equal(slog.LevelWarn, rejected[0].level)
	req.Equal("u2", rejected[0].errorPeer())
	req.ErrorIs(rejected[0].attrs["error"].(error), callerr.ErrDuplicateLink)
}

func TestOffer_RejectedForExistingResponder(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Bob", "r1")

	// Given a responder link to u3
	tr.deliver(signaling.Offer{From: "u3", FromName: "Carol", Offer: offerDesc()})
	h.sync(t)
	req.Len(h.factory.handles, 1)

	// When u3 offers again
	tr.deliver(signaling.Offer{From: "u3", FromName: "Carol", Offer: offerDesc()})
	h.sync(t)

	// Then the duplicate is rejected loudly
	req.Len(h.factory.handles, 1)
	rejected := h.logs.find("rejecting offer")
	req.Len(rejected, 1)
	req.Equal(slog.LevelWarn, rejected[0].level)
	req.Equal("responder", rejected[0].attrs["role"])
}

func TestGlare_SmallerLocalIDYields(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	// Given a pending initiator link to a participant with a larger ID
	tr.deliver(signaling.UserJoined{UserID: highID, Name: "Zed"})
	h.sync(t)
	req.Len(h.factory.handles, 1)
	pending := h.handle(0)

	// When that participant's offer crosses ours
	tr.deliver(signaling.Offer{From: highID, FromName: "Zed", Offer: offerDesc()})
	h.sync(t)

	// Then our initiator is destroyed before the responder is created
	req.True(pending.isDestroyed())
	req.Len(h.factory.handles, 2)
	req.Equal(peer.Responder, h.handle(1).role)
	req.Equal(1, h.handle(1).appliedCount())
	req.Equal([]string{"create", "destroy", "create"}, h.factory.journal)

	// And the abandoned initiator can no longer send its offer
	pending.events.OnLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "late"})
	h.sync(t)
	req.Empty(sentOf[signaling.Offer](tr))
}

func TestGlare_LargerLocalIDRejects(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	tr.deliver(signaling.UserJoined{UserID: lowID, Name: "Amy"})
	tr.deliver(signaling.Offer{From: lowID, FromName: "Amy", Offer: offerDesc()})
	h.sync(t)

	req.Len(h.factory.handles, 1)
	req.False(h.handle(0).isDestroyed())
	req.Equal(peer.Initiator, h.handle(0).role)
	req.Zero(h.handle(0).appliedCount())
	req.Empty(sentOf[signaling.Answer](tr))

	// A collision is part of every normal join, so nothing is reported above debug
	req.Empty(h.logs.atLeast(slog.LevelWarn))
	req.Len(h.logs.find("offer collision, keeping ours"), 1)
}

func TestUserLeft_DestroysLinkAndRemovesMember(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	tr.deliver(signaling.UserJoined{UserID: "u2", Name: "Bob"})
	tr.deliver(signaling.UserLeft{UserID: "u2"})
	tr.deliver(signaling.UserLeft{UserID: "nobody"})
	h.sync(t)

	req.True(h.handle(0).isDestroyed())
	state := h.c.Snapshot()
	req.Empty(state.Participants)
	req.Equal(1, state.Total)
	req.Equal([]string{"Bob"}, state.Seen)
}

func TestRoomUsers_RemovesMembersMissingFromRoster(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	tr.deliver(signaling.RoomUsers{Users: []signaling.User{{ID: "u2", Name: "Bob"}, {ID: "u3", Name: "Carol"}}})
	tr.deliver(signaling.RoomUsers{Users: []signaling.User{{ID: "u3", Name: "Carol"}}})
	h.sync(t)

	req.True(h.handle(0).isDestroyed())
	req.False(h.handle(1).isDestroyed())
	state := h.c.Snapshot()
	req.Len(state.Participants, 1)
	req.Equal("u3", state.Participants[0].ID)
}

func TestAnswer_AppliedOnlyToPendingInitiator(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	tr.deliver(signaling.Answer{From: "stranger", Answer: answerDesc()})
	tr.deliver(signaling.UserJoined{UserID: "u2", Name: "Bob"})
	tr.deliver(signaling.Answer{From: "u2", Answer: answerDesc()})
	tr.deliver(signaling.Answer{From: "u2", Answer: answerDesc()})
	h.sync(t)

	req.Len(h.factory.handles, 1)
	req.Equal(1, h.handle(0).appliedCount())
	req.Equal(webrtc.SDPTypeAnswer, h.handle(0).applied[0].Type)
}

func TestNegotiationFailure_DiscardsLink(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	h.factory.applyErr = callerr.Negotiation("apply remote description", "", errors.New("bad sdp"))
	tr := h.join(t, "Bob", "r1")

	tr.deliver(signaling.Offer{From: "u3", FromName: "Carol", Offer: offerDesc()})
	h.sync(t)

	req.True(h.handle(0).isDestroyed())
	state := h.c.Snapshot()
	req.Equal(PhaseJoined, state.Phase)
	req.Len(state.Participants, 1)
	req.Equal(room.Disconnected, state.Participants[0].State)
	invalid := h.logs.find("invalid offer, discarding link")
	req.Len(invalid, 1)
	req.Equal("u3", invalid[0].errorPeer())
	req.ErrorIs(invalid[0].attrs["error"].(error), callerr.ErrNegotiation)

	// A later offer may try again
	h.factory.applyErr = nil
	tr.deliver(signaling.Offer{From: "u3", FromName: "Carol", Offer: offerDesc()})
	h.sync(t)
	req.Len(h.factory.handles, 2)
	req.Equal(1, h.handle(1).appliedCount())
}

func TestLinkError_DiscardsLink(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	tr.deliver(signaling.UserJoined{UserID: "u2", Name: "Bob"})
	h.sync(t)
	h.handle(0).events.OnError(callerr.ErrNegotiation)
	h.sync(t)

	req.True(h.handle(0).isDestroyed())
	req.Equal(room.Disconnected, h.c.Snapshot().Participants[0].State)
	discarded := h.logs.find("discarding peer link")
	req.Len(discarded, 1)
	req.Equal("u2", discarded[0].errorPeer())
}

func TestICECandidate_ForwardedToExistingLink(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	candidate := signaling.Candidate{Candidate: "candidate:1 1 udp 2122260223 10.0.0.2 50000 typ host"}
	tr.deliver(signaling.ICECandidate{From: "u2", Candidate: candidate})
	tr.deliver(signaling.UserJoined{UserID: "u2", Name: "Bob"})
	tr.deliver(signaling.ICECandidate{From: "u2", Candidate: candidate})
	h.sync(t)

	req.Len(h.handle(0).candidates, 1)
	req.Equal(candidate.Candidate, h.handle(0).candidates[0].Candidate)
}

func TestPeerEvents_UpdateParticipant(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	tr.deliver(signaling.UserJoined{UserID: "u2", Name: "Bob"})
	h.sync(t)
	link := h.handle(0)

	link.events.OnStateChange(peer.StateConnected)
	link.events.OnRemoteMedia(peer.RemoteStream{ID: "remote"})
	link.events.OnTrackState(true, false)
	h.sync(t)

	state := h.c.Snapshot()
	bob := state.Participants[0]
	req.Equal(room.Connected, bob.State)
	req.True(bob.HasAudio)
	req.False(bob.HasVideo)
	req.Contains(state.Streams, "u2")
	req.Equal("remote", state.Streams["u2"].ID)

	link.events.OnStateChange(peer.StateFailed)
	h.sync(t)
	req.Equal(room.Disconnected, h.c.Snapshot().Participants[0].State)
}

func TestChat_LocalEchoDeduplicated(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	// Given a local message
	req.NoError(h.c.SendChat("  hello  "))
	sent := sentOf[signaling.ChatMessage](tr)
	req.Len(sent, 1)
	req.Equal("hello", sent[0].Message)
	req.Equal("Alice", sent[0].Sender)

	// When the server echoes it back
	tr.deliver(sent[0])
	tr.deliver(signaling.ChatMessage{Message: "hey", Sender: "Bob", Timestamp: sent[0].Timestamp.Add(time.Millisecond)})
	h.sync(t)

	// Then it is recorded once, as local
	entries := h.c.Snapshot().Chat
	req.Len(entries, 2)
	req.Equal(chat.Local, entries[0].Origin)
	req.Equal("hello", entries[0].Body)
	req.Equal(chat.Remote, entries[1].Origin)
}

func TestChat_ZeroTimestampStamped(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	tr.deliver(signaling.ChatMessage{Message: "hi", Sender: "Bob"})
	h.sync(t)

	entries := h.c.Snapshot().Chat
	req.Len(entries, 1)
	req.False(entries[0].SentAt.IsZero())
}

func TestSendChat_Errors(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)

	req.ErrorIs(h.c.SendChat("hi"), callerr.ErrNotJoined)

	req.NoError(h.c.JoinRoom(context.Background(), "Alice", "r1"))
	req.ErrorIs(h.c.SendChat("   "), callerr.ErrEmptyMessage)
	req.ErrorIs(h.c.SendChat("hi"), callerr.ErrNotReady)
	req.Empty(h.c.Snapshot().Chat)
}

func TestToggle_FlipsLocalTracks(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)

	_, err := h.c.ToggleAudio()
	req.ErrorIs(err, callerr.ErrNotJoined)

	tr := h.join(t, "Alice", "r1")
	tr.deliver(signaling.UserJoined{UserID: "u2", Name: "Bob"})
	h.sync(t)

	enabled, err := h.c.ToggleAudio()
	req.NoError(err)
	req.False(enabled)
	enabled, err = h.c.ToggleVideo()
	req.NoError(err)
	req.False(enabled)

	state := h.c.Snapshot()
	req.False(state.LocalAudioEnabled)
	req.False(state.LocalVideoEnabled)
	req.False(state.Local.HasAudio)
	req.False(state.Local.HasVideo)

	// Peers are not told by default
	req.Empty(h.handle(0).trackStates)
}

func TestToggle_AnnouncesTrackState(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{AnnounceTrackState: true}, nil)
	tr := h.join(t, "Alice", "r1")
	tr.deliver(signaling.UserJoined{UserID: "u2", Name: "Bob"})
	h.sync(t)

	_, err := h.c.ToggleVideo()
	req.NoError(err)

	req.Equal([][2]bool{{true, false}}, h.handle(0).trackStates)
}

func TestReconnect_RebuildsMesh(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	// Given two established links
	tr.deliver(signaling.RoomUsers{Users: []signaling.User{{ID: "u2", Name: "Bob"}, {ID: "u3", Name: "Carol"}}})
	h.sync(t)
	req.Len(h.factory.handles, 2)

	// When signaling drops
	tr.drop(callerr.ErrTransport)
	h.sync(t)
	req.Equal(PhaseJoining, h.c.Snapshot().Phase)

	// And comes back
	tr.open(true)
	h.sync(t)

	// Then stale links are gone and join is sent again
	req.True(h.handle(0).isDestroyed())
	req.True(h.handle(1).isDestroyed())
	req.Len(sentOf[signaling.Join](tr), 2)
	state := h.c.Snapshot()
	req.Equal(PhaseJoined, state.Phase)
	req.Empty(state.Participants)

	// And the new roster creates fresh links only after teardown
	tr.deliver(signaling.RoomUsers{Users: []signaling.User{{ID: "u2", Name: "Bob"}, {ID: "u3", Name: "Carol"}}})
	h.sync(t)
	req.Len(h.factory.handles, 4)
	req.Equal([]string{"create", "create", "destroy", "destroy", "create", "create"}, h.factory.journal)
}

func TestReconnectLimit_EndsSession(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	tr := h.join(t, "Alice", "r1")

	tr.drop(fmt.Errorf("%w: %w", callerr.ErrTransport, signaling.ErrReconnectLimit))
	h.sync(t)

	state := h.c.Snapshot()
	req.Equal(PhaseLeft, state.Phase)
	req.ErrorIs(state.Err, signaling.ErrReconnectLimit)
	req.True(tr.isClosed())
}

func TestLeaveCall_Idempotent(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	req.NoError(h.c.LeaveCall())

	tr := h.join(t, "Alice", "r1")
	tr.deliver(signaling.UserJoined{UserID: "u2", Name: "Bob"})
	req.NoError(h.c.SendChat("bye"))
	h.sync(t)

	req.NoError(h.c.LeaveCall())
	req.NoError(h.c.LeaveCall())

	req.True(h.handle(0).isDestroyed())
	req.True(tr.isClosed())
	state := h.c.Snapshot()
	req.Equal(PhaseLeft, state.Phase)
	req.Empty(state.Participants)
	req.Len(state.Chat, 1)

	// Events after leaving are dropped
	h.handle(0).events.OnLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "late"})
	tr.deliver(signaling.UserJoined{UserID: "u3", Name: "Carol"})
	h.sync(t)
	req.Len(h.factory.handles, 1)
	req.Empty(sentOf[signaling.Offer](tr))
}

func TestJoinRoom_SameRoomIsNoop(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	h.join(t, "Alice", "r1")

	req.NoError(h.c.JoinRoom(context.Background(), "Alice", "r1"))
	h.sync(t)

	req.Len(h.transports, 1)
}

func TestJoinRoom_OtherRoomSupersedes(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	first := h.join(t, "Alice", "r1")
	first.deliver(signaling.UserJoined{UserID: "u2", Name: "Bob"})
	h.sync(t)
	oldID := h.c.Snapshot().LocalID

	second := h.join(t, "Alice", "r2")

	req.Len(h.transports, 2)
	req.True(first.isClosed())
	req.False(second.isClosed())
	req.True(h.handle(0).isDestroyed())

	state := h.c.Snapshot()
	req.Equal("r2", state.RoomID)
	req.NotEqual(oldID, state.LocalID)
	req.Equal(PhaseJoined, state.Phase)

	// Messages from the superseded channel are ignored
	first.deliver(signaling.UserJoined{UserID: "u9", Name: "Ghost"})
	h.sync(t)
	req.Empty(h.c.Snapshot().Participants)
}

func TestJoinRoom_ConnectFailure(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{Endpoint: func(string) string { return "ws://bad" }}, nil)

	h.c.newTransport = func() Transport {
		tr := &fakeTransport{connectErr: errors.New("dial refused")}
		h.transports = append(h.transports, tr)
		return tr
	}

	err := h.c.JoinRoom(context.Background(), "Alice", "r1")
	req.ErrorIs(err, callerr.ErrTransport)
	req.Equal(PhaseLeft, h.c.Snapshot().Phase)
}

func TestJoinRoom_DeviceUnavailable(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	capturer := mocks.NewMockCapturer(ctrl)

	capturer.EXPECT().
		Acquire(gomock.Any(), media.Constraints{Audio: true, Video: true}).
		Return(nil, callerr.WrapError("acquire media", callerr.ErrDeviceUnavailable, "no camera")).
		Times(1)

	h := newHarness(t, Options{}, capturer)

	err := h.c.JoinRoom(context.Background(), "Alice", "r1")
	req.ErrorIs(err, callerr.ErrDeviceUnavailable)
	req.Empty(h.transports)
	req.Equal(PhaseIdle, h.c.Snapshot().Phase)
}

func TestJoinRoom_CapturerFailureIsDeviceError(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	capturer := mocks.NewMockCapturer(ctrl)
	capturer.EXPECT().Acquire(gomock.Any(), gomock.Any()).Return(nil, errors.New("permission denied"))

	h := newHarness(t, Options{}, capturer)

	err := h.c.JoinRoom(context.Background(), "Alice", "r1")
	req.ErrorIs(err, callerr.ErrDeviceUnavailable)
	req.Contains(err.Error(), "permission denied")
}

func TestControlCalls_AfterRunStops(t *testing.T) {
	req := require.New(t)
	c := NewCoordinator(slog.Default(), Options{}, func() Transport { return &fakeTransport{} }, &fakeFactory{}, media.DeviceCapturer{})

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	cancel()
	<-c.Done()

	req.ErrorIs(c.LeaveCall(), callerr.ErrSessionClosed)
	req.ErrorIs(c.SendChat("hi"), callerr.ErrSessionClosed)
}

func TestUpdates_DeliversLatestState(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Options{}, nil)
	h.join(t, "Alice", "r1")

	select {
	case state := <-h.c.Updates():
		req.Equal("r1", state.RoomID)
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}
}
