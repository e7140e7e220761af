package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/chat"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/room"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	inboxSize       = 256
	defaultName     = "Anonymous"
	defaultEndpoint = "ws://localhost:8080/ws/signaling/%s/"
)

// Transport is the signaling channel the coordinator drives.
type Transport interface {
	OnOpen(fn func(reconnected bool))
	OnMessage(fn func(signaling.Message))
	OnClose(fn func(error))
	Connect(ctx context.Context, endpoint string) error
	Send(msg signaling.Message) error
	Close() error
}

// TransportFactory returns a fresh, unconnected transport for each join.
type TransportFactory func() Transport

// PeerFactory creates peer links.
type PeerFactory interface {
	CreateLink(role peer.Role, local *media.Stream, events peer.Events) (peer.Handle, error)
}

type Options struct {
	// Endpoint maps a room ID to its signaling URL.
	Endpoint func(roomID string) string
	// Constraints selects the local media kinds to capture.
	Constraints media.Constraints
	// AnnounceTrackState sends local toggles to peers over the control channel.
	AnnounceTrackState bool
}

// Coordinator owns the room session, the membership table, the chat log and
// every peer link. All of its state is mutated on the goroutine running Run;
// callbacks and control calls are posted to its inbox.
type Coordinator struct {
	log          *slog.Logger
	opts         Options
	newTransport TransportFactory
	peers        PeerFactory
	capturer     media.Capturer

	inbox   chan func()
	done    chan struct{}
	runCtx  context.Context
	updates chan State

	mu    sync.RWMutex
	state State

	// owned by the Run goroutine
	session    *RoomSession
	generation uint64
	transport  Transport
	links      map[string]*peerLink
	table      *room.Table
	chat       *chat.Log
	stream     *media.Stream
	seen       map[string]string
	lastErr    error
}

func NewCoordinator(log *slog.Logger, opts Options, newTransport TransportFactory, peers PeerFactory, capturer media.Capturer) *Coordinator {
	if opts.Endpoint == nil {
		opts.Endpoint = func(roomID string) string {
			return fmt.Sprintf(defaultEndpoint, roomID)
		}
	}
	return &Coordinator{
		log:          log,
		opts:         opts,
		newTransport: newTransport,
		peers:        peers,
		capturer:     capturer,
		inbox:        make(chan func(), inboxSize),
		done:         make(chan struct{}),
		runCtx:       context.Background(),
		updates:      make(chan State, 1),
		links:        make(map[string]*peerLink),
		chat:         chat.NewLog(),
		seen:         make(map[string]string),
	}
}

// Run processes events until ctx is cancelled, then leaves any active room.
func (c *Coordinator) Run(ctx context.Context) {
	c.runCtx = ctx
	defer close(c.done)

	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-ctx.Done():
			c.leave()
			return
		}
	}
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Snapshot returns the most recently published state.
func (c *Coordinator) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Updates delivers published states. Only the latest unread state is kept.
func (c *Coordinator) Updates() <-chan State {
	return c.updates
}

// JoinRoom captures local media and enters roomID. Joining the active room
// again is a no-op; joining another room leaves the active one first.
func (c *Coordinator) JoinRoom(ctx context.Context, name, roomID string) error {
	return c.call(func() error {
		return c.join(ctx, name, roomID)
	})
}

// LeaveCall tears the session down. Calling it without an active session is a no-op.
func (c *Coordinator) LeaveCall() error {
	return c.call(func() error {
		c.leave()
		return nil
	})
}

// ToggleAudio flips the local audio track and returns whether it is now enabled.
func (c *Coordinator) ToggleAudio() (bool, error) {
	var enabled bool
	err := c.call(func() error {
		if c.stream == nil {
			return callerr.NewError("toggle audio", callerr.ErrNotJoined)
		}
		enabled = c.stream.SetAudioEnabled(!c.stream.AudioEnabled())
		c.applyLocalFlags()
		return nil
	})
	return enabled, err
}

// ToggleVideo flips the local video track and returns whether it is now enabled.
func (c *Coordinator) ToggleVideo() (bool, error) {
	var enabled bool
	err := c.call(func() error {
		if c.stream == nil {
			return callerr.NewError("toggle video", callerr.ErrNotJoined)
		}
		enabled = c.stream.SetVideoEnabled(!c.stream.VideoEnabled())
		c.applyLocalFlags()
		return nil
	})
	return enabled, err
}

// SendChat broadcasts text to the room and records it locally.
func (c *Coordinator) SendChat(text string) error {
	text = strings.TrimSpace(text)
	return c.call(func() error {
		if text == "" {
			return callerr.NewError("send chat", callerr.ErrEmptyMessage)
		}
		if c.session == nil || !c.session.Phase.Active() {
			return callerr.NewError("send chat", callerr.ErrNotJoined)
		}
		if c.session.Phase != PhaseJoined {
			return callerr.NewError("send chat", callerr.ErrNotReady)
		}

		msg := signaling.ChatMessage{
			Message:   text,
			Sender:    c.session.LocalName,
			Timestamp: chat.Timestamp(time.Now()),
		}
		if err := c.transport.Send(msg); err != nil {
			return err
		}

		c.chat.Append(chat.Entry{Sender: msg.Sender, Body: msg.Message, SentAt: msg.Timestamp, Origin: chat.Local})
		c.publish()
		return nil
	})
}

// call runs fn on the coordinator goroutine and waits for its result.
func (c *Coordinator) call(fn func() error) error {
	result := make(chan error, 1)
	select {
	case c.inbox <- func() { result <- fn() }:
	case <-c.done:
		return callerr.ErrSessionClosed
	}

	select {
	case err := <-result:
		return err
	case <-c.done:
		return callerr.ErrSessionClosed
	}
}

// post queues fn without waiting for it to run.
func (c *Coordinator) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

func (c *Coordinator) join(ctx context.Context, name, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return callerr.WrapError("join room", callerr.ErrRoomLookup, "empty room id")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultName
	}

	if c.session != nil && c.session.Phase.Active() {
		if c.session.RoomID == roomID {
			return nil
		}
		c.log.Info("leaving room for another", slog.String("from", c.session.RoomID), slog.String("to", roomID))
		c.leave()
	}

	stream, err := c.capturer.Acquire(ctx, c.opts.Constraints)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, callerr.ErrDeviceUnavailable) {
			err = callerr.WrapError("join room", callerr.ErrDeviceUnavailable, err.Error())
		}
		return err
	}

	c.generation++
	gen := c.generation
	c.session = &RoomSession{
		RoomID:     roomID,
		LocalID:    uuid.NewString(),
		LocalName:  name,
		Phase:      PhaseJoining,
		Generation: gen,
		StartedAt:  time.Now(),
	}
	c.stream = stream
	c.table = room.NewTable(room.Participant{
		ID:          c.session.LocalID,
		DisplayName: name,
		HasAudio:    stream.AudioEnabled(),
		HasVideo:    stream.VideoEnabled(),
	})
	c.chat.Reset()
	c.seen = make(map[string]string)
	c.lastErr = nil

	transport := c.newTransport()
	transport.OnOpen(func(reconnected bool) {
		c.post(func() { c.handleOpen(gen, reconnected) })
	})
	transport.OnMessage(func(msg signaling.Message) {
		c.post(func() { c.handleMessage(gen, msg) })
	})
	transport.OnClose(func(err error) {
		c.post(func() { c.handleClose(gen, err) })
	})
	c.transport = transport

	if err := transport.Connect(c.runCtx, c.opts.Endpoint(roomID)); err != nil {
		c.leave()
		return callerr.WrapError("join room", callerr.ErrTransport, err.Error())
	}

	c.log.Info("joining room",
		slog.String("room", roomID),
		slog.String("local_id", c.session.LocalID),
		slog.String("name", name))
	c.publish()
	return nil
}

func (c *Coordinator) leave() {
	if c.session == nil || !c.session.Phase.Active() {
		return
	}

	c.destroyLinks()
	c.table.Clear()
	if c.transport != nil {
		_ = c.transport.Close()
		c.transport = nil
	}
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
	c.session.Phase = PhaseLeft

	c.log.Info("left room", slog.String("room", c.session.RoomID))
	c.publish()
}

// current reports whether gen still names the active session.
func (c *Coordinator) current(gen uint64) bool {
	return c.session != nil && c.session.Generation == gen && c.session.Phase.Active()
}

func (c *Coordinator) handleOpen(gen uint64, reconnected bool) {
	if !c.current(gen) {
		return
	}

	if reconnected {
		c.log.Info("signaling reconnected, rebuilding mesh", slog.Int("links", len(c.links)))
		c.destroyLinks()
		c.table.Clear()
	}

	join := signaling.Join{Name: c.session.LocalName, ClientID: c.session.LocalID}
	if err := c.transport.Send(join); err != nil {
		c.log.Warn("failed to send join", slog.Any("error", err))
		return
	}

	c.session.Phase = PhaseJoined
	c.publish()
}

func (c *Coordinator) handleClose(gen uint64, err error) {
	if !c.current(gen) || err == nil {
		return
	}

	if errors.Is(err, signaling.ErrReconnectLimit) {
		c.log.Error("signaling lost for good", slog.Any("error", err))
		c.lastErr = err
		c.leave()
		return
	}

	c.log.Warn("signaling lost, waiting for reconnect", slog.Any("error", err))
	c.session.Phase = PhaseJoining
	c.publish()
}

func (c *Coordinator) handleMessage(gen uint64, msg signaling.Message) {
	if !c.current(gen) {
		return
	}

	switch m := msg.(type) {
	case signaling.RoomUsers:
		c.handleRoomUsers(m)
	case signaling.UserJoined:
		c.handleUserJoined(m)
	case signaling.UserLeft:
		c.removeParticipant(m.UserID)
	case signaling.Offer:
		c.handleOffer(m)
	case signaling.Answer:
		c.handleAnswer(m)
	case signaling.ICECandidate:
		c.handleCandidate(m)
	case signaling.ChatMessage:
		c.handleChat(m)
	default:
		c.log.Debug("ignoring signaling message", slog.String("type", string(msg.MessageType())))
		return
	}
	c.publish()
}

func (c *Coordinator) handleRoomUsers(m signaling.RoomUsers) {
	localID := c.session.LocalID
	roster := make(map[string]struct{}, len(m.Users))

	for _, u := range m.Users {
		if u.ID == localID {
			continue
		}
		roster[u.ID] = struct{}{}
		c.upsertParticipant(u.ID, u.Name)
		c.ensureInitiator(u.ID)
	}

	stale := lo.Filter(c.table.IDs(), func(id string, _ int) bool {
		_, ok := roster[id]
		return !ok
	})
	for _, id := range stale {
		c.removeParticipant(id)
	}
}

func (c *Coordinator) handleUserJoined(m signaling.UserJoined) {
	if m.UserID == c.session.LocalID {
		return
	}
	c.upsertParticipant(m.UserID, m.Name)
	c.ensureInitiator(m.UserID)
}

func (c *Coordinator) handleChat(m signaling.ChatMessage) {
	sentAt := m.Timestamp
	if sentAt.IsZero() {
		sentAt = chat.Timestamp(time.Now())
	}
	c.chat.Append(chat.Entry{Sender: m.Sender, Body: m.Message, SentAt: sentAt, Origin: chat.Remote})
}

func (c *Coordinator) upsertParticipant(id, name string) {
	p, ok := c.table.Get(id)
	if !ok {
		p = room.Participant{ID: id, State: room.Connecting}
	}
	if name != "" {
		p.DisplayName = name
	}
	c.table.Upsert(p)
	c.seen[id] = p.DisplayName
}

func (c *Coordinator) removeParticipant(id string) {
	c.dropLink(id)
	if c.table.Remove(id) {
		c.log.Info("participant left", slog.String("peer", id))
	}
}

func (c *Coordinator) applyLocalFlags() {
	audio, video := c.stream.AudioEnabled(), c.stream.VideoEnabled()
	c.table.SetLocalFlags(audio, video)

	if c.opts.AnnounceTrackState {
		for id, l := range c.links {
			if err := l.handle.SendTrackState(audio, video); err != nil {
				c.log.Debug("track state not delivered", slog.String("peer", id), slog.Any("error", err))
			}
		}
	}
	c.publish()
}

func (c *Coordinator) publish() {
	s := State{Err: c.lastErr}
	if c.session != nil {
		s.RoomID = c.session.RoomID
		s.LocalID = c.session.LocalID
		s.LocalName = c.session.LocalName
		s.Phase = c.session.Phase
		s.StartedAt = c.session.StartedAt
	}
	if c.table != nil {
		s.Local = c.table.Local()
		s.Participants = c.table.Snapshot()
		s.Total = c.table.Total()
	}
	if c.stream != nil {
		s.LocalAudioEnabled = c.stream.AudioEnabled()
		s.LocalVideoEnabled = c.stream.VideoEnabled()
	}
	s.Chat = c.chat.Entries()
	s.Streams = make(map[string]peer.RemoteStream, len(c.links))
	for id, l := range c.links {
		if l.remote != nil {
			s.Streams[id] = *l.remote
		}
	}
	s.Seen = lo.Values(c.seen)
	slices.Sort(s.Seen)

	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	select {
	case c.updates <- s:
	default:
		select {
		case <-c.updates:
		default:
		}
		select {
		case c.updates <- s:
		default:
		}
	}
}
