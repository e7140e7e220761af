package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/pion/webrtc/v4"
)

type fakeTransport struct {
	mu         sync.Mutex
	onOpen     func(bool)
	onMessage  func(signaling.Message)
	onClose    func(error)
	endpoint   string
	connectErr error
	isOpen     bool
	closed     bool
	sent       []signaling.Message
}

func (f *fakeTransport) OnOpen(fn func(bool))                  { f.onOpen = fn }
func (f *fakeTransport) OnMessage(fn func(signaling.Message)) { f.onMessage = fn }
func (f *fakeTransport) OnClose(fn func(error))                { f.onClose = fn }

func (f *fakeTransport) Connect(_ context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoint = endpoint
	return f.connectErr
}

func (f *fakeTransport) Send(msg signaling.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.isOpen {
		return callerr.NewError("send", callerr.ErrNotReady)
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.isOpen = false
	return nil
}

func (f *fakeTransport) open(reconnected bool) {
	f.mu.Lock()
	f.isOpen = true
	f.mu.Unlock()
	f.onOpen(reconnected)
}

func (f *fakeTransport) deliver(msg signaling.Message) {
	f.onMessage(msg)
}

func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.isOpen = false
	f.mu.Unlock()
	f.onClose(err)
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) sentMessages() []signaling.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]signaling.Message(nil), f.sent...)
}

func sentOf[T signaling.Message](f *fakeTransport) []T {
	var out []T
	for _, msg := range f.sentMessages() {
		if m, ok := msg.(T); ok {
			out = append(out, m)
		}
	}
	return out
}

type fakeHandle struct {
	mu          sync.Mutex
	role        peer.Role
	events      peer.Events
	applyErr    error
	applied     []webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	trackStates [][2]bool
	destroyed   bool
	journal     *[]string
}

func (h *fakeHandle) Role() peer.Role { return h.role }

func (h *fakeHandle) ApplyRemoteDescription(desc webrtc.SessionDescription) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.applyErr != nil {
		return h.applyErr
	}
	h.applied = append(h.applied, desc)
	return nil
}

func (h *fakeHandle) AddICECandidate(c webrtc.ICECandidateInit) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.candidates = append(h.candidates, c)
	return nil
}

func (h *fakeHandle) SendTrackState(audio, video bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trackStates = append(h.trackStates, [2]bool{audio, video})
	return nil
}

func (h *fakeHandle) Destroy() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.destroyed {
		h.destroyed = true
		*h.journal = append(*h.journal, "destroy")
	}
	return nil
}

func (h *fakeHandle) isDestroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

func (h *fakeHandle) appliedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.applied)
}

// fakeFactory records handles in creation order. It is only touched from the
// coordinator goroutine and read by tests after a barrier.
type fakeFactory struct {
	handles  []*fakeHandle
	journal  []string
	applyErr error
	err      error
}

func (f *fakeFactory) CreateLink(role peer.Role, _ *media.Stream, events peer.Events) (peer.Handle, error) {
	if f.err != nil {
		return nil, f.err
	}
	h := &fakeHandle{role: role, events: events, applyErr: f.applyErr, journal: &f.journal}
	f.handles = append(f.handles, h)
	f.journal = append(f.journal, "create")
	return h, nil
}

type logEntry struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

// logRecorder is a slog handler that keeps every record for inspection.
type logRecorder struct {
	mu      sync.Mutex
	entries []logEntry
}

func (r *logRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *logRecorder) Handle(_ context.Context, rec slog.Record) error {
	e := logEntry{level: rec.Level, msg: rec.Message, attrs: make(map[string]any)}
	rec.Attrs(func(a slog.Attr) bool {
		e.attrs[a.Key] = a.Value.Any()
		return true
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *logRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *logRecorder) WithGroup(string) slog.Handler      { return r }

// find returns the records logged with msg.
func (r *logRecorder) find(msg string) []logEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []logEntry
	for _, e := range r.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// atLeast returns the records at level or above.
func (r *logRecorder) atLeast(level slog.Level) []logEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []logEntry
	for _, e := range r.entries {
		if e.level >= level {
			out = append(out, e)
		}
	}
	return out
}

// errorPeer returns the peer named by the CallError logged under "error".
func (e logEntry) errorPeer() string {
	err, _ := e.attrs["error"].(error)
	var callErr *callerr.CallError
	if errors.As(err, &callErr) {
		return callErr.Peer
	}
	return ""
}
