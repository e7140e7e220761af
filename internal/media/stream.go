// Package media owns the local audio/video tracks shared by every peer link.
package media

import (
	"context"
	"sync/atomic"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Constraints select which kinds of media to capture.
type Constraints struct {
	Audio bool
	Video bool
}

// Capturer acquires the local stream. Device access itself lives outside
// this module; implementations feed samples through Stream.Write*.
//
//go:generate go run go.uber.org/mock/mockgen -source=stream.go -destination=../mocks/mock_capturer.go -package=mocks
type Capturer interface {
	Acquire(ctx context.Context, c Constraints) (*Stream, error)
}

// Stream is the local media stream. Tracks are shared read-only by all peer
// connections; disabling a track drops its samples instead of renegotiating.
type Stream struct {
	id    string
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	audioOn atomic.Bool
	videoOn atomic.Bool
	stopped atomic.Bool
}

// NewStream creates sample tracks for the requested kinds, enabled.
func NewStream(c Constraints) (*Stream, error) {
	s := &Stream{id: uuid.NewString()}

	if c.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", s.id)
		if err != nil {
			return nil, callerr.NewError("create audio track", err)
		}
		s.audio = track
		s.audioOn.Store(true)
	}
	if c.Video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", s.id)
		if err != nil {
			return nil, callerr.NewError("create video track", err)
		}
		s.video = track
		s.videoOn.Store(true)
	}
	return s, nil
}

func (s *Stream) ID() string {
	return s.id
}

// Tracks returns the tracks to attach to a peer connection.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	if s.video != nil {
		tracks = append(tracks, s.video)
	}
	return tracks
}

func (s *Stream) HasAudio() bool { return s.audio != nil }
func (s *Stream) HasVideo() bool { return s.video != nil }

func (s *Stream) AudioEnabled() bool { return s.audio != nil && s.audioOn.Load() }
func (s *Stream) VideoEnabled() bool { return s.video != nil && s.videoOn.Load() }

// SetAudioEnabled returns the resulting state; it stays false without an
// audio track.
func (s *Stream) SetAudioEnabled(on bool) bool {
	if s.audio == nil {
		return false
	}
	s.audioOn.Store(on)
	return on
}

func (s *Stream) SetVideoEnabled(on bool) bool {
	if s.video == nil {
		return false
	}
	s.videoOn.Store(on)
	return on
}

// WriteAudio forwards an encoded sample to every peer. Samples are dropped
// while the track is disabled or the stream is stopped.
func (s *Stream) WriteAudio(sample media.Sample) error {
	if !s.AudioEnabled() || s.stopped.Load() {
		return nil
	}
	return s.audio.WriteSample(sample)
}

func (s *Stream) WriteVideo(sample media.Sample) error {
	if !s.VideoEnabled() || s.stopped.Load() {
		return nil
	}
	return s.video.WriteSample(sample)
}

// Stop ends the stream; further samples are dropped.
func (s *Stream) Stop() {
	s.stopped.Store(true)
}

func (s *Stream) Stopped() bool {
	return s.stopped.Load()
}

// DeviceCapturer hands out a stream for the devices it was told exist.
type DeviceCapturer struct {
	Microphone bool
	Camera     bool
}

func (d DeviceCapturer) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, callerr.WrapError("acquire media", callerr.ErrDeviceUnavailable, "no media requested")
	}
	if c.Audio && !d.Microphone {
		return nil, callerr.WrapError("acquire media", callerr.ErrDeviceUnavailable, "no microphone")
	}
	if c.Video && !d.Camera {
		return nil, callerr.WrapError("acquire media", callerr.ErrDeviceUnavailable, "no camera")
	}
	return NewStream(c)
}
