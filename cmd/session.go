package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BioHazard786/Warpcall/internal/api"
	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/session"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/BioHazard786/Warpcall/internal/ui"
)

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, callerr.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// NewCoordinator wires the signaling transport, the peer link factory and
// the local capturer described by cfg.
func NewCoordinator(log *slog.Logger, cfg *config.Config) *session.Coordinator {
	turnUser, turnPass := cfg.GetTURNCredentials()
	peers := peer.NewFactory(log, peer.Settings{
		STUNServers: cfg.GetSTUNServers(),
		TURNServers: cfg.GetTURNServers(),
		TURNUser:    turnUser,
		TURNPass:    turnPass,
		ForceRelay:  cfg.ForceRelay,
		AutoRelay:   true,
	})

	newTransport := func() session.Transport {
		return signaling.NewTransport(log, signaling.Options{
			ReconnectDelay: cfg.ReconnectDelay,
			MaxReconnects:  cfg.MaxReconnects,
		})
	}

	return session.NewCoordinator(log, session.Options{
		Endpoint:           cfg.SignalingEndpoint,
		Constraints:        media.Constraints{Audio: cfg.Audio, Video: cfg.Video},
		AnnounceTrackState: cfg.AnnounceTracks,
	}, newTransport, peers, media.DeviceCapturer{Microphone: cfg.Audio, Camera: cfg.Video})
}

// runCall joins roomID and shows the call screen until the call ends.
func runCall(ctx context.Context, cfg *config.Config, roomID, name string) error {
	log := slog.Default()
	coord := NewCoordinator(log, cfg)

	runCtx, cancel := context.WithCancel(ctx)
	go coord.Run(runCtx)
	defer func() {
		cancel()
		<-coord.Done()
	}()

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Joining room...")
	err := coord.JoinRoom(ctx, name, roomID)
	stopSpinner()
	if err != nil {
		return err
	}

	final, err := ui.RunCall(coord)
	if err != nil {
		return callerr.NewError("call screen", err)
	}

	ui.RenderCallSummary("Call Summary", ui.SummaryFromState(final, time.Now()))
	return final.Err
}

// resolveRoom checks with the server that the room in input exists.
func resolveRoom(ctx context.Context, rooms api.RoomService, input string) (*api.Room, error) {
	roomID, err := parseRoomInput(input)
	if err != nil {
		return nil, err
	}
	return rooms.GetRoom(ctx, roomID)
}

func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", callerr.RoomLookup("parse room", nil, "room ID cannot be empty")
	}

	if strings.Contains(input, "://") {
		return extractRoomIDFromURL(input)
	}

	return input, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", callerr.RoomLookup("parse URL", err, "")
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if (part == "r" || part == "signaling") && i+1 < len(parts) && parts[i+1] != "" {
			id, err := url.PathUnescape(parts[i+1])
			if err != nil {
				return "", callerr.RoomLookup("parse URL", err, "")
			}
			return id, nil
		}
	}

	return "", callerr.RoomLookup("parse URL", nil, "could not extract room ID from "+urlStr)
}
