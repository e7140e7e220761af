package cmd

import (
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/api"
	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	flagName           string
	flagNoAudio        bool
	flagNoVideo        bool
	flagAnnounceTracks bool
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join an existing call",
	Long: `Join a call room and connect to everyone already in it.

Examples:
  warpcall join brave-otter-lamp
  warpcall join https://call.example.com/r/brave-otter-lamp
  warpcall join brave-otter-lamp --name Alice --no-video`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(callOptions(cmd))
		if err != nil {
			return err
		}

		rooms := api.NewClient(slog.Default(), cfg.APIURL())
		room, err := resolveRoom(cmd.Context(), rooms, args[0])
		if err != nil {
			return err
		}
		if room.Participants == 0 {
			ui.PrintWarningf("Nobody is in %s yet, you will be the first", room.Name)
		} else {
			ui.PrintInfof("%s Joining %s (%d in call)", ui.IconRoom, room.Name, room.Participants)
		}

		return runCall(cmd.Context(), cfg, room.ID, cfg.DisplayName)
	},
}

func addCallFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name shown to other participants")
	cmd.Flags().BoolVar(&flagNoAudio, "no-audio", false, "Join without a microphone")
	cmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "Join without a camera")
	cmd.Flags().BoolVar(&flagAnnounceTracks, "announce-tracks", false, "Tell peers when you mute or unmute")
}

// callOptions adds the per-call flags to the persistent ones.
func callOptions(cmd *cobra.Command) config.Options {
	opts := baseOptions(cmd)
	opts.DisplayName = flagName
	if flagNoAudio {
		opts.Audio = lo.ToPtr(false)
	}
	if flagNoVideo {
		opts.Video = lo.ToPtr(false)
	}
	if cmd.Flags().Changed("announce-tracks") {
		opts.AnnounceTracks = lo.ToPtr(flagAnnounceTracks)
	}
	return opts
}

func init() {
	addCallFlags(joinCmd)
	rootCmd.AddCommand(joinCmd)
}
