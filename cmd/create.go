package cmd

import (
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/api"
	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/spf13/cobra"
)

var flagNoJoin bool

var createCmd = &cobra.Command{
	Use:     "create [room-name]",
	Aliases: []string{"c"},
	Short:   "Create a call room and join it",
	Long: `Create a new call room on the server, print its link and join it.

Examples:
  warpcall create
  warpcall create "Standup" --name Alice
  warpcall create --no-join`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(callOptions(cmd))
		if err != nil {
			return err
		}

		var name string
		if len(args) == 1 {
			name = args[0]
		}

		rooms := api.NewClient(slog.Default(), cfg.APIURL())
		s := ui.NewConnectionSpinner("Creating room...")
		s.Start()
		room, err := rooms.CreateRoom(cmd.Context(), name)
		if err != nil {
			s.Error("Could not create room")
			return err
		}
		s.Success("Room created")

		ui.RenderRoomInfo(ui.RoomInfo{
			RoomID:   room.ID,
			RoomName: room.Name,
			RoomLink: cfg.GetRoomLink(room.ID),
		})

		if flagNoJoin {
			return nil
		}
		return runCall(cmd.Context(), cfg, room.ID, cfg.DisplayName)
	},
}

func init() {
	addCallFlags(createCmd)
	createCmd.Flags().BoolVar(&flagNoJoin, "no-join", false, "Only create the room and print its link")
	rootCmd.AddCommand(createCmd)
}
