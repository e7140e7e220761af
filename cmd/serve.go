package cmd

import (
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/server"
	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/spf13/cobra"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling and room server",
	Long: `Run the server that creates rooms, introduces participants and relays
their offers, answers, ICE candidates and chat.

Examples:
  warpcall serve
  warpcall serve --listen :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := baseOptions(cmd)
		opts.ListenAddr = flagListen
		cfg, err := LoadConfig(opts)
		if err != nil {
			return err
		}

		ui.PrintSuccessf("Signaling server listening on %s", cfg.ListenAddr)
		return server.New(slog.Default(), cfg.ListenAddr).ListenAndServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Address to listen on (default :8080)")
	rootCmd.AddCommand(serveCmd)
}
