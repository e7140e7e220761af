package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/BioHazard786/Warpcall/internal/version"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	flagDomain         string
	flagSecure         bool
	flagEnvFile        string
	flagSTUN           string
	flagTURN           string
	flagTURNUser       string
	flagTURNPass       string
	flagForceRelay     bool
	flagReconnectDelay time.Duration
	flagMaxReconnects  int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpcall",
	Short: "Mesh video calls from the terminal, with a built-in signaling server",
	Long: `Warpcall connects everyone in a room with direct WebRTC links, one per pair
of participants. A small signaling server introduces peers, relays their offers
and answers, and carries the room chat.`,
	Version: version.Version,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagDomain, "domain", "d", "", "Signaling server host (default localhost:8080)")
	pf.BoolVar(&flagSecure, "secure", false, "Use wss/https to reach the server")
	pf.StringVar(&flagEnvFile, "env-file", "", "Load settings from this .env file")
	pf.StringVar(&flagSTUN, "stun", "", "STUN server URL")
	pf.StringVar(&flagTURN, "turn", "", "TURN server host")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	pf.BoolVarP(&flagForceRelay, "force-relay", "r", false, "Route all media through the TURN server")
	pf.DurationVar(&flagReconnectDelay, "reconnect-delay", config.DefaultReconnectDelay, "Wait between signaling reconnect attempts")
	pf.IntVar(&flagMaxReconnects, "max-reconnects", 0, "Give up after this many reconnect attempts (0 retries forever)")
}

// baseOptions turns the persistent flags into config overrides. Flags the
// user did not set leave the environment and defaults alone.
func baseOptions(cmd *cobra.Command) config.Options {
	flags := cmd.Flags()
	opts := config.Options{
		EnvFile:    flagEnvFile,
		Domain:     flagDomain,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
	}
	if flags.Changed("secure") {
		opts.Secure = lo.ToPtr(flagSecure)
	}
	if flags.Changed("force-relay") {
		opts.ForceRelay = lo.ToPtr(flagForceRelay)
	}
	if flags.Changed("reconnect-delay") {
		opts.ReconnectDelay = lo.ToPtr(flagReconnectDelay)
	}
	if flags.Changed("max-reconnects") {
		opts.MaxReconnects = lo.ToPtr(flagMaxReconnects)
	}
	return opts
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
