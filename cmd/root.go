package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"barnacle/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	gameFlag    string
	profileFlag string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "barnacle",
	Short: "Manage mod load orders and deploy them as overlay mounts",
	Long: `barnacle keeps a library of imported mods per game, orders them into
named profiles and deploys a profile by mounting its mods as overlay
layers over the game's install directory. The install directory itself
is never modified.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&gameFlag, "game", "g", "", "game to operate on (defaults to the current profile's game)")
	rootCmd.PersistentFlags().StringVarP(&profileFlag, "profile", "p", "", "profile to operate on (defaults to the current profile)")
}

// Execute runs the root command. Interrupts cancel the command's context so
// that in-flight mounts and imports can unwind.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Log.Errorw("Command failed", zap.Error(err))
		logger.Sync()
		stop()
		os.Exit(1)
	}
}
