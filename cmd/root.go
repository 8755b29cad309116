package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "speedrun",
	Short: "Cross-chain intent solver, relayer and tooling",
	Long: `speedrun runs the parts of a cross-chain intent bridge: a solver that bids on
intents and delivers funds on the destination chain, a relayer that verifies
deliveries and settles escrows, and tooling to create intents and manage their
private recipient lists.

Examples:
  speedrun solver
  speedrun relayer
  speedrun intent create --from horizen-testnet --to base-sepolia --amount 100 --expected 95 --reward 5
  speedrun recipients store 42 --chain base-sepolia 0xabc...:60 0xdef...:35
  speedrun devnet`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(cmd *cobra.Command, cfg config.LoggerConfig) *logger.StdLogger {
	level := cfg.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = logger.DebugLevel
	}
	return logger.NewStdLogger(cfg.Coloring, level)
}

func jsonOutput(cmd *cobra.Command) bool {
	out, _ := cmd.Flags().GetBool("json")
	return out
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printError(err error) {
	color.Red("\nError: %v\n", err)
}

func printSuccess(format string, args ...interface{}) {
	color.Green("\n"+format+"\n", args...)
}
