package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/NordCoder/Renewly/internal/bootstrap"
	config "github.com/NordCoder/Renewly/internal/config/dispatcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pushctl",
	Short: "Operate the Renewly push dispatcher",
	Long: `pushctl manages VAPID keys, triggers one-shot dispatch runs and
inspects push deliveries using the same configuration as the dispatcher.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default $CONFIG_PATH or config/dispatcher.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "log at debug level to stderr")

	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(testPushCmd)
	rootCmd.AddCommand(deliveriesCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(tokenCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config/dispatcher.yaml"
	}
	return config.Load(path)
}

// cliLogger keeps stdout clean for command output.
func cliLogger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	lc := *cfg
	lc.Log.Pretty = true
	lc.Log.Level = "warn"
	if verbose {
		lc.Log.Level = "debug"
	}
	return bootstrap.Logger(&lc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
