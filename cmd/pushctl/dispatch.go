package main

import (
	"fmt"

	"github.com/NordCoder/Renewly/internal/bootstrap"
	"github.com/NordCoder/Renewly/internal/repository/postgres"
	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one dispatch and print the summary",
	Long: `Run the expiration dispatcher once, honouring the run lock and the
run deadline, and print the summary as JSON. Suitable for cron.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openDispatcher(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = app.Close() }()

		sum, err := app.Runner.RunOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

var testPushCmd = &cobra.Command{
	Use:   "test-push <user-id>",
	Short: "Send a test notification to every subscription of a seller",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openDispatcher(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = app.Close() }()

		sum, err := app.Runner.SendTest(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("test push: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries <user-id>",
	Short: "List recent push deliveries of a seller",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := postgres.NewDB(cmd.Context(), cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		list, err := postgres.NewDeliveryRepo(db).ListByUser(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-20s %-6s %-7s %-6s %s\n", "SENT", "STATUS", "SUCCESS", "PRUNED", "ENDPOINT")
		for _, d := range list {
			fmt.Fprintf(out, "%-20s %-6d %-7t %-6t %s\n",
				d.SentAt.Format("2006-01-02 15:04:05"), d.Status, d.Success, d.Pruned, d.Endpoint)
		}
		return nil
	},
}

func init() {
	deliveriesCmd.Flags().IntP("limit", "n", 20, "maximum rows")
}

func openDispatcher(cmd *cobra.Command) (*bootstrap.Dispatcher, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := cliLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	return bootstrap.NewDispatcher(cmd.Context(), cfg, log)
}
