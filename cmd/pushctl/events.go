package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Renewly/internal/domain/notification"
	kafkax "github.com/NordCoder/Renewly/internal/repository/kafka"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Manage the delivery event stream",
}

var eventsInitTopicCmd = &cobra.Command{
	Use:   "init-topic",
	Short: "Create the delivery events topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		partitions, _ := cmd.Flags().GetInt("partitions")
		rf, _ := cmd.Flags().GetInt("replication-factor")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := cliLogger(cmd, cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		err = kafkax.EnsureTopic(ctx, cfg.Events.Brokers, kafkax.TopicSpec{
			Name:              cfg.Events.Topic,
			NumPartitions:     partitions,
			ReplicationFactor: rf,
		}, log)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "topic %q ready\n", cfg.Events.Topic)
		return nil
	},
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print delivery events as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		group, _ := cmd.Flags().GetString("group")
		fromBeginning, _ := cmd.Flags().GetBool("from-beginning")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := cliLogger(cmd, cfg)
		if err != nil {
			return err
		}

		c := kafkax.NewConsumer(&kafkax.ConsumerConfig{
			Brokers:       cfg.Events.Brokers,
			GroupID:       group,
			Topic:         cfg.Events.Topic,
			FromBeginning: fromBeginning,
			Logger:        log,
		})
		defer c.Close()

		out := cmd.OutOrStdout()
		err = c.Consume(cmd.Context(), kafkax.JSONHandler(func(_ context.Context, _ []byte, ev *notification.DeliveryEvent) error {
			return printJSON(out, ev)
		}))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	eventsInitTopicCmd.Flags().Int("partitions", 3, "number of partitions")
	eventsInitTopicCmd.Flags().Int("replication-factor", 1, "replication factor")
	eventsTailCmd.Flags().String("group", "pushctl-tail", "consumer group")
	eventsTailCmd.Flags().Bool("from-beginning", false, "start from the oldest event")

	eventsCmd.AddCommand(eventsInitTopicCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
