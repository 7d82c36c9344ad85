package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quern-dev/quern/pkg/ports"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <function>",
	Short: "Enqueue a job from the command line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		app, err := newApp(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.Connect(ctx); err != nil {
			return err
		}
		defer app.Disconnect()

		rawArgs, _ := cmd.Flags().GetString("args")
		var jobArgs map[string]any
		if rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &jobArgs); err != nil {
				return fmt.Errorf("invalid --args JSON: %w", err)
			}
		}

		jobID, _ := cmd.Flags().GetString("job-id")
		queue, _ := cmd.Flags().GetString("queue")
		deferBy, _ := cmd.Flags().GetDuration("defer-by")

		id, err := app.Queue().Enqueue(ctx, ports.EnqueueRequest{
			JobID:    jobID,
			Queue:    queue,
			Function: args[0],
			Args:     jobArgs,
			DeferBy:  deferBy,
		})
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().String("args", "", "Job arguments as a JSON object")
	enqueueCmd.Flags().String("job-id", "", "Pin the job id (enforces uniqueness)")
	enqueueCmd.Flags().StringP("queue", "Q", "", "Target queue")
	enqueueCmd.Flags().Duration("defer-by", 0, "Delay before the job becomes due")
}
