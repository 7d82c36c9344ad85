package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	redisadapter "github.com/quern-dev/quern/pkg/adapters/redis"
	"github.com/quern-dev/quern/pkg/job"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show Redis server info, queue depths and live workers",
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

		q := app.Queue()
		info, err := redisadapter.Info(ctx, q.Client())
		if err != nil {
			return err
		}
		fmt.Println(info)

		queues := cfg.Worker.Queues
		if len(queues) == 0 {
			queues = []string{job.DefaultQueue}
		}
		for _, queue := range queues {
			depth, err := q.PendingCount(ctx, queue)
			if err != nil {
				return err
			}
			fmt.Printf("queue %s: %d pending\n", queue, depth)
		}

		beats, err := q.Heartbeats(ctx)
		if err != nil {
			return err
		}
		if len(beats) == 0 {
			fmt.Println("no live workers")
			return nil
		}
		ids := make([]string, 0, len(beats))
		for id := range beats {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("worker %s: last seen %s\n", id, beats[id])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
