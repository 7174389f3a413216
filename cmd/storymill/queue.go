package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/storymill/storymill/internal/queue"
)

var queueContinuous bool

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Run batches of generation requests from a plan file",
}

var queueRunCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Process every item in a plan file",
	Long: `Load a plan file, enqueue its items, and process them one at a time
until every item has completed or errored. Continuous items keep appending
chapters to their project until the run is interrupted.

Example plan file:

  defaults:
    language: en
    chapters: 5
  entries:
    - topic: the silk road
    - topic: deep sea vents
      chapters: 3
      repeat: 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		plan, err := queue.LoadPlan(args[0])
		if err != nil {
			return err
		}
		items, err := plan.BuildItems()
		if err != nil {
			return err
		}

		services, err := buildServices(logger)
		if err != nil {
			return err
		}

		cfg := services.ConfigMgr.Get()
		if queueContinuous || cfg.Queue.ContinuousChapters {
			for _, item := range items {
				item.Continuous = true
			}
		}

		go services.Hub.Run(ctx)
		services.Queue.Enqueue(items...)
		logger.Info("plan loaded", "file", args[0], "items", len(items))

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		done := make(chan struct{})
		go func() {
			services.Queue.Run(runCtx)
			close(done)
		}()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("interrupted, stopping queue")
				<-done
				return nil
			case <-ticker.C:
				if !allItemsFinished(services.Queue, items) {
					continue
				}
				cancel()
				<-done
				return reportItems(services.Queue, items)
			}
		}
	},
}

func allItemsFinished(q *queue.Scheduler, items []*queue.Item) bool {
	for _, item := range items {
		status, ok := q.ItemStatus(item.ID)
		if !ok {
			continue
		}
		if status != queue.ItemCompleted && status != queue.ItemError {
			return false
		}
	}
	return true
}

func reportItems(q *queue.Scheduler, items []*queue.Item) error {
	failed := 0
	for _, item := range items {
		if status, _ := q.ItemStatus(item.ID); status == queue.ItemError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d plan items failed", failed, len(items))
	}
	return nil
}

var queuePlanCmd = &cobra.Command{
	Use:   "plan <file>",
	Short: "Write an example plan file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan := &queue.Plan{
			Defaults: queue.PlanDefaults{Language: "en", Chapters: 5},
			Entries: []queue.PlanEntry{
				{Topic: "the silk road"},
				{Topic: "deep sea vents", Chapters: 3},
			},
		}
		if err := queue.SavePlan(args[0], plan); err != nil {
			return err
		}
		fmt.Printf("Wrote example plan to %s\n", args[0])
		return nil
	},
}

func init() {
	queueRunCmd.Flags().BoolVar(&queueContinuous, "continuous", false, "keep appending chapters until interrupted")

	queueCmd.AddCommand(queueRunCmd)
	queueCmd.AddCommand(queuePlanCmd)
	rootCmd.AddCommand(queueCmd)
}
