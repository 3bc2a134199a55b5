// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/publish"
	"github.com/spf13/cobra"
)

var (
	historyCount int64
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show joint snapshots published to Redis",
	Long: `Read the most recent joint snapshots that monitor --publish stored in
the Redis history list, newest first. Uses the redis section of the config.

No device connection is needed.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int64VarP(&historyCount, "count", "n", 10, "Number of snapshots to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pub, err := publish.NewRedis(ctx, redisOptions(), logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	snaps, err := pub.Recent(ctx, historyCount)
	if err != nil {
		return err
	}

	if len(snaps) == 0 {
		fmt.Printf("No snapshots in %s\n", cfg.Redis.ListKey)
		return nil
	}

	for _, snap := range snaps {
		fmt.Printf("[%s] %s\n", snap.Timestamp.Local().Format("2006-01-02 15:04:05.000"), snap.Device)
		for _, j := range snap.Joints {
			fmt.Printf("  Joint %d: %.3f° @ %.3f°/s\n", j.ID, j.Angle, j.Speed)
		}
	}
	return nil
}

// redisOptions maps the redis config section to publisher options
func redisOptions() publish.Options {
	r := cfg.Redis
	return publish.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		Channel:  r.Channel,
		ListKey:  r.ListKey,
		ListSize: r.ListSize,
	}
}
