// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/capture"
	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/Thermoquad/cobotlink/pkg/metrics"
	"github.com/Thermoquad/cobotlink/pkg/publish"
	"github.com/Thermoquad/cobotlink/pkg/session"
	"github.com/spf13/cobra"
)

var (
	monitorInterval      time.Duration
	monitorStatsInterval int
	monitorPublish       bool
	monitorMetrics       bool
	monitorMetricsAddr   string
	monitorCapture       string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll joint state and track link statistics",
	Long: `Read the joints at a fixed interval and print them, with periodic link
statistics summaries (frames, CRC errors, unknown frames, timeouts).

Device log lines arriving between polls are forwarded to the local log.

Optional outputs:
  --metrics   Serve Prometheus metrics on --metrics-addr (/metrics, /health)
  --publish   Publish each joint snapshot to Redis (pub/sub + capped history)
  --capture   Record all traffic for the replay command

Redis and metrics settings come from the config file; these flags enable them.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", time.Second, "Joint poll interval")
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&monitorPublish, "publish", false, "Publish joint snapshots to Redis")
	monitorCmd.Flags().BoolVar(&monitorMetrics, "metrics", false, "Serve Prometheus metrics")
	monitorCmd.Flags().StringVar(&monitorMetricsAddr, "metrics-addr", "", "Metrics listen address (default from config)")
	monitorCmd.Flags().StringVar(&monitorCapture, "capture", "", "Record traffic to this file")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("publish") {
		cfg.Redis.Enabled = monitorPublish
	}
	if cmd.Flags().Changed("metrics") {
		cfg.Metrics.Enabled = monitorMetrics
	}
	if monitorMetricsAddr != "" {
		cfg.Metrics.Addr = monitorMetricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := cobot.NewStatistics()
	recorders := []cobot.Recorder{stats}

	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.New()
		recorders = append(recorders, prom)
		go func() {
			if err := prom.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.WithError(err).Error("metrics server failed")
			}
		}()
	}

	var pub *publish.Redis
	if cfg.Redis.Enabled {
		var err error
		pub, err = publish.NewRedis(ctx, redisOptions(), logger)
		if err != nil {
			return err
		}
		defer pub.Close()
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	var t cobot.Transport = conn
	if monitorCapture != "" {
		f, err := os.Create(monitorCapture)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		tee := capture.NewTee(conn, capture.NewWriter(f))
		tee.OnError = func(err error) {
			logger.WithError(err).Warn("capture write failed")
		}
		t = tee
	}

	s := session.New(connOptions(nil, cobot.MultiRecorder(recorders...)), nil)
	s.ConnectTransport(t, connInfo)
	defer s.Disconnect()

	fmt.Printf("Cobotlink - Joint Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Poll interval: %v, statistics every %ds\n", monitorInterval, monitorStatsInterval)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	poll := time.NewTicker(monitorInterval)
	defer poll.Stop()
	statsTicker := time.NewTicker(time.Duration(monitorStatsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			printMonitorStatistics(stats)
			return nil

		case <-statsTicker.C:
			printMonitorStatistics(stats)

		case <-poll.C:
			joints, err := s.Joints(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				timestamp := time.Now().Format("15:04:05.000")
				fmt.Printf("[%s] \033[1;31mPOLL FAILED:\033[0m %s\n", timestamp, session.Describe(err))
				continue
			}
			printJointLine(joints)

			if prom != nil {
				prom.ObserveJoints(joints)
			}
			if pub != nil {
				snap := publish.NewSnapshot(connInfo, time.Now(), joints)
				if err := pub.PublishJoints(ctx, snap); err != nil {
					logger.WithError(err).Warn("publish failed")
				}
			}
		}
	}
}

// printJointLine prints one poll result on a single line
func printJointLine(joints []cobot.JointSample) {
	timestamp := time.Now().Format("15:04:05.000")
	line := fmt.Sprintf("[%s]", timestamp)
	for i, j := range joints {
		line += fmt.Sprintf(" J%d=%.2f°", i, j.Angle)
		if j.Speed != 0 {
			line += fmt.Sprintf("(%.2f°/s)", j.Speed)
		}
	}
	fmt.Println(line)
}

// printMonitorStatistics prints a statistics summary
func printMonitorStatistics(stats *cobot.Statistics) {
	stats.CalculateRates()
	snap := stats.Snapshot()

	fmt.Printf("\n========================================\n")
	fmt.Printf("Statistics (uptime %s)\n", formatDuration(time.Since(snap.StartTime)))
	fmt.Printf("========================================\n")
	fmt.Printf("Requests sent:    %d\n", snap.RequestsSent)
	fmt.Printf("Frames received:  %d (%.1f/s, %d bytes)\n", snap.TotalFrames, snap.FrameRate, snap.BytesReceived)
	fmt.Printf("CRC errors:       %d\n", snap.CRCErrors)
	fmt.Printf("Unknown frames:   %d\n", snap.UnknownFrames)
	fmt.Printf("Device log lines: %d\n", snap.LogLines)
	fmt.Printf("Responses:        %d (%d errors, %d pruned)\n", snap.Responses, snap.ErrorResponses, snap.PrunedResponses)
	fmt.Printf("Timeouts:         ack=%d done=%d response=%d\n", snap.AckTimeouts, snap.DoneTimeouts, snap.ResponseTimeouts)
	fmt.Printf("Success rate:     %.2f%%\n", stats.SuccessRate())
	fmt.Printf("========================================\n\n")
}
