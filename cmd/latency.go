// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/session"
	"github.com/Thermoquad/cobotlink/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	latencyCount    int
	latencyInterval time.Duration
)

var latencyCmd = &cobra.Command{
	Use:   "latency",
	Short: "Measure request round-trip time",
	Long: `Send GET_JOINTS repeatedly and report the time until the JOINTS response.

Over WebSocket, a WebSocket ping is sent before each request as well, so
bridge latency can be told apart from device latency.

This is useful for verifying:
  - The device answers requests
  - Responses are correlated to the right command
  - The link is fast enough for the configured timeouts

Exit codes:
  0 - All requests answered
  1 - One or more requests failed/timed out
  2 - Connection error`,
	RunE: runLatency,
}

func init() {
	rootCmd.AddCommand(latencyCmd)
	latencyCmd.Flags().IntVar(&latencyCount, "count", 5, "Number of requests to send")
	latencyCmd.Flags().DurationVar(&latencyInterval, "interval", 200*time.Millisecond, "Delay between requests")
}

func runLatency(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	ws, _ := conn.(*transport.WebSocket)

	s := session.New(connOptions(nil, nil), nil)
	s.ConnectTransport(conn, connInfo)
	defer s.Disconnect()

	fmt.Printf("Cobotlink - Latency Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %v per request\n", cfg.Protocol.AckTimeout)
	fmt.Printf("Count: %d requests\n\n", latencyCount)

	ctx := context.Background()
	successCount := 0
	failCount := 0
	var total, minRTT, maxRTT time.Duration

	for i := 1; i <= latencyCount; i++ {
		fmt.Printf("Request %d/%d: ", i, latencyCount)

		if ws != nil {
			pong, err := ws.Ping(cfg.Protocol.AckTimeout)
			if err != nil {
				fmt.Printf("ws ping failed (%v), ", err)
			} else {
				fmt.Printf("ws rtt=%v, ", pong.Round(time.Microsecond))
			}
		}

		start := time.Now()
		joints, err := s.Joints(ctx)
		rtt := time.Since(start)

		if err != nil {
			fmt.Printf("FAILED: %s\n", session.Describe(err))
			failCount++
		} else {
			fmt.Printf("%d joints, rtt=%v\n", len(joints), rtt.Round(time.Microsecond))
			successCount++
			total += rtt
			if minRTT == 0 || rtt < minRTT {
				minRTT = rtt
			}
			if rtt > maxRTT {
				maxRTT = rtt
			}
		}

		// Small delay between requests
		if i < latencyCount {
			time.Sleep(latencyInterval)
		}
	}

	// Summary
	fmt.Printf("\n--- Latency statistics ---\n")
	fmt.Printf("%d requests sent, %d responses received, %.0f%% loss\n",
		latencyCount, successCount, float64(failCount)/float64(max(latencyCount, 1))*100)
	if successCount > 0 {
		avg := total / time.Duration(successCount)
		fmt.Printf("rtt min/avg/max = %v/%v/%v\n",
			minRTT.Round(time.Microsecond), avg.Round(time.Microsecond), maxRTT.Round(time.Microsecond))
	}

	if failCount > 0 {
		s.Disconnect()
		os.Exit(1)
	}
	return nil
}
