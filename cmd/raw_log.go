// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/capture"
	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/Thermoquad/cobotlink/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	rawLogCapture string
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display COBOT frames as they arrive.

Shows each frame with timestamp, kind, command ID and decoded payload.
Device log lines, responses and corrupt frames are all printed; nothing is
sent to the device.

With --capture, the raw byte stream is also recorded to a file that the
replay command can display later.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogCapture, "capture", "", "Record received bytes to this file")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	var source cobot.Transport = conn
	if rawLogCapture != "" {
		f, err := os.Create(rawLogCapture)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()

		w := capture.NewWriter(f)
		tee := capture.NewTee(conn, w)
		tee.OnError = func(err error) {
			logger.WithError(err).Warn("capture write failed")
		}
		source = tee
		defer func() {
			logger.WithField("records", w.Count()).Info("capture closed")
		}()
	}

	fmt.Printf("Cobotlink - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if rawLogCapture != "" {
		fmt.Printf("Capture: %s\n", rawLogCapture)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Short reads so Ctrl+C is noticed promptly
	if err := source.SetReadTimeout(100 * time.Millisecond); err != nil {
		return err
	}

	decoder := cobot.NewDecoder()
	buf := make([]byte, 128)

	for ctx.Err() == nil {
		n, err := source.Read(buf)
		if err != nil {
			// A closed WebSocket does not come back; exit gracefully
			if errors.Is(err, transport.ErrConnectionClosed) {
				logger.Info("connection closed")
				return nil
			}
			logger.WithError(err).Error("read error")
			continue
		}

		show := func(frame *cobot.Frame, err error) {
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				return
			}
			fmt.Print(cobot.FormatFrame(frame))
		}
		if n == 0 {
			// A quiet line ends any partial frame
			decoder.Flush(show)
			continue
		}
		decoder.Decode(buf[:n], show)
	}

	return nil
}
