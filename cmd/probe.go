// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/spf13/cobra"
)

var (
	probeWait    int
	probePassive bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test connection by waiting for a valid COBOT frame",
	Long: `Wait for a valid COBOT frame on the connection until timeout.

Unless --passive is set, a GET_JOINTS request is sent first so an idle
device has something to answer. Invalid bytes are skipped; only a complete
frame passing the CRC check counts.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing connectivity to the arm or a WebSocket bridge.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeWait, "wait", 10, "Seconds to wait for a frame")
	probeCmd.Flags().BoolVar(&probePassive, "passive", false, "Only listen, send nothing")
}

func runProbe(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Cobotlink - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeWait)

	if !probePassive {
		wire, err := cobot.EncodeRequest(cobot.RequestGetJoints, 0, nil)
		if err != nil {
			return err
		}
		if _, err := conn.Write(wire); err != nil {
			fmt.Fprintf(os.Stderr, "Send error: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("Sent GET_JOINTS (id=0)\n")
	}
	fmt.Printf("Waiting for valid COBOT frame...\n\n")

	decoder := cobot.NewDecoder()
	buf := make([]byte, 128)

	// Channel for frame reception
	frameChan := make(chan *cobot.Frame, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			var found *cobot.Frame
			decoder.Decode(buf[:n], func(frame *cobot.Frame, decodeErr error) {
				// Corrupt frames don't count
				if decodeErr == nil && found == nil {
					found = frame
				}
			})
			if found != nil {
				if skipped := decoder.Skipped(); skipped > 0 {
					fmt.Printf("(skipped %d invalid bytes before sync)\n", skipped)
				}
				frameChan <- found
				return
			}
		}
	}()

	// Wait for frame or timeout
	select {
	case frame := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Length: %d bytes\n", frame.Length())
		fmt.Printf("  CRC: 0x%02X\n", frame.CRC())
		fmt.Print(cobot.FormatFrame(frame))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(probeWait) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", probeWait)
		os.Exit(1)
	}

	return nil
}
