// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/cobotlink/pkg/capture"
	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/spf13/cobra"
)

var (
	replayDirection string
)

var replayCmd = &cobra.Command{
	Use:   "replay file",
	Short: "Display a recorded capture",
	Long: `Decode and display a capture written by raw_log --capture or
monitor --capture, in recorded order. Frames sent by the host are marked
with ">>" and frames from the device with "<<".

No device connection is needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayDirection, "direction", "both", "Direction to show (rx, tx, both)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	showRX, showTX := true, true
	switch replayDirection {
	case "both":
	case "rx":
		showTX = false
	case "tx":
		showRX = false
	default:
		return fmt.Errorf("invalid direction %q (expected rx, tx or both)", replayDirection)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Printf("Cobotlink - Capture Replay\n")
	fmt.Printf("File: %s\n\n", args[0])

	return replay(capture.NewReader(f), cmd.OutOrStdout(), showRX, showTX)
}

// replay prints every frame of a capture, keeping one decoder per
// direction so interleaved chunks reassemble correctly
func replay(r *capture.Reader, out io.Writer, showRX, showTX bool) error {
	decoders := map[capture.Direction]*cobot.Decoder{
		capture.DirectionRX: cobot.NewDecoder(),
		capture.DirectionTX: cobot.NewDecoder(),
	}
	var frames, corrupt int

	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if (rec.Direction == capture.DirectionRX && !showRX) || (rec.Direction == capture.DirectionTX && !showTX) {
			continue
		}

		decoder, ok := decoders[rec.Direction]
		if !ok {
			continue
		}
		decoder.Decode(rec.Data, func(frame *cobot.Frame, err error) {
			if err != nil {
				corrupt++
				fmt.Fprintf(out, "%s [ERROR] %v\n", arrow(rec.Direction), err)
				return
			}
			frames++
			frame = frame.WithTimestamp(rec.Time)
			if rec.Direction == capture.DirectionTX {
				fmt.Fprint(out, arrow(rec.Direction)+" "+cobot.FormatRequestFrame(frame))
			} else {
				fmt.Fprint(out, arrow(rec.Direction)+" "+cobot.FormatFrame(frame))
			}
		})
	}

	fmt.Fprintf(out, "\n--- %d frames, %d corrupt ---\n", frames, corrupt)
	return nil
}

func arrow(d capture.Direction) string {
	if d == capture.DirectionTX {
		return ">>"
	}
	return "<<"
}
