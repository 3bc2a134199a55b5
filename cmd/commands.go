// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/Thermoquad/cobotlink/pkg/session"
	"github.com/spf13/cobra"
)

const exitCodesHelp = `
Exit codes:
  0 - Command completed
  1 - Device rejected the command or did not respond in time
  2 - Connection error`

var (
	initJoints        string
	initSkipCalibrate bool

	moveJoint   int
	moveAngle   float64
	moveSpeed   float64
	moveTargets []string

	speedEntries []string

	stopJoints    string
	stopImmediate bool

	homeJoints     string
	feedbackJoints string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize and calibrate the arm",
	Long: `Send INIT with the configured firmware version, then CALIBRATE the
selected joints. Each waits for ACK, then DONE.` + exitCodesHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		mask, err := parseJointMask(initJoints)
		if err != nil {
			return err
		}
		return runOnDevice("Initialize", func(ctx context.Context, s *session.Session) error {
			if initSkipCalibrate {
				return s.Initialize(ctx)
			}
			return s.InitializeAndCalibrate(ctx, mask)
		})
	},
}

var jointsCmd = &cobra.Command{
	Use:   "joints",
	Short: "Read joint angles and speeds",
	Long:  `Send GET_JOINTS and print the angle and speed of every joint.` + exitCodesHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnDevice("Read Joints", func(ctx context.Context, s *session.Session) error {
			joints, err := s.Joints(ctx)
			if err != nil {
				return err
			}
			printJoints(joints)
			return nil
		})
	},
}

var moveCmd = &cobra.Command{
	Use:   "move",
	Short: "Move joints to target angles",
	Long: `Send MOVE_TO and wait for the move to finish.

Either move a single joint:
  cobotlink move --joint 2 --angle 45 --speed 10

or several joints in one request:
  cobotlink move --target 0:30 --target 1:-15.5:20

A speed of 0 lets the device pick its default.` + exitCodesHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := collectTargets(cmd.Flags().Changed("joint"))
		if err != nil {
			return err
		}
		return runOnDevice("Move", func(ctx context.Context, s *session.Session) error {
			for _, t := range targets {
				fmt.Printf("  Joint %d -> %.3f° @ %.3f°/s\n", t.Joint, t.Angle, t.Speed)
			}
			return s.MoveAllJoints(ctx, targets)
		})
	},
}

var speedCmd = &cobra.Command{
	Use:   "speed joint:speed...",
	Short: "Drive joints at constant speeds",
	Long: `Send MOVE_SPEED for one or more joints, e.g.:
  cobotlink speed 0:5 3:-2.5` + exitCodesHelp,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		speeds := make([]cobot.JointSpeed, 0, len(args))
		for _, a := range args {
			sp, err := parseSpeed(a)
			if err != nil {
				return err
			}
			speeds = append(speeds, sp)
		}
		return runOnDevice("Move Speed", func(ctx context.Context, s *session.Session) error {
			return s.MoveSpeed(ctx, speeds)
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop joints",
	Long:  `Send STOP for the selected joints, decelerating unless --immediate is set.` + exitCodesHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		mask, err := parseJointMask(stopJoints)
		if err != nil {
			return err
		}
		return runOnDevice("Stop", func(ctx context.Context, s *session.Session) error {
			if mask == cobot.AllJoints {
				return s.StopAll(ctx, !stopImmediate)
			}
			return s.Stop(ctx, mask, stopImmediate)
		})
	},
}

var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "Return joints to their home position",
	Long:  `Send GO_HOME for the selected joints and wait for the move to finish.` + exitCodesHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		mask, err := parseJointMask(homeJoints)
		if err != nil {
			return err
		}
		return runOnDevice("Go Home", func(ctx context.Context, s *session.Session) error {
			return s.GoHome(ctx, mask)
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the device",
	Long:  `Send RESET. The device must be initialized again afterwards.` + exitCodesHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnDevice("Reset", func(ctx context.Context, s *session.Session) error {
			return s.Reset(ctx)
		})
	},
}

var logLevelCmd = &cobra.Command{
	Use:   "log_level level",
	Short: "Set the device log level",
	Long:  `Send SET_LOG_LEVEL. Levels: debug, info, warn, error, none.` + exitCodesHelp,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(args[0])
		if err != nil {
			return err
		}
		return runOnDevice("Set Log Level", func(ctx context.Context, s *session.Session) error {
			return s.SetLogLevel(ctx, level)
		})
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Enable joint feedback",
	Long:  `Send SET_FEEDBACK for the selected joints.` + exitCodesHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		mask, err := parseJointMask(feedbackJoints)
		if err != nil {
			return err
		}
		return runOnDevice("Set Feedback", func(ctx context.Context, s *session.Session) error {
			return s.SetFeedback(ctx, mask)
		})
	},
}

func init() {
	rootCmd.AddCommand(initCmd, jointsCmd, moveCmd, speedCmd, stopCmd, homeCmd, resetCmd, logLevelCmd, feedbackCmd)

	initCmd.Flags().StringVar(&initJoints, "joints", "all", "Joints to calibrate (comma separated or \"all\")")
	initCmd.Flags().BoolVar(&initSkipCalibrate, "skip-calibrate", false, "Only send INIT")

	moveCmd.Flags().IntVar(&moveJoint, "joint", 0, "Joint to move")
	moveCmd.Flags().Float64Var(&moveAngle, "angle", 0, "Target angle in degrees")
	moveCmd.Flags().Float64Var(&moveSpeed, "speed", 0, "Speed in degrees/second (0 = device default)")
	moveCmd.Flags().StringArrayVar(&moveTargets, "target", nil, "Target as joint:angle[:speed] (repeatable)")

	stopCmd.Flags().StringVar(&stopJoints, "joints", "all", "Joints to stop (comma separated or \"all\")")
	stopCmd.Flags().BoolVar(&stopImmediate, "immediate", false, "Stop without decelerating")

	homeCmd.Flags().StringVar(&homeJoints, "joints", "all", "Joints to home (comma separated or \"all\")")
	feedbackCmd.Flags().StringVar(&feedbackJoints, "joints", "all", "Joints to report (comma separated or \"all\")")
}

// collectTargets merges --joint/--angle with any --target entries
func collectTargets(singleJoint bool) ([]cobot.JointTarget, error) {
	targets := make([]cobot.JointTarget, 0, len(moveTargets)+1)

	if singleJoint {
		j, err := parseJoint(fmt.Sprint(moveJoint))
		if err != nil {
			return nil, err
		}
		targets = append(targets, cobot.JointTarget{Joint: j, Angle: moveAngle, Speed: moveSpeed})
	}
	for _, t := range moveTargets {
		target, err := parseTarget(t, moveSpeed)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("nothing to move: use --joint/--angle or --target")
	}
	return targets, nil
}

// runOnDevice connects, runs fn and prints its outcome. It exits with
// code 1 when fn fails and 2 when the connection cannot be opened.
func runOnDevice(title string, fn func(ctx context.Context, s *session.Session) error) error {
	s, connInfo, err := openSession(nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Cobotlink - %s\n", title)
	fmt.Printf("Connection: %s\n\n", connInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = fn(ctx, s)
	s.Disconnect()

	fmt.Printf("Result: %s\n", session.Describe(err))
	if err != nil {
		os.Exit(1)
	}
	return nil
}

func printJoints(joints []cobot.JointSample) {
	fmt.Printf("%-6s %12s %14s\n", "Joint", "Angle (°)", "Speed (°/s)")
	for i, j := range joints {
		fmt.Printf("%-6d %12.3f %14.3f\n", i, j.Angle, j.Speed)
	}
}
