// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Cobotlink - COBOT Robotic Arm Host Tool
//
// A CLI tool for commanding, monitoring and debugging a COBOT robotic arm
// over its serial protocol.

package main

import (
	"os"

	"github.com/Thermoquad/cobotlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
