// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides byte-stream transports for the COBOT link.
//
// Every transport satisfies cobot.Transport: reads honor a per-call timeout
// and report an expired timeout as (0, nil) rather than an error.
package transport
