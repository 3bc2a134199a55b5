// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/Thermoquad/cobotlink/pkg/session"
	"github.com/Thermoquad/cobotlink/pkg/transport"
	"golang.org/x/term"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("COBOT_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket transport based on settings
func OpenConnection() (cobot.Transport, string, error) {
	c := cfg.Connection

	if c.URL != "" {
		// WebSocket mode
		password := ""
		if c.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		ws, err := transport.DialWebSocket(ctx, c.URL, transport.DialOptions{
			Username:      c.Username,
			Password:      password,
			SkipSSLVerify: c.NoSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}

		return ws, fmt.Sprintf("WebSocket: %s", c.URL), nil
	}

	if c.Port != "" {
		// Serial mode
		port, err := transport.OpenSerial(c.Port, c.Baud)
		if err != nil {
			return nil, "", err
		}
		// Drop whatever the device printed before we attached
		if err := port.ResetInput(); err != nil {
			logger.WithError(err).Warn("failed to flush serial input")
		}

		return port, fmt.Sprintf("Serial: %s @ %d baud", c.Port, c.Baud), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// connOptions builds connection options from the resolved settings
func connOptions(sink cobot.LogSink, recorder cobot.Recorder) cobot.Options {
	return cobot.Options{
		FirmwareVersion: cfg.Protocol.FirmwareVersion,
		AckTimeout:      cfg.Protocol.AckTimeout,
		DoneTimeout:     cfg.Protocol.DoneTimeout,
		Retention:       cfg.Protocol.Retention,
		Logger:          logger.WithField("component", "cobot"),
		Sink:            sink,
		Recorder:        recorder,
	}
}

// openSession opens the configured transport and wraps it in a session
func openSession(sink cobot.LogSink, recorder cobot.Recorder) (*session.Session, string, error) {
	t, info, err := OpenConnection()
	if err != nil {
		return nil, "", err
	}

	s := session.New(connOptions(sink, recorder), nil)
	s.ConnectTransport(t, info)
	return s, info, nil
}

// redial reopens the configured transport without prompting, used for
// reconnects while the TUI owns the terminal. The WebSocket password comes
// from the environment only.
func redial(ctx context.Context) (cobot.Transport, string, error) {
	c := cfg.Connection
	if c.URL != "" {
		ws, err := transport.DialWebSocket(ctx, c.URL, transport.DialOptions{
			Username:      c.Username,
			Password:      os.Getenv("COBOT_PASSWORD"),
			SkipSSLVerify: c.NoSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}
		return ws, fmt.Sprintf("WebSocket: %s", c.URL), nil
	}

	port, err := transport.OpenSerial(c.Port, c.Baud)
	if err != nil {
		return nil, "", err
	}
	return port, fmt.Sprintf("Serial: %s @ %d baud", c.Port, c.Baud), nil
}
