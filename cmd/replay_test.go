// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/capture"
	"github.com/Thermoquad/cobotlink/pkg/cobot"
)

// ============================================================
// Replay Tests
// ============================================================

func buildCapture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := capture.NewWriter(&buf)
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	req, _ := cobot.EncodeRequest(cobot.RequestReset, 7, nil)
	ack, _ := cobot.EncodeFrame(cobot.EncodeResponseBody(cobot.ResponseAck, 7, nil))
	log, _ := cobot.EncodeFrame(cobot.EncodeLogBody(cobot.LogInfo, "resetting"))
	bad := append([]byte(nil), ack...)
	bad[len(bad)-1] ^= 0xFF

	records := []capture.Record{
		{Time: at, Direction: capture.DirectionTX, Data: req},
		{Time: at.Add(time.Millisecond), Direction: capture.DirectionRX, Data: log[:4]},
		{Time: at.Add(2 * time.Millisecond), Direction: capture.DirectionRX, Data: append(log[4:], ack...)},
		{Time: at.Add(3 * time.Millisecond), Direction: capture.DirectionRX, Data: bad},
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	return &buf
}

func TestReplay_BothDirections(t *testing.T) {
	var out bytes.Buffer
	if err := replay(capture.NewReader(buildCapture(t)), &out, true, true); err != nil {
		t.Fatalf("replay error: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		">> [",
		"RESET (0x09) id=7",
		"<< [",
		"LOG INFO: resetting",
		"ACK (0x00) id=7",
		"<< [ERROR] CRC mismatch",
		"--- 3 frames, 1 corrupt ---",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	// Request precedes the responses it caused
	if strings.Index(text, "RESET") > strings.Index(text, "ACK") {
		t.Errorf("frames out of order:\n%s", text)
	}
}

func TestReplay_DirectionFilter(t *testing.T) {
	var out bytes.Buffer
	if err := replay(capture.NewReader(buildCapture(t)), &out, false, true); err != nil {
		t.Fatalf("replay error: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "RESET") || strings.Contains(text, "LOG") {
		t.Errorf("tx-only output:\n%s", text)
	}
	if !strings.Contains(text, "--- 1 frames, 0 corrupt ---") {
		t.Errorf("tx-only summary:\n%s", text)
	}
}
