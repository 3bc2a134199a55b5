// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ============================================================
// Helpers
// ============================================================

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestRedis(t *testing.T, opts Options) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	opts.Addr = mr.Addr()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	r, err := NewRedis(ctx, opts, quietLogger())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func snapshotAt(sec int, angle float64) Snapshot {
	at := time.Date(2025, 6, 1, 8, 0, sec, 0, time.UTC)
	return NewSnapshot("test", at, []cobot.JointSample{{Angle: angle}})
}

// ============================================================
// Snapshot Tests
// ============================================================

func TestNewSnapshot_JSON(t *testing.T) {
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	snap := NewSnapshot("/dev/ttyUSB0", at, []cobot.JointSample{{Angle: 1, Speed: 0}, {Angle: -2.5, Speed: 0.5}})

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"device":"/dev/ttyUSB0","timestamp":"2025-06-01T08:00:00Z","joints":[{"id":0,"angle":1,"speed":0},{"id":1,"angle":-2.5,"speed":0.5}]}`
	if string(data) != want {
		t.Errorf("JSON = %s\nwant   %s", data, want)
	}
}

// ============================================================
// Publisher Tests
// ============================================================

func TestNewRedis_Unreachable(t *testing.T) {
	// Reserve a port, then close it so nothing is listening
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err = NewRedis(ctx, Options{Addr: addr, Channel: "cobot_joints"}, quietLogger())
	if err == nil || !strings.Contains(err.Error(), "failed to connect to redis") {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestPublishJoints_Channel(t *testing.T) {
	r, mr := newTestRedis(t, Options{Channel: "cobot_joints", ListKey: "cobot:joints"})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	sub := client.Subscribe(ctx, "cobot_joints")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	snap := snapshotAt(0, 12.5)
	if err := r.PublishJoints(ctx, snap); err != nil {
		t.Fatalf("PublishJoints: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("payload is not a snapshot: %v", err)
	}
	if got.Device != "test" || len(got.Joints) != 1 || got.Joints[0].Angle != 12.5 {
		t.Errorf("received %+v", got)
	}
}

func TestPublishJoints_CappedHistory(t *testing.T) {
	r, mr := newTestRedis(t, Options{Channel: "cobot_joints", ListKey: "cobot:joints", ListSize: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := r.PublishJoints(ctx, snapshotAt(i, float64(i))); err != nil {
			t.Fatalf("PublishJoints %d: %v", i, err)
		}
	}

	items, err := mr.List("cobot:joints")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("history holds %d entries, want 3", len(items))
	}

	snaps, err := r.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("Recent returned %d snapshots, want 3", len(snaps))
	}
	// Newest first
	for i, want := range []float64{4, 3, 2} {
		if snaps[i].Joints[0].Angle != want {
			t.Errorf("snapshot %d angle = %v, want %v", i, snaps[i].Joints[0].Angle, want)
		}
	}
}

func TestRecent(t *testing.T) {
	r, mr := newTestRedis(t, Options{Channel: "cobot_joints", ListKey: "cobot:joints"})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := r.PublishJoints(ctx, snapshotAt(i, float64(i))); err != nil {
			t.Fatalf("PublishJoints %d: %v", i, err)
		}
	}

	tests := []struct {
		name string
		n    int64
		want int
	}{
		{"fewer than stored", 2, 2},
		{"more than stored", 10, 4},
		{"zero", 0, 0},
		{"negative", -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps, err := r.Recent(ctx, tt.n)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(snaps) != tt.want {
				t.Errorf("Recent(%d) returned %d snapshots, want %d", tt.n, len(snaps), tt.want)
			}
		})
	}

	t.Run("skips malformed entries", func(t *testing.T) {
		if _, err := mr.Lpush("cobot:joints", "not json"); err != nil {
			t.Fatalf("Lpush: %v", err)
		}
		snaps, err := r.Recent(ctx, 2)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(snaps) != 1 || snaps[0].Joints[0].Angle != 3 {
			t.Errorf("Recent = %+v, want only the newest valid snapshot", snaps)
		}
	})
}

func TestPublishJoints_NoHistory(t *testing.T) {
	r, mr := newTestRedis(t, Options{Channel: "cobot_joints"})
	ctx := context.Background()

	if err := r.PublishJoints(ctx, snapshotAt(0, 1)); err != nil {
		t.Fatalf("PublishJoints: %v", err)
	}
	if mr.Exists("cobot:joints") {
		t.Error("history list written with no list key configured")
	}
	snaps, err := r.Recent(ctx, 5)
	if err != nil || snaps != nil {
		t.Errorf("Recent = %v, %v; want nil, nil", snaps, err)
	}
}
