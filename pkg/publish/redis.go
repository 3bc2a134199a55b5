// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish pushes joint-state snapshots to Redis.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Joint is one joint in a snapshot
type Joint struct {
	ID    int     `json:"id"`
	Angle float64 `json:"angle"`
	Speed float64 `json:"speed"`
}

// Snapshot is the published joint state
type Snapshot struct {
	Device    string    `json:"device"`
	Timestamp time.Time `json:"timestamp"`
	Joints    []Joint   `json:"joints"`
}

// NewSnapshot builds a snapshot from decoded joint samples
func NewSnapshot(device string, at time.Time, samples []cobot.JointSample) Snapshot {
	joints := make([]Joint, len(samples))
	for i, s := range samples {
		joints[i] = Joint{ID: i, Angle: s.Angle, Speed: s.Speed}
	}
	return Snapshot{Device: device, Timestamp: at, Joints: joints}
}

// Options configures the Redis publisher
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	ListKey  string // capped history list, disabled when empty
	ListSize int64
}

// Redis publishes snapshots on a pub/sub channel and keeps a capped list
// of the most recent ones.
type Redis struct {
	client   *redis.Client
	channel  string
	listKey  string
	listSize int64
	log      logrus.FieldLogger
}

// NewRedis connects and pings the server
func NewRedis(ctx context.Context, opts Options, log logrus.FieldLogger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	log.WithField("addr", opts.Addr).Info("connected to redis")

	if opts.ListSize <= 0 {
		opts.ListSize = 1000
	}
	return &Redis{
		client:   client,
		channel:  opts.Channel,
		listKey:  opts.ListKey,
		listSize: opts.ListSize,
		log:      log,
	}, nil
}

// PublishJoints publishes snap as JSON and appends it to the history list
func (r *Redis) PublishJoints(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Publish(ctx, r.channel, data)
	if r.listKey != "" {
		pipe.LPush(ctx, r.listKey, data)
		pipe.LTrim(ctx, r.listKey, 0, r.listSize-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Recent returns up to n snapshots from the history list, newest first.
// n <= 0 returns nothing.
func (r *Redis) Recent(ctx context.Context, n int64) ([]Snapshot, error) {
	if r.listKey == "" || n <= 0 {
		return nil, nil
	}
	items, err := r.client.LRange(ctx, r.listKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	snaps := make([]Snapshot, 0, len(items))
	for _, item := range items {
		var snap Snapshot
		if err := json.Unmarshal([]byte(item), &snap); err != nil {
			r.log.WithError(err).Warn("skipping malformed snapshot in history")
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Close closes the client
func (r *Redis) Close() error {
	return r.client.Close()
}
