// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cobot

import (
	"fmt"
	"sync"
	"time"
)

// Recorder observes protocol events on a connection
type Recorder interface {
	RequestSent(kind RequestKind)
	FrameReceived(length int)
	CorruptFrame()
	UnknownFrame()
	LogReceived(level LogLevel)
	ResponseBuffered(kind ResponseKind)
	ResponsesPruned(n int)
	WaitTimedOut(stage string)
}

// MultiRecorder fans events out to several recorders
func MultiRecorder(recorders ...Recorder) Recorder {
	return multiRecorder(recorders)
}

type multiRecorder []Recorder

func (m multiRecorder) RequestSent(kind RequestKind) {
	for _, r := range m {
		r.RequestSent(kind)
	}
}

func (m multiRecorder) FrameReceived(length int) {
	for _, r := range m {
		r.FrameReceived(length)
	}
}

func (m multiRecorder) CorruptFrame() {
	for _, r := range m {
		r.CorruptFrame()
	}
}

func (m multiRecorder) UnknownFrame() {
	for _, r := range m {
		r.UnknownFrame()
	}
}

func (m multiRecorder) LogReceived(level LogLevel) {
	for _, r := range m {
		r.LogReceived(level)
	}
}

func (m multiRecorder) ResponseBuffered(kind ResponseKind) {
	for _, r := range m {
		r.ResponseBuffered(kind)
	}
}

func (m multiRecorder) ResponsesPruned(n int) {
	for _, r := range m {
		r.ResponsesPruned(n)
	}
}

func (m multiRecorder) WaitTimedOut(stage string) {
	for _, r := range m {
		r.WaitTimedOut(stage)
	}
}

// Counters is a point-in-time copy of the statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	RequestsSent     uint64
	TotalFrames      uint64
	CRCErrors        uint64
	UnknownFrames    uint64
	LogLines         uint64
	Responses        uint64
	ErrorResponses   uint64
	PrunedResponses  uint64
	AckTimeouts      uint64
	DoneTimeouts     uint64
	ResponseTimeouts uint64
	BytesReceived    uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// Statistics tracks frame counts and error rates
type Statistics struct {
	mu sync.Mutex
	Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		Counters: Counters{
			StartTime:      now,
			LastUpdateTime: now,
		},
	}
}

func (s *Statistics) RequestSent(kind RequestKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RequestsSent++
}

func (s *Statistics) FrameReceived(length int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalFrames++
	s.BytesReceived += uint64(length + HeaderSize)
	s.LastUpdateTime = time.Now()
}

func (s *Statistics) CorruptFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalFrames++
	s.CRCErrors++
	s.LastUpdateTime = time.Now()
}

func (s *Statistics) UnknownFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UnknownFrames++
}

func (s *Statistics) LogReceived(level LogLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LogLines++
}

func (s *Statistics) ResponseBuffered(kind ResponseKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses++
	if kind == ResponseError {
		s.ErrorResponses++
	}
}

func (s *Statistics) ResponsesPruned(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PrunedResponses += uint64(n)
}

func (s *Statistics) WaitTimedOut(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch stage {
	case StageAck:
		s.AckTimeouts++
	case StageDone:
		s.DoneTimeouts++
	default:
		s.ResponseTimeouts++
	}
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.CRCErrors+s.UnknownFrames) / elapsed
	}
}

// Snapshot returns a copy of the counters that is safe to read
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Counters
}

// SuccessRate returns the percentage of frames that passed the checksum
func (s *Statistics) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TotalFrames == 0 {
		return 100.0
	}
	return float64(s.TotalFrames-s.CRCErrors) / float64(s.TotalFrames) * 100.0
}

// String returns a formatted summary
func (s *Statistics) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf(
		"Frames: %d | CRC errors: %d | Unknown: %d | Logs: %d | Responses: %d (errors %d) | Pruned: %d | Timeouts: ack=%d done=%d resp=%d",
		snap.TotalFrames, snap.CRCErrors, snap.UnknownFrames, snap.LogLines,
		snap.Responses, snap.ErrorResponses, snap.PrunedResponses,
		snap.AckTimeouts, snap.DoneTimeouts, snap.ResponseTimeouts,
	)
}
