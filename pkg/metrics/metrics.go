// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports protocol counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Prometheus implements cobot.Recorder on its own registry
type Prometheus struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	frames        prometheus.Counter
	bytesReceived prometheus.Counter
	corrupt       prometheus.Counter
	unknown       prometheus.Counter
	logLines      *prometheus.CounterVec
	responses     *prometheus.CounterVec
	pruned        prometheus.Counter
	timeouts      *prometheus.CounterVec
	jointAngle    *prometheus.GaugeVec
	jointSpeed    *prometheus.GaugeVec
}

// New creates the collectors and registers them, plus the Go runtime
// collectors, on a fresh registry.
func New() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cobot_requests_sent_total",
			Help: "Requests written to the device",
		}, []string{"kind"}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cobot_frames_received_total",
			Help: "Checksum-valid frames received",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cobot_bytes_received_total",
			Help: "Bytes of checksum-valid frames received, headers included",
		}),
		corrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cobot_corrupt_frames_total",
			Help: "Frames dropped for a checksum mismatch",
		}),
		unknown: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cobot_unknown_frames_total",
			Help: "Frames dropped for an unknown type or log level",
		}),
		logLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cobot_log_lines_total",
			Help: "Device log lines forwarded",
		}, []string{"level"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cobot_responses_total",
			Help: "Responses buffered for correlation",
		}, []string{"kind"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cobot_responses_pruned_total",
			Help: "Buffered responses discarded after the retention window",
		}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cobot_wait_timeouts_total",
			Help: "Waits that ended without a response",
		}, []string{"stage"}),
		jointAngle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cobot_joint_angle_degrees",
			Help: "Last reported joint angle",
		}, []string{"joint"}),
		jointSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cobot_joint_speed_degrees_per_second",
			Help: "Last reported joint speed",
		}, []string{"joint"}),
	}

	p.registry.MustRegister(
		p.requests, p.frames, p.bytesReceived, p.corrupt, p.unknown,
		p.logLines, p.responses, p.pruned, p.timeouts,
		p.jointAngle, p.jointSpeed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Registry returns the registry holding every collector
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) RequestSent(kind cobot.RequestKind) {
	p.requests.WithLabelValues(cobot.FormatRequestKind(kind)).Inc()
}

func (p *Prometheus) FrameReceived(length int) {
	p.frames.Inc()
	p.bytesReceived.Add(float64(length + cobot.HeaderSize))
}

func (p *Prometheus) CorruptFrame() {
	p.corrupt.Inc()
}

func (p *Prometheus) UnknownFrame() {
	p.unknown.Inc()
}

func (p *Prometheus) LogReceived(level cobot.LogLevel) {
	p.logLines.WithLabelValues(cobot.FormatLogLevel(level)).Inc()
}

func (p *Prometheus) ResponseBuffered(kind cobot.ResponseKind) {
	p.responses.WithLabelValues(cobot.FormatResponseKind(kind)).Inc()
}

func (p *Prometheus) ResponsesPruned(n int) {
	p.pruned.Add(float64(n))
}

func (p *Prometheus) WaitTimedOut(stage string) {
	p.timeouts.WithLabelValues(stage).Inc()
}

// ObserveJoints records the latest joint state
func (p *Prometheus) ObserveJoints(joints []cobot.JointSample) {
	for i, j := range joints {
		label := strconv.Itoa(i)
		p.jointAngle.WithLabelValues(label).Set(j.Angle)
		p.jointSpeed.WithLabelValues(label).Set(j.Speed)
	}
}

// Handler serves /metrics and /health
func (p *Prometheus) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Serve runs the metrics endpoint on addr until ctx is cancelled
func (p *Prometheus) Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
