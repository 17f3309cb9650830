// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const metricsNamespace = "flightlink"

// statsSource is anything that can snapshot link statistics
type statsSource interface {
	Stats() flightlink.Statistics
	Buffered() int
}

// linkCollector exports link statistics. Values are read at scrape time, so
// the counters stay owned by the Manager.
type linkCollector struct {
	src statsSource

	bytes     *prometheus.Desc
	frames    *prometheus.Desc
	sent      *prometheus.Desc
	dropped   *prometheus.Desc
	skipped   *prometheus.Desc
	overflows *prometheus.Desc
	buffered  *prometheus.Desc
}

func newLinkCollector(src statsSource) *linkCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "link", name), help, labels, nil)
	}
	return &linkCollector{
		src:       src,
		bytes:     desc("bytes_received_total", "Bytes received from the transport."),
		frames:    desc("frames_received_total", "Frames dispatched to a handler.", "command"),
		sent:      desc("frames_sent_total", "Frames written to the transport."),
		dropped:   desc("frames_dropped_total", "Frames dropped before reaching a handler.", "reason"),
		skipped:   desc("skipped_bytes_total", "Bytes discarded while resynchronising."),
		overflows: desc("buffer_overflows_total", "Receive buffer overflows."),
		buffered:  desc("buffered_bytes", "Received bytes awaiting a complete frame."),
	}
}

func (c *linkCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.bytes, c.frames, c.sent, c.dropped, c.skipped, c.overflows, c.buffered} {
		ch <- d
	}
}

func (c *linkCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(c.bytes, s.BytesReceived)
	for id, n := range s.PerCommand {
		counter(c.frames, n, flightlink.FormatCommand(flightlink.CommandID(id)))
	}
	counter(c.sent, s.FramesSent)
	counter(c.dropped, s.InvalidFrames, "invalid")
	counter(c.dropped, s.Unregistered, "unregistered")
	counter(c.dropped, s.DecodeErrors, "decode")
	counter(c.dropped, s.Resets, "reset")
	counter(c.skipped, s.SkippedBytes)
	counter(c.overflows, s.Overflows)
	ch <- prometheus.MustNewConstMetric(c.buffered, prometheus.GaugeValue, float64(c.src.Buffered()))
}

// newMetricsRegistry creates a registry with the runtime collectors and the
// link collector for src
func newMetricsRegistry(src statsSource) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newLinkCollector(src),
	)
	return reg
}

// serveMetrics serves /metrics on addr until ctx is done
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}
