// Package metrics records the two sample streams spec.md's Metrics
// Recorder produces (cwnd-over-RTT-index, retransmissions-over-time),
// writes them out as the spec-mandated tab/comma-separated text tables,
// and — as a domain-stack addition — exposes the same counters live as
// Prometheus gauges/counters, following the custom prometheus.Collector
// shape used by runZeroInc-sockstats/pkg/exporter.TCPInfoCollector
// (a locked struct implementing Describe/Collect over its own state
// rather than registering package-level metric vars).
package metrics

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// CwndSample is one row of the cwnd-history table: the RTT index at which
// a new cumulative ACK arrived, and the resulting integer cwnd.
type CwndSample struct {
	RTTIndex int
	Cwnd     int
}

// RetransmissionSample is one row of the retransmission-history table:
// elapsed seconds since transfer start, and the running total.
type RetransmissionSample struct {
	ElapsedSeconds float64
	Total          int
}

// Recorder accumulates both sample streams and doubles as a Prometheus
// collector. All methods are safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	cwndSamples []CwndSample
	retxSamples []RetransmissionSample

	ssthresh    int
	phase       string
	timeoutRetx int
	fastRetx    int
	dropped     int
	checksumErr int

	cwndDesc        *prometheus.Desc
	ssthreshDesc    *prometheus.Desc
	timeoutRetxDesc *prometheus.Desc
	fastRetxDesc    *prometheus.Desc
	droppedDesc     *prometheus.Desc
	checksumErrDesc *prometheus.Desc
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		cwndDesc:        prometheus.NewDesc("reliudp_cwnd", "current sender congestion window", nil, nil),
		ssthreshDesc:    prometheus.NewDesc("reliudp_ssthresh", "current sender slow-start threshold", nil, nil),
		timeoutRetxDesc: prometheus.NewDesc("reliudp_timeout_retransmissions_total", "segments retransmitted due to timeout", nil, nil),
		fastRetxDesc:    prometheus.NewDesc("reliudp_fast_retransmissions_total", "segments retransmitted due to fast retransmit", nil, nil),
		droppedDesc:     prometheus.NewDesc("reliudp_dropped_datagrams_total", "datagrams discarded by the receiver's loss injector", nil, nil),
		checksumErrDesc: prometheus.NewDesc("reliudp_checksum_errors_total", "datagrams discarded for a checksum mismatch", nil, nil),
	}
}

// RecordAck appends one cwnd-history row on a new cumulative ACK event.
func (r *Recorder) RecordAck(rttIndex, cwnd int, ssthresh int, phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cwndSamples = append(r.cwndSamples, CwndSample{RTTIndex: rttIndex, Cwnd: cwnd})
	r.ssthresh = ssthresh
	r.phase = phase
}

// RecordRetransmission appends one retransmission-history row and tallies
// the counter it belongs to.
func (r *Recorder) RecordRetransmission(elapsedSeconds float64, total int, fast bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retxSamples = append(r.retxSamples, RetransmissionSample{ElapsedSeconds: elapsedSeconds, Total: total})
	if fast {
		r.fastRetx++
	} else {
		r.timeoutRetx++
	}
}

// RecordDropped tallies one datagram discarded by the loss injector.
func (r *Recorder) RecordDropped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped++
}

// RecordChecksumError tallies one datagram discarded for a bad checksum.
func (r *Recorder) RecordChecksumError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checksumErr++
}

// WriteCwndTable writes the "RTT,cwnd" table to path.
func (r *Recorder) WriteCwndTable(path string) error {
	r.mu.Lock()
	samples := append([]CwndSample(nil), r.cwndSamples...)
	r.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("RTT,cwnd\n")
	for _, s := range samples {
		fmt.Fprintf(&sb, "%d,%d\n", s.RTTIndex, s.Cwnd)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return errors.Wrapf(err, "writing cwnd metrics to %s", path)
	}
	return nil
}

// WriteRetransmissionTable writes the "time,retransmissions" table to
// path.
func (r *Recorder) WriteRetransmissionTable(path string) error {
	r.mu.Lock()
	samples := append([]RetransmissionSample(nil), r.retxSamples...)
	r.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("time,retransmissions\n")
	for _, s := range samples {
		fmt.Fprintf(&sb, "%f,%d\n", s.ElapsedSeconds, s.Total)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return errors.Wrapf(err, "writing retransmission metrics to %s", path)
	}
	return nil
}

// TotalRetransmissions returns timeout + fast retransmission counts.
func (r *Recorder) TotalRetransmissions() (timeout, fast, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeoutRetx, r.fastRetx, r.timeoutRetx + r.fastRetx
}

// Dropped returns the loss injector's running drop count.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Describe implements prometheus.Collector.
func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	ch <- r.cwndDesc
	ch <- r.ssthreshDesc
	ch <- r.timeoutRetxDesc
	ch <- r.fastRetxDesc
	ch <- r.droppedDesc
	ch <- r.checksumErrDesc
}

// Collect implements prometheus.Collector.
func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastCwnd int
	if n := len(r.cwndSamples); n > 0 {
		lastCwnd = r.cwndSamples[n-1].Cwnd
	}
	ch <- prometheus.MustNewConstMetric(r.cwndDesc, prometheus.GaugeValue, float64(lastCwnd))
	ch <- prometheus.MustNewConstMetric(r.ssthreshDesc, prometheus.GaugeValue, float64(r.ssthresh))
	ch <- prometheus.MustNewConstMetric(r.timeoutRetxDesc, prometheus.CounterValue, float64(r.timeoutRetx))
	ch <- prometheus.MustNewConstMetric(r.fastRetxDesc, prometheus.CounterValue, float64(r.fastRetx))
	ch <- prometheus.MustNewConstMetric(r.droppedDesc, prometheus.CounterValue, float64(r.dropped))
	ch <- prometheus.MustNewConstMetric(r.checksumErrDesc, prometheus.CounterValue, float64(r.checksumErr))
}
