// Package congestion implements the sender's congestion window evolution:
// slow start, congestion avoidance, and the ssthresh reactions to fast
// retransmit and timeout. It holds no network or timer state of its own —
// the caller (internal/sender) serializes all access under its single
// session mutex, the same way gopkg.in/xtaci/kcp-go.v2's KCP.flush holds
// cwnd/ssthresh/incr updates behind the session lock rather than giving
// the congestion fields their own.
package congestion

import "math"

// Phase is the sender's congestion-control phase.
type Phase int

const (
	SlowStart Phase = iota
	CongestionAvoidance
)

func (p Phase) String() string {
	if p == SlowStart {
		return "slow_start"
	}
	return "congestion_avoidance"
}

// initialSsthresh is the slow-start threshold a new sender starts with.
const initialSsthresh = 64

// Controller tracks cwnd, ssthresh and the current phase. cwnd is kept as
// a float64 so slow-start's integer step and congestion-avoidance's
// fractional step share one field, but congestion avoidance truncates and
// writes back after every update — matching
// original_source/tcp_client.py's `self.cwnd = int(self.cwnd)` — so the
// fractional remainder is discarded each round rather than carried
// forward across ACKs.
type Controller struct {
	cwnd     float64
	ssthresh int
	phase    Phase
}

// New returns a controller in its initial state: cwnd=1, ssthresh=64,
// slow_start.
func New() *Controller {
	return NewWithSsthresh(initialSsthresh)
}

// NewWithSsthresh returns a controller in its initial state with a
// caller-supplied ssthresh instead of the spec default of 64.
func NewWithSsthresh(ssthresh int) *Controller {
	return &Controller{cwnd: 1, ssthresh: ssthresh, phase: SlowStart}
}

// Cwnd returns the current congestion window, truncated toward zero and
// clamped to a minimum of 1.
func (c *Controller) Cwnd() int {
	n := int(c.cwnd)
	if n < 1 {
		n = 1
	}
	return n
}

// Ssthresh returns the current slow-start threshold.
func (c *Controller) Ssthresh() int {
	return c.ssthresh
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// OnNewAck reacts to a cumulative ACK that newly acknowledged k segments.
// In slow start cwnd grows by k; once it reaches ssthresh the controller
// transitions to congestion avoidance, where cwnd instead grows by k/cwnd.
func (c *Controller) OnNewAck(k int) {
	if k <= 0 {
		return
	}
	switch c.phase {
	case SlowStart:
		c.cwnd += float64(k)
		if c.cwnd >= float64(c.ssthresh) {
			c.phase = CongestionAvoidance
		}
	case CongestionAvoidance:
		c.cwnd += float64(k) / c.cwnd
		c.cwnd = math.Trunc(c.cwnd)
	}
	if c.cwnd < 1 {
		c.cwnd = 1
	}
}

// OnThirdDuplicateAck applies the fast-retransmit congestion reaction:
// ssthresh halves (floor 2), cwnd jumps to ssthresh+3, and the controller
// enters congestion avoidance. The caller is responsible for actually
// retransmitting the segment and resetting its duplicate-ACK counter;
// this only updates the window.
func (c *Controller) OnThirdDuplicateAck() {
	c.ssthresh = halve(c.Cwnd())
	c.cwnd = float64(c.ssthresh + 3)
	c.phase = CongestionAvoidance
}

// OnTimeout applies the timeout congestion reaction: ssthresh halves
// (floor 2), cwnd resets to 1, and the controller returns to slow start.
func (c *Controller) OnTimeout() {
	c.ssthresh = halve(c.Cwnd())
	c.cwnd = 1
	c.phase = SlowStart
}

// halve implements ssthresh <- max(floor(cwnd/2), 2).
func halve(cwnd int) int {
	h := cwnd / 2
	if h < 2 {
		h = 2
	}
	return h
}
