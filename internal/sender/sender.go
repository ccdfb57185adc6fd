// Package sender implements the file-transfer sender: the window pump
// (admission of new segments), the retransmission engine (timeout and
// fast-retransmit detection) and the glue that drives the congestion
// controller off ACK arrivals. All mutable state is serialized under a
// single mutex, the same coarse-lock shape gopkg.in/xtaci/kcp-go.v2's
// UDPSession uses around its kcp *KCP core (see sess.go's Read/Write/
// Close, each taking sess.mu before touching shared fields).
package sender

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/anissasoungpanya/reliudp/internal/congestion"
	"github.com/anissasoungpanya/reliudp/internal/metrics"
	"github.com/anissasoungpanya/reliudp/internal/segment"
	"github.com/anissasoungpanya/reliudp/internal/wire"
)

// pumpPoll is how often the window pump re-polls when it cannot send
// (window full or no new segments left).
const pumpPoll = 10 * time.Millisecond

// completionGrace is how long the sender waits after unacked drains
// before declaring the transfer complete, to catch any final in-flight
// ACK.
const completionGrace = 1 * time.Second

// srttWeight is the EWMA weight applied to new RTT samples.
const srttWeight = 0.125

type unackedEntry struct {
	lastSendTime    time.Time
	retransmitCount int
}

// Stats summarizes a completed transfer for the caller's final log line.
type Stats struct {
	Bytes                int
	Elapsed              time.Duration
	TimeoutRetransmits   int
	FastRetransmits      int
	TotalRetransmissions int
}

// Sender drives one file transfer to a single receiver.
type Sender struct {
	conn  net.PacketConn
	raddr net.Addr

	segments []segment.Segment
	table    segment.Table
	timeout  time.Duration
	rec      *metrics.Recorder

	mu              sync.Mutex
	cc              *congestion.Controller
	sendIdx         int
	lastAckReceived int64 // -1 means "none received yet"
	dupAckCount     int
	unacked         map[uint32]*unackedEntry
	srtt            time.Duration
	srttInited      bool
	timeoutRetx     int
	fastRetx        int

	start time.Time
}

// New builds a Sender for data, ready to transmit to raddr over conn.
// initialSsthresh overrides congestion.New's default when positive.
func New(conn net.PacketConn, raddr net.Addr, data []byte, timeout time.Duration, initialSsthresh int, rec *metrics.Recorder) *Sender {
	segments := segment.Split(data)
	cc := congestion.New()
	if initialSsthresh > 0 {
		cc = congestion.NewWithSsthresh(initialSsthresh)
	}
	return &Sender{
		conn:            conn,
		raddr:           raddr,
		segments:        segments,
		table:           segment.NewTable(segments),
		timeout:         timeout,
		rec:             rec,
		cc:              cc,
		lastAckReceived: -1,
		unacked:         make(map[uint32]*unackedEntry),
	}
}

// Run drives the transfer to completion: the window pump admits segments
// as cwnd allows while a concurrent ACK-receive loop updates congestion
// state and retransmits on timeout. It returns once every segment has
// been sent at least once, unacked has drained, and the completion grace
// period has elapsed.
func (s *Sender) Run(ctx context.Context) (Stats, error) {
	if len(s.segments) == 0 {
		// Empty file: nothing to send, transfer completes immediately.
		return Stats{}, nil
	}

	s.start = time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.ackLoop(runCtx)
	}()

	s.pump(runCtx)
	// Grace pause to catch any final in-flight ACK before tearing down
	// the ACK receiver.
	select {
	case <-time.After(completionGrace):
	case <-runCtx.Done():
	}
	cancel()
	wg.Wait()

	timeoutRetx, fastRetx, total := s.retxCounts()
	return Stats{
		Bytes:                len(s.segments[len(s.segments)-1].Payload) + int(s.segments[len(s.segments)-1].Seq),
		Elapsed:              time.Since(s.start),
		TimeoutRetransmits:   timeoutRetx,
		FastRetransmits:      fastRetx,
		TotalRetransmissions: total,
	}, nil
}

func (s *Sender) retxCounts() (timeout, fast, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeoutRetx, s.fastRetx, s.timeoutRetx + s.fastRetx
}

// pump is the window-pump admission loop (spec.md §4.4): while the number
// of in-flight segments is below cwnd and unsent segments remain, send
// the next one in sequence order.
func (s *Sender) pump(ctx context.Context) {
	for {
		s.checkTimeouts()

		s.mu.Lock()
		for len(s.unacked) < s.cc.Cwnd() && s.sendIdx < len(s.segments) {
			seg := s.segments[s.sendIdx]
			s.sendLocked(seg)
			s.sendIdx++
		}
		complete := s.sendIdx >= len(s.segments) && len(s.unacked) == 0
		s.mu.Unlock()

		if complete {
			return
		}
		select {
		case <-time.After(pumpPoll):
		case <-ctx.Done():
			return
		}
	}
}

// sendLocked transmits seg for the first time. Caller holds s.mu.
func (s *Sender) sendLocked(seg segment.Segment) {
	s.writeSegment(seg)
	s.unacked[seg.Seq] = &unackedEntry{lastSendTime: time.Now()}
}

func (s *Sender) writeSegment(seg segment.Segment) {
	buf := wire.EncodePacket(seg.Seq, seg.Payload)
	_, _ = s.conn.WriteTo(buf, s.raddr)
}

// ackLoop is the ACK-receiving activity (spec.md §5): it blocks on the
// socket with a read deadline equal to the retransmission timeout, and
// also scans for timeouts whenever that read deadline expires. This is
// a backstop, not the primary cadence: pump's 10ms poll already calls
// checkTimeouts every iteration, matching
// original_source/tcp_client.py's check_timeouts() call on every pass of
// its send loop, well inside spec.md §4.3's "at least every 100ms".
func (s *Sender) ackLoop(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(s.timeout))
		n, _, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				s.checkTimeouts()
				continue
			}
			return
		}

		ackNum, ok := wire.DecodeAck(buf[:n])
		if !ok {
			continue
		}
		s.handleAck(ackNum, time.Now())
	}
}

// handleAck reacts to one ACK arrival per spec.md §4.2: a strictly larger
// ack_num is a new cumulative ACK, an equal one is a duplicate (driving
// fast retransmit on the third), and a strictly smaller one is stale and
// ignored.
func (s *Sender) handleAck(ackNum uint32, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case int64(ackNum) == s.lastAckReceived:
		s.dupAckCount++
		if s.dupAckCount == 3 {
			s.fastRetransmitLocked(ackNum, now)
			s.cc.OnThirdDuplicateAck()
			s.dupAckCount = 0
		}
	case int64(ackNum) < s.lastAckReceived:
		// stale ACK, ignore
	default:
		s.onNewCumulativeAckLocked(ackNum, now)
	}
}

func (s *Sender) onNewCumulativeAckLocked(ackNum uint32, now time.Time) {
	k := 0
	for seq, entry := range s.unacked {
		seg, ok := s.table[seq]
		if !ok {
			continue
		}
		if seg.Seq+uint32(len(seg.Payload)) > ackNum {
			continue
		}
		s.updateSRTT(now.Sub(entry.lastSendTime))
		delete(s.unacked, seq)
		k++
	}

	s.lastAckReceived = int64(ackNum)
	s.dupAckCount = 0
	s.cc.OnNewAck(k)

	if s.rec != nil {
		elapsed := now.Sub(s.start)
		rttIndex := 0
		if s.srtt > 0 {
			rttIndex = int(elapsed / s.srtt)
		}
		s.rec.RecordAck(rttIndex, s.cc.Cwnd(), s.cc.Ssthresh(), s.cc.Phase().String())
	}
}

func (s *Sender) updateSRTT(sample time.Duration) {
	if !s.srttInited {
		s.srtt = sample
		s.srttInited = true
		return
	}
	s.srtt = time.Duration((1-srttWeight)*float64(s.srtt) + srttWeight*float64(sample))
}

// fastRetransmitLocked resends the segment the receiver is stuck waiting
// on (spec.md §4.2's fast retransmit). Caller holds s.mu.
func (s *Sender) fastRetransmitLocked(seq uint32, now time.Time) {
	seg, ok := s.table[seq]
	if !ok {
		return
	}
	s.writeSegment(seg)

	entry, ok := s.unacked[seq]
	if !ok {
		entry = &unackedEntry{}
		s.unacked[seq] = entry
	}
	entry.lastSendTime = now
	entry.retransmitCount++
	s.fastRetx++

	if s.rec != nil {
		s.rec.RecordRetransmission(now.Sub(s.start).Seconds(), s.timeoutRetx+s.fastRetx, true)
	}
}

// checkTimeouts is the retransmission engine's poll (spec.md §4.3): any
// unacked segment whose last send exceeds the fixed timeout is resent,
// with the timeout congestion reaction applied per occurrence.
func (s *Sender) checkTimeouts() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var timedOut []uint32
	for seq, entry := range s.unacked {
		if now.Sub(entry.lastSendTime) > s.timeout {
			timedOut = append(timedOut, seq)
		}
	}

	for _, seq := range timedOut {
		seg, ok := s.table[seq]
		if !ok {
			continue
		}
		entry := s.unacked[seq]
		s.writeSegment(seg)
		entry.lastSendTime = now
		entry.retransmitCount++
		s.timeoutRetx++
		s.cc.OnTimeout()

		if s.rec != nil {
			s.rec.RecordRetransmission(now.Sub(s.start).Seconds(), s.timeoutRetx+s.fastRetx, false)
		}
	}
}
